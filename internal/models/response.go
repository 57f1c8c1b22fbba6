package models

import (
	"encoding/json"
	"time"
)

// ResponseKind discriminates the response variants.
type ResponseKind string

const (
	ResponseKindNote          ResponseKind = "note"
	ResponseKindFile          ResponseKind = "file"
	ResponseKindLink          ResponseKind = "link"
	ResponseKindInstruction   ResponseKind = "instruction"
	ResponseKindDetermination ResponseKind = "determination"
	ResponseKindEmail         ResponseKind = "email"
)

// ResponsePrivacy controls who may see a response.
type ResponsePrivacy string

const (
	PrivacyPrivate           ResponsePrivacy = "private"
	PrivacyReleaseAndPrivate ResponsePrivacy = "release_and_private"
	PrivacyReleaseAndPublic  ResponsePrivacy = "release_and_public"
)

// Valid reports whether p is a known privacy classification.
func (p ResponsePrivacy) Valid() bool {
	switch p {
	case PrivacyPrivate, PrivacyReleaseAndPrivate, PrivacyReleaseAndPublic:
		return true
	}
	return false
}

// DeterminationKind enumerates legally significant decisions.
type DeterminationKind string

const (
	DeterminationAcknowledgment DeterminationKind = "acknowledgment"
	DeterminationDenial         DeterminationKind = "denial"
	DeterminationExtension      DeterminationKind = "extension"
	DeterminationClosing        DeterminationKind = "closing"
	DeterminationReopening      DeterminationKind = "reopening"
)

// Payload is the variant-specific content of a response. The set of
// implementations is closed to this package.
type Payload interface {
	Kind() ResponseKind
	isPayload()
}

// Note is free text attached to a request.
type Note struct {
	Content string `json:"content"`
}

// File references stored content by an opaque object key.
type File struct {
	Title     string `json:"title"`
	Name      string `json:"name"`
	MimeType  string `json:"mime_type"`
	Size      int64  `json:"size"`
	ObjectKey string `json:"object_key"`
	Hash      string `json:"hash,omitempty"`
}

// Link points the requester to an external location.
type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Instruction explains how to obtain records offline.
type Instruction struct {
	Content string `json:"content"`
}

// Determination records an acknowledgment, denial, extension, closing or reopening.
type Determination struct {
	DeterminationKind DeterminationKind `json:"dtype"`
	Reason            *string           `json:"reason,omitempty"`
	DueDate           *time.Time        `json:"due_date,omitempty"`
}

// Email is a copy of a message sent about the request.
type Email struct {
	To      string `json:"to"`
	CC      string `json:"cc,omitempty"`
	BCC     string `json:"bcc,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (Note) Kind() ResponseKind          { return ResponseKindNote }
func (File) Kind() ResponseKind          { return ResponseKindFile }
func (Link) Kind() ResponseKind          { return ResponseKindLink }
func (Instruction) Kind() ResponseKind   { return ResponseKindInstruction }
func (Determination) Kind() ResponseKind { return ResponseKindDetermination }
func (Email) Kind() ResponseKind         { return ResponseKindEmail }

func (Note) isPayload()          {}
func (File) isPayload()          {}
func (Link) isPayload()          {}
func (Instruction) isPayload()   {}
func (Determination) isPayload() {}
func (Email) isPayload()         {}

// Response is the shared envelope of every response variant.
type Response struct {
	ID        string          `json:"id"`
	RequestID string          `json:"request_id"`
	Privacy   ResponsePrivacy `json:"privacy"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Deleted   bool            `json:"deleted"`
	Editable  bool            `json:"editable"`
	Payload   Payload         `json:"-"`
}

// Kind returns the variant discriminator.
func (r *Response) Kind() ResponseKind {
	if r == nil || r.Payload == nil {
		return ""
	}
	return r.Payload.Kind()
}

// Determination returns the determination payload when the response is one.
func (r *Response) Determination() (*Determination, bool) {
	if r == nil {
		return nil, false
	}
	d, ok := r.Payload.(*Determination)
	return d, ok
}

// MarshalJSON flattens the envelope with a type tag and the payload.
func (r Response) MarshalJSON() ([]byte, error) {
	type envelope Response
	return json.Marshal(struct {
		envelope
		Type    ResponseKind `json:"type"`
		Payload Payload      `json:"payload"`
	}{envelope: envelope(r), Type: r.Kind(), Payload: r.Payload})
}

// ResponseFilter narrows response listings.
type ResponseFilter struct {
	RequestID      string
	Kinds          []ResponseKind
	IncludeDeleted bool
	PublicOnly     bool
}
