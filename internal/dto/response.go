package dto

// AcknowledgePayload sets the first due date of a request. Date wins over Days.
type AcknowledgePayload struct {
	Days int    `json:"days" validate:"omitempty,min=-1,max=365"`
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Info string `json:"info" validate:"omitempty,max=5000"`
}

// ExtendPayload pushes the due date of a request forward. Date wins over Days.
type ExtendPayload struct {
	Days   int    `json:"days" validate:"omitempty,min=-1,max=365"`
	Date   string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Reason string `json:"reason" validate:"required,max=5000"`
}

// ReasonPayload carries canned reason ids and an optional free text reason.
type ReasonPayload struct {
	ReasonIDs []int  `json:"reason_ids" validate:"omitempty,max=20,dive,gt=0"`
	Reason    string `json:"reason" validate:"omitempty,max=5000"`
}

// ReopenPayload reopens a closed request with a new due date.
type ReopenPayload struct {
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
	Reason string `json:"reason" validate:"omitempty,max=5000"`
}

// NotePayload adds a note.
type NotePayload struct {
	Content string `json:"content" validate:"required,max=5000"`
	Privacy string `json:"privacy" validate:"omitempty,privacy"`
}

// FilePayload references an already stored object.
type FilePayload struct {
	Title     string `json:"title" validate:"required,max=140"`
	Name      string `json:"name" validate:"required,max=255"`
	MimeType  string `json:"mime_type" validate:"required,max=255"`
	Size      int64  `json:"size" validate:"gte=0"`
	ObjectKey string `json:"object_key" validate:"required,max=1024"`
	Hash      string `json:"hash" validate:"omitempty,hexadecimal,max=128"`
	Privacy   string `json:"privacy" validate:"omitempty,privacy"`
}

// LinkPayload adds an external link.
type LinkPayload struct {
	Title   string `json:"title" validate:"required,max=140"`
	URL     string `json:"url" validate:"required,url,max=2048"`
	Privacy string `json:"privacy" validate:"omitempty,privacy"`
}

// InstructionPayload adds offline retrieval instructions.
type InstructionPayload struct {
	Content string `json:"content" validate:"required,max=5000"`
	Privacy string `json:"privacy" validate:"omitempty,privacy"`
}

// EmailPayload records a copy of a message sent about the request.
type EmailPayload struct {
	To      string `json:"to" validate:"required,max=1024"`
	CC      string `json:"cc" validate:"omitempty,max=1024"`
	BCC     string `json:"bcc" validate:"omitempty,max=1024"`
	Subject string `json:"subject" validate:"required,max=255"`
	Body    string `json:"body" validate:"required"`
}

// DownloadToken is returned for file responses.
type DownloadToken struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}
