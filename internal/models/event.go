package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/openrecords-api/internal/permission"
)

// EventType enumerates every auditable mutation.
type EventType string

const (
	EventRequestCreated        EventType = "REQ_CREATED"
	EventRequestAcknowledged   EventType = "REQ_ACKNOWLEDGED"
	EventRequestExtended       EventType = "REQ_EXTENDED"
	EventRequestDenied         EventType = "REQ_DENIED"
	EventRequestClosed         EventType = "REQ_CLOSED"
	EventRequestReopened       EventType = "REQ_REOPENED"
	EventRequestStatusChanged  EventType = "REQ_STATUS_CHANGED"
	EventRequestPrivacyChanged EventType = "REQ_PRIVACY_CHANGED"
	EventNoteAdded             EventType = "NOTE_ADDED"
	EventFileAdded             EventType = "FILE_ADDED"
	EventLinkAdded             EventType = "LINK_ADDED"
	EventInstructionsAdded     EventType = "INSTRUCTIONS_ADDED"
	EventEmailNotificationSent EventType = "EMAIL_NOTIFICATION_SENT"
	EventResponseDeleted       EventType = "RESPONSE_DELETED"
	EventUserAdded             EventType = "USER_ADDED"
	EventUserRemoved           EventType = "USER_REMOVED"
	EventUserPermissionChanged EventType = "USER_PERM_CHANGED"
	EventPointOfContactChanged EventType = "REQ_POC_CHANGED"
	EventAgencyCounterReset    EventType = "AGENCY_COUNTER_RESET"
)

// SnapshotVersion is the current schema version of Snapshot.
const SnapshotVersion = 1

// Snapshot is the closed set of fields an event may record before or after a
// mutation. Unset fields are omitted, so a snapshot is a diff keyed by field name.
type Snapshot struct {
	Version int `json:"v"`

	Status           *RequestStatus    `json:"status,omitempty"`
	DueDate          *time.Time        `json:"due_date,omitempty"`
	Title            *string           `json:"title,omitempty"`
	AgencyEIN        *string           `json:"agency_ein,omitempty"`
	SubmissionMethod *SubmissionMethod `json:"submission_method,omitempty"`
	TitlePrivate     *bool             `json:"privacy_title,omitempty"`
	SummaryPrivate   *bool             `json:"privacy_agency_request_summary,omitempty"`

	ResponseKind      *ResponseKind      `json:"response_type,omitempty"`
	Privacy           *ResponsePrivacy   `json:"privacy,omitempty"`
	DeterminationKind *DeterminationKind `json:"dtype,omitempty"`
	Reason            *string            `json:"reason,omitempty"`
	Content           *string            `json:"content,omitempty"`
	URL               *string            `json:"url,omitempty"`
	ObjectKey         *string            `json:"object_key,omitempty"`
	Deleted           *bool              `json:"deleted,omitempty"`

	UserGUID        *string          `json:"user_guid,omitempty"`
	Permissions     *permission.Mask `json:"permissions,omitempty"`
	PointOfContact  *bool            `json:"point_of_contact,omitempty"`
	RequestUserType *RequestUserType `json:"request_user_type,omitempty"`

	NextRequestNumber *int `json:"next_request_number,omitempty"`
}

// NewSnapshot returns an empty snapshot stamped with the current version.
func NewSnapshot() Snapshot {
	return Snapshot{Version: SnapshotVersion}
}

// WithStatus sets the status field.
func (s Snapshot) WithStatus(status RequestStatus) Snapshot {
	s.Status = &status
	return s
}

// WithDueDate sets the due date field.
func (s Snapshot) WithDueDate(due time.Time) Snapshot {
	due = due.UTC()
	s.DueDate = &due
	return s
}

// WithReason sets the reason field.
func (s Snapshot) WithReason(reason string) Snapshot {
	s.Reason = &reason
	return s
}

// WithPermissions sets the permission mask field.
func (s Snapshot) WithPermissions(mask permission.Mask) Snapshot {
	s.Permissions = &mask
	return s
}

// IsEmpty reports whether no field besides the version is set.
func (s Snapshot) IsEmpty() bool {
	return s == Snapshot{Version: s.Version}
}

// Value implements driver.Valuer storing the snapshot as JSONB.
func (s Snapshot) Value() (driver.Value, error) {
	if s.Version == 0 {
		s.Version = SnapshotVersion
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return raw, nil
}

// Scan implements sql.Scanner.
func (s *Snapshot) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case nil:
		*s = Snapshot{}
		return nil
	default:
		return fmt.Errorf("scan snapshot: unsupported type %T", src)
	}
	var decoded Snapshot
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("scan snapshot: %w", err)
	}
	if decoded.Version > SnapshotVersion {
		return fmt.Errorf("scan snapshot: unsupported version %d", decoded.Version)
	}
	*s = decoded
	return nil
}

// Event is an append-only audit record.
type Event struct {
	ID            string    `db:"id" json:"id"`
	RequestID     *string   `db:"request_id" json:"request_id,omitempty"`
	ResponseID    *string   `db:"response_id" json:"response_id,omitempty"`
	UserGUID      *string   `db:"user_guid" json:"user_guid,omitempty"`
	Type          EventType `db:"type" json:"type"`
	Timestamp     time.Time `db:"timestamp" json:"timestamp"`
	PreviousValue *Snapshot `db:"previous_value" json:"previous_value,omitempty"`
	NewValue      Snapshot  `db:"new_value" json:"new_value"`
}

// EventFilter narrows event listings.
type EventFilter struct {
	RequestID string
	Types     []EventType
	Since     *time.Time
	Limit     int
	Offset    int
}
