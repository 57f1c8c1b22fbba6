package models

// ReasonKind groups canned determination reasons.
type ReasonKind string

const (
	ReasonDenial    ReasonKind = "denial"
	ReasonClosing   ReasonKind = "closing"
	ReasonReopening ReasonKind = "re-opening"
)

// Reason is canned legal text referenced by denials and closings.
type Reason struct {
	ID        int        `db:"id" json:"id"`
	Title     string     `db:"title" json:"title"`
	Content   string     `db:"content" json:"content"`
	Kind      ReasonKind `db:"type" json:"type"`
	AgencyEIN *string    `db:"agency_ein" json:"agency_ein,omitempty"`
}
