package models

import (
	"fmt"
	"regexp"
	"time"
)

// RequestStatus captures the lifecycle state of a FOIL request.
type RequestStatus string

const (
	RequestStatusOpen       RequestStatus = "Open"
	RequestStatusInProgress RequestStatus = "In Progress"
	RequestStatusDueSoon    RequestStatus = "Due Soon"
	RequestStatusOverdue    RequestStatus = "Overdue"
	RequestStatusClosed     RequestStatus = "Closed"
)

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusOpen, RequestStatusInProgress, RequestStatusDueSoon, RequestStatusOverdue, RequestStatusClosed:
		return true
	}
	return false
}

// SubmissionMethod records how a request reached the agency.
type SubmissionMethod string

const (
	SubmissionOnline     SubmissionMethod = "Online"
	SubmissionInPerson   SubmissionMethod = "In-Person"
	SubmissionPhone      SubmissionMethod = "Phone"
	SubmissionFax        SubmissionMethod = "Fax"
	SubmissionEmail      SubmissionMethod = "Email"
	SubmissionMail       SubmissionMethod = "Mail"
	SubmissionThirdParty SubmissionMethod = "Third Party Online"
)

// Valid reports whether m is a known submission method.
func (m SubmissionMethod) Valid() bool {
	switch m {
	case SubmissionOnline, SubmissionInPerson, SubmissionPhone, SubmissionFax,
		SubmissionEmail, SubmissionMail, SubmissionThirdParty:
		return true
	}
	return false
}

// Request is the aggregate root of the FOIL workflow.
type Request struct {
	ID                          string           `db:"id" json:"id"`
	AgencyEIN                   string           `db:"agency_ein" json:"agency_ein"`
	Title                       string           `db:"title" json:"title"`
	Description                 string           `db:"description" json:"description"`
	AgencyRequestSummary        *string          `db:"agency_request_summary" json:"agency_request_summary,omitempty"`
	Category                    string           `db:"category" json:"category"`
	SubmissionMethod            SubmissionMethod `db:"submission_method" json:"submission_method"`
	Status                      RequestStatus    `db:"status" json:"status"`
	CreatedAt                   time.Time        `db:"created_at" json:"created_at"`
	SubmittedAt                 time.Time        `db:"submitted_at" json:"submitted_at"`
	DueDate                     time.Time        `db:"due_date" json:"due_date"`
	TitlePrivate                bool             `db:"privacy_title" json:"privacy_title"`
	AgencyRequestSummaryPrivate bool             `db:"privacy_agency_request_summary" json:"privacy_agency_request_summary"`
}

// IsClosed reports whether the request reached its terminal state.
func (r *Request) IsClosed() bool {
	return r.Status == RequestStatusClosed
}

// RequestFilter narrows request listings.
type RequestFilter struct {
	AgencyEIN string
	Statuses  []RequestStatus
	Limit     int
	Offset    int
}

// UpdateRequestStateParams holds the mutable lifecycle columns.
type UpdateRequestStateParams struct {
	ID      string
	Status  RequestStatus
	DueDate time.Time
}

var requestIDPattern = regexp.MustCompile(`^FOIL-\d{4}-[0-9A-Za-z]{4}-\d{5}$`)

// FormatRequestID renders the public identifier of a request.
func FormatRequestID(year int, agencyEIN string, sequence int) string {
	return fmt.Sprintf("%s%05d", RequestIDPrefix(year, agencyEIN), sequence)
}

// RequestIDPrefix is the part of a request id shared by one agency's year.
func RequestIDPrefix(year int, agencyEIN string) string {
	return fmt.Sprintf("FOIL-%04d-%s-", year, agencyEIN)
}

// ValidRequestID reports whether id follows the FOIL-<year>-<agency>-<sequence> format.
func ValidRequestID(id string) bool {
	return requestIDPattern.MatchString(id)
}
