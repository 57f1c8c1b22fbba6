package dto

import "github.com/noah-isme/openrecords-api/internal/models"

// DateLayout is the wire format of explicit due dates.
const DateLayout = "2006-01-02"

// CustomDateDays marks the days field as unused in favour of an explicit date.
const CustomDateDays = -1

// CreateRequestPayload captures a new FOIL request.
type CreateRequestPayload struct {
	AgencyEIN            string                  `json:"agency_ein" validate:"required,len=4,alphanum"`
	Title                string                  `json:"title" validate:"required,max=90"`
	Description          string                  `json:"description" validate:"required,max=5000"`
	AgencyRequestSummary *string                 `json:"agency_request_summary" validate:"omitempty,max=5000"`
	Category             string                  `json:"category" validate:"omitempty,max=64"`
	SubmissionMethod     models.SubmissionMethod `json:"submission_method" validate:"required,submission_method"`
}

// RequestQuery mirrors supported request listing filters.
type RequestQuery struct {
	AgencyEIN string                 `form:"agency_ein"`
	Statuses  []models.RequestStatus `form:"status"`
	Limit     int                    `form:"limit" validate:"omitempty,min=1,max=500"`
	Offset    int                    `form:"offset" validate:"omitempty,min=0"`
}

// EditPrivacyPayload toggles privacy flags on request fields. Nil leaves a flag unchanged.
type EditPrivacyPayload struct {
	Title                *bool `json:"title"`
	AgencyRequestSummary *bool `json:"agency_request_summary"`
}

// EventQuery mirrors supported audit listing filters.
type EventQuery struct {
	Types  []models.EventType `form:"type"`
	Since  string             `form:"since" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Limit  int                `form:"limit" validate:"omitempty,min=1,max=1000"`
	Offset int                `form:"offset" validate:"omitempty,min=0"`
}

// SweepPayload optionally pins the sweep clock.
type SweepPayload struct {
	Now string `json:"now" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}
