package models

import "time"

// User is a person acting on requests, either a member of the public or agency staff.
type User struct {
	GUID                 string    `db:"guid" json:"guid"`
	Email                string    `db:"email" json:"email"`
	FullName             string    `db:"full_name" json:"full_name"`
	AgencyEIN            *string   `db:"agency_ein" json:"agency_ein,omitempty"`
	IsSuperUser          bool      `db:"is_super" json:"is_super"`
	IsAgencyAdmin        bool      `db:"is_agency_admin" json:"is_agency_admin"`
	IsAgencyActive       bool      `db:"is_agency_active" json:"is_agency_active"`
	IsAnonymousRequester bool      `db:"is_anonymous_requester" json:"is_anonymous_requester"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}

// IsAgencyUser reports whether the user is active staff of the given agency.
func (u *User) IsAgencyUser(agencyEIN string) bool {
	return u != nil && u.AgencyEIN != nil && *u.AgencyEIN == agencyEIN && u.IsAgencyActive
}

// AdministersAgency reports whether the user is an active administrator of the agency.
func (u *User) AdministersAgency(agencyEIN string) bool {
	return u.IsAgencyUser(agencyEIN) && u.IsAgencyAdmin
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
