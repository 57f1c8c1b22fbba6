package models

import "github.com/noah-isme/openrecords-api/internal/permission"

// RequestUserType separates the requester from agency participants.
type RequestUserType string

const (
	RequestUserRequester RequestUserType = "requester"
	RequestUserAgency    RequestUserType = "agency"
)

// UserRequest is the authorization edge between a user and a request.
type UserRequest struct {
	UserGUID        string          `db:"user_guid" json:"user_guid"`
	RequestID       string          `db:"request_id" json:"request_id"`
	RequestUserType RequestUserType `db:"request_user_type" json:"request_user_type"`
	Permissions     permission.Mask `db:"permissions" json:"permissions"`
	PointOfContact  bool            `db:"point_of_contact" json:"point_of_contact"`
}

// IsRequester reports whether the edge belongs to the original requester.
func (ur *UserRequest) IsRequester() bool {
	return ur != nil && ur.RequestUserType == RequestUserRequester
}
