package dto

// Permission edit operations.
const (
	PermissionSet    = "set"
	PermissionAdd    = "add"
	PermissionRemove = "remove"
)

// AddUserPayload attaches a user to a request by role or explicit permissions.
type AddUserPayload struct {
	UserGUID    string   `json:"user_guid" validate:"required,max=64"`
	Role        string   `json:"role" validate:"required_without=Permissions,omitempty,max=64"`
	Permissions []string `json:"permissions" validate:"required_without=Role,omitempty,dive,required"`
}

// EditPermissionsPayload applies a bulk permission change to one user.
type EditPermissionsPayload struct {
	Operation   string   `json:"operation" validate:"required,oneof=set add remove"`
	Permissions []string `json:"permissions" validate:"omitempty,dive,required"`
}

// PointOfContactPayload designates the agency point of contact.
type PointOfContactPayload struct {
	UserGUID string `json:"user_guid" validate:"required,max=64"`
}
