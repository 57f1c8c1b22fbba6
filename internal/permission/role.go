package permission

import "fmt"

// RoleName identifies a seeded role preset.
type RoleName string

const (
	RoleAnonymous       RoleName = "Anonymous User"
	RolePublicRequester RoleName = "Public Requester"
	RoleAgencyHelper    RoleName = "Agency Helper"
	RoleAgencyOfficer   RoleName = "Agency Officer"
	RoleAgencyAdmin     RoleName = "Agency Administrator"
)

// Role is an immutable template used to initialise a UserRequest mask.
type Role struct {
	Name        RoleName `db:"name" json:"name"`
	Description string   `db:"description" json:"description"`
	Permissions Mask     `db:"permissions" json:"permissions"`
}

var requesterBase = Union(
	DuplicateRequest,
	ViewRequestStatusPublic,
	ViewRequestInfoPublic,
)

var agencyBase = Union(
	ViewRequestStatusAll,
	ViewRequestInfoAll,
	ViewDocumentsImmediately,
	ViewRequestsHelper,
	AddNote,
	AddFile,
	AddLink,
	AddInstructions,
)

var officer = Union(
	agencyBase,
	ViewRequestsAgency,
	Acknowledge,
	Extend,
	Deny,
	Close,
	Reopen,
	AddUser,
	RemoveUser,
	EditUserPermissions,
	ChangePointOfContact,
	DeleteResponse,
	EditRequestPrivacy,
)

// Roles lists the presets in seeding order.
var Roles = []Role{
	{Name: RoleAnonymous, Description: "A requester who has not created an account.", Permissions: requesterBase},
	{Name: RolePublicRequester, Description: "A registered member of the public who filed the request.", Permissions: requesterBase.Add(AddNote)},
	{Name: RoleAgencyHelper, Description: "Agency staff assisting on a request.", Permissions: agencyBase},
	{Name: RoleAgencyOfficer, Description: "Agency FOIL officer responsible for determinations.", Permissions: officer},
	{Name: RoleAgencyAdmin, Description: "Agency administrator with every capability.", Permissions: All},
}

// LookupRole returns the preset with the given name.
func LookupRole(name RoleName) (Role, error) {
	for _, r := range Roles {
		if r.Name == name {
			return r, nil
		}
	}
	return Role{}, fmt.Errorf("unknown role %q", name)
}
