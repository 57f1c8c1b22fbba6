// Package permission defines request-level capabilities as a bitmask.
package permission

import (
	"database/sql/driver"
	"fmt"
	"sort"
	"strings"
)

// Mask is a set of capabilities held by a user on a single request.
type Mask uint64

// Capabilities. The bit positions are persisted and must never be renumbered.
const (
	DuplicateRequest Mask = 1 << iota
	ViewRequestStatusPublic
	ViewRequestStatusAll
	ViewRequestInfoPublic
	ViewRequestInfoAll
	AddNote
	AddFile
	ViewDocumentsImmediately
	ViewRequestsHelper
	ViewRequestsAgency
	ViewRequestsAll
	Extend
	Close
	AddUser
	RemoveUser
	Acknowledge
	ChangePointOfContact
	Administer
	AddLink
	AddInstructions
	Deny
	Reopen
	EditUserPermissions
	DeleteResponse
	EditRequestPrivacy

	// None is the empty set.
	None Mask = 0
)

var names = map[Mask]string{
	DuplicateRequest:         "duplicate_request",
	ViewRequestStatusPublic:  "view_request_status_public",
	ViewRequestStatusAll:     "view_request_status_all",
	ViewRequestInfoPublic:    "view_request_info_public",
	ViewRequestInfoAll:       "view_request_info_all",
	AddNote:                  "add_note",
	AddFile:                  "add_file",
	ViewDocumentsImmediately: "view_documents_immediately",
	ViewRequestsHelper:       "view_requests_helper",
	ViewRequestsAgency:       "view_requests_agency",
	ViewRequestsAll:          "view_requests_all",
	Extend:                   "extend",
	Close:                    "close",
	AddUser:                  "add_user",
	RemoveUser:               "remove_user",
	Acknowledge:              "acknowledge",
	ChangePointOfContact:     "change_point_of_contact",
	Administer:               "administer",
	AddLink:                  "add_link",
	AddInstructions:          "add_instructions",
	Deny:                     "deny",
	Reopen:                   "reopen",
	EditUserPermissions:      "edit_user_permissions",
	DeleteResponse:           "delete_response",
	EditRequestPrivacy:       "edit_request_privacy",
}

var byName = func() map[string]Mask {
	out := make(map[string]Mask, len(names))
	for bit, name := range names {
		out[name] = bit
	}
	return out
}()

// All is the union of every defined capability.
var All = func() Mask {
	var m Mask
	for bit := range names {
		m |= bit
	}
	return m
}()

// Has reports whether every bit in required is set.
func (m Mask) Has(required Mask) bool {
	return m&required == required
}

// HasAny reports whether at least one bit of other is set.
func (m Mask) HasAny(other Mask) bool {
	return m&other != 0
}

// Add returns m with the given bits set.
func (m Mask) Add(bits Mask) Mask {
	return m | bits
}

// Remove returns m with the given bits cleared.
func (m Mask) Remove(bits Mask) Mask {
	return m &^ bits
}

// Union combines several masks.
func Union(masks ...Mask) Mask {
	var out Mask
	for _, m := range masks {
		out |= m
	}
	return out
}

// Valid reports whether m only contains defined capabilities.
func (m Mask) Valid() bool {
	return m&^All == 0
}

// Names lists the capability names set in m in bit order.
func (m Mask) Names() []string {
	bits := make([]Mask, 0, len(names))
	for bit := range names {
		if m.Has(bit) {
			bits = append(bits, bit)
		}
	}
	sort.Slice(bits, func(i, j int) bool { return bits[i] < bits[j] })
	out := make([]string, len(bits))
	for i, bit := range bits {
		out[i] = names[bit]
	}
	return out
}

// String renders the mask as a pipe separated list of names.
func (m Mask) String() string {
	if m == None {
		return "none"
	}
	return strings.Join(m.Names(), "|")
}

// Parse converts capability names into a mask.
func Parse(list []string) (Mask, error) {
	var m Mask
	for _, raw := range list {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		bit, ok := byName[name]
		if !ok {
			return None, fmt.Errorf("unknown permission %q", raw)
		}
		m |= bit
	}
	return m, nil
}

// Value implements driver.Valuer; masks are stored as BIGINT.
func (m Mask) Value() (driver.Value, error) {
	return int64(m), nil
}

// Scan implements sql.Scanner.
func (m *Mask) Scan(src interface{}) error {
	switch v := src.(type) {
	case int64:
		*m = Mask(v)
	case []byte:
		var n int64
		if _, err := fmt.Sscanf(string(v), "%d", &n); err != nil {
			return fmt.Errorf("scan permission mask: %w", err)
		}
		*m = Mask(n)
	case nil:
		*m = None
	default:
		return fmt.Errorf("scan permission mask: unsupported type %T", src)
	}
	return nil
}
