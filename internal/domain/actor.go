package domain

import "strings"

type Role string

const (
	RoleProvider  Role = "provider"
	RoleNurse     Role = "nurse"
	RoleFrontDesk Role = "front_desk"
	RoleAssistant Role = "assistant"
)

func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleProvider, RoleNurse, RoleFrontDesk, RoleAssistant:
		return r, true
	}
	return "", false
}

// Delegate roles book against the calendar of the provider assigned to
// their location.
func (r Role) Delegate() bool {
	return r == RoleNurse || r == RoleFrontDesk || r == RoleAssistant
}

// Actor is the authenticated user issuing a scheduling request, as supplied
// by the upstream API layer.
type Actor struct {
	UserID            string
	Role              Role
	CanManageCalendar bool
}
