// internal/models/identity.go
package models

import "fmt"

// Role is the caller role supplied by the identity provider.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleOperator      Role = "operator"
	RoleSubcontractor Role = "subcontractor"
	RoleEmployee      Role = "employee"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdministrator, RoleOperator, RoleSubcontractor, RoleEmployee:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Identity is the authenticated caller.
type Identity struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

func (i Identity) IsAdministrator() bool {
	return i.Role == RoleAdministrator
}

// CanPublish reports whether the caller may publish missions.
func (i Identity) CanPublish() bool {
	return i.Role == RoleAdministrator || i.Role == RoleOperator
}

// IsWorker reports whether the caller can hold offers.
func (i Identity) IsWorker() bool {
	return i.Role == RoleSubcontractor || i.Role == RoleEmployee
}
