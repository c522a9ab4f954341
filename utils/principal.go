package utils

import "github.com/google/uuid"

type Role string

const (
	RoleUser   Role = "user"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

// Principal is the single identity resolved from a bearer token. Users and
// admins share one shape and differ only by Role.
type Principal struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// SystemPrincipal is the actor used for gateway-driven changes.
var SystemPrincipal = Principal{Role: RoleSystem}
