// Package auth contains the domain types and logic for authentication and
// role-based authorization of inbound requests.
package auth

import (
	"time"
)

// Role represents a user role for authorization purposes.
type Role string

const (
	// RoleSeller is the default role for sales staff.
	RoleSeller Role = "SELLER"
	// RoleSupervisor manages sellers and reads user listings.
	RoleSupervisor Role = "SUPERVISOR"
	// RoleAdmin has full access to all operations.
	RoleAdmin Role = "ADMIN"
)

// IsValid returns true if the role is one the gateway knows about.
// Unknown roles are still carried through; they simply never match a
// route that does not list them.
func (r Role) IsValid() bool {
	switch r {
	case RoleSeller, RoleSupervisor, RoleAdmin:
		return true
	default:
		return false
	}
}

// Identity is the caller resolved by the auth backend from a bearer token.
// It lives for a single request and is never persisted by the gateway.
type Identity struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
	// IssuedAt and ExpiresAt are Unix seconds (JWT iat/exp), zero if absent.
	IssuedAt  int64 `json:"iat,omitempty"`
	ExpiresAt int64 `json:"exp,omitempty"`
}

// HasAnyRole returns true if the identity's role is one of roles.
func (i *Identity) HasAnyRole(roles ...Role) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

// ExpiresTime returns ExpiresAt as a time, or the zero time.
func (i *Identity) ExpiresTime() time.Time {
	if i.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(i.ExpiresAt, 0).UTC()
}
