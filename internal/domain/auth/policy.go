package auth

import "errors"

// Error types for authorization failures.
var (
	// ErrNoRole means the identity is missing or carries no role.
	ErrNoRole = errors.New("unable to determine the user role")
	// ErrForbidden means the role is not in the required set.
	ErrForbidden = errors.New("insufficient permissions to access this resource")
)

// Policy is the statically resolved authorization policy of one route.
type Policy struct {
	// RequiresAuth puts the route behind the auth gate.
	RequiresAuth bool
	// Roles is the required-role set. Nil means "not declared" (inherit);
	// an empty non-nil slice means "declared empty" (no role restriction).
	Roles []Role
}

// Roles is a convenience constructor for a declared role set.
func Roles(roles ...Role) []Role {
	if roles == nil {
		return []Role{}
	}
	return roles
}

// Resolve merges a group policy with a route policy. Authentication is
// additive; the most specific declared role set wins.
func Resolve(group, route Policy) Policy {
	out := Policy{
		RequiresAuth: group.RequiresAuth || route.RequiresAuth,
		Roles:        group.Roles,
	}
	if route.Roles != nil {
		out.Roles = route.Roles
	}
	return out
}

// Authorize allows the identity iff required is empty or contains the
// identity's role. There is no hierarchy between roles.
func Authorize(identity *Identity, required []Role) error {
	if len(required) == 0 {
		return nil
	}
	if identity == nil || identity.Role == "" {
		return ErrNoRole
	}
	if !identity.HasAnyRole(required...) {
		return ErrForbidden
	}
	return nil
}
