package auth

import "errors"

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnauthorized    = errors.New("unauthorized")
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Requirement is the set of roles an endpoint accepts. Matching is exact.
type Requirement struct {
	roles []Role
}

func RequireRole(role Role) Requirement {
	return Requirement{roles: []Role{role}}
}

func RequireAnyRole(roles ...Role) Requirement {
	return Requirement{roles: append([]Role(nil), roles...)}
}

// Roles returns a copy of the accepted roles.
func (r Requirement) Roles() []Role {
	return append([]Role(nil), r.roles...)
}

func (r Requirement) accepts(role Role) bool {
	if !role.Valid() {
		return false
	}
	for _, candidate := range r.roles {
		if candidate == role {
			return true
		}
	}
	return false
}

// Authorize decides whether session satisfies req. A nil session is always denied.
func Authorize(session *Session, req Requirement) Decision {
	if Check(session, req) != nil {
		return Deny
	}
	return Allow
}

// Check is Authorize with the denial reason: ErrUnauthenticated for a missing
// session, ErrUnauthorized for a role that is not accepted.
func Check(session *Session, req Requirement) error {
	if session == nil {
		return ErrUnauthenticated
	}
	if !req.accepts(session.Role) {
		return ErrUnauthorized
	}
	return nil
}
