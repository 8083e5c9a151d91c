// Package identity resolves bearer credentials and user profiles.  The
// reservation engine only sees the Resolver capability; whether identities
// come from the external auth service or from locally verified tokens is a
// deployment choice.
package identity

import (
	"context"
	"errors"
	"strings"
)

// Role is the caller's role as issued by the auth service.
type Role string

const (
	RoleTenant   Role = "TENANT"
	RoleLandlord Role = "LANDLORD"
	RoleAdmin    Role = "ADMIN"
)

// ParseRole normalizes a role claim.  Unknown values yield "".
func ParseRole(s string) Role {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleTenant, RoleLandlord, RoleAdmin:
		return r
	}
	return ""
}

// Identity is the authenticated caller.
type Identity struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// Profile is the subset of the auth service's user record the engine uses.
type Profile struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

// DisplayName returns something printable for notifications.
func (p Profile) DisplayName() string {
	if p.Email != "" {
		return p.Email
	}
	return p.UserID
}

var (
	// ErrInvalidToken means the credential was rejected.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrUserNotFound means the profile lookup found no such user.
	ErrUserNotFound = errors.New("user not found")
	// ErrUnavailable means the auth service could not be reached in time.
	ErrUnavailable = errors.New("auth service unavailable")
)

// Resolver is the identity capability consumed by the API layer and the engine.
type Resolver interface {
	ResolveIdentity(ctx context.Context, token string) (Identity, error)
	LookupProfile(ctx context.Context, userID string) (Profile, error)
}
