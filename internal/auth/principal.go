// Package auth resolves the caller of a request from a signed session token and
// guards admin routes by role. A missing or invalid token never fails the
// request by itself; it leaves the request anonymous.
package auth

import (
	"context"
	"time"

	"github.com/stacklok/toolhive-gateway/internal/store"
)

// Principal is an authenticated caller
type Principal struct {
	UserID       string     `json:"id"`
	Email        string     `json:"email,omitempty"`
	Role         store.Role `json:"role"`
	VIPExpiresAt *time.Time `json:"vipExpiresAt,omitempty"`
}

// IsAdmin reports whether p has the admin role. A nil principal is never admin.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == store.RoleAdmin
}

// HasRole reports whether p has any of roles
func (p *Principal) HasRole(roles ...store.Role) bool {
	if p == nil {
		return false
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

func principalFromUser(u *store.User) *Principal {
	p := &Principal{UserID: u.ID, Email: u.Email, Role: u.Role}
	if u.VIPExpiresAt != nil {
		t := *u.VIPExpiresAt
		p.VIPExpiresAt = &t
	}
	return p
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal of the request, or nil for anonymous callers
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
