package auth

import (
	"context"
	"slices"
	"time"
)

// Method names the credential that produced an Identity.
type Method string

const (
	MethodJWT    Method = "jwt"
	MethodAPIKey Method = "api_key"
	MethodOpen   Method = "open"
)

// Identity is an authenticated caller of the admin endpoints.
type Identity struct {
	// Principal is the JWT subject or the API key ID.
	Principal string
	Roles     []string
	Method    Method

	// Claims holds raw token claims, or key metadata for API keys.
	Claims map[string]any

	// ExpiresAt is zero for credentials that never expire.
	ExpiresAt time.Time
}

// Anonymous is attached when the admin endpoints are unprotected.
var Anonymous = Identity{Principal: "anonymous", Method: MethodOpen}

func (id *Identity) HasRole(role string) bool {
	return slices.Contains(id.Roles, role)
}

func (id *Identity) IsExpired(now time.Time) bool {
	return !id.ExpiresAt.IsZero() && now.After(id.ExpiresAt)
}

type identityKey struct{}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity attached by Require, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// PrincipalFromContext returns the attached principal, or "".
func PrincipalFromContext(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil {
		return id.Principal
	}
	return ""
}
