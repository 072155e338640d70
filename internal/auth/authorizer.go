package auth

import (
	"context"
	"errors"

	"github.com/sweetshop/apiserver/types"
)

var (
	// ErrUnauthenticated means no valid identity accompanies the request.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden means the identity is valid but lacks the required role.
	ErrForbidden = errors.New("insufficient permissions")
)

// Identity is an authenticated caller.
type Identity struct {
	UserID string
	Role   types.Role
}

// Decision is the outcome of one pipeline stage: either proceed with an
// identity or reject with an error.
type Decision struct {
	Identity Identity
	Err      error
}

func Proceed(identity Identity) Decision {
	return Decision{Identity: identity}
}

func Reject(err error) Decision {
	return Decision{Err: err}
}

// Allowed reports whether the request may continue.
func (d Decision) Allowed() bool {
	return d.Err == nil
}

// RequireRole admits identity only when it holds role. A nil identity is
// unauthenticated rather than forbidden.
func RequireRole(identity *Identity, role types.Role) Decision {
	if identity == nil {
		return Reject(ErrUnauthenticated)
	}
	if identity.Role != role {
		return Reject(ErrForbidden)
	}
	return Proceed(*identity)
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	if !ok {
		return nil, false
	}
	return &identity, true
}
