package auth

import (
	"context"

	"github.com/google/uuid"
)

// Roles issued at login. A user's role never changes for the lifetime of a
// session and gates which order transitions they may invoke.
const (
	RoleDoctor = "doctor"
	RoleLab    = "lab"
)

// Identity is the authenticated actor, passed explicitly into every service
// call rather than read from ambient state.
type Identity struct {
	ID   uuid.UUID
	Name string
	Role string
}

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a context carrying the given identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext extracts the authenticated identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
