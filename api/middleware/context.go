package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

type contextKey string

const (
	ctxUserID   contextKey = "user_id"
	ctxRole     contextKey = "actor_role"
	ctxVendorID contextKey = "vendor_id"
)

// Identity is the authenticated caller, if any.
type Identity struct {
	UserID   uuid.UUID
	Role     enums.ActorRole
	VendorID string
}

// Authenticated reports whether a token was presented and accepted.
func (i Identity) Authenticated() bool {
	return i.UserID != uuid.Nil && i.Role != ""
}

// IdentityFromContext returns the caller seeded by Authenticate.
func IdentityFromContext(ctx context.Context) Identity {
	if ctx == nil {
		return Identity{}
	}
	var id Identity
	if v, ok := ctx.Value(ctxUserID).(uuid.UUID); ok {
		id.UserID = v
	}
	if v, ok := ctx.Value(ctxRole).(enums.ActorRole); ok {
		id.Role = v
	}
	if v, ok := ctx.Value(ctxVendorID).(string); ok {
		id.VendorID = v
	}
	return id
}

// WithIdentity injects a caller into ctx. Tests and Authenticate use it.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, id.UserID)
	ctx = context.WithValue(ctx, ctxRole, id.Role)
	if id.VendorID != "" {
		ctx = context.WithValue(ctx, ctxVendorID, id.VendorID)
	}
	return ctx
}
