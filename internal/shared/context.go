package shared

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	tenantKey contextKey = "tenant_id"
	actorKey  contextKey = "actor_id"
)

// ContextWithIdentity stores the authenticated tenant and actor. The auth
// layer that resolves them lives outside this codebase.
func ContextWithIdentity(ctx context.Context, tenantID, actorID uuid.UUID) context.Context {
	ctx = context.WithValue(ctx, tenantKey, tenantID)
	return context.WithValue(ctx, actorKey, actorID)
}

// TenantFromContext returns the tenant id or uuid.Nil.
func TenantFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(tenantKey).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// ActorFromContext returns the actor id or uuid.Nil.
func ActorFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(actorKey).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}
