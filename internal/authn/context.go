package authn

import (
	"context"
	"strings"
)

type ctxKey string

const actorIDKey ctxKey = "authn_actor_id"

// ContextWithActor stores the authenticated user id in the context.
func ContextWithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorIDKey, strings.TrimSpace(userID))
}

// ActorFromContext extracts the authenticated user id from context.
func ActorFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(actorIDKey).(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}
