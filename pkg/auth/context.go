package auth

import "context"

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const refreshingKey contextKey = "auth_refreshing"

// SkipRefresh marks ctx so that Authorize attaches the current token without
// attempting a refresh. The store sets it on the context of its own refresh
// request; callers can use it for requests that must not refresh.
func SkipRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, refreshingKey, true)
}

func refreshSkipped(ctx context.Context) bool {
	skip, _ := ctx.Value(refreshingKey).(bool)
	return skip
}
