package logging

import (
	"context"

	"github.com/google/uuid"
)

type debugKeyType struct{}

// EnableDebugMode returns a child of ctx in which C* logging calls are emitted whatever the
// logger level and carry key in a "debug_key" field. An empty key is replaced by a random one.
func EnableDebugMode(ctx context.Context, key string) context.Context {
	if key == "" {
		key = uuid.NewString()[:8]
	}
	return context.WithValue(ctx, debugKeyType{}, key)
}

// DebugKey returns the key attached by EnableDebugMode, or "" when ctx is not in debug mode.
func DebugKey(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	key, _ := ctx.Value(debugKeyType{}).(string)
	return key
}

// IsDebugMode returns whether EnableDebugMode was applied to ctx.
func IsDebugMode(ctx context.Context) bool {
	return DebugKey(ctx) != ""
}
