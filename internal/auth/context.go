// Package auth carries the already-authenticated caller through a request
// context. Authentication itself happens upstream.
package auth

import "context"

type contextKey struct{}

type AuthContext struct {
	UserID int64
	Role   string
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// CurrentUser returns the caller's user id when one has been resolved.
func CurrentUser(ctx context.Context) (int64, bool) {
	ac, ok := FromContext(ctx)
	if !ok || ac.UserID == 0 {
		return 0, false
	}
	return ac.UserID, true
}

func UserID(ctx context.Context) int64 {
	id, _ := CurrentUser(ctx)
	return id
}

func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Role == "admin"
}
