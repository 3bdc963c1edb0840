package auth

import (
	"context"

	"github.com/dukerupert/mizan/internal/model"
)

type contextKey struct{}

// AuthContext identifies the authenticated viewer for the duration of one
// request. Viewer is the user document resolved from the session's UID; it
// carries the role, so authorization never needs another lookup.
type AuthContext struct {
	UID          string
	SessionToken string
	Viewer       *model.User
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// Viewer returns the authenticated user document, or nil outside an
// authenticated request.
func Viewer(ctx context.Context) *model.User {
	ac, ok := FromContext(ctx)
	if !ok {
		return nil
	}
	return ac.Viewer
}

func UID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.UID
}

func IsAdmin(ctx context.Context) bool {
	return Viewer(ctx).IsAdmin()
}
