package middleware

import (
	"context"
	"net/http"

	"github.com/dukerupert/mizan/internal/auth"
	"github.com/dukerupert/mizan/internal/docstore"
	"github.com/dukerupert/mizan/internal/identity"
	"github.com/dukerupert/mizan/internal/model"
)

const SessionCookieName = "mizan_session"

// RequireAuth validates the session cookie, resolves the session's UID to
// its user document, and populates the AuthContext. A session whose account
// has no user document yet (or whose user is inactive) is rejected: identity
// alone does not grant access.
func RequireAuth(sessions *identity.Service, store *docstore.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			sess, err := sessions.GetSession(r.Context(), cookie.Value)
			if err != nil || sess == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			viewer, err := lookupViewer(r.Context(), store, sess.UID)
			if err != nil || viewer == nil || viewer.Status != model.StatusActive {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ac := auth.AuthContext{
				UID:          sess.UID,
				SessionToken: sess.Token,
				Viewer:       viewer,
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin checks that the authenticated viewer has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func lookupViewer(ctx context.Context, store *docstore.Store, uid string) (*model.User, error) {
	docs, err := store.Query(ctx, docstore.ColUsers, docstore.Where("uid", uid))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	var u model.User
	if err := docs[0].Decode(&u); err != nil {
		return nil, err
	}
	u.ID = docs[0].ID
	return &u, nil
}
