package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/mizan/internal/auth"
	"github.com/dukerupert/mizan/internal/email"
	"github.com/dukerupert/mizan/internal/identity"
	"github.com/dukerupert/mizan/internal/middleware"
	"github.com/dukerupert/mizan/internal/mutate"
)

const (
	sessionTTL    = 90 * 24 * time.Hour
	resetTokenTTL = time.Hour
)

type AuthHandler struct {
	identity *identity.Service
	mutator  *mutate.Service
	email    *email.Client
	logger   *slog.Logger
}

func NewAuthHandler(idsvc *identity.Service, mutator *mutate.Service, ec *email.Client, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		identity: idsvc,
		mutator:  mutator,
		email:    ec,
		logger:   logger,
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	account, err := h.identity.Authenticate(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		writeMutationError(w, err)
		return
	}

	sess, err := h.identity.CreateSession(r.Context(), account.UID, sessionTTL)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})

	writeJSON(w, http.StatusOK, map[string]string{"uid": account.UID})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.identity.DeleteSession(r.Context(), cookie.Value); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

// SignUp is public enrollment: the account is created inactive and gets no
// session, so the caller stays signed out until an admin activates them.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req mutate.SignUpInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	id, err := h.mutator.SignUp(r.Context(), req)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// RequestReset mints a password-reset token and mails it. The response is
// identical whether the email exists or not.
func (h *AuthHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	addr := strings.TrimSpace(req.Email)
	if addr == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	token, err := h.identity.CreateResetToken(r.Context(), addr, resetTokenTTL)
	if err != nil && !errors.Is(err, identity.ErrInvalidCredentials) {
		h.logger.Error("create reset token", "error", err)
	}
	if err == nil && h.email != nil {
		if err := h.email.SendPasswordReset(addr, token); err != nil {
			h.logger.Error("send reset email", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "reset email sent if the address is registered"})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	if err := h.identity.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

// Me returns the authenticated viewer's user document.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	viewer := auth.Viewer(r.Context())
	if viewer == nil {
		writeError(w, http.StatusUnauthorized, "sign in required")
		return
	}
	writeJSON(w, http.StatusOK, viewer)
}
