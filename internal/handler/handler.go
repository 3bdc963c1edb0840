// Package handler is the JSON API surface. Handlers decode, call the
// facade or the evaluation writer, and map sentinel errors to status codes.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/mizan/internal/docstore"
	"github.com/dukerupert/mizan/internal/evaluation"
	"github.com/dukerupert/mizan/internal/identity"
	"github.com/dukerupert/mizan/internal/mutate"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeMutationError maps the facade's sentinel errors onto 4xx responses;
// anything unrecognized is a 500 with a generic message.
func writeMutationError(w http.ResponseWriter, err error) {
	var verr validator.ValidationErrors
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, mutate.ErrDuplicateName):
		writeError(w, http.StatusConflict, "name already in use")
	case errors.Is(err, mutate.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "email already in use")
	case errors.Is(err, mutate.ErrInvalidPeriod):
		writeError(w, http.StatusBadRequest, "invalid evaluation period")
	case errors.Is(err, mutate.ErrInvalidType):
		writeError(w, http.StatusBadRequest, "unknown item type")
	case errors.Is(err, docstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, evaluation.ErrSaveDisabled):
		writeError(w, http.StatusForbidden, "saving is currently disabled")
	case errors.Is(err, evaluation.ErrNoViewer):
		writeError(w, http.StatusUnauthorized, "sign in required")
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, identity.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, "invalid or expired token")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
