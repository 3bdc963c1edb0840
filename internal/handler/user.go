package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/mizan/internal/docstore"
	"github.com/dukerupert/mizan/internal/model"
	"github.com/dukerupert/mizan/internal/mutate"
)

type UserHandler struct {
	store   *docstore.Store
	mutator *mutate.Service
	logger  *slog.Logger
}

func NewUserHandler(store *docstore.Store, mutator *mutate.Service, logger *slog.Logger) *UserHandler {
	return &UserHandler{store: store, mutator: mutator, logger: logger}
}

// List returns the full roster. Admin only; members follow their own user
// document through the sync stream instead.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.Query(r.Context(), docstore.ColUsers)
	if err != nil {
		h.logger.Error("list users", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	users := make([]model.User, 0, len(docs))
	for _, doc := range docs {
		var u model.User
		if err := doc.Decode(&u); err != nil {
			h.logger.Error("decode user", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list users")
			return
		}
		u.ID = doc.ID
		users = append(users, u)
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req mutate.UserInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	id, err := h.mutator.AddUser(r.Context(), req)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req mutate.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.mutator.UpdateUser(r.Context(), r.PathValue("id"), req); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.mutator.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
