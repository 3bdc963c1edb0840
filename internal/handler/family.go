package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/mizan/internal/docstore"
	"github.com/dukerupert/mizan/internal/model"
	"github.com/dukerupert/mizan/internal/mutate"
)

type FamilyHandler struct {
	store   *docstore.Store
	mutator *mutate.Service
	logger  *slog.Logger
}

func NewFamilyHandler(store *docstore.Store, mutator *mutate.Service, logger *slog.Logger) *FamilyHandler {
	return &FamilyHandler{store: store, mutator: mutator, logger: logger}
}

func (h *FamilyHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.Query(r.Context(), docstore.ColFamilies)
	if err != nil {
		h.logger.Error("list families", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list families")
		return
	}

	families := make([]model.Family, 0, len(docs))
	for _, doc := range docs {
		var f model.Family
		if err := doc.Decode(&f); err != nil {
			h.logger.Error("decode family", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list families")
			return
		}
		f.ID = doc.ID
		families = append(families, f)
	}
	writeJSON(w, http.StatusOK, families)
}

func (h *FamilyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req mutate.FamilyInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	id, err := h.mutator.AddFamily(r.Context(), req)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *FamilyHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req mutate.FamilyInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.mutator.UpdateFamily(r.Context(), r.PathValue("id"), req); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *FamilyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.mutator.DeleteFamily(r.Context(), r.PathValue("id")); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
