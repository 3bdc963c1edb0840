package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/mizan/internal/docstore"
	"github.com/dukerupert/mizan/internal/model"
	"github.com/dukerupert/mizan/internal/mutate"
)

type ItemHandler struct {
	store   *docstore.Store
	mutator *mutate.Service
	logger  *slog.Logger
}

func NewItemHandler(store *docstore.Store, mutator *mutate.Service, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{store: store, mutator: mutator, logger: logger}
}

func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.Query(r.Context(), docstore.ColItems)
	if err != nil {
		h.logger.Error("list items", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}

	items := make([]model.EvaluationItem, 0, len(docs))
	for _, doc := range docs {
		var it model.EvaluationItem
		if err := doc.Decode(&it); err != nil {
			h.logger.Error("decode item", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list items")
			return
		}
		it.ID = doc.ID
		items = append(items, it)
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req mutate.ItemInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	id, err := h.mutator.AddItem(r.Context(), req)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req mutate.ItemInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.mutator.UpdateItem(r.Context(), r.PathValue("id"), req); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.mutator.DeleteItem(r.Context(), r.PathValue("id")); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
