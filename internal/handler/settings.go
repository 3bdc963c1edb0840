package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/mizan/internal/docstore"
	"github.com/dukerupert/mizan/internal/model"
	"github.com/dukerupert/mizan/internal/mutate"
)

// SettingsHandler serves the two singletons: the active evaluation period
// and the evaluation controls.
type SettingsHandler struct {
	store   *docstore.Store
	mutator *mutate.Service
	logger  *slog.Logger
}

func NewSettingsHandler(store *docstore.Store, mutator *mutate.Service, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{store: store, mutator: mutator, logger: logger}
}

func (h *SettingsHandler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.Get(r.Context(), docstore.ColPeriods, docstore.DocCurrentPeriod)
	if err != nil {
		h.logger.Error("get period", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load period")
		return
	}
	if doc == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	var pd model.PeriodDoc
	if err := doc.Decode(&pd); err != nil {
		h.logger.Error("decode period", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load period")
		return
	}
	writeJSON(w, http.StatusOK, pd.CalendarPeriod())
}

func (h *SettingsHandler) SetPeriod(w http.ResponseWriter, r *http.Request) {
	var req model.EvaluationPeriod
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.mutator.SetPeriod(r.Context(), req.From, req.To); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *SettingsHandler) GetControls(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.Get(r.Context(), docstore.ColSettings, docstore.DocControls)
	if err != nil {
		h.logger.Error("get controls", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load controls")
		return
	}

	// Absent controls read as enabled.
	controls := model.EvaluationControls{SaveEnabled: true}
	if doc != nil {
		if err := doc.Decode(&controls); err != nil {
			h.logger.Error("decode controls", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load controls")
			return
		}
	}
	writeJSON(w, http.StatusOK, controls)
}

func (h *SettingsHandler) SetControls(w http.ResponseWriter, r *http.Request) {
	var req model.EvaluationControls
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.mutator.SetControls(r.Context(), req); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
