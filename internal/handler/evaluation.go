package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/mizan/internal/auth"
	"github.com/dukerupert/mizan/internal/docstore"
	"github.com/dukerupert/mizan/internal/evaluation"
	"github.com/dukerupert/mizan/internal/model"
	"github.com/dukerupert/mizan/internal/scoring"
	"github.com/dukerupert/mizan/internal/sync"
)

type EvaluationHandler struct {
	store  *docstore.Store
	writer *evaluation.Writer
	logger *slog.Logger
}

func NewEvaluationHandler(store *docstore.Store, writer *evaluation.Writer, logger *slog.Logger) *EvaluationHandler {
	return &EvaluationHandler{store: store, writer: writer, logger: logger}
}

// Save upserts a batch of evaluation entries for the viewer's family.
// Members can only save their own entries; admins can save anyone's.
func (h *EvaluationHandler) Save(w http.ResponseWriter, r *http.Request) {
	viewer := auth.Viewer(r.Context())

	var req struct {
		FamilyID string             `json:"familyId"`
		Entries  []evaluation.Input `json:"entries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if viewer != nil && !viewer.IsAdmin() {
		for _, e := range req.Entries {
			if e.UserID != viewer.UID {
				writeError(w, http.StatusForbidden, "cannot save another user's evaluations")
				return
			}
		}
	}

	if err := h.writer.Save(r.Context(), viewer, req.Entries, req.FamilyID); err != nil {
		writeMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": len(req.Entries)})
}

// Score returns the penalty summary for one user over the active period.
func (h *EvaluationHandler) Score(w http.ResponseWriter, r *http.Request) {
	viewer := auth.Viewer(r.Context())
	if viewer == nil {
		writeError(w, http.StatusUnauthorized, "sign in required")
		return
	}

	uid := r.PathValue("uid")
	if !viewer.IsAdmin() && uid != viewer.UID {
		writeError(w, http.StatusForbidden, "cannot score another user")
		return
	}

	snap, err := sync.Load(r.Context(), h.store, viewer)
	if err != nil {
		h.logger.Error("load snapshot", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load data")
		return
	}

	summary := scoring.Score(uid, snap.Period, snap.Items, snap.Entries)
	writeJSON(w, http.StatusOK, summary)
}

type familyReportResponse struct {
	FamilyID   string                `json:"familyId"`
	FamilyName string                `json:"familyName"`
	Members    []scoring.MemberTotal `json:"members"`
	Total      float64               `json:"total"`
}

// FamilyReport returns one family's per-member penalty totals and the
// family grand total. Admin only.
func (h *EvaluationHandler) FamilyReport(w http.ResponseWriter, r *http.Request) {
	viewer := auth.Viewer(r.Context())

	familyID := r.PathValue("id")
	famDoc, err := h.store.Get(r.Context(), docstore.ColFamilies, familyID)
	if err != nil {
		h.logger.Error("load family", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load data")
		return
	}
	if famDoc == nil {
		writeError(w, http.StatusNotFound, "family not found")
		return
	}
	var family model.Family
	if err := famDoc.Decode(&family); err != nil {
		h.logger.Error("decode family", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load data")
		return
	}

	snap, err := sync.Load(r.Context(), h.store, viewer)
	if err != nil {
		h.logger.Error("load snapshot", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load data")
		return
	}

	members := make([]model.User, 0, len(snap.Users))
	for _, u := range snap.Users {
		if u.FamilyID == familyID {
			members = append(members, u)
		}
	}

	report := scoring.FamilyReport(members, snap.Period, snap.Items, snap.Entries)
	writeJSON(w, http.StatusOK, familyReportResponse{
		FamilyID:   familyID,
		FamilyName: familyLabel(family.FamilyName),
		Members:    report.Members,
		Total:      report.Total,
	})
}

// familyLabel resolves a family's display name, reading a blank or orphaned
// reference as an explicit unknown label instead of an empty header.
func familyLabel(name string) string {
	if name == "" {
		return "Unknown Family"
	}
	return name
}

// Snapshot returns the viewer's scoped one-shot snapshot, the same shape
// the websocket stream delivers.
func (h *EvaluationHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	viewer := auth.Viewer(r.Context())

	snap, err := sync.Load(r.Context(), h.store, viewer)
	if err != nil {
		h.logger.Error("load snapshot", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load data")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
