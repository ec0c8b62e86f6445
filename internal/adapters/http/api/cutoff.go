package api

import (
	"context"
	"net/http"

	service "github.com/okian/cohort/internal/app"
	"github.com/okian/cohort/internal/domain/model"
)

// CutoffDependencies defines the cutoff operations.
type CutoffDependencies interface {
	PreviewCutoff(ctx context.Context, key model.PhaseKey, criteria model.CutoffCriteria, overrides []model.ManualOverride) (service.CutoffPreview, error)
	ApplyCutoff(ctx context.Context, req service.ApplyCutoffRequest) (service.ApplyCutoffResult, error)
	RetryNotifications(ctx context.Context, runID, actor string) (model.NotificationSummary, error)
}

// CutoffHandler handles cutoff preview, apply and notification retry.
type CutoffHandler struct {
	deps CutoffDependencies
}

// NewCutoffHandler creates a new cutoff handler.
func NewCutoffHandler(deps CutoffDependencies) *CutoffHandler {
	return &CutoffHandler{deps: deps}
}

type cutoffRequest struct {
	Track            string                 `json:"track"`
	Criteria         model.CutoffCriteria   `json:"criteria"`
	ManualOverrides  []model.ManualOverride `json:"manual_overrides"`
	SendEmails       bool                   `json:"send_emails"`
	FinalizeAfter    *bool                  `json:"finalize_after"`
	ForceFinalize    bool                   `json:"force_finalize"`
	ConfirmAllTracks bool                   `json:"confirm_all_tracks"`
}

// HandlePreview handles POST /api/v1/cycles/{cycleID}/phases/{phase}/cutoff/preview.
func (h *CutoffHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	var body cutoffRequest
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	key, err := phaseKey(r, body.Track)
	if err != nil {
		writeError(w, err)
		return
	}
	preview, err := h.deps.PreviewCutoff(r.Context(), key, body.Criteria, body.ManualOverrides)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// HandleApply handles POST /api/v1/cycles/{cycleID}/phases/{phase}/cutoff/apply.
// A partially applied cutoff answers with the error and the partial result.
func (h *CutoffHandler) HandleApply(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body cutoffRequest
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	key, err := phaseKey(r, body.Track)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.deps.ApplyCutoff(r.Context(), service.ApplyCutoffRequest{
		Key:              key,
		Criteria:         body.Criteria,
		Overrides:        body.ManualOverrides,
		Actor:            who,
		SendEmails:       body.SendEmails,
		FinalizeAfter:    body.FinalizeAfter,
		ForceFinalize:    body.ForceFinalize,
		ConfirmAllTracks: body.ConfirmAllTracks,
	})
	if err != nil {
		status, resp := classify(err)
		if res.Run.ID != "" {
			writeJSON(w, status, struct {
				errorResponse
				Result service.ApplyCutoffResult `json:"result"`
			}{resp, res})
			return
		}
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleRetry handles POST /api/v1/cutoff-runs/{runID}/notifications/retry.
func (h *CutoffHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	summary, err := h.deps.RetryNotifications(r.Context(), r.PathValue("runID"), who)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
