package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/cohort/internal/domain/model"
)

// StageDependencies defines manual stage changes and the audit trail.
type StageDependencies interface {
	TransitionStage(ctx context.Context, applicationID string, to model.ApplicationStage, actor string) (model.Application, error)
	Audit(ctx context.Context, targetID string) ([]model.AuditEntry, error)
}

// StageHandler handles stage transitions and audit reads.
type StageHandler struct {
	deps StageDependencies
}

// NewStageHandler creates a new stage handler.
func NewStageHandler(deps StageDependencies) *StageHandler {
	return &StageHandler{deps: deps}
}

type transitionRequest struct {
	Stage model.ApplicationStage `json:"stage"`
}

// HandleTransition handles PUT /api/v1/applications/{applicationID}/stage.
func (h *StageHandler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body transitionRequest
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Stage == "" {
		writeError(w, fmt.Errorf("stage is required: %w", ErrBadRequest))
		return
	}
	app, err := h.deps.TransitionStage(r.Context(), r.PathValue("applicationID"), body.Stage, who)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// HandleAudit handles GET /api/v1/audit?target_id=.
func (h *StageHandler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target_id")
	if target == "" {
		writeError(w, fmt.Errorf("target_id is required: %w", ErrBadRequest))
		return
	}
	entries, err := h.deps.Audit(r.Context(), target)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
