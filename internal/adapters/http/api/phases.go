package api

import (
	"context"
	"net/http"

	service "github.com/okian/cohort/internal/app"
	"github.com/okian/cohort/internal/domain/model"
)

// PhaseDependencies defines the phase config and lifecycle operations.
type PhaseDependencies interface {
	ListPhaseConfigs(ctx context.Context, cycleID string) ([]model.PhaseConfig, error)
	InitializePhaseConfigs(ctx context.Context, cycleID, actor string) ([]model.PhaseConfig, error)
	UpdatePhaseConfig(ctx context.Context, key model.PhaseKey, patch model.PhaseConfigPatch, actor string) (model.PhaseConfig, error)
	PhaseAction(ctx context.Context, req service.PhaseActionRequest) (service.PhaseActionResult, error)
}

// PhaseHandler handles phase config and lifecycle requests.
type PhaseHandler struct {
	deps PhaseDependencies
}

// NewPhaseHandler creates a new phase handler.
func NewPhaseHandler(deps PhaseDependencies) *PhaseHandler {
	return &PhaseHandler{deps: deps}
}

// HandleList handles GET /api/v1/cycles/{cycleID}/phase-configs.
func (h *PhaseHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	configs, err := h.deps.ListPhaseConfigs(r.Context(), r.PathValue("cycleID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configs)
}

// HandleInitialize handles POST /api/v1/cycles/{cycleID}/phase-configs/initialize.
func (h *PhaseHandler) HandleInitialize(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	configs, err := h.deps.InitializePhaseConfigs(r.Context(), r.PathValue("cycleID"), who)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configs)
}

type updatePhaseConfigRequest struct {
	Track string `json:"track"`
	model.PhaseConfigPatch
}

// HandleUpdate handles PUT /api/v1/cycles/{cycleID}/phase-configs/{phase}.
func (h *PhaseHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body updatePhaseConfigRequest
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	key, err := phaseKey(r, body.Track)
	if err != nil {
		writeError(w, err)
		return
	}
	cfg, err := h.deps.UpdatePhaseConfig(r.Context(), key, body.PhaseConfigPatch, who)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type phaseActionRequest struct {
	Action        model.PhaseAction `json:"action"`
	Track         string            `json:"track"`
	ForceFinalize bool              `json:"force_finalize"`
}

// HandleAction handles PUT /api/v1/cycles/{cycleID}/phases/{phase}/action.
func (h *PhaseHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	who, err := actor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body phaseActionRequest
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	key, err := phaseKey(r, body.Track)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.deps.PhaseAction(r.Context(), service.PhaseActionRequest{
		Key:           key,
		Action:        body.Action,
		Actor:         who,
		ForceFinalize: body.ForceFinalize,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
