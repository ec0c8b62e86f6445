// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	service "github.com/okian/cohort/internal/app"
	"github.com/okian/cohort/internal/domain/model"
)

// ActorHeader carries the authenticated caller's email.
const ActorHeader = "X-Actor-Email"

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	PhaseDependencies
	CutoffDependencies
	ReviewDependencies
	StageDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	phaseHandler  *PhaseHandler
	cutoffHandler *CutoffHandler
	reviewHandler *ReviewHandler
	stageHandler  *StageHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		phaseHandler:  NewPhaseHandler(deps),
		cutoffHandler: NewCutoffHandler(deps),
		reviewHandler: NewReviewHandler(deps),
		stageHandler:  NewStageHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /stats", "stats", s.statsHandler.HandleStats)

	route("GET /api/v1/cycles/{cycleID}/phase-configs", "phase_configs", s.phaseHandler.HandleList)
	route("POST /api/v1/cycles/{cycleID}/phase-configs/initialize", "phase_configs_initialize", s.phaseHandler.HandleInitialize)
	route("PUT /api/v1/cycles/{cycleID}/phase-configs/{phase}", "phase_config_update", s.phaseHandler.HandleUpdate)
	route("PUT /api/v1/cycles/{cycleID}/phases/{phase}/action", "phase_action", s.phaseHandler.HandleAction)

	route("POST /api/v1/cycles/{cycleID}/phases/{phase}/cutoff/preview", "cutoff_preview", s.cutoffHandler.HandlePreview)
	route("POST /api/v1/cycles/{cycleID}/phases/{phase}/cutoff/apply", "cutoff_apply", s.cutoffHandler.HandleApply)
	route("POST /api/v1/cutoff-runs/{runID}/notifications/retry", "notifications_retry", s.cutoffHandler.HandleRetry)

	route("GET /api/v1/cycles/{cycleID}/phases/{phase}/rankings", "rankings", s.reviewHandler.HandleRankings)
	route("GET /api/v1/cycles/{cycleID}/phases/{phase}/completeness", "completeness", s.reviewHandler.HandleCompleteness)
	route("GET /api/v1/applications/{applicationID}/reviews/{phase}", "reviews_list", s.reviewHandler.HandleList)
	route("POST /api/v1/applications/{applicationID}/reviews/{phase}", "reviews_upsert", s.reviewHandler.HandleUpsert)

	route("PUT /api/v1/applications/{applicationID}/stage", "stage", s.stageHandler.HandleTransition)
	route("GET /api/v1/audit", "audit", s.stageHandler.HandleAudit)
}

// phaseKey reads {cycleID} and {phase} from the path. track overrides the
// ?track= query value when non-empty.
func phaseKey(r *http.Request, track string) (model.PhaseKey, error) {
	phase, err := model.ParsePhase(r.PathValue("phase"))
	if err != nil {
		return model.PhaseKey{}, err
	}
	if track == "" {
		track = r.URL.Query().Get("track")
	}
	key := model.PhaseKey{CycleID: r.PathValue("cycleID"), Phase: phase, Track: strings.TrimSpace(track)}
	return key, key.Validate()
}

// actor returns the caller's email or an error when the header is missing.
func actor(r *http.Request) (string, error) {
	email := model.NormalizeEmail(r.Header.Get(ActorHeader))
	if email == "" {
		return "", fmt.Errorf("missing %s header: %w", ActorHeader, ErrMissingActor)
	}
	return email, nil
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode body: %w: %w", ErrBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// interface checks against the service implementation.
var _ Dependencies = (*service.Service)(nil)
