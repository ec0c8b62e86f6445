package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/cohort/internal/adapters/repository"
	"github.com/okian/cohort/internal/domain/model"
	"github.com/okian/cohort/internal/domain/scoring"
	"github.com/okian/cohort/internal/domain/stage"
	"github.com/okian/cohort/pkg/logger"
	"github.com/okian/cohort/pkg/metrics"
	"github.com/okian/cohort/pkg/tracing"
)

// PhaseActionRequest asks for one lifecycle transition.
type PhaseActionRequest struct {
	Key           model.PhaseKey
	Action        model.PhaseAction
	Actor         string
	ForceFinalize bool
}

// PhaseActionResult is the config after the action. Reverted is set by
// revert only.
type PhaseActionResult struct {
	Config   model.PhaseConfig `json:"config"`
	Reverted int               `json:"reverted"`
}

// GetPhaseConfig returns the effective config of key.
func (s *Service) GetPhaseConfig(ctx context.Context, key model.PhaseKey) (model.PhaseConfig, error) {
	return s.effectiveConfig(ctx, key)
}

// ListPhaseConfigs returns every stored config of a cycle.
func (s *Service) ListPhaseConfigs(ctx context.Context, cycleID string) ([]model.PhaseConfig, error) {
	if strings.TrimSpace(cycleID) == "" {
		return nil, model.NewValidationError("cycle_id", "must not be empty")
	}
	return s.store.ListPhaseConfigs(ctx, cycleID)
}

// InitializePhaseConfigs seeds a track-less default config for every phase
// that has none and returns the cycle's configs.
func (s *Service) InitializePhaseConfigs(ctx context.Context, cycleID, actor string) ([]model.PhaseConfig, error) {
	if strings.TrimSpace(cycleID) == "" {
		return nil, model.NewValidationError("cycle_id", "must not be empty")
	}
	var created []string
	for _, phase := range model.Phases {
		cats := s.defaultScoring[phase]
		if len(cats) == 0 {
			cats = scoring.DefaultCategories(phase)
		}
		cfg := model.PhaseConfig{
			Key:                  model.PhaseKey{CycleID: cycleID, Phase: phase},
			ScoringCategories:    slices.Clone(cats),
			MinReviewersRequired: s.minReviewers,
			Status:               model.StatusNotStarted,
		}
		_, err := s.store.CreatePhaseConfig(ctx, cfg)
		switch {
		case errors.Is(err, repository.ErrAlreadyExists):
			continue
		case err != nil:
			return nil, fmt.Errorf("initialize %s: %w", cfg.Key, err)
		}
		created = append(created, string(phase))
	}
	if len(created) > 0 {
		s.audit(ctx, actor, "phase_config.initialize", "cycle", cycleID, map[string]any{"phases": created})
	}
	return s.store.ListPhaseConfigs(ctx, cycleID)
}

// UpdatePhaseConfig applies patch to the config at key, creating a track
// config from the default when the track has none.
func (s *Service) UpdatePhaseConfig(ctx context.Context, key model.PhaseKey, patch model.PhaseConfigPatch, actor string) (out model.PhaseConfig, err error) {
	ctx, span := tracing.Start(ctx, "service.UpdatePhaseConfig", attribute.String("phase_key", key.String()))
	defer func() { tracing.End(span, err) }()

	unlock := s.lock(key)
	defer unlock()

	cfg, err := s.writableConfig(ctx, key)
	if err != nil {
		return model.PhaseConfig{}, err
	}
	if cfg.Finalized() {
		return model.PhaseConfig{}, &model.PhaseFinalizedError{Key: key}
	}

	changed := make([]string, 0, 3)
	if patch.ScoringCategories != nil {
		if err := scoring.Validate(patch.ScoringCategories); err != nil {
			return model.PhaseConfig{}, err
		}
		cfg.ScoringCategories = slices.Clone(patch.ScoringCategories)
		changed = append(changed, "scoring_categories")
	}
	if patch.MinReviewersRequired != nil {
		if *patch.MinReviewersRequired < 0 {
			return model.PhaseConfig{}, model.NewValidationError("min_reviewers_required", "must not be negative")
		}
		cfg.MinReviewersRequired = *patch.MinReviewersRequired
		changed = append(changed, "min_reviewers_required")
	}
	if patch.UseZScoreNormalization != nil {
		cfg.UseZScoreNormalization = *patch.UseZScoreNormalization
		changed = append(changed, "use_zscore_normalization")
	}

	if out, err = s.save(ctx, cfg); err != nil {
		return model.PhaseConfig{}, err
	}
	s.audit(ctx, actor, "phase_config.update", "phase_config", key.String(), map[string]any{"fields": changed})
	return out, nil
}

// PhaseAction runs start, finalize, unlock or revert on the config at key.
// Actions on the same key are serialized.
func (s *Service) PhaseAction(ctx context.Context, req PhaseActionRequest) (res PhaseActionResult, err error) {
	ctx, span := tracing.Start(ctx, "service.PhaseAction",
		attribute.String("phase_key", req.Key.String()),
		attribute.String("action", string(req.Action)),
	)
	defer func() {
		metrics.RecordPhaseAction(string(req.Action), err)
		tracing.End(span, err)
	}()

	unlock := s.lock(req.Key)
	defer unlock()

	cfg, err := s.writableConfig(ctx, req.Key)
	if err != nil {
		return PhaseActionResult{}, err
	}

	switch req.Action {
	case model.ActionStart:
		res.Config, err = s.start(ctx, cfg, req.Actor)
	case model.ActionFinalize:
		res.Config, err = s.finalize(ctx, cfg, req.Actor, req.ForceFinalize)
	case model.ActionUnlock:
		res.Config, err = s.unlockPhase(ctx, cfg, req.Actor)
	case model.ActionRevert:
		res.Config, res.Reverted, err = s.revert(ctx, cfg, req.Actor)
	default:
		err = fmt.Errorf("%q: %w", req.Action, ErrUnknownAction)
	}
	if err != nil {
		return PhaseActionResult{}, err
	}
	s.logger.Info(ctx, "phase action applied",
		logger.String("phase_key", req.Key.String()),
		logger.String("action", string(req.Action)),
		logger.String("status", string(res.Config.Status)),
	)
	return res, nil
}

func (s *Service) start(ctx context.Context, cfg model.PhaseConfig, actor string) (model.PhaseConfig, error) {
	if cfg.Finalized() {
		return model.PhaseConfig{}, &model.PhaseFinalizedError{Key: cfg.Key}
	}
	if cfg.Status == model.StatusInProgress && cfg.Version > 0 {
		return cfg, nil
	}
	cfg.Status = model.StatusInProgress
	out, err := s.save(ctx, cfg)
	if err != nil {
		return model.PhaseConfig{}, err
	}
	s.audit(ctx, actor, "phase.start", "phase_config", cfg.Key.String(), nil)
	return out, nil
}

func (s *Service) finalize(ctx context.Context, cfg model.PhaseConfig, actor string, force bool) (model.PhaseConfig, error) {
	if cfg.Finalized() {
		return model.PhaseConfig{}, &model.PhaseFinalizedError{Key: cfg.Key}
	}
	if !force {
		st, err := s.loadState(ctx, cfg.Key, cfg)
		if err != nil {
			return model.PhaseConfig{}, err
		}
		if err := s.gate(ctx, st); err != nil {
			return model.PhaseConfig{}, err
		}
	}
	markFinalized(&cfg, actor, s.now())
	out, err := s.save(ctx, cfg)
	if err != nil {
		return model.PhaseConfig{}, err
	}
	s.audit(ctx, actor, finalizeAction(force), "phase_config", cfg.Key.String(), nil)
	return out, nil
}

func (s *Service) unlockPhase(ctx context.Context, cfg model.PhaseConfig, actor string) (model.PhaseConfig, error) {
	if !cfg.Finalized() {
		return model.PhaseConfig{}, fmt.Errorf("%s: %w", cfg.Key, ErrNotFinalized)
	}
	now := s.now()
	cfg.Status = model.StatusInProgress
	cfg.UnlockedAt, cfg.UnlockedBy = &now, model.NormalizeEmail(actor)
	out, err := s.save(ctx, cfg)
	if err != nil {
		return model.PhaseConfig{}, err
	}
	s.audit(ctx, actor, "phase.unlock", "phase_config", cfg.Key.String(), nil)
	return out, nil
}

// revert restores every applicant the active cutoff run moved and still
// sits at the run's target stage, then unlocks the phase.
func (s *Service) revert(ctx context.Context, cfg model.PhaseConfig, actor string) (model.PhaseConfig, int, error) {
	if !cfg.Finalized() && cfg.CutoffAppliedAt == nil {
		return model.PhaseConfig{}, 0, fmt.Errorf("%s: %w", cfg.Key, ErrNothingToRevert)
	}
	run, err := s.latestRun(ctx, cfg.Key)
	if err != nil {
		return model.PhaseConfig{}, 0, fmt.Errorf("load cutoff run: %w", err)
	}

	reverted := 0
	if run != nil {
		if cfg, err = s.claim(ctx, cfg); err != nil {
			return model.PhaseConfig{}, 0, err
		}
		apps, err := s.store.ListApplications(ctx, cfg.Key.CycleID)
		if err != nil {
			return model.PhaseConfig{}, 0, fmt.Errorf("load applications: %w", err)
		}
		current := make(map[string]model.ApplicationStage, len(apps))
		for _, app := range apps {
			current[app.ID] = app.Stage
		}
		var moves []model.StageMove
		for _, d := range run.Decisions {
			if d.FromStage == d.ToStage || current[d.ApplicationID] != d.ToStage {
				continue
			}
			if err := stage.Validate(d.ToStage, d.FromStage, stage.Revert()); err != nil {
				return model.PhaseConfig{}, 0, err
			}
			moves = append(moves, model.StageMove{ApplicationID: d.ApplicationID, From: d.ToStage, To: d.FromStage})
		}
		if reverted, err = s.applyMoves(ctx, moves, stage.CauseRevert); err != nil {
			return model.PhaseConfig{}, reverted, err
		}
		if err := s.store.MarkCutoffRunReverted(ctx, run.ID, model.NormalizeEmail(actor), s.now()); err != nil {
			return model.PhaseConfig{}, reverted, fmt.Errorf("mark cutoff run reverted: %w", err)
		}
	}

	if cfg.Finalized() {
		now := s.now()
		cfg.Status = model.StatusInProgress
		cfg.UnlockedAt, cfg.UnlockedBy = &now, model.NormalizeEmail(actor)
	}
	cfg.CutoffAppliedAt = nil
	out, err := s.save(ctx, cfg)
	if err != nil {
		return model.PhaseConfig{}, reverted, err
	}

	meta := map[string]any{"reverted": reverted}
	if run != nil {
		meta["run_id"] = run.ID
	}
	s.audit(ctx, actor, "phase.revert", "phase_config", cfg.Key.String(), meta)
	return out, reverted, nil
}
