// Package service implements the review, ranking and cutoff operations
// exposed by the HTTP API and the operator CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/cohort/internal/adapters/repository"
	"github.com/okian/cohort/internal/domain/model"
	"github.com/okian/cohort/internal/domain/stage"
	"github.com/okian/cohort/pkg/logger"
	"github.com/okian/cohort/pkg/metrics"
)

const (
	defaultBatchSize    = 200
	defaultMinReviewers = 1
)

// Notifier delivers cutoff notifications and reports per-batch counts.
type Notifier interface {
	Notify(ctx context.Context, jobs []model.NotificationJob) (model.NotificationSummary, error)
}

// starter is implemented by notifiers that own background workers.
type starter interface {
	Start(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// Service coordinates the store, the domain rules and the notifier.
type Service struct {
	mu      sync.RWMutex
	started bool

	store    repository.Store
	notifier Notifier
	locks    *keyedMutex

	batchSize      int
	minReviewers   int
	defaultScoring map[model.Phase][]model.ScoringCategory

	now    func() time.Time
	newID  func() string
	logger logger.Logger
}

// New constructs a Service over store.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:          store,
		locks:          newKeyedMutex(),
		batchSize:      defaultBatchSize,
		minReviewers:   defaultMinReviewers,
		defaultScoring: make(map[model.Phase][]model.ScoringCategory),
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	return s
}

// Start starts the notifier's workers, if it has any.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if st, ok := s.notifier.(starter); ok {
		st.Start(ctx)
	}
	s.started = true
	s.logger.Info(ctx, "review service started",
		logger.Int("batch_size", s.batchSize),
		logger.Bool("notifier", s.notifier != nil),
	)
	return nil
}

// Stop drains the notifier. The store is owned by the caller.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	if st, ok := s.notifier.(starter); ok {
		if err := st.Shutdown(ctx); err != nil {
			return fmt.Errorf("stop notifier: %w", err)
		}
	}
	s.logger.Info(ctx, "review service stopped")
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]any{
		"started":    s.started,
		"batchSize":  s.batchSize,
		"notifier":   s.notifier != nil,
		"phaseLocks": s.locks.Held(),
	}
}

// Applications lists a cycle's applications.
func (s *Service) Applications(ctx context.Context, cycleID string) ([]model.Application, error) {
	return s.store.ListApplications(ctx, cycleID)
}

// Audit lists audit entries for targetID, or all when it is empty.
func (s *Service) Audit(ctx context.Context, targetID string) ([]model.AuditEntry, error) {
	return s.store.ListAudit(ctx, targetID)
}

// lock serializes lifecycle work on key.
func (s *Service) lock(key model.PhaseKey) func() {
	return s.locks.Lock(key.String())
}

// effectiveConfig returns the track config for key, falling back to the
// track-less default.
func (s *Service) effectiveConfig(ctx context.Context, key model.PhaseKey) (model.PhaseConfig, error) {
	if err := key.Validate(); err != nil {
		return model.PhaseConfig{}, err
	}
	cfg, err := s.store.GetPhaseConfig(ctx, key)
	if err == nil || key.Track == "" || !errors.Is(err, model.ErrNotFound) {
		return cfg, err
	}
	return s.store.GetPhaseConfig(ctx, key.Default())
}

// writableConfig returns the config stored exactly at key. A track without
// its own config gets an unsaved copy of the default (Version 0) that save
// creates on first write.
func (s *Service) writableConfig(ctx context.Context, key model.PhaseKey) (model.PhaseConfig, error) {
	if err := key.Validate(); err != nil {
		return model.PhaseConfig{}, err
	}
	cfg, err := s.store.GetPhaseConfig(ctx, key)
	if err == nil || key.Track == "" || !errors.Is(err, model.ErrNotFound) {
		return cfg, err
	}
	def, err := s.store.GetPhaseConfig(ctx, key.Default())
	if err != nil {
		return model.PhaseConfig{}, err
	}
	track := model.PhaseConfig{
		Key:                    key,
		ScoringCategories:      slices.Clone(def.ScoringCategories),
		MinReviewersRequired:   def.MinReviewersRequired,
		UseZScoreNormalization: def.UseZScoreNormalization,
		Status:                 def.Status,
	}
	if def.Finalized() {
		track.FinalizedAt, track.FinalizedBy = def.FinalizedAt, def.FinalizedBy
	}
	return track, nil
}

func (s *Service) save(ctx context.Context, cfg model.PhaseConfig) (model.PhaseConfig, error) {
	if cfg.Version == 0 {
		return s.store.CreatePhaseConfig(ctx, cfg)
	}
	return s.store.UpdatePhaseConfig(ctx, cfg)
}

// claim saves cfg before an operation writes runs or stages. The save is
// version-checked, so of two processes that loaded the same version only
// one gets past it.
func (s *Service) claim(ctx context.Context, cfg model.PhaseConfig) (model.PhaseConfig, error) {
	out, err := s.save(ctx, cfg)
	if err != nil {
		metrics.RecordErrorByComponent("service", "claim")
		return model.PhaseConfig{}, fmt.Errorf("claim phase config %s: %w", cfg.Key, err)
	}
	return out, nil
}

// latestRun returns the active cutoff run for key, or nil.
func (s *Service) latestRun(ctx context.Context, key model.PhaseKey) (*model.CutoffRun, error) {
	run, err := s.store.LatestCutoffRun(ctx, key)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// phaseState is the persisted state one phase operation works on.
type phaseState struct {
	key     model.PhaseKey
	config  model.PhaseConfig
	run     *model.CutoffRun
	reviews []model.ApplicationReview
	apps    map[string]model.Application
	// pool holds applicants at a pool stage of the phase plus those moved
	// by the active run, filtered by track.
	pool []model.Application
	// rubrics maps each applicant track to the categories its reviews are
	// validated against.
	rubrics map[string][]model.ScoringCategory
}

func (st phaseState) poolIDs() []string {
	ids := make([]string, len(st.pool))
	for i, app := range st.pool {
		ids[i] = app.ID
	}
	return ids
}

func (s *Service) loadState(ctx context.Context, key model.PhaseKey, cfg model.PhaseConfig) (phaseState, error) {
	st := phaseState{key: key, config: cfg}
	run, err := s.latestRun(ctx, key)
	if err != nil {
		return st, fmt.Errorf("load cutoff run: %w", err)
	}
	st.run = run
	if st.reviews, err = s.store.ListReviewsForPhase(ctx, key.CycleID, key.Phase); err != nil {
		return st, fmt.Errorf("load reviews: %w", err)
	}
	apps, err := s.store.ListApplications(ctx, key.CycleID)
	if err != nil {
		return st, fmt.Errorf("load applications: %w", err)
	}
	st.apps = make(map[string]model.Application, len(apps))
	for _, app := range apps {
		st.apps[app.ID] = app
		if key.Track != "" && app.Track != key.Track {
			continue
		}
		moved := false
		if run != nil {
			_, moved = run.DecisionFor(app.ID)
		}
		if moved || stage.InPool(key.Phase, app.Stage) {
			st.pool = append(st.pool, app)
		}
	}
	if st.rubrics, err = s.rubrics(ctx, key, apps); err != nil {
		return st, fmt.Errorf("load rubrics: %w", err)
	}
	return st, nil
}

// rubrics resolves, for every track in apps, the effective categories of
// key's phase: the track's own config, else the track-less default.
func (s *Service) rubrics(ctx context.Context, key model.PhaseKey, apps []model.Application) (map[string][]model.ScoringCategory, error) {
	configs, err := s.store.ListPhaseConfigs(ctx, key.CycleID)
	if err != nil {
		return nil, err
	}
	var fallback []model.ScoringCategory
	byTrack := make(map[string][]model.ScoringCategory)
	for _, c := range configs {
		switch {
		case c.Key.Phase != key.Phase:
		case c.Key.Track == "":
			fallback = c.ScoringCategories
		default:
			byTrack[c.Key.Track] = c.ScoringCategories
		}
	}
	out := make(map[string][]model.ScoringCategory)
	for _, app := range apps {
		if _, done := out[app.Track]; done {
			continue
		}
		if cats, ok := byTrack[app.Track]; ok {
			out[app.Track] = cats
			continue
		}
		out[app.Track] = fallback
	}
	return out, nil
}

// audit records a state change. Failures are logged and never returned.
func (s *Service) audit(ctx context.Context, actor, action, targetType, targetID string, meta map[string]any) {
	entry := model.AuditEntry{
		ID:         s.newID(),
		ActorEmail: model.NormalizeEmail(actor),
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Meta:       meta,
		CreatedAt:  s.now(),
	}
	if err := s.store.AppendAudit(context.WithoutCancel(ctx), entry); err != nil {
		metrics.RecordErrorByComponent("service", "audit")
		s.logger.Error(ctx, "failed to record audit entry",
			logger.String("action", action),
			logger.String("target", targetID),
			logger.Error(err),
		)
	}
}
