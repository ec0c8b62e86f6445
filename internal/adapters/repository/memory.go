package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/cohort/internal/domain/model"
	"github.com/okian/cohort/pkg/metrics"
)

const memoryDriver = "memory"

// MemoryStore is a process-local Store. All methods are safe for
// concurrent use; returned values never alias internal state.
type MemoryStore struct {
	mu  sync.RWMutex
	now func() time.Time

	configs      map[model.PhaseKey]model.PhaseConfig
	reviews      map[string]model.ApplicationReview
	applications map[string]model.Application
	runs         map[string]model.CutoffRun
	runOrder     []string
	outcomes     map[string]map[string]model.NotificationOutcome
	audit        []model.AuditEntry
	admins       map[string]model.Admin
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		now:          func() time.Time { return time.Now().UTC() },
		configs:      make(map[model.PhaseKey]model.PhaseConfig),
		reviews:      make(map[string]model.ApplicationReview),
		applications: make(map[string]model.Application),
		runs:         make(map[string]model.CutoffRun),
		outcomes:     make(map[string]map[string]model.NotificationOutcome),
		admins:       make(map[string]model.Admin),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func observe(op string, start time.Time, err error) {
	metrics.RecordStoreOperation(memoryDriver, op, time.Since(start), err)
}

// GetPhaseConfig implements PhaseConfigStore.
func (s *MemoryStore) GetPhaseConfig(ctx context.Context, key model.PhaseKey) (cfg model.PhaseConfig, err error) {
	defer func(start time.Time) { observe("get_phase_config", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return model.PhaseConfig{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[key]
	if !ok {
		return model.PhaseConfig{}, &model.NotFoundError{Kind: "phase config", ID: key.String()}
	}
	return cloneConfig(cfg), nil
}

// ListPhaseConfigs implements PhaseConfigStore.
func (s *MemoryStore) ListPhaseConfigs(ctx context.Context, cycleID string) ([]model.PhaseConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PhaseConfig, 0)
	for k, cfg := range s.configs {
		if k.CycleID == cycleID {
			out = append(out, cloneConfig(cfg))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Phase != out[j].Key.Phase {
			return out[i].Key.Phase < out[j].Key.Phase
		}
		return out[i].Key.Track < out[j].Key.Track
	})
	return out, nil
}

// CreatePhaseConfig implements PhaseConfigStore.
func (s *MemoryStore) CreatePhaseConfig(ctx context.Context, cfg model.PhaseConfig) (out model.PhaseConfig, err error) {
	defer func(start time.Time) { observe("create_phase_config", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return model.PhaseConfig{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.configs[cfg.Key]; exists {
		return model.PhaseConfig{}, fmt.Errorf("phase config %s: %w", cfg.Key, ErrAlreadyExists)
	}
	now := s.now()
	cfg.Version = 1
	cfg.CreatedAt, cfg.UpdatedAt = now, now
	if cfg.Status == "" {
		cfg.Status = model.StatusNotStarted
	}
	s.configs[cfg.Key] = cloneConfig(cfg)
	return cfg, nil
}

// UpdatePhaseConfig implements PhaseConfigStore.
func (s *MemoryStore) UpdatePhaseConfig(ctx context.Context, cfg model.PhaseConfig) (out model.PhaseConfig, err error) {
	defer func(start time.Time) { observe("update_phase_config", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return model.PhaseConfig{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.configs[cfg.Key]
	if !ok {
		return model.PhaseConfig{}, &model.NotFoundError{Kind: "phase config", ID: cfg.Key.String()}
	}
	if stored.Version != cfg.Version {
		return model.PhaseConfig{}, fmt.Errorf("phase config %s at version %d, got %d: %w", cfg.Key, stored.Version, cfg.Version, ErrVersionConflict)
	}
	cfg.Version++
	cfg.CreatedAt = stored.CreatedAt
	cfg.UpdatedAt = s.now()
	s.configs[cfg.Key] = cloneConfig(cfg)
	return cfg, nil
}

// UpsertReview implements ReviewStore.
func (s *MemoryStore) UpsertReview(ctx context.Context, review model.ApplicationReview) (out model.ApplicationReview, err error) {
	defer func(start time.Time) { observe("upsert_review", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return model.ApplicationReview{}, err
	}
	review.ReviewerEmail = model.NormalizeEmail(review.ReviewerEmail)
	key := review.NaturalKey()

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if existing, ok := s.reviews[key]; ok {
		review.CreatedAt = existing.CreatedAt
	} else {
		review.CreatedAt = now
	}
	review.UpdatedAt = now
	s.reviews[key] = cloneReview(review)
	return review, nil
}

// ListReviewsForApplicant implements ReviewStore.
func (s *MemoryStore) ListReviewsForApplicant(ctx context.Context, applicationID string, phase model.Phase) ([]model.ApplicationReview, error) {
	return s.listReviews(ctx, func(r model.ApplicationReview) bool {
		return r.ApplicationID == applicationID && r.Phase == phase
	})
}

// ListReviewsForPhase implements ReviewStore.
func (s *MemoryStore) ListReviewsForPhase(ctx context.Context, cycleID string, phase model.Phase) ([]model.ApplicationReview, error) {
	return s.listReviews(ctx, func(r model.ApplicationReview) bool {
		return r.CycleID == cycleID && r.Phase == phase
	})
}

func (s *MemoryStore) listReviews(ctx context.Context, match func(model.ApplicationReview) bool) ([]model.ApplicationReview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ApplicationReview, 0)
	for _, r := range s.reviews {
		if match(r) {
			out = append(out, cloneReview(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ApplicationID != out[j].ApplicationID {
			return out[i].ApplicationID < out[j].ApplicationID
		}
		return out[i].ReviewerEmail < out[j].ReviewerEmail
	})
	return out, nil
}

// GetApplication implements ApplicationStore.
func (s *MemoryStore) GetApplication(ctx context.Context, id string) (model.Application, error) {
	if err := ctx.Err(); err != nil {
		return model.Application{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.applications[id]
	if !ok {
		return model.Application{}, &model.NotFoundError{Kind: "application", ID: id}
	}
	return cloneApplication(app), nil
}

// ListApplications implements ApplicationStore.
func (s *MemoryStore) ListApplications(ctx context.Context, cycleID string) ([]model.Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Application, 0)
	for _, app := range s.applications {
		if app.CycleID == cycleID {
			out = append(out, cloneApplication(app))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutApplication implements ApplicationStore.
func (s *MemoryStore) PutApplication(ctx context.Context, app model.Application) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(app.ID) == "" {
		return model.NewValidationError("id", "must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	app.UpdatedAt = s.now()
	s.applications[app.ID] = cloneApplication(app)
	return nil
}

// SetStages implements ApplicationStore. Moves are checked before any is
// written so a failed call leaves every application untouched.
func (s *MemoryStore) SetStages(ctx context.Context, moves []model.StageMove) (changed int, err error) {
	defer func(start time.Time) { observe("set_stages", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]model.StageMove, 0, len(moves))
	for _, m := range moves {
		app, ok := s.applications[m.ApplicationID]
		if !ok {
			return 0, &model.NotFoundError{Kind: "application", ID: m.ApplicationID}
		}
		switch app.Stage {
		case m.To:
			continue
		case m.From:
			pending = append(pending, m)
		default:
			return 0, fmt.Errorf("application %s is at %s, expected %s: %w", m.ApplicationID, app.Stage, m.From, ErrStageMismatch)
		}
	}

	now := s.now()
	for _, m := range pending {
		app := s.applications[m.ApplicationID]
		app.Stage = m.To
		app.UpdatedAt = now
		s.applications[m.ApplicationID] = app
	}
	return len(pending), nil
}

// CreateCutoffRun implements CutoffStore.
func (s *MemoryStore) CreateCutoffRun(ctx context.Context, run model.CutoffRun) (err error) {
	defer func(start time.Time) { observe("create_cutoff_run", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("cutoff run %s: %w", run.ID, ErrAlreadyExists)
	}
	s.runs[run.ID] = cloneRun(run)
	s.runOrder = append(s.runOrder, run.ID)
	return nil
}

// GetCutoffRun implements CutoffStore.
func (s *MemoryStore) GetCutoffRun(ctx context.Context, id string) (model.CutoffRun, error) {
	if err := ctx.Err(); err != nil {
		return model.CutoffRun{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return model.CutoffRun{}, &model.NotFoundError{Kind: "cutoff run", ID: id}
	}
	return cloneRun(run), nil
}

// LatestCutoffRun implements CutoffStore.
func (s *MemoryStore) LatestCutoffRun(ctx context.Context, key model.PhaseKey) (model.CutoffRun, error) {
	if err := ctx.Err(); err != nil {
		return model.CutoffRun{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	// Newest AppliedAt wins; ties go to the later insert.
	var latest *model.CutoffRun
	for _, id := range s.runOrder {
		run := s.runs[id]
		if run.Key != key || run.RevertedAt != nil {
			continue
		}
		if latest == nil || !run.AppliedAt.Before(latest.AppliedAt) {
			latest = &run
		}
	}
	if latest == nil {
		return model.CutoffRun{}, &model.NotFoundError{Kind: "cutoff run", ID: key.String()}
	}
	return cloneRun(*latest), nil
}

// MarkCutoffRunReverted implements CutoffStore.
func (s *MemoryStore) MarkCutoffRunReverted(ctx context.Context, id, by string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return &model.NotFoundError{Kind: "cutoff run", ID: id}
	}
	if run.RevertedAt != nil {
		return fmt.Errorf("cutoff run %s already reverted: %w", id, model.ErrConflict)
	}
	run.RevertedAt = &at
	run.RevertedBy = by
	s.runs[id] = run
	return nil
}

// SaveNotificationOutcomes implements CutoffStore.
func (s *MemoryStore) SaveNotificationOutcomes(ctx context.Context, outcomes []model.NotificationOutcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range outcomes {
		byApp := s.outcomes[o.RunID]
		if byApp == nil {
			byApp = make(map[string]model.NotificationOutcome)
			s.outcomes[o.RunID] = byApp
		}
		byApp[o.ApplicationID] = o
	}
	return nil
}

// ListNotificationOutcomes implements CutoffStore.
func (s *MemoryStore) ListNotificationOutcomes(ctx context.Context, runID string) ([]model.NotificationOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Collect(maps.Values(s.outcomes[runID]))
	sort.Slice(out, func(i, j int) bool { return out[i].ApplicationID < out[j].ApplicationID })
	if out == nil {
		out = []model.NotificationOutcome{}
	}
	return out, nil
}

// AppendAudit implements AuditStore.
func (s *MemoryStore) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	entry.Meta = maps.Clone(entry.Meta)
	s.audit = append(s.audit, entry)
	return nil
}

// ListAudit implements AuditStore.
func (s *MemoryStore) ListAudit(ctx context.Context, targetID string) ([]model.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AuditEntry, 0, len(s.audit))
	for _, e := range s.audit {
		if targetID == "" || e.TargetID == targetID {
			e.Meta = maps.Clone(e.Meta)
			out = append(out, e)
		}
	}
	return out, nil
}

// ListAdmins implements AdminRoster.
func (s *MemoryStore) ListAdmins(ctx context.Context) ([]model.Admin, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Collect(maps.Values(s.admins))
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	if out == nil {
		out = []model.Admin{}
	}
	return out, nil
}

// PutAdmin implements AdminRoster.
func (s *MemoryStore) PutAdmin(ctx context.Context, admin model.Admin) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	email := model.NormalizeEmail(admin.Email)
	if email == "" {
		return model.NewValidationError("email", "must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[email] = model.Admin{Email: email, Name: admin.Name}
	return nil
}

func cloneConfig(c model.PhaseConfig) model.PhaseConfig {
	c.ScoringCategories = slices.Clone(c.ScoringCategories)
	for i := range c.ScoringCategories {
		c.ScoringCategories[i].StarDescriptions = maps.Clone(c.ScoringCategories[i].StarDescriptions)
	}
	c.CutoffAppliedAt = cloneTime(c.CutoffAppliedAt)
	c.FinalizedAt = cloneTime(c.FinalizedAt)
	c.UnlockedAt = cloneTime(c.UnlockedAt)
	return c
}

func cloneReview(r model.ApplicationReview) model.ApplicationReview {
	scores := make([]model.CategoryScore, len(r.Scores))
	for i, sc := range r.Scores {
		scores[i] = model.CategoryScore{Key: sc.Key}
		if sc.Value != nil {
			v := *sc.Value
			scores[i].Value = &v
		}
	}
	r.Scores = scores
	if r.Recommendation != nil {
		rec := *r.Recommendation
		r.Recommendation = &rec
	}
	return r
}

func cloneApplication(a model.Application) model.Application {
	a.Answers = maps.Clone(a.Answers)
	a.SubmittedAt = cloneTime(a.SubmittedAt)
	return a
}

func cloneRun(r model.CutoffRun) model.CutoffRun {
	r.Decisions = slices.Clone(r.Decisions)
	r.Overrides = slices.Clone(r.Overrides)
	r.RevertedAt = cloneTime(r.RevertedAt)
	if r.Criteria.TopN != nil {
		n := *r.Criteria.TopN
		r.Criteria.TopN = &n
	}
	if r.Criteria.MinScore != nil {
		m := *r.Criteria.MinScore
		r.Criteria.MinScore = &m
	}
	return r
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
