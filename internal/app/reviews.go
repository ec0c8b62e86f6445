package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/cohort/internal/domain/completeness"
	"github.com/okian/cohort/internal/domain/model"
	"github.com/okian/cohort/internal/domain/ranking"
	"github.com/okian/cohort/internal/domain/scoring"
	"github.com/okian/cohort/pkg/logger"
	"github.com/okian/cohort/pkg/metrics"
	"github.com/okian/cohort/pkg/tracing"
)

// UpsertReview validates and stores a reviewer's review. Reviews of a
// finalized phase are rejected with a model.PhaseFinalizedError.
func (s *Service) UpsertReview(ctx context.Context, review model.ApplicationReview) (out model.ApplicationReview, err error) {
	ctx, span := tracing.Start(ctx, "service.UpsertReview",
		attribute.String("application_id", review.ApplicationID),
		attribute.String("phase", string(review.Phase)),
	)
	defer func() { tracing.End(span, err) }()

	app, err := s.store.GetApplication(ctx, review.ApplicationID)
	if err != nil {
		return model.ApplicationReview{}, err
	}
	if review.CycleID == "" {
		review.CycleID = app.CycleID
	}
	if review.CycleID != app.CycleID {
		return model.ApplicationReview{}, model.NewValidationError("cycle_id", "does not match the application")
	}
	review.ReviewerEmail = model.NormalizeEmail(review.ReviewerEmail)
	if err := review.Validate(); err != nil {
		return model.ApplicationReview{}, err
	}

	key := model.PhaseKey{CycleID: app.CycleID, Phase: review.Phase, Track: app.Track}
	unlock := s.lockReview(key)
	defer unlock()

	cfg, err := s.effectiveConfig(ctx, key)
	if err != nil {
		return model.ApplicationReview{}, err
	}
	if cfg.Finalized() {
		return model.ApplicationReview{}, &model.PhaseFinalizedError{Key: cfg.Key}
	}
	if review.Scores, err = scoring.ValidateScores(cfg.ScoringCategories, review.Scores); err != nil {
		return model.ApplicationReview{}, err
	}

	out, err = s.store.UpsertReview(ctx, review)
	if err != nil {
		return model.ApplicationReview{}, fmt.Errorf("store review: %w", err)
	}
	metrics.RecordReviewUpsert(string(review.Phase))
	s.logger.Debug(ctx, "review saved",
		logger.String("application_id", out.ApplicationID),
		logger.String("reviewer", out.ReviewerEmail),
		logger.String("phase", string(out.Phase)),
	)
	return out, nil
}

// lockReview holds the phase locks a finalize of key's track or of its
// default config takes, always default first, so a review never lands
// between a completeness gate and the save it guards.
func (s *Service) lockReview(key model.PhaseKey) func() {
	unlockDefault := s.lock(key.Default())
	if key.Track == "" {
		return unlockDefault
	}
	unlockTrack := s.lock(key)
	return func() {
		unlockTrack()
		unlockDefault()
	}
}

// GetReviews returns every review of one applicant in phase.
func (s *Service) GetReviews(ctx context.Context, applicationID string, phase model.Phase) ([]model.ApplicationReview, error) {
	if !phase.Valid() {
		return nil, model.NewValidationError("phase", fmt.Sprintf("unknown phase %q", phase))
	}
	if _, err := s.store.GetApplication(ctx, applicationID); err != nil {
		return nil, err
	}
	return s.store.ListReviewsForApplicant(ctx, applicationID, phase)
}

// Rankings returns the ordered ranking of the phase at key. Applicants
// decided by the active cutoff run carry their decision.
func (s *Service) Rankings(ctx context.Context, key model.PhaseKey) (out []model.RankedApplicant, err error) {
	ctx, span := tracing.Start(ctx, "service.Rankings", attribute.String("phase_key", key.String()))
	defer func() { tracing.End(span, err) }()

	cfg, err := s.effectiveConfig(ctx, key)
	if err != nil {
		return nil, err
	}
	st, err := s.loadState(ctx, key, cfg)
	if err != nil {
		return nil, err
	}
	return s.rank(st, st.run), nil
}

// Completeness reports per-reviewer coverage of the phase's eligible pool.
func (s *Service) Completeness(ctx context.Context, key model.PhaseKey) (model.PhaseCompleteness, error) {
	cfg, err := s.effectiveConfig(ctx, key)
	if err != nil {
		return model.PhaseCompleteness{}, err
	}
	st, err := s.loadState(ctx, key, cfg)
	if err != nil {
		return model.PhaseCompleteness{}, err
	}
	return s.completeness(ctx, st)
}

func (s *Service) rank(st phaseState, run *model.CutoffRun) []model.RankedApplicant {
	start := time.Now()
	out := ranking.Rank(ranking.Input{
		Config:       st.config,
		Pool:         st.pool,
		Applications: st.apps,
		Reviews:      st.reviews,
		Rubrics:      st.rubrics,
		Track:        st.key.Track,
		Run:          run,
	})
	metrics.RecordRanking(string(st.key.Phase), len(out), time.Since(start))
	return out
}

func (s *Service) completeness(ctx context.Context, st phaseState) (model.PhaseCompleteness, error) {
	admins, err := s.store.ListAdmins(ctx)
	if err != nil {
		return model.PhaseCompleteness{}, fmt.Errorf("load admins: %w", err)
	}
	return completeness.Compute(completeness.Input{
		Reviews:              st.reviews,
		EligibleApplicantIDs: st.poolIDs(),
		Reviewers:            admins,
		MinReviewersRequired: st.config.MinReviewersRequired,
	}), nil
}

// gate enforces that every admin reviewed every eligible applicant.
func (s *Service) gate(ctx context.Context, st phaseState) error {
	pc, err := s.completeness(ctx, st)
	if err != nil {
		return err
	}
	if missing := completeness.Incomplete(pc); len(missing) > 0 {
		return &model.IncompleteReviewsError{Key: st.key, IncompleteAdmins: missing}
	}
	return nil
}
