package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/cohort/internal/domain/cutoff"
	"github.com/okian/cohort/internal/domain/model"
	"github.com/okian/cohort/internal/domain/stage"
	"github.com/okian/cohort/pkg/logger"
	"github.com/okian/cohort/pkg/metrics"
	"github.com/okian/cohort/pkg/tracing"
)

// ApplyCutoffRequest describes one cutoff application.
type ApplyCutoffRequest struct {
	Key       model.PhaseKey
	Criteria  model.CutoffCriteria
	Overrides []model.ManualOverride
	Actor     string
	// SendEmails notifies every decided applicant after the stage moves.
	SendEmails bool
	// FinalizeAfter defaults to true when nil.
	FinalizeAfter *bool
	// ForceFinalize skips the completeness gate. The bypass is audited.
	ForceFinalize bool
	// ConfirmAllTracks must be set when Key has no track.
	ConfirmAllTracks bool
}

// ApplyCutoffResult reports what an applied cutoff did.
type ApplyCutoffResult struct {
	Run           model.CutoffRun            `json:"run"`
	Config        model.PhaseConfig          `json:"config"`
	Advanced      int                        `json:"advanced"`
	Rejected      int                        `json:"rejected"`
	Moved         int                        `json:"moved"`
	Notifications *model.NotificationSummary `json:"notifications,omitempty"`
}

// CutoffPreview is the outcome a cutoff would have, without side effects.
type CutoffPreview struct {
	Rankings []model.RankedApplicant `json:"rankings"`
	Advanced int                     `json:"advanced"`
	Rejected int                     `json:"rejected"`
}

// PreviewCutoff partitions the current ranking without writing anything.
func (s *Service) PreviewCutoff(ctx context.Context, key model.PhaseKey, criteria model.CutoffCriteria, overrides []model.ManualOverride) (out CutoffPreview, err error) {
	ctx, span := tracing.Start(ctx, "service.PreviewCutoff", attribute.String("phase_key", key.String()))
	defer func() { tracing.End(span, err) }()

	if err := cutoff.ValidateCriteria(criteria); err != nil {
		return CutoffPreview{}, err
	}
	cfg, err := s.effectiveConfig(ctx, key)
	if err != nil {
		return CutoffPreview{}, err
	}
	st, err := s.loadState(ctx, key, cfg)
	if err != nil {
		return CutoffPreview{}, err
	}
	ranked, result, err := s.partition(st, criteria, overrides)
	if err != nil {
		return CutoffPreview{}, err
	}
	for i := range ranked {
		d := result.Decisions[ranked[i].ApplicationID]
		ranked[i].Decision = &d
	}
	return CutoffPreview{Rankings: ranked, Advanced: len(result.Advanced), Rejected: len(result.Rejected)}, nil
}

// ApplyCutoff ranks, partitions and moves the phase's pool, records the
// run, optionally notifies applicants and finalizes the phase.
//
// The completeness gate runs before any write, and the first write is the
// version-checked claim of the config. Re-applying before the phase is
// finalized recomputes from each applicant's pre-cutoff stage and supersedes
// the previous run. A failed stage batch leaves CutoffAppliedAt set so the
// partial run can be reverted or re-applied.
func (s *Service) ApplyCutoff(ctx context.Context, req ApplyCutoffRequest) (res ApplyCutoffResult, err error) {
	ctx, span := tracing.Start(ctx, "service.ApplyCutoff",
		attribute.String("phase_key", req.Key.String()),
		attribute.String("criteria", string(req.Criteria.Type)),
		attribute.Bool("force", req.ForceFinalize),
	)
	defer func() {
		metrics.RecordPhaseAction("apply_cutoff", err)
		tracing.End(span, err)
	}()

	if err := req.Key.Validate(); err != nil {
		return ApplyCutoffResult{}, err
	}
	if req.Key.Track == "" && !req.ConfirmAllTracks {
		return ApplyCutoffResult{}, model.NewValidationError("confirm_all_tracks", "required when no track is given")
	}
	if err := cutoff.ValidateCriteria(req.Criteria); err != nil {
		return ApplyCutoffResult{}, err
	}

	unlock := s.lock(req.Key)
	defer unlock()

	cfg, err := s.writableConfig(ctx, req.Key)
	if err != nil {
		return ApplyCutoffResult{}, err
	}
	if cfg.Finalized() {
		return ApplyCutoffResult{}, &model.PhaseFinalizedError{Key: req.Key}
	}
	st, err := s.loadState(ctx, req.Key, cfg)
	if err != nil {
		return ApplyCutoffResult{}, err
	}
	if !req.ForceFinalize {
		if err := s.gate(ctx, st); err != nil {
			return ApplyCutoffResult{}, err
		}
	}

	ranked, result, err := s.partition(st, req.Criteria, req.Overrides)
	if err != nil {
		return ApplyCutoffResult{}, err
	}
	decisions, moves, err := plan(st, ranked, result)
	if err != nil {
		return ApplyCutoffResult{}, err
	}

	now := s.now()
	cfg.CutoffAppliedAt = &now
	if cfg.Status == model.StatusNotStarted {
		cfg.Status = model.StatusInProgress
	}
	if cfg, err = s.claim(ctx, cfg); err != nil {
		return ApplyCutoffResult{}, err
	}

	run := model.CutoffRun{
		ID:        s.newID(),
		Key:       req.Key,
		Criteria:  req.Criteria,
		Overrides: req.Overrides,
		Forced:    req.ForceFinalize,
		AppliedBy: model.NormalizeEmail(req.Actor),
		AppliedAt: now,
		Decisions: decisions,
	}
	if err := s.store.CreateCutoffRun(ctx, run); err != nil {
		return ApplyCutoffResult{}, fmt.Errorf("record cutoff run: %w", err)
	}
	if st.run != nil {
		if err := s.store.MarkCutoffRunReverted(ctx, st.run.ID, run.AppliedBy, now); err != nil {
			return ApplyCutoffResult{}, fmt.Errorf("supersede cutoff run %s: %w", st.run.ID, err)
		}
	}

	moved, moveErr := s.applyMoves(ctx, moves, stage.CauseCutoff)

	saved := cfg
	finalize := req.FinalizeAfter == nil || *req.FinalizeAfter
	if moveErr == nil && finalize {
		markFinalized(&cfg, req.Actor, now)
		if saved, err = s.save(ctx, cfg); err != nil {
			return ApplyCutoffResult{}, fmt.Errorf("save phase config: %w", err)
		}
	}

	res = ApplyCutoffResult{
		Run:      run,
		Config:   saved,
		Advanced: len(result.Advanced),
		Rejected: len(result.Rejected),
		Moved:    moved,
	}
	s.audit(ctx, req.Actor, "cutoff.apply", "phase_config", req.Key.String(), map[string]any{
		"run_id":    run.ID,
		"criteria":  string(req.Criteria.Type),
		"overrides": len(req.Overrides),
		"advanced":  res.Advanced,
		"rejected":  res.Rejected,
		"moved":     moved,
		"finalized": saved.Finalized(),
		"partial":   moveErr != nil,
	})
	if req.ForceFinalize {
		s.audit(ctx, req.Actor, finalizeAction(true), "phase_config", req.Key.String(), map[string]any{"run_id": run.ID})
	}
	if moveErr != nil {
		return res, moveErr
	}

	metrics.RecordCutoffApplied(string(req.Key.Phase), string(req.Criteria.Type))
	countDecisions(req.Key.Phase, decisions)
	s.logger.Info(ctx, "cutoff applied",
		logger.String("phase_key", req.Key.String()),
		logger.String("run_id", run.ID),
		logger.Int("advanced", res.Advanced),
		logger.Int("rejected", res.Rejected),
		logger.Int("moved", moved),
	)

	if req.SendEmails {
		summary := s.notify(ctx, req.Actor, run, jobsFor(st, run))
		res.Notifications = &summary
	}
	return res, nil
}

// RetryNotifications resends the failed notifications of a cutoff run.
func (s *Service) RetryNotifications(ctx context.Context, runID, actor string) (out model.NotificationSummary, err error) {
	ctx, span := tracing.Start(ctx, "service.RetryNotifications", attribute.String("run_id", runID))
	defer func() { tracing.End(span, err) }()

	if s.notifier == nil {
		return model.NotificationSummary{}, ErrNoNotifier
	}
	run, err := s.store.GetCutoffRun(ctx, runID)
	if err != nil {
		return model.NotificationSummary{}, err
	}
	outcomes, err := s.store.ListNotificationOutcomes(ctx, runID)
	if err != nil {
		return model.NotificationSummary{}, fmt.Errorf("load notification outcomes: %w", err)
	}

	var jobs []model.NotificationJob
	for _, o := range outcomes {
		if o.Status != model.NotificationFailed {
			continue
		}
		job := model.NotificationJob{
			RunID:         run.ID,
			ApplicationID: o.ApplicationID,
			Email:         o.Email,
			Template:      o.Template,
			Phase:         run.Key.Phase,
			Attempt:       o.Attempts + 1,
		}
		if app, err := s.store.GetApplication(ctx, o.ApplicationID); err == nil {
			job.Email, job.Name, job.Track = app.ApplicantEmail, app.ApplicantName, app.Track
		}
		jobs = append(jobs, job)
	}
	return s.notify(ctx, actor, run, jobs), nil
}

// partition ranks the phase and splits the applicants eligible for a
// cutoff. Reviewed applicants that have left the pool are ranked but never
// decided.
func (s *Service) partition(st phaseState, criteria model.CutoffCriteria, overrides []model.ManualOverride) ([]model.RankedApplicant, cutoff.Result, error) {
	all := s.rank(st, nil)
	ranked := make([]model.RankedApplicant, 0, len(all))
	for _, r := range all {
		if eligibleForCutoff(st, st.apps[r.ApplicationID]) {
			ranked = append(ranked, r)
		}
	}
	result, err := cutoff.Partition(ranked, criteria, overrides)
	if err != nil {
		return nil, cutoff.Result{}, err
	}
	return ranked, result, nil
}

// eligibleForCutoff holds for applicants at a pool stage and for those the
// active run moved who still sit at its target.
func eligibleForCutoff(st phaseState, app model.Application) bool {
	if st.key.Track != "" && app.Track != st.key.Track {
		return false
	}
	if stage.InPool(st.key.Phase, app.Stage) {
		return true
	}
	if st.run == nil {
		return false
	}
	prev, ok := st.run.DecisionFor(app.ID)
	return ok && prev.ToStage == app.Stage
}

// plan turns partition decisions into recorded decisions and stage moves.
// FromStage is the applicant's stage before any cutoff of this phase.
func plan(st phaseState, ranked []model.RankedApplicant, result cutoff.Result) ([]model.CutoffDecision, []model.StageMove, error) {
	phase := st.key.Phase
	decisions := make([]model.CutoffDecision, 0, len(ranked))
	var moves []model.StageMove
	for _, r := range ranked {
		app := st.apps[r.ApplicationID]
		d := result.Decisions[app.ID]
		origin := app.Stage
		if st.run != nil {
			if prev, ok := st.run.DecisionFor(app.ID); ok {
				origin = prev.FromStage
			}
		}
		target, err := stage.Target(phase, d)
		if err != nil {
			return nil, nil, err
		}
		if err := stage.Validate(origin, target, stage.Cutoff(phase, d)); err != nil {
			return nil, nil, &model.StageTransitionError{ApplicationID: app.ID, From: origin, To: target, Reason: err.Error()}
		}
		decisions = append(decisions, model.CutoffDecision{
			ApplicationID: app.ID,
			Decision:      d,
			FromStage:     origin,
			ToStage:       target,
		})
		if app.Stage != target {
			moves = append(moves, model.StageMove{ApplicationID: app.ID, From: app.Stage, To: target})
		}
	}
	return decisions, moves, nil
}

func jobsFor(st phaseState, run model.CutoffRun) []model.NotificationJob {
	jobs := make([]model.NotificationJob, 0, len(run.Decisions))
	for _, d := range run.Decisions {
		app := st.apps[d.ApplicationID]
		jobs = append(jobs, model.NotificationJob{
			RunID:         run.ID,
			ApplicationID: app.ID,
			Email:         app.ApplicantEmail,
			Name:          app.ApplicantName,
			Track:         app.Track,
			Template:      model.TemplateFor(d.Decision),
			Phase:         run.Key.Phase,
			Attempt:       1,
		})
	}
	return jobs
}

// notify never fails the caller; delivery problems come back as counts.
func (s *Service) notify(ctx context.Context, actor string, run model.CutoffRun, jobs []model.NotificationJob) model.NotificationSummary {
	var summary model.NotificationSummary
	if len(jobs) == 0 {
		return summary
	}
	if s.notifier == nil {
		s.logger.Warn(ctx, "no notifier configured, skipping notifications", logger.String("run_id", run.ID))
		summary = model.NotificationSummary{Failed: len(jobs), Errors: []string{ErrNoNotifier.Error()}}
	} else {
		var err error
		summary, err = s.notifier.Notify(ctx, jobs)
		if err != nil {
			metrics.RecordErrorByComponent("service", "notify")
			s.logger.Error(ctx, "notification batch reported an error",
				logger.String("run_id", run.ID),
				logger.Error(err),
			)
		}
	}
	s.audit(ctx, actor, "cutoff.notify", "cutoff_run", run.ID, map[string]any{
		"sent":    summary.Sent,
		"failed":  summary.Failed,
		"skipped": summary.Skipped,
		"errors":  summary.Errors,
	})
	return summary
}

func countDecisions(phase model.Phase, decisions []model.CutoffDecision) {
	counts := make(map[model.Decision]int)
	for _, d := range decisions {
		counts[d.Decision]++
	}
	for d, n := range counts {
		metrics.RecordCutoffDecisions(string(phase), string(d), n)
	}
}

func markFinalized(cfg *model.PhaseConfig, actor string, now time.Time) {
	cfg.Status = model.StatusFinalized
	cfg.FinalizedAt, cfg.FinalizedBy = &now, model.NormalizeEmail(actor)
}

func finalizeAction(forced bool) string {
	if forced {
		return "phase.force_finalize"
	}
	return "phase.finalize"
}
