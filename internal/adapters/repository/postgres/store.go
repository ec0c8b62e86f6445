// Package postgres is a repository.Store backed by PostgreSQL through pgx.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okian/cohort/internal/adapters/repository"
	"github.com/okian/cohort/internal/domain/model"
	"github.com/okian/cohort/pkg/metrics"
)

const driverName = "postgres"

//go:embed schema.sql
var schema string

// Store provides PostgreSQL-backed persistence.
type Store struct {
	pool *pgxpool.Pool
}

var _ repository.Store = (*Store)(nil)

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// inTransaction runs fn inside a transaction, committing on success.
func (s *Store) inTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, fn)
}

func observe(op string, start time.Time, err error) {
	metrics.RecordStoreOperation(driverName, op, time.Since(start), err)
}

func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func decode(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

const phaseConfigColumns = `cycle_id, phase, track, scoring_categories, min_reviewers_required,
	use_zscore_normalization, status, cutoff_applied_at, finalized_at, finalized_by,
	unlocked_at, unlocked_by, version, created_at, updated_at`

func scanPhaseConfig(row pgx.Row) (model.PhaseConfig, error) {
	var (
		cfg  model.PhaseConfig
		cats []byte
	)
	if err := row.Scan(&cfg.Key.CycleID, &cfg.Key.Phase, &cfg.Key.Track, &cats, &cfg.MinReviewersRequired,
		&cfg.UseZScoreNormalization, &cfg.Status, &cfg.CutoffAppliedAt, &cfg.FinalizedAt, &cfg.FinalizedBy,
		&cfg.UnlockedAt, &cfg.UnlockedBy, &cfg.Version, &cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
		return model.PhaseConfig{}, err
	}
	if err := decode(cats, &cfg.ScoringCategories); err != nil {
		return model.PhaseConfig{}, fmt.Errorf("decode scoring categories: %w", err)
	}
	cfg.CutoffAppliedAt = utc(cfg.CutoffAppliedAt)
	cfg.FinalizedAt = utc(cfg.FinalizedAt)
	cfg.UnlockedAt = utc(cfg.UnlockedAt)
	cfg.CreatedAt = cfg.CreatedAt.UTC()
	cfg.UpdatedAt = cfg.UpdatedAt.UTC()
	return cfg, nil
}

// GetPhaseConfig implements repository.PhaseConfigStore.
func (s *Store) GetPhaseConfig(ctx context.Context, key model.PhaseKey) (cfg model.PhaseConfig, err error) {
	defer func(start time.Time) { observe("get_phase_config", start, err) }(time.Now())
	cfg, err = scanPhaseConfig(s.pool.QueryRow(ctx, `SELECT `+phaseConfigColumns+` FROM phase_configs
WHERE cycle_id = $1 AND phase = $2 AND track = $3`, key.CycleID, key.Phase, key.Track))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PhaseConfig{}, &model.NotFoundError{Kind: "phase config", ID: key.String()}
	}
	if err != nil {
		return model.PhaseConfig{}, fmt.Errorf("get phase config: %w", err)
	}
	return cfg, nil
}

// ListPhaseConfigs implements repository.PhaseConfigStore.
func (s *Store) ListPhaseConfigs(ctx context.Context, cycleID string) ([]model.PhaseConfig, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+phaseConfigColumns+` FROM phase_configs
WHERE cycle_id = $1 ORDER BY phase, track`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("list phase configs: %w", err)
	}
	defer rows.Close()
	out := make([]model.PhaseConfig, 0)
	for rows.Next() {
		cfg, err := scanPhaseConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan phase config: %w", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// CreatePhaseConfig implements repository.PhaseConfigStore.
func (s *Store) CreatePhaseConfig(ctx context.Context, cfg model.PhaseConfig) (out model.PhaseConfig, err error) {
	defer func(start time.Time) { observe("create_phase_config", start, err) }(time.Now())
	cats, err := json.Marshal(cfg.ScoringCategories)
	if err != nil {
		return model.PhaseConfig{}, fmt.Errorf("encode scoring categories: %w", err)
	}
	ts := now()
	cfg.Version = 1
	cfg.CreatedAt, cfg.UpdatedAt = ts, ts
	if cfg.Status == "" {
		cfg.Status = model.StatusNotStarted
	}
	tag, err := s.pool.Exec(ctx, `INSERT INTO phase_configs (`+phaseConfigColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (cycle_id, phase, track) DO NOTHING`,
		cfg.Key.CycleID, cfg.Key.Phase, cfg.Key.Track, cats, cfg.MinReviewersRequired,
		cfg.UseZScoreNormalization, cfg.Status, cfg.CutoffAppliedAt, cfg.FinalizedAt, cfg.FinalizedBy,
		cfg.UnlockedAt, cfg.UnlockedBy, cfg.Version, ts, ts,
	)
	if err != nil {
		return model.PhaseConfig{}, fmt.Errorf("create phase config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.PhaseConfig{}, fmt.Errorf("phase config %s: %w", cfg.Key, repository.ErrAlreadyExists)
	}
	return cfg, nil
}

// UpdatePhaseConfig implements repository.PhaseConfigStore.
func (s *Store) UpdatePhaseConfig(ctx context.Context, cfg model.PhaseConfig) (out model.PhaseConfig, err error) {
	defer func(start time.Time) { observe("update_phase_config", start, err) }(time.Now())
	cats, err := json.Marshal(cfg.ScoringCategories)
	if err != nil {
		return model.PhaseConfig{}, fmt.Errorf("encode scoring categories: %w", err)
	}
	out, err = scanPhaseConfig(s.pool.QueryRow(ctx, `UPDATE phase_configs SET
	scoring_categories = $1, min_reviewers_required = $2, use_zscore_normalization = $3, status = $4,
	cutoff_applied_at = $5, finalized_at = $6, finalized_by = $7, unlocked_at = $8, unlocked_by = $9,
	version = version + 1, updated_at = $10
WHERE cycle_id = $11 AND phase = $12 AND track = $13 AND version = $14
RETURNING `+phaseConfigColumns,
		cats, cfg.MinReviewersRequired, cfg.UseZScoreNormalization, cfg.Status,
		cfg.CutoffAppliedAt, cfg.FinalizedAt, cfg.FinalizedBy, cfg.UnlockedAt, cfg.UnlockedBy,
		now(),
		cfg.Key.CycleID, cfg.Key.Phase, cfg.Key.Track, cfg.Version,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := s.GetPhaseConfig(ctx, cfg.Key)
		if getErr != nil {
			return model.PhaseConfig{}, getErr
		}
		return model.PhaseConfig{}, fmt.Errorf("phase config %s at version %d, got %d: %w", cfg.Key, current.Version, cfg.Version, repository.ErrVersionConflict)
	}
	if err != nil {
		return model.PhaseConfig{}, fmt.Errorf("update phase config: %w", err)
	}
	return out, nil
}

const reviewColumns = `application_id, phase, reviewer_email, cycle_id, scores, referral_signal,
	recommendation, notes, audio_url, created_at, updated_at`

func scanReview(row pgx.Row) (model.ApplicationReview, error) {
	var (
		r      model.ApplicationReview
		scores []byte
		rec    *string
	)
	if err := row.Scan(&r.ApplicationID, &r.Phase, &r.ReviewerEmail, &r.CycleID, &scores, &r.ReferralSignal,
		&rec, &r.Notes, &r.AudioURL, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return model.ApplicationReview{}, err
	}
	if err := decode(scores, &r.Scores); err != nil {
		return model.ApplicationReview{}, fmt.Errorf("decode scores: %w", err)
	}
	if rec != nil {
		v := model.Recommendation(*rec)
		r.Recommendation = &v
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

// UpsertReview implements repository.ReviewStore.
func (s *Store) UpsertReview(ctx context.Context, r model.ApplicationReview) (out model.ApplicationReview, err error) {
	defer func(start time.Time) { observe("upsert_review", start, err) }(time.Now())
	r.ReviewerEmail = model.NormalizeEmail(r.ReviewerEmail)
	scores, err := json.Marshal(r.Scores)
	if err != nil {
		return model.ApplicationReview{}, fmt.Errorf("encode scores: %w", err)
	}
	var rec *string
	if r.Recommendation != nil {
		v := string(*r.Recommendation)
		rec = &v
	}
	out, err = scanReview(s.pool.QueryRow(ctx, `INSERT INTO reviews (`+reviewColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
ON CONFLICT (application_id, phase, reviewer_email) DO UPDATE SET
	cycle_id = EXCLUDED.cycle_id,
	scores = EXCLUDED.scores,
	referral_signal = EXCLUDED.referral_signal,
	recommendation = EXCLUDED.recommendation,
	notes = EXCLUDED.notes,
	audio_url = EXCLUDED.audio_url,
	updated_at = EXCLUDED.updated_at
RETURNING `+reviewColumns,
		r.ApplicationID, r.Phase, r.ReviewerEmail, r.CycleID, scores, r.ReferralSignal,
		rec, r.Notes, r.AudioURL, now(),
	))
	if err != nil {
		return model.ApplicationReview{}, fmt.Errorf("upsert review: %w", err)
	}
	return out, nil
}

// ListReviewsForApplicant implements repository.ReviewStore.
func (s *Store) ListReviewsForApplicant(ctx context.Context, applicationID string, phase model.Phase) ([]model.ApplicationReview, error) {
	return s.queryReviews(ctx, `SELECT `+reviewColumns+` FROM reviews
WHERE application_id = $1 AND phase = $2 ORDER BY reviewer_email`, applicationID, phase)
}

// ListReviewsForPhase implements repository.ReviewStore.
func (s *Store) ListReviewsForPhase(ctx context.Context, cycleID string, phase model.Phase) ([]model.ApplicationReview, error) {
	return s.queryReviews(ctx, `SELECT `+reviewColumns+` FROM reviews
WHERE cycle_id = $1 AND phase = $2 ORDER BY application_id, reviewer_email`, cycleID, phase)
}

func (s *Store) queryReviews(ctx context.Context, query string, args ...any) ([]model.ApplicationReview, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()
	out := make([]model.ApplicationReview, 0)
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const applicationColumns = `id, cycle_id, track, applicant_name, applicant_email, stage, answers, submitted_at, updated_at`

func scanApplication(row pgx.Row) (model.Application, error) {
	var (
		a       model.Application
		answers []byte
	)
	if err := row.Scan(&a.ID, &a.CycleID, &a.Track, &a.ApplicantName, &a.ApplicantEmail, &a.Stage, &answers, &a.SubmittedAt, &a.UpdatedAt); err != nil {
		return model.Application{}, err
	}
	if err := decode(answers, &a.Answers); err != nil {
		return model.Application{}, fmt.Errorf("decode answers: %w", err)
	}
	a.SubmittedAt = utc(a.SubmittedAt)
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

// GetApplication implements repository.ApplicationStore.
func (s *Store) GetApplication(ctx context.Context, id string) (model.Application, error) {
	a, err := scanApplication(s.pool.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Application{}, &model.NotFoundError{Kind: "application", ID: id}
	}
	if err != nil {
		return model.Application{}, fmt.Errorf("get application: %w", err)
	}
	return a, nil
}

// ListApplications implements repository.ApplicationStore.
func (s *Store) ListApplications(ctx context.Context, cycleID string) ([]model.Application, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+applicationColumns+` FROM applications WHERE cycle_id = $1 ORDER BY id`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()
	out := make([]model.Application, 0)
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PutApplication implements repository.ApplicationStore.
func (s *Store) PutApplication(ctx context.Context, a model.Application) error {
	if strings.TrimSpace(a.ID) == "" {
		return model.NewValidationError("id", "must not be empty")
	}
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO applications (`+applicationColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
	cycle_id = EXCLUDED.cycle_id,
	track = EXCLUDED.track,
	applicant_name = EXCLUDED.applicant_name,
	applicant_email = EXCLUDED.applicant_email,
	stage = EXCLUDED.stage,
	answers = EXCLUDED.answers,
	submitted_at = EXCLUDED.submitted_at,
	updated_at = EXCLUDED.updated_at`,
		a.ID, a.CycleID, a.Track, a.ApplicantName, a.ApplicantEmail, a.Stage, answers, a.SubmittedAt, now(),
	)
	if err != nil {
		return fmt.Errorf("put application: %w", err)
	}
	return nil
}

// SetStages implements repository.ApplicationStore inside one transaction.
func (s *Store) SetStages(ctx context.Context, moves []model.StageMove) (changed int, err error) {
	defer func(start time.Time) { observe("set_stages", start, err) }(time.Now())
	err = s.inTransaction(ctx, func(tx pgx.Tx) error {
		changed = 0
		ts := now()
		for _, m := range moves {
			var current model.ApplicationStage
			err := tx.QueryRow(ctx, `SELECT stage FROM applications WHERE id = $1 FOR UPDATE`, m.ApplicationID).Scan(&current)
			if errors.Is(err, pgx.ErrNoRows) {
				return &model.NotFoundError{Kind: "application", ID: m.ApplicationID}
			}
			if err != nil {
				return fmt.Errorf("read stage of %s: %w", m.ApplicationID, err)
			}
			switch current {
			case m.To:
				continue
			case m.From:
			default:
				return fmt.Errorf("application %s is at %s, expected %s: %w", m.ApplicationID, current, m.From, repository.ErrStageMismatch)
			}
			if _, err := tx.Exec(ctx, `UPDATE applications SET stage = $1, updated_at = $2 WHERE id = $3`, m.To, ts, m.ApplicationID); err != nil {
				return fmt.Errorf("update stage of %s: %w", m.ApplicationID, err)
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

const runColumns = `id, cycle_id, phase, track, criteria, overrides, forced, applied_by, applied_at, decisions, reverted_at, reverted_by`

func scanRun(row pgx.Row) (model.CutoffRun, error) {
	var (
		r                              model.CutoffRun
		criteria, overrides, decisions []byte
	)
	if err := row.Scan(&r.ID, &r.Key.CycleID, &r.Key.Phase, &r.Key.Track, &criteria, &overrides, &r.Forced,
		&r.AppliedBy, &r.AppliedAt, &decisions, &r.RevertedAt, &r.RevertedBy); err != nil {
		return model.CutoffRun{}, err
	}
	if err := decode(criteria, &r.Criteria); err != nil {
		return model.CutoffRun{}, fmt.Errorf("decode criteria: %w", err)
	}
	if err := decode(overrides, &r.Overrides); err != nil {
		return model.CutoffRun{}, fmt.Errorf("decode overrides: %w", err)
	}
	if err := decode(decisions, &r.Decisions); err != nil {
		return model.CutoffRun{}, fmt.Errorf("decode decisions: %w", err)
	}
	r.AppliedAt = r.AppliedAt.UTC()
	r.RevertedAt = utc(r.RevertedAt)
	return r, nil
}

// CreateCutoffRun implements repository.CutoffStore.
func (s *Store) CreateCutoffRun(ctx context.Context, run model.CutoffRun) (err error) {
	defer func(start time.Time) { observe("create_cutoff_run", start, err) }(time.Now())
	criteria, err := json.Marshal(run.Criteria)
	if err != nil {
		return fmt.Errorf("encode criteria: %w", err)
	}
	overrides, err := json.Marshal(run.Overrides)
	if err != nil {
		return fmt.Errorf("encode overrides: %w", err)
	}
	decisions, err := json.Marshal(run.Decisions)
	if err != nil {
		return fmt.Errorf("encode decisions: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `INSERT INTO cutoff_runs (`+runColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO NOTHING`,
		run.ID, run.Key.CycleID, run.Key.Phase, run.Key.Track, criteria, overrides, run.Forced,
		run.AppliedBy, run.AppliedAt, decisions, run.RevertedAt, run.RevertedBy,
	)
	if err != nil {
		return fmt.Errorf("create cutoff run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("cutoff run %s: %w", run.ID, repository.ErrAlreadyExists)
	}
	return nil
}

// GetCutoffRun implements repository.CutoffStore.
func (s *Store) GetCutoffRun(ctx context.Context, id string) (model.CutoffRun, error) {
	r, err := scanRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM cutoff_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CutoffRun{}, &model.NotFoundError{Kind: "cutoff run", ID: id}
	}
	if err != nil {
		return model.CutoffRun{}, fmt.Errorf("get cutoff run: %w", err)
	}
	return r, nil
}

// LatestCutoffRun implements repository.CutoffStore.
func (s *Store) LatestCutoffRun(ctx context.Context, key model.PhaseKey) (model.CutoffRun, error) {
	r, err := scanRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM cutoff_runs
WHERE cycle_id = $1 AND phase = $2 AND track = $3 AND reverted_at IS NULL
ORDER BY applied_at DESC, seq DESC LIMIT 1`, key.CycleID, key.Phase, key.Track))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CutoffRun{}, &model.NotFoundError{Kind: "cutoff run", ID: key.String()}
	}
	if err != nil {
		return model.CutoffRun{}, fmt.Errorf("latest cutoff run: %w", err)
	}
	return r, nil
}

// MarkCutoffRunReverted implements repository.CutoffStore.
func (s *Store) MarkCutoffRunReverted(ctx context.Context, id, by string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE cutoff_runs SET reverted_at = $1, reverted_by = $2
WHERE id = $3 AND reverted_at IS NULL`, at.UTC(), by, id)
	if err != nil {
		return fmt.Errorf("revert cutoff run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetCutoffRun(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("cutoff run %s already reverted: %w", id, model.ErrConflict)
	}
	return nil
}

// SaveNotificationOutcomes implements repository.CutoffStore.
func (s *Store) SaveNotificationOutcomes(ctx context.Context, outcomes []model.NotificationOutcome) (err error) {
	defer func(start time.Time) { observe("save_notification_outcomes", start, err) }(time.Now())
	return s.inTransaction(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, o := range outcomes {
			batch.Queue(`INSERT INTO notification_outcomes
	(run_id, application_id, email, template, phase, status, error, attempts, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (run_id, application_id) DO UPDATE SET
	email = EXCLUDED.email,
	template = EXCLUDED.template,
	phase = EXCLUDED.phase,
	status = EXCLUDED.status,
	error = EXCLUDED.error,
	attempts = EXCLUDED.attempts,
	updated_at = EXCLUDED.updated_at`,
				o.RunID, o.ApplicationID, o.Email, o.Template, o.Phase, o.Status, o.Error, o.Attempts, o.UpdatedAt.UTC())
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save outcomes: %w", err)
		}
		return nil
	})
}

// ListNotificationOutcomes implements repository.CutoffStore.
func (s *Store) ListNotificationOutcomes(ctx context.Context, runID string) ([]model.NotificationOutcome, error) {
	rows, err := s.pool.Query(ctx, `SELECT run_id, application_id, email, template, phase, status, error, attempts, updated_at
FROM notification_outcomes WHERE run_id = $1 ORDER BY application_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()
	out := make([]model.NotificationOutcome, 0)
	for rows.Next() {
		var o model.NotificationOutcome
		if err := rows.Scan(&o.RunID, &o.ApplicationID, &o.Email, &o.Template, &o.Phase, &o.Status, &o.Error, &o.Attempts, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.UpdatedAt = o.UpdatedAt.UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}

// AppendAudit implements repository.AuditStore.
func (s *Store) AppendAudit(ctx context.Context, e model.AuditEntry) error {
	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return fmt.Errorf("encode audit meta: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now()
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO audit_log (id, actor_email, action, target_type, target_id, meta, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, e.ID, e.ActorEmail, e.Action, e.TargetType, e.TargetID, meta, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// ListAudit implements repository.AuditStore.
func (s *Store) ListAudit(ctx context.Context, targetID string) ([]model.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, actor_email, action, target_type, target_id, meta, created_at
FROM audit_log WHERE $1::text = '' OR target_id = $1 ORDER BY seq`, targetID)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()
	out := make([]model.AuditEntry, 0)
	for rows.Next() {
		var (
			e    model.AuditEntry
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorEmail, &e.Action, &e.TargetType, &e.TargetID, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		if err := decode(meta, &e.Meta); err != nil {
			return nil, fmt.Errorf("decode audit meta: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListAdmins implements repository.AdminRoster.
func (s *Store) ListAdmins(ctx context.Context) ([]model.Admin, error) {
	rows, err := s.pool.Query(ctx, `SELECT email, name FROM admins ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()
	out := make([]model.Admin, 0)
	for rows.Next() {
		var a model.Admin
		if err := rows.Scan(&a.Email, &a.Name); err != nil {
			return nil, fmt.Errorf("scan admin: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PutAdmin implements repository.AdminRoster.
func (s *Store) PutAdmin(ctx context.Context, a model.Admin) error {
	email := model.NormalizeEmail(a.Email)
	if email == "" {
		return model.NewValidationError("email", "must not be empty")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO admins (email, name) VALUES ($1, $2)
ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name`, email, a.Name)
	if err != nil {
		return fmt.Errorf("put admin: %w", err)
	}
	return nil
}
