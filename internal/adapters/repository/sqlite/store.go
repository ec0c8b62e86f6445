// Package sqlite is a repository.Store backed by an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/cohort/internal/adapters/repository"
	"github.com/okian/cohort/internal/adapters/repository/sqlite/migrations"
	"github.com/okian/cohort/internal/domain/model"
	"github.com/okian/cohort/pkg/metrics"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// Store provides SQLite-backed persistence.
type Store struct {
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

// Open opens (or creates) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows one writer.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func observe(op string, start time.Time, err error) {
	metrics.RecordStoreOperation(driverName, op, time.Since(start), err)
}

func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

func millis(t time.Time) int64 { return t.UTC().UnixMilli() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: millis(*t), Valid: true}
}

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decode(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

type scanner interface {
	Scan(dest ...any) error
}

const phaseConfigColumns = `cycle_id, phase, track, scoring_categories, min_reviewers_required,
	use_zscore_normalization, status, cutoff_applied_at, finalized_at, finalized_by,
	unlocked_at, unlocked_by, version, created_at, updated_at`

func scanPhaseConfig(row scanner) (model.PhaseConfig, error) {
	var (
		cfg                               model.PhaseConfig
		cats                              string
		zscore                            bool
		cutoffAt, finalizedAt, unlockedAt sql.NullInt64
		createdAt, updatedAt              int64
	)
	if err := row.Scan(&cfg.Key.CycleID, &cfg.Key.Phase, &cfg.Key.Track, &cats, &cfg.MinReviewersRequired,
		&zscore, &cfg.Status, &cutoffAt, &finalizedAt, &cfg.FinalizedBy,
		&unlockedAt, &cfg.UnlockedBy, &cfg.Version, &createdAt, &updatedAt); err != nil {
		return model.PhaseConfig{}, err
	}
	if err := decode(cats, &cfg.ScoringCategories); err != nil {
		return model.PhaseConfig{}, fmt.Errorf("decode scoring categories: %w", err)
	}
	cfg.UseZScoreNormalization = zscore
	cfg.CutoffAppliedAt = fromNullMillis(cutoffAt)
	cfg.FinalizedAt = fromNullMillis(finalizedAt)
	cfg.UnlockedAt = fromNullMillis(unlockedAt)
	cfg.CreatedAt = fromMillis(createdAt)
	cfg.UpdatedAt = fromMillis(updatedAt)
	return cfg, nil
}

// GetPhaseConfig implements repository.PhaseConfigStore.
func (s *Store) GetPhaseConfig(ctx context.Context, key model.PhaseKey) (cfg model.PhaseConfig, err error) {
	defer func(start time.Time) { observe("get_phase_config", start, err) }(time.Now())
	row := s.db.QueryRowContext(ctx, `SELECT `+phaseConfigColumns+` FROM phase_configs
WHERE cycle_id = ? AND phase = ? AND track = ?`, key.CycleID, key.Phase, key.Track)
	cfg, err = scanPhaseConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PhaseConfig{}, &model.NotFoundError{Kind: "phase config", ID: key.String()}
	}
	if err != nil {
		return model.PhaseConfig{}, fmt.Errorf("get phase config: %w", err)
	}
	return cfg, nil
}

// ListPhaseConfigs implements repository.PhaseConfigStore.
func (s *Store) ListPhaseConfigs(ctx context.Context, cycleID string) ([]model.PhaseConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+phaseConfigColumns+` FROM phase_configs
WHERE cycle_id = ? ORDER BY phase, track`, cycleID)
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
	cats, err := encode(cfg.ScoringCategories)
	if err != nil {
		return model.PhaseConfig{}, fmt.Errorf("encode scoring categories: %w", err)
	}
	ts := now()
	cfg.Version = 1
	cfg.CreatedAt, cfg.UpdatedAt = ts, ts
	if cfg.Status == "" {
		cfg.Status = model.StatusNotStarted
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO phase_configs (`+phaseConfigColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (cycle_id, phase, track) DO NOTHING`,
		cfg.Key.CycleID, cfg.Key.Phase, cfg.Key.Track, cats, cfg.MinReviewersRequired,
		cfg.UseZScoreNormalization, cfg.Status, nullMillis(cfg.CutoffAppliedAt), nullMillis(cfg.FinalizedAt), cfg.FinalizedBy,
		nullMillis(cfg.UnlockedAt), cfg.UnlockedBy, cfg.Version, millis(ts), millis(ts),
	)
	if err != nil {
		return model.PhaseConfig{}, fmt.Errorf("create phase config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.PhaseConfig{}, fmt.Errorf("phase config %s: %w", cfg.Key, repository.ErrAlreadyExists)
	}
	return cfg, nil
}

// UpdatePhaseConfig implements repository.PhaseConfigStore.
func (s *Store) UpdatePhaseConfig(ctx context.Context, cfg model.PhaseConfig) (out model.PhaseConfig, err error) {
	defer func(start time.Time) { observe("update_phase_config", start, err) }(time.Now())
	cats, err := encode(cfg.ScoringCategories)
	if err != nil {
		return model.PhaseConfig{}, fmt.Errorf("encode scoring categories: %w", err)
	}
	ts := now()
	res, err := s.db.ExecContext(ctx, `UPDATE phase_configs SET
	scoring_categories = ?, min_reviewers_required = ?, use_zscore_normalization = ?, status = ?,
	cutoff_applied_at = ?, finalized_at = ?, finalized_by = ?, unlocked_at = ?, unlocked_by = ?,
	version = version + 1, updated_at = ?
WHERE cycle_id = ? AND phase = ? AND track = ? AND version = ?`,
		cats, cfg.MinReviewersRequired, cfg.UseZScoreNormalization, cfg.Status,
		nullMillis(cfg.CutoffAppliedAt), nullMillis(cfg.FinalizedAt), cfg.FinalizedBy, nullMillis(cfg.UnlockedAt), cfg.UnlockedBy,
		millis(ts),
		cfg.Key.CycleID, cfg.Key.Phase, cfg.Key.Track, cfg.Version,
	)
	if err != nil {
		return model.PhaseConfig{}, fmt.Errorf("update phase config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		current, getErr := s.GetPhaseConfig(ctx, cfg.Key)
		if getErr != nil {
			return model.PhaseConfig{}, getErr
		}
		return model.PhaseConfig{}, fmt.Errorf("phase config %s at version %d, got %d: %w", cfg.Key, current.Version, cfg.Version, repository.ErrVersionConflict)
	}
	return s.GetPhaseConfig(ctx, cfg.Key)
}

const reviewColumns = `application_id, phase, reviewer_email, cycle_id, scores, referral_signal,
	recommendation, notes, audio_url, created_at, updated_at`

func scanReview(row scanner) (model.ApplicationReview, error) {
	var (
		r                    model.ApplicationReview
		scores               string
		rec                  sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&r.ApplicationID, &r.Phase, &r.ReviewerEmail, &r.CycleID, &scores, &r.ReferralSignal,
		&rec, &r.Notes, &r.AudioURL, &createdAt, &updatedAt); err != nil {
		return model.ApplicationReview{}, err
	}
	if err := decode(scores, &r.Scores); err != nil {
		return model.ApplicationReview{}, fmt.Errorf("decode scores: %w", err)
	}
	if rec.Valid {
		v := model.Recommendation(rec.String)
		r.Recommendation = &v
	}
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	return r, nil
}

// UpsertReview implements repository.ReviewStore.
func (s *Store) UpsertReview(ctx context.Context, r model.ApplicationReview) (out model.ApplicationReview, err error) {
	defer func(start time.Time) { observe("upsert_review", start, err) }(time.Now())
	r.ReviewerEmail = model.NormalizeEmail(r.ReviewerEmail)
	scores, err := encode(r.Scores)
	if err != nil {
		return model.ApplicationReview{}, fmt.Errorf("encode scores: %w", err)
	}
	var rec sql.NullString
	if r.Recommendation != nil {
		rec = sql.NullString{String: string(*r.Recommendation), Valid: true}
	}
	ts := now()
	var createdAt int64
	err = s.db.QueryRowContext(ctx, `INSERT INTO reviews (`+reviewColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (application_id, phase, reviewer_email) DO UPDATE SET
	cycle_id = excluded.cycle_id,
	scores = excluded.scores,
	referral_signal = excluded.referral_signal,
	recommendation = excluded.recommendation,
	notes = excluded.notes,
	audio_url = excluded.audio_url,
	updated_at = excluded.updated_at
RETURNING created_at`,
		r.ApplicationID, r.Phase, r.ReviewerEmail, r.CycleID, scores, r.ReferralSignal,
		rec, r.Notes, r.AudioURL, millis(ts), millis(ts),
	).Scan(&createdAt)
	if err != nil {
		return model.ApplicationReview{}, fmt.Errorf("upsert review: %w", err)
	}
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = ts
	return r, nil
}

// ListReviewsForApplicant implements repository.ReviewStore.
func (s *Store) ListReviewsForApplicant(ctx context.Context, applicationID string, phase model.Phase) ([]model.ApplicationReview, error) {
	return s.queryReviews(ctx, `SELECT `+reviewColumns+` FROM reviews
WHERE application_id = ? AND phase = ? ORDER BY reviewer_email`, applicationID, phase)
}

// ListReviewsForPhase implements repository.ReviewStore.
func (s *Store) ListReviewsForPhase(ctx context.Context, cycleID string, phase model.Phase) ([]model.ApplicationReview, error) {
	return s.queryReviews(ctx, `SELECT `+reviewColumns+` FROM reviews
WHERE cycle_id = ? AND phase = ? ORDER BY application_id, reviewer_email`, cycleID, phase)
}

func (s *Store) queryReviews(ctx context.Context, query string, args ...any) ([]model.ApplicationReview, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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

func scanApplication(row scanner) (model.Application, error) {
	var (
		a         model.Application
		answers   string
		submitted sql.NullInt64
		updatedAt int64
	)
	if err := row.Scan(&a.ID, &a.CycleID, &a.Track, &a.ApplicantName, &a.ApplicantEmail, &a.Stage, &answers, &submitted, &updatedAt); err != nil {
		return model.Application{}, err
	}
	if err := decode(answers, &a.Answers); err != nil {
		return model.Application{}, fmt.Errorf("decode answers: %w", err)
	}
	a.SubmittedAt = fromNullMillis(submitted)
	a.UpdatedAt = fromMillis(updatedAt)
	return a, nil
}

// GetApplication implements repository.ApplicationStore.
func (s *Store) GetApplication(ctx context.Context, id string) (model.Application, error) {
	a, err := scanApplication(s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Application{}, &model.NotFoundError{Kind: "application", ID: id}
	}
	if err != nil {
		return model.Application{}, fmt.Errorf("get application: %w", err)
	}
	return a, nil
}

// ListApplications implements repository.ApplicationStore.
func (s *Store) ListApplications(ctx context.Context, cycleID string) ([]model.Application, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE cycle_id = ? ORDER BY id`, cycleID)
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
	answers, err := encode(a.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO applications (`+applicationColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	cycle_id = excluded.cycle_id,
	track = excluded.track,
	applicant_name = excluded.applicant_name,
	applicant_email = excluded.applicant_email,
	stage = excluded.stage,
	answers = excluded.answers,
	submitted_at = excluded.submitted_at,
	updated_at = excluded.updated_at`,
		a.ID, a.CycleID, a.Track, a.ApplicantName, a.ApplicantEmail, a.Stage, answers, nullMillis(a.SubmittedAt), millis(now()),
	)
	if err != nil {
		return fmt.Errorf("put application: %w", err)
	}
	return nil
}

// SetStages implements repository.ApplicationStore inside one transaction.
func (s *Store) SetStages(ctx context.Context, moves []model.StageMove) (changed int, err error) {
	defer func(start time.Time) { observe("set_stages", start, err) }(time.Now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin stage batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	ts := millis(now())
	for _, m := range moves {
		var current model.ApplicationStage
		err = tx.QueryRowContext(ctx, `SELECT stage FROM applications WHERE id = ?`, m.ApplicationID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, &model.NotFoundError{Kind: "application", ID: m.ApplicationID}
		}
		if err != nil {
			return 0, fmt.Errorf("read stage of %s: %w", m.ApplicationID, err)
		}
		switch current {
		case m.To:
			continue
		case m.From:
		default:
			return 0, fmt.Errorf("application %s is at %s, expected %s: %w", m.ApplicationID, current, m.From, repository.ErrStageMismatch)
		}
		if _, err = tx.ExecContext(ctx, `UPDATE applications SET stage = ?, updated_at = ? WHERE id = ?`, m.To, ts, m.ApplicationID); err != nil {
			return 0, fmt.Errorf("update stage of %s: %w", m.ApplicationID, err)
		}
		changed++
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit stage batch: %w", err)
	}
	return changed, nil
}

const runColumns = `id, cycle_id, phase, track, criteria, overrides, forced, applied_by, applied_at, decisions, reverted_at, reverted_by`

func scanRun(row scanner) (model.CutoffRun, error) {
	var (
		r                              model.CutoffRun
		criteria, overrides, decisions string
		appliedAt                      int64
		revertedAt                     sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.Key.CycleID, &r.Key.Phase, &r.Key.Track, &criteria, &overrides, &r.Forced,
		&r.AppliedBy, &appliedAt, &decisions, &revertedAt, &r.RevertedBy); err != nil {
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
	r.AppliedAt = fromMillis(appliedAt)
	r.RevertedAt = fromNullMillis(revertedAt)
	return r, nil
}

// CreateCutoffRun implements repository.CutoffStore.
func (s *Store) CreateCutoffRun(ctx context.Context, run model.CutoffRun) (err error) {
	defer func(start time.Time) { observe("create_cutoff_run", start, err) }(time.Now())
	criteria, err := encode(run.Criteria)
	if err != nil {
		return fmt.Errorf("encode criteria: %w", err)
	}
	overrides, err := encode(run.Overrides)
	if err != nil {
		return fmt.Errorf("encode overrides: %w", err)
	}
	decisions, err := encode(run.Decisions)
	if err != nil {
		return fmt.Errorf("encode decisions: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO cutoff_runs (`+runColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`,
		run.ID, run.Key.CycleID, run.Key.Phase, run.Key.Track, criteria, overrides, run.Forced,
		run.AppliedBy, millis(run.AppliedAt), decisions, nullMillis(run.RevertedAt), run.RevertedBy,
	)
	if err != nil {
		return fmt.Errorf("create cutoff run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("cutoff run %s: %w", run.ID, repository.ErrAlreadyExists)
	}
	return nil
}

// GetCutoffRun implements repository.CutoffStore.
func (s *Store) GetCutoffRun(ctx context.Context, id string) (model.CutoffRun, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM cutoff_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.CutoffRun{}, &model.NotFoundError{Kind: "cutoff run", ID: id}
	}
	if err != nil {
		return model.CutoffRun{}, fmt.Errorf("get cutoff run: %w", err)
	}
	return r, nil
}

// LatestCutoffRun implements repository.CutoffStore.
func (s *Store) LatestCutoffRun(ctx context.Context, key model.PhaseKey) (model.CutoffRun, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM cutoff_runs
WHERE cycle_id = ? AND phase = ? AND track = ? AND reverted_at IS NULL
ORDER BY applied_at DESC, rowid DESC LIMIT 1`, key.CycleID, key.Phase, key.Track))
	if errors.Is(err, sql.ErrNoRows) {
		return model.CutoffRun{}, &model.NotFoundError{Kind: "cutoff run", ID: key.String()}
	}
	if err != nil {
		return model.CutoffRun{}, fmt.Errorf("latest cutoff run: %w", err)
	}
	return r, nil
}

// MarkCutoffRunReverted implements repository.CutoffStore.
func (s *Store) MarkCutoffRunReverted(ctx context.Context, id, by string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE cutoff_runs SET reverted_at = ?, reverted_by = ?
WHERE id = ? AND reverted_at IS NULL`, millis(at), by, id)
	if err != nil {
		return fmt.Errorf("revert cutoff run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outcomes: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, o := range outcomes {
		if _, err = tx.ExecContext(ctx, `INSERT INTO notification_outcomes
	(run_id, application_id, email, template, phase, status, error, attempts, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id, application_id) DO UPDATE SET
	email = excluded.email,
	template = excluded.template,
	phase = excluded.phase,
	status = excluded.status,
	error = excluded.error,
	attempts = excluded.attempts,
	updated_at = excluded.updated_at`,
			o.RunID, o.ApplicationID, o.Email, o.Template, o.Phase, o.Status, o.Error, o.Attempts, millis(o.UpdatedAt),
		); err != nil {
			return fmt.Errorf("save outcome %s/%s: %w", o.RunID, o.ApplicationID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit outcomes: %w", err)
	}
	return nil
}

// ListNotificationOutcomes implements repository.CutoffStore.
func (s *Store) ListNotificationOutcomes(ctx context.Context, runID string) ([]model.NotificationOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, application_id, email, template, phase, status, error, attempts, updated_at
FROM notification_outcomes WHERE run_id = ? ORDER BY application_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()
	out := make([]model.NotificationOutcome, 0)
	for rows.Next() {
		var (
			o         model.NotificationOutcome
			updatedAt int64
		)
		if err := rows.Scan(&o.RunID, &o.ApplicationID, &o.Email, &o.Template, &o.Phase, &o.Status, &o.Error, &o.Attempts, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.UpdatedAt = fromMillis(updatedAt)
		out = append(out, o)
	}
	return out, rows.Err()
}

// AppendAudit implements repository.AuditStore.
func (s *Store) AppendAudit(ctx context.Context, e model.AuditEntry) error {
	meta, err := encode(e.Meta)
	if err != nil {
		return fmt.Errorf("encode audit meta: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO audit_log (id, actor_email, action, target_type, target_id, meta, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`, e.ID, e.ActorEmail, e.Action, e.TargetType, e.TargetID, meta, millis(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// ListAudit implements repository.AuditStore.
func (s *Store) ListAudit(ctx context.Context, targetID string) ([]model.AuditEntry, error) {
	query := `SELECT id, actor_email, action, target_type, target_id, meta, created_at FROM audit_log`
	var args []any
	if targetID != "" {
		query += ` WHERE target_id = ?`
		args = append(args, targetID)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()
	out := make([]model.AuditEntry, 0)
	for rows.Next() {
		var (
			e         model.AuditEntry
			meta      string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.ActorEmail, &e.Action, &e.TargetType, &e.TargetID, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		if err := decode(meta, &e.Meta); err != nil {
			return nil, fmt.Errorf("decode audit meta: %w", err)
		}
		e.CreatedAt = fromMillis(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListAdmins implements repository.AdminRoster.
func (s *Store) ListAdmins(ctx context.Context) ([]model.Admin, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT email, name FROM admins ORDER BY email`)
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
	_, err := s.db.ExecContext(ctx, `INSERT INTO admins (email, name) VALUES (?, ?)
ON CONFLICT (email) DO UPDATE SET name = excluded.name`, email, a.Name)
	if err != nil {
		return fmt.Errorf("put admin: %w", err)
	}
	return nil
}
