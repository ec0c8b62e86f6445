// Package repository defines the persistence interfaces of the review engine
// and an in-memory implementation. SQL drivers live in subpackages.
package repository

import (
	"context"
	"time"

	"github.com/okian/cohort/internal/domain/model"
)

// PhaseConfigStore persists phase configs.
type PhaseConfigStore interface {
	// GetPhaseConfig returns the config stored under exactly key.
	// Returns a model.NotFoundError if absent.
	GetPhaseConfig(ctx context.Context, key model.PhaseKey) (model.PhaseConfig, error)
	// ListPhaseConfigs returns every config of a cycle ordered by phase, then track.
	ListPhaseConfigs(ctx context.Context, cycleID string) ([]model.PhaseConfig, error)
	// CreatePhaseConfig stores a new config at version 1.
	// Returns ErrAlreadyExists if the key is taken.
	CreatePhaseConfig(ctx context.Context, cfg model.PhaseConfig) (model.PhaseConfig, error)
	// UpdatePhaseConfig replaces a config when cfg.Version matches the stored
	// version and returns it with the version bumped. Returns ErrVersionConflict
	// otherwise.
	UpdatePhaseConfig(ctx context.Context, cfg model.PhaseConfig) (model.PhaseConfig, error)
}

// ReviewStore persists reviews keyed by (application, phase, reviewer).
type ReviewStore interface {
	// UpsertReview inserts or replaces a review, keeping CreatedAt of an
	// existing row.
	UpsertReview(ctx context.Context, review model.ApplicationReview) (model.ApplicationReview, error)
	// ListReviewsForApplicant returns the reviews of one applicant in one phase.
	ListReviewsForApplicant(ctx context.Context, applicationID string, phase model.Phase) ([]model.ApplicationReview, error)
	// ListReviewsForPhase returns all reviews of a cycle phase.
	ListReviewsForPhase(ctx context.Context, cycleID string, phase model.Phase) ([]model.ApplicationReview, error)
}

// ApplicationStore persists applications. The engine only writes stages.
type ApplicationStore interface {
	GetApplication(ctx context.Context, id string) (model.Application, error)
	// ListApplications returns every application of a cycle ordered by id.
	ListApplications(ctx context.Context, cycleID string) ([]model.Application, error)
	PutApplication(ctx context.Context, app model.Application) error
	// SetStages applies all moves atomically. A move whose application already
	// sits at To is skipped; one whose stage is neither From nor To fails the
	// whole call with ErrStageMismatch. Returns the number of rows changed.
	SetStages(ctx context.Context, moves []model.StageMove) (int, error)
}

// CutoffStore persists cutoff runs and their notification outcomes.
type CutoffStore interface {
	CreateCutoffRun(ctx context.Context, run model.CutoffRun) error
	GetCutoffRun(ctx context.Context, id string) (model.CutoffRun, error)
	// LatestCutoffRun returns the newest run for key that has not been reverted.
	LatestCutoffRun(ctx context.Context, key model.PhaseKey) (model.CutoffRun, error)
	MarkCutoffRunReverted(ctx context.Context, id, by string, at time.Time) error
	// SaveNotificationOutcomes upserts outcomes keyed by (run, application).
	SaveNotificationOutcomes(ctx context.Context, outcomes []model.NotificationOutcome) error
	ListNotificationOutcomes(ctx context.Context, runID string) ([]model.NotificationOutcome, error)
}

// AuditStore is an append-only audit sink.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry model.AuditEntry) error
	// ListAudit returns entries oldest first; an empty targetID lists all.
	ListAudit(ctx context.Context, targetID string) ([]model.AuditEntry, error)
}

// AdminRoster is the set of reviewers expected to cover every applicant.
type AdminRoster interface {
	ListAdmins(ctx context.Context) ([]model.Admin, error)
	PutAdmin(ctx context.Context, admin model.Admin) error
}

// Store is everything the service needs from persistence.
type Store interface {
	PhaseConfigStore
	ReviewStore
	ApplicationStore
	CutoffStore
	AuditStore
	AdminRoster
	Close() error
}
