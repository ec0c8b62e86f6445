package service

import (
	"slices"
	"time"

	"github.com/okian/cohort/internal/domain/model"
	"github.com/okian/cohort/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithNotifier sets the notification coordinator used by cutoffs.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBatchSize sets how many stage moves are written per transaction.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDs overrides the generator of cutoff run and audit ids.
func WithIDs(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithDefaultScoring sets the rubric seeded by InitializePhaseConfigs for
// phase. Phases without one use scoring.DefaultCategories.
func WithDefaultScoring(phase model.Phase, categories []model.ScoringCategory) Option {
	return func(s *Service) {
		if len(categories) > 0 {
			s.defaultScoring[phase] = slices.Clone(categories)
		}
	}
}

// WithDefaultMinReviewers sets MinReviewersRequired for seeded configs.
func WithDefaultMinReviewers(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.minReviewers = n
		}
	}
}
