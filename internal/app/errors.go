package service

import (
	"errors"
	"fmt"

	"github.com/okian/cohort/internal/domain/model"
)

var (
	// ErrNotFinalized is returned by unlock on a phase that is not finalized.
	ErrNotFinalized = fmt.Errorf("phase is not finalized: %w", model.ErrConflict)
	// ErrNothingToRevert is returned by revert when the phase is neither
	// finalized nor has a cutoff applied.
	ErrNothingToRevert = fmt.Errorf("phase has no cutoff to revert: %w", model.ErrConflict)
	// ErrNoNotifier is returned by RetryNotifications when no notifier is wired.
	ErrNoNotifier = errors.New("notifier is not configured")
	// ErrUnknownAction is returned for an unrecognized phase action.
	ErrUnknownAction = fmt.Errorf("unknown phase action: %w", model.ErrValidation)
)
