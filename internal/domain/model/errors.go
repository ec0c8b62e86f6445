package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds for the recruitment domain. Structured errors below
// unwrap to one of these so callers can use errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrPhaseFinalized    = errors.New("phase is finalized")
	ErrIncompleteReviews = errors.New("reviews are incomplete")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid stage transition")
)

// ValidationError reports a bad input field.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ScoreOutOfRangeError reports a category score outside its bounds.
type ScoreOutOfRangeError struct {
	Category string
	Value    float64
	Min      float64
	Max      float64
}

func (e *ScoreOutOfRangeError) Error() string {
	return fmt.Sprintf("score %g for %q is outside [%g, %g]", e.Value, e.Category, e.Min, e.Max)
}

func (e *ScoreOutOfRangeError) Unwrap() error { return ErrValidation }

// PhaseFinalizedError reports a mutation attempt on a locked phase.
type PhaseFinalizedError struct {
	Key PhaseKey
}

func (e *PhaseFinalizedError) Error() string {
	return fmt.Sprintf("phase %s is finalized", e.Key)
}

func (e *PhaseFinalizedError) Unwrap() error { return ErrPhaseFinalized }

// IncompleteReviewsError blocks finalize and cutoff-apply while admins
// still owe reviews.
type IncompleteReviewsError struct {
	Key              PhaseKey
	IncompleteAdmins []ReviewerCompletion
}

func (e *IncompleteReviewsError) Error() string {
	parts := make([]string, 0, len(e.IncompleteAdmins))
	for _, a := range e.IncompleteAdmins {
		parts = append(parts, fmt.Sprintf("%s (%d/%d)", a.Email, a.Reviewed, a.Total))
	}
	return fmt.Sprintf("phase %s has incomplete reviews: %s", e.Key, strings.Join(parts, ", "))
}

func (e *IncompleteReviewsError) Unwrap() error { return ErrIncompleteReviews }

// NotFoundError reports an unknown entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// StageTransitionError reports a move the stage machine does not allow.
type StageTransitionError struct {
	ApplicationID string
	From          ApplicationStage
	To            ApplicationStage
	Reason        string
}

func (e *StageTransitionError) Error() string {
	msg := fmt.Sprintf("cannot move %s from %s to %s", e.ApplicationID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *StageTransitionError) Unwrap() error { return ErrInvalidTransition }

// BatchError reports a bulk stage write that stopped part way. Applied is
// the number of moves persisted before the failure.
type BatchError struct {
	Applied int
	Total   int
	Err     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("stage batch aborted after %d/%d moves: %v", e.Applied, e.Total, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
