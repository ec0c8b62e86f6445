// Package stage is the application stage machine. It decides which stage
// moves are legal and why; persisting a move is the caller's job.
package stage

import (
	"fmt"

	"github.com/okian/cohort/internal/domain/model"
)

// CauseKind says who or what requested a stage move.
type CauseKind string

const (
	// CauseCutoff is a cutoff decision at Cause.Phase.
	CauseCutoff CauseKind = "cutoff"
	// CauseRevert restores a stage recorded by an earlier cutoff run.
	CauseRevert CauseKind = "revert"
	// CauseAdmin is a manual admin action outside a cutoff.
	CauseAdmin CauseKind = "admin"
)

// Cause describes why a move is requested.
type Cause struct {
	Kind     CauseKind
	Phase    model.Phase
	Decision model.Decision
}

// Cutoff builds a cutoff cause.
func Cutoff(phase model.Phase, d model.Decision) Cause {
	return Cause{Kind: CauseCutoff, Phase: phase, Decision: d}
}

// Admin builds an admin cause.
func Admin() Cause { return Cause{Kind: CauseAdmin} }

// Revert builds a revert cause.
func Revert() Cause { return Cause{Kind: CauseRevert} }

// order is the linear pipeline; terminal stages share the last slot.
var order = map[model.ApplicationStage]int{
	model.StageNotStarted:      0,
	model.StageDraft:           1,
	model.StageSubmitted:       2,
	model.StageUnderReview:     3,
	model.StageCoffeeChat:      4,
	model.StageInterviewRound1: 5,
	model.StageInterviewRound2: 6,
	model.StageFinalReview:     7,
	model.StageAccepted:        8,
	model.StageRejected:        8,
	model.StageWaitlisted:      8,
	model.StageWithdrawn:       9,
}

// Known reports whether s is a recognised stage.
func Known(s model.ApplicationStage) bool {
	_, ok := order[s]
	return ok
}

// Terminal reports whether no further moves are expected from s.
func Terminal(s model.ApplicationStage) bool {
	switch s {
	case model.StageAccepted, model.StageRejected, model.StageWithdrawn:
		return true
	}
	return false
}

// adminTargets are the stages an admin may set by hand.
var adminTargets = map[model.ApplicationStage]bool{
	model.StageDraft:       true,
	model.StageSubmitted:   true,
	model.StageUnderReview: true,
	model.StageCoffeeChat:  true,
	model.StageFinalReview: true,
	model.StageWaitlisted:  true,
	model.StageWithdrawn:   true,
}

// Validate reports whether moving from -> to is allowed for cause. Moving
// to the current stage is always allowed and is a no-op.
func Validate(from, to model.ApplicationStage, cause Cause) error {
	if !Known(to) {
		return fmt.Errorf("unknown stage %q: %w", to, model.ErrInvalidTransition)
	}
	if from == to {
		return nil
	}
	if !Known(from) {
		return fmt.Errorf("unknown stage %q: %w", from, model.ErrInvalidTransition)
	}

	switch cause.Kind {
	case CauseRevert:
		return nil
	case CauseCutoff:
		return validateCutoff(from, to, cause)
	case CauseAdmin:
		return validateAdmin(from, to)
	}
	return fmt.Errorf("unknown cause %q: %w", cause.Kind, model.ErrInvalidTransition)
}

func validateCutoff(from, to model.ApplicationStage, cause Cause) error {
	if Terminal(from) {
		return fmt.Errorf("stage %s is terminal: %w", from, model.ErrInvalidTransition)
	}
	want, err := Target(cause.Phase, cause.Decision)
	if err != nil {
		return err
	}
	if to != want {
		return fmt.Errorf("%s decision at %s leads to %s, not %s: %w", cause.Decision, cause.Phase, want, to, model.ErrInvalidTransition)
	}
	return nil
}

func validateAdmin(from, to model.ApplicationStage) error {
	if Terminal(from) {
		return fmt.Errorf("stage %s is terminal: %w", from, model.ErrInvalidTransition)
	}
	if !adminTargets[to] {
		return fmt.Errorf("stage %s is only reachable through a cutoff decision: %w", to, model.ErrInvalidTransition)
	}
	if to == model.StageWithdrawn {
		return nil
	}
	if to == model.StageWaitlisted {
		if from != model.StageInterviewRound2 && from != model.StageFinalReview {
			return fmt.Errorf("waitlist requires a final-round applicant: %w", model.ErrInvalidTransition)
		}
		return nil
	}
	if order[to] <= order[from] {
		return fmt.Errorf("admin moves only go forward: %w", model.ErrInvalidTransition)
	}
	return nil
}

// Target returns the stage a cutoff decision at phase moves an applicant to.
func Target(phase model.Phase, d model.Decision) (model.ApplicationStage, error) {
	if !d.Advances() {
		switch d {
		case model.DecisionReject, model.DecisionManualReject:
			return model.StageRejected, nil
		}
		return "", fmt.Errorf("unknown decision %q: %w", d, model.ErrInvalidTransition)
	}
	switch phase {
	case model.PhaseApplication:
		return model.StageInterviewRound1, nil
	case model.PhaseInterviewRound1:
		return model.StageInterviewRound2, nil
	case model.PhaseInterviewRound2:
		return model.StageAccepted, nil
	}
	return "", fmt.Errorf("unknown phase %q: %w", phase, model.ErrInvalidTransition)
}

// PoolStages returns the stages whose applicants are reviewed in phase.
func PoolStages(phase model.Phase) []model.ApplicationStage {
	switch phase {
	case model.PhaseApplication:
		return []model.ApplicationStage{model.StageSubmitted, model.StageUnderReview, model.StageCoffeeChat}
	case model.PhaseInterviewRound1:
		return []model.ApplicationStage{model.StageInterviewRound1}
	case model.PhaseInterviewRound2:
		return []model.ApplicationStage{model.StageInterviewRound2, model.StageFinalReview}
	}
	return nil
}

// InPool reports whether an applicant at s belongs to phase's review pool.
func InPool(phase model.Phase, s model.ApplicationStage) bool {
	for _, p := range PoolStages(phase) {
		if p == s {
			return true
		}
	}
	return false
}
