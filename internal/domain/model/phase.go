// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Phase is one review round of a recruitment cycle.
type Phase string

const (
	PhaseApplication     Phase = "application"
	PhaseInterviewRound1 Phase = "interview_round1"
	PhaseInterviewRound2 Phase = "interview_round2"
)

// Phases lists every known phase in pipeline order.
var Phases = []Phase{PhaseApplication, PhaseInterviewRound1, PhaseInterviewRound2}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

// ParsePhase converts user input into a Phase.
func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", NewValidationError("phase", fmt.Sprintf("unknown phase %q", s))
	}
	return p, nil
}

// PhaseStatus is the lifecycle state of a phase config.
type PhaseStatus string

const (
	StatusNotStarted PhaseStatus = "not_started"
	StatusInProgress PhaseStatus = "in_progress"
	StatusFinalized  PhaseStatus = "finalized"
)

// PhaseKey identifies one logical phase config. An empty Track is the
// track-less default for the phase.
type PhaseKey struct {
	CycleID string `json:"cycle_id"`
	Phase   Phase  `json:"phase"`
	Track   string `json:"track,omitempty"`
}

// Default returns the track-less key for the same cycle and phase.
func (k PhaseKey) Default() PhaseKey {
	return PhaseKey{CycleID: k.CycleID, Phase: k.Phase}
}

func (k PhaseKey) String() string {
	if k.Track == "" {
		return k.CycleID + "/" + string(k.Phase)
	}
	return k.CycleID + "/" + string(k.Phase) + "/" + k.Track
}

// Validate checks the key has a cycle and a known phase.
func (k PhaseKey) Validate() error {
	if strings.TrimSpace(k.CycleID) == "" {
		return NewValidationError("cycle_id", "must not be empty")
	}
	if !k.Phase.Valid() {
		return NewValidationError("phase", fmt.Sprintf("unknown phase %q", k.Phase))
	}
	return nil
}

// ScoringCategory is one weighted rubric line of a phase.
type ScoringCategory struct {
	Key              string            `json:"key" koanf:"key"`
	Label            string            `json:"label" koanf:"label"`
	Weight           float64           `json:"weight" koanf:"weight"`
	MinScore         float64           `json:"min_score" koanf:"min_score"`
	MaxScore         float64           `json:"max_score" koanf:"max_score"`
	Description      string            `json:"description,omitempty" koanf:"description"`
	StarDescriptions map[string]string `json:"star_descriptions,omitempty" koanf:"star_descriptions"`
}

// PhaseConfig holds the rubric and lifecycle state of one (cycle, phase, track).
type PhaseConfig struct {
	Key                    PhaseKey          `json:"key"`
	ScoringCategories      []ScoringCategory `json:"scoring_categories"`
	MinReviewersRequired   int               `json:"min_reviewers_required"`
	UseZScoreNormalization bool              `json:"use_zscore_normalization"`
	Status                 PhaseStatus       `json:"status"`
	CutoffAppliedAt        *time.Time        `json:"cutoff_applied_at,omitempty"`
	FinalizedAt            *time.Time        `json:"finalized_at,omitempty"`
	FinalizedBy            string            `json:"finalized_by,omitempty"`
	UnlockedAt             *time.Time        `json:"unlocked_at,omitempty"`
	UnlockedBy             string            `json:"unlocked_by,omitempty"`
	// Version is bumped by the store on every write and checked on update.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Finalized reports whether the config is locked.
func (c PhaseConfig) Finalized() bool { return c.Status == StatusFinalized }

// Category returns the category with the given key.
func (c PhaseConfig) Category(key string) (ScoringCategory, bool) {
	for _, cat := range c.ScoringCategories {
		if cat.Key == key {
			return cat, true
		}
	}
	return ScoringCategory{}, false
}

// PhaseConfigPatch carries the admin-editable fields of a phase config.
// Nil fields are left unchanged.
type PhaseConfigPatch struct {
	ScoringCategories      []ScoringCategory `json:"scoring_categories,omitempty"`
	MinReviewersRequired   *int              `json:"min_reviewers_required,omitempty"`
	UseZScoreNormalization *bool             `json:"use_zscore_normalization,omitempty"`
}

// PhaseAction is an operator command on the phase lifecycle.
type PhaseAction string

const (
	ActionStart    PhaseAction = "start"
	ActionFinalize PhaseAction = "finalize"
	ActionUnlock   PhaseAction = "unlock"
	ActionRevert   PhaseAction = "revert"
)

// Admin is a member of the organization roster allowed to review.
type Admin struct {
	Email string `json:"email" koanf:"email"`
	Name  string `json:"name,omitempty" koanf:"name"`
}
