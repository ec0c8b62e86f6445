package model

import (
	"fmt"
	"strings"
	"time"
)

// ReferralSignal is a reviewer's qualitative vote on an applicant.
type ReferralSignal string

const (
	SignalReferral ReferralSignal = "referral"
	SignalNeutral  ReferralSignal = "neutral"
	SignalDeferral ReferralSignal = "deferral"
)

// Valid reports whether s is a known signal.
func (s ReferralSignal) Valid() bool {
	switch s {
	case SignalReferral, SignalNeutral, SignalDeferral:
		return true
	}
	return false
}

// Recommendation is a reviewer's suggested outcome.
type Recommendation string

const (
	RecommendAdvance Recommendation = "advance"
	RecommendHold    Recommendation = "hold"
	RecommendReject  Recommendation = "reject"
)

// Valid reports whether r is a known recommendation.
func (r Recommendation) Valid() bool {
	switch r {
	case RecommendAdvance, RecommendHold, RecommendReject:
		return true
	}
	return false
}

// CategoryScore is one category value of a review. A nil Value means the
// reviewer has not scored the category; an explicit zero is a real score.
type CategoryScore struct {
	Key   string   `json:"key"`
	Value *float64 `json:"value"`
}

// Score is a convenience constructor for a scored category.
func Score(key string, v float64) CategoryScore {
	return CategoryScore{Key: key, Value: &v}
}

// Unscored is a convenience constructor for an unscored category.
func Unscored(key string) CategoryScore {
	return CategoryScore{Key: key}
}

// ApplicationReview is one reviewer's assessment of one applicant in one phase.
type ApplicationReview struct {
	ApplicationID  string          `json:"application_id"`
	CycleID        string          `json:"cycle_id"`
	Phase          Phase           `json:"phase"`
	ReviewerEmail  string          `json:"reviewer_email"`
	Scores         []CategoryScore `json:"scores"`
	ReferralSignal ReferralSignal  `json:"referral_signal"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	AudioURL       string          `json:"audio_url,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NaturalKey returns the uniqueness key (application, phase, reviewer).
func (r ApplicationReview) NaturalKey() string {
	return r.ApplicationID + "|" + string(r.Phase) + "|" + NormalizeEmail(r.ReviewerEmail)
}

// Validate checks the identity and enum fields. Score bounds are checked
// against the phase rubric by the scoring package.
func (r ApplicationReview) Validate() error {
	switch {
	case strings.TrimSpace(r.ApplicationID) == "":
		return NewValidationError("application_id", "must not be empty")
	case strings.TrimSpace(r.CycleID) == "":
		return NewValidationError("cycle_id", "must not be empty")
	case !r.Phase.Valid():
		return NewValidationError("phase", fmt.Sprintf("unknown phase %q", r.Phase))
	case strings.TrimSpace(r.ReviewerEmail) == "":
		return NewValidationError("reviewer_email", "must not be empty")
	case !r.ReferralSignal.Valid():
		return NewValidationError("referral_signal", fmt.Sprintf("unknown signal %q", r.ReferralSignal))
	}
	if r.Recommendation != nil && !r.Recommendation.Valid() {
		return NewValidationError("recommendation", fmt.Sprintf("unknown recommendation %q", *r.Recommendation))
	}
	return nil
}

// NormalizeEmail lowercases and trims an email for comparisons.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
