package model

import "time"

// CutoffType selects how the ranking is split.
type CutoffType string

const (
	CutoffTopN     CutoffType = "top_n"
	CutoffMinScore CutoffType = "min_score"
	CutoffManual   CutoffType = "manual"
)

// CutoffCriteria is the rule applied to a ranking.
type CutoffCriteria struct {
	Type     CutoffType `json:"type"`
	TopN     *int       `json:"top_n,omitempty"`
	MinScore *float64   `json:"min_score,omitempty"`
}

// OverrideAction is a manual per-applicant outcome.
type OverrideAction string

const (
	OverrideAdvance OverrideAction = "advance"
	OverrideReject  OverrideAction = "reject"
)

// ManualOverride forces the outcome of one applicant.
type ManualOverride struct {
	ApplicationID string         `json:"application_id"`
	Action        OverrideAction `json:"action"`
}

// Decision is the cutoff outcome for one applicant.
type Decision string

const (
	DecisionAdvance       Decision = "advance"
	DecisionReject        Decision = "reject"
	DecisionManualAdvance Decision = "manual_advance"
	DecisionManualReject  Decision = "manual_reject"
)

// Advances reports whether the decision moves the applicant forward.
func (d Decision) Advances() bool {
	return d == DecisionAdvance || d == DecisionManualAdvance
}

// Recommendations tallies reviewer recommendations.
type Recommendations struct {
	Advance int `json:"advance"`
	Hold    int `json:"hold"`
	Reject  int `json:"reject"`
}

// RankedApplicant is one row of a phase ranking. It is derived on every
// request and never persisted.
type RankedApplicant struct {
	ApplicationID   string          `json:"application_id"`
	ApplicantName   string          `json:"applicant_name"`
	ApplicantEmail  string          `json:"applicant_email"`
	Track           string          `json:"track"`
	Rank            int             `json:"rank"`
	WeightedScore   float64         `json:"weighted_score"`
	AverageScore    float64         `json:"average_score"`
	ReviewCount     int             `json:"review_count"`
	ScoredCount     int             `json:"scored_count"`
	ReferralCount   int             `json:"referral_count"`
	NeutralCount    int             `json:"neutral_count"`
	DeferralCount   int             `json:"deferral_count"`
	Recommendations Recommendations `json:"recommendations"`
	Decision        *Decision       `json:"decision,omitempty"`
}

// NetReferral is referrals minus deferrals, the first tie-breaker.
func (r RankedApplicant) NetReferral() int {
	return r.ReferralCount - r.DeferralCount
}

// CutoffDecision records what one cutoff run did to one applicant.
type CutoffDecision struct {
	ApplicationID string           `json:"application_id"`
	Decision      Decision         `json:"decision"`
	FromStage     ApplicationStage `json:"from_stage"`
	ToStage       ApplicationStage `json:"to_stage"`
}

// CutoffRun is the durable record of one applied cutoff.
type CutoffRun struct {
	ID         string           `json:"id"`
	Key        PhaseKey         `json:"key"`
	Criteria   CutoffCriteria   `json:"criteria"`
	Overrides  []ManualOverride `json:"overrides,omitempty"`
	Forced     bool             `json:"forced"`
	AppliedBy  string           `json:"applied_by"`
	AppliedAt  time.Time        `json:"applied_at"`
	Decisions  []CutoffDecision `json:"decisions"`
	RevertedAt *time.Time       `json:"reverted_at,omitempty"`
	RevertedBy string           `json:"reverted_by,omitempty"`
}

// DecisionFor returns the decision the run made for an applicant.
func (r CutoffRun) DecisionFor(applicationID string) (CutoffDecision, bool) {
	for _, d := range r.Decisions {
		if d.ApplicationID == applicationID {
			return d, true
		}
	}
	return CutoffDecision{}, false
}
