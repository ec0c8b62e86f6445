// Package cutoff splits a ranking into advanced and rejected applicants.
package cutoff

import (
	"fmt"
	"math"

	"github.com/okian/cohort/internal/domain/model"
)

// Result is a total partition of the input ranking.
type Result struct {
	Advanced  []string                  `json:"advanced"`
	Rejected  []string                  `json:"rejected"`
	Decisions map[string]model.Decision `json:"decisions"`
}

// ValidateCriteria checks that the rule carries the parameters it needs.
func ValidateCriteria(c model.CutoffCriteria) error {
	switch c.Type {
	case model.CutoffTopN:
		if c.TopN == nil {
			return model.NewValidationError("criteria.top_n", "required for top_n")
		}
		if *c.TopN < 0 {
			return model.NewValidationError("criteria.top_n", "must not be negative")
		}
	case model.CutoffMinScore:
		if c.MinScore == nil {
			return model.NewValidationError("criteria.min_score", "required for min_score")
		}
		if math.IsNaN(*c.MinScore) {
			return model.NewValidationError("criteria.min_score", "must be a number")
		}
	case model.CutoffManual:
	default:
		return model.NewValidationError("criteria.type", fmt.Sprintf("unknown cutoff type %q", c.Type))
	}
	return nil
}

// Partition walks the ranking in rank order and assigns every applicant to
// exactly one side. Overrides win over the rule. Overrides that name an
// applicant outside the ranking are rejected.
func Partition(rankings []model.RankedApplicant, criteria model.CutoffCriteria, overrides []model.ManualOverride) (Result, error) {
	if err := ValidateCriteria(criteria); err != nil {
		return Result{}, err
	}

	inRanking := make(map[string]struct{}, len(rankings))
	for _, r := range rankings {
		inRanking[r.ApplicationID] = struct{}{}
	}

	overrideMap := make(map[string]model.OverrideAction, len(overrides))
	for i, o := range overrides {
		field := fmt.Sprintf("manual_overrides[%d]", i)
		if o.Action != model.OverrideAdvance && o.Action != model.OverrideReject {
			return Result{}, model.NewValidationError(field+".action", fmt.Sprintf("unknown action %q", o.Action))
		}
		if _, ok := inRanking[o.ApplicationID]; !ok {
			return Result{}, model.NewValidationError(field+".application_id", fmt.Sprintf("%q is not in this ranking", o.ApplicationID))
		}
		overrideMap[o.ApplicationID] = o.Action
	}

	res := Result{
		Advanced:  make([]string, 0, len(rankings)),
		Rejected:  make([]string, 0, len(rankings)),
		Decisions: make(map[string]model.Decision, len(rankings)),
	}
	for i, r := range rankings {
		d := decide(i, r, criteria, overrideMap)
		res.Decisions[r.ApplicationID] = d
		if d.Advances() {
			res.Advanced = append(res.Advanced, r.ApplicationID)
		} else {
			res.Rejected = append(res.Rejected, r.ApplicationID)
		}
	}
	return res, nil
}

func decide(index int, r model.RankedApplicant, c model.CutoffCriteria, overrides map[string]model.OverrideAction) model.Decision {
	if action, ok := overrides[r.ApplicationID]; ok {
		if action == model.OverrideAdvance {
			return model.DecisionManualAdvance
		}
		return model.DecisionManualReject
	}
	advance := false
	switch c.Type {
	case model.CutoffTopN:
		advance = index < *c.TopN
	case model.CutoffMinScore:
		advance = r.WeightedScore >= *c.MinScore
	case model.CutoffManual:
	}
	if advance {
		return model.DecisionAdvance
	}
	return model.DecisionReject
}
