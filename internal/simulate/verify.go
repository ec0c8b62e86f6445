package simulate

import (
	"fmt"

	"github.com/okian/cohort/internal/domain/model"
)

// VerifyRanking checks that ranks are contiguous from 1, that scored
// applicants come before unscored ones and that weighted scores never
// increase down the scored prefix.
func VerifyRanking(ranked []model.RankedApplicant) error {
	seenUnscored := false
	for i, r := range ranked {
		if r.Rank != i+1 {
			return fmt.Errorf("entry %d (%s) has rank %d", i, r.ApplicationID, r.Rank)
		}
		if r.ScoredCount == 0 {
			seenUnscored = true
			continue
		}
		if seenUnscored {
			return fmt.Errorf("scored applicant %s ranked after an unscored one", r.ApplicationID)
		}
		if i > 0 && r.WeightedScore > ranked[i-1].WeightedScore {
			return fmt.Errorf("entry %d (%s) outscores entry %d: %.3f > %.3f",
				i, r.ApplicationID, i-1, r.WeightedScore, ranked[i-1].WeightedScore)
		}
	}
	return nil
}
