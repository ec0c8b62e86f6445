// Package scoring validates phase rubrics and computes weighted review scores.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/okian/cohort/internal/domain/model"
)

// Default rubric bounds used when seeding phase configs.
const (
	defaultMinScore = 1
	defaultMaxScore = 5
)

// Validate rejects rubrics with empty or duplicate keys, non-positive
// weights or inverted bounds.
func Validate(categories []model.ScoringCategory) error {
	seen := make(map[string]struct{}, len(categories))
	for i, c := range categories {
		field := fmt.Sprintf("scoring_categories[%d]", i)
		key := strings.TrimSpace(c.Key)
		if key == "" {
			return model.NewValidationError(field+".key", "must not be empty")
		}
		if _, dup := seen[key]; dup {
			return model.NewValidationError(field+".key", fmt.Sprintf("duplicate category %q", key))
		}
		seen[key] = struct{}{}
		if !(c.Weight > 0) || math.IsInf(c.Weight, 0) {
			return model.NewValidationError(field+".weight", fmt.Sprintf("weight for %q must be positive", key))
		}
		if c.MinScore >= c.MaxScore {
			return model.NewValidationError(field, fmt.Sprintf("min_score must be below max_score for %q", key))
		}
	}
	return nil
}

// ValidateScores checks review scores against a rubric and returns them in
// rubric order. Categories the reviewer did not send come back unscored.
func ValidateScores(categories []model.ScoringCategory, scores []model.CategoryScore) ([]model.CategoryScore, error) {
	byKey := make(map[string]model.CategoryScore, len(scores))
	for _, s := range scores {
		key := strings.TrimSpace(s.Key)
		if _, dup := byKey[key]; dup {
			return nil, model.NewValidationError("scores", fmt.Sprintf("duplicate category %q", key))
		}
		byKey[key] = s
	}

	out := make([]model.CategoryScore, 0, len(categories))
	for _, c := range categories {
		s, ok := byKey[c.Key]
		delete(byKey, c.Key)
		if !ok || s.Value == nil {
			out = append(out, model.Unscored(c.Key))
			continue
		}
		v := *s.Value
		if math.IsNaN(v) || math.IsInf(v, 0) || v < c.MinScore || v > c.MaxScore {
			return nil, &model.ScoreOutOfRangeError{Category: c.Key, Value: v, Min: c.MinScore, Max: c.MaxScore}
		}
		out = append(out, model.Score(c.Key, v))
	}

	for key := range byKey {
		return nil, model.NewValidationError("scores", fmt.Sprintf("unknown category %q", key))
	}
	return out, nil
}

// Weighted returns Σ(score·weight)/Σweight over the categories the reviewer
// actually scored. ok is false when no category carries a score.
func Weighted(categories []model.ScoringCategory, scores []model.CategoryScore) (score float64, ok bool) {
	values := make(map[string]float64, len(scores))
	for _, s := range scores {
		if s.Value != nil {
			values[s.Key] = *s.Value
		}
	}

	var sum, weights float64
	for _, c := range categories {
		v, scored := values[c.Key]
		if !scored {
			continue
		}
		sum += v * c.Weight
		weights += c.Weight
	}
	if weights == 0 {
		return 0, false
	}
	return sum / weights, true
}

// DefaultCategories returns the built-in rubric seeded for a phase.
func DefaultCategories(phase model.Phase) []model.ScoringCategory {
	switch phase {
	case model.PhaseApplication:
		return []model.ScoringCategory{
			category("experience", "Experience", 1.5),
			category("writing", "Written answers", 1.0),
			category("interest", "Interest in the org", 1.0),
		}
	case model.PhaseInterviewRound1:
		return []model.ScoringCategory{
			category("communication", "Communication", 1.0),
			category("problem_solving", "Problem solving", 1.5),
			category("culture_add", "Culture add", 1.0),
		}
	case model.PhaseInterviewRound2:
		return []model.ScoringCategory{
			category("case_study", "Case study", 2.0),
			category("leadership", "Leadership", 1.0),
			category("commitment", "Commitment", 1.0),
		}
	}
	return nil
}

func category(key, label string, weight float64) model.ScoringCategory {
	return model.ScoringCategory{
		Key:      key,
		Label:    label,
		Weight:   weight,
		MinScore: defaultMinScore,
		MaxScore: defaultMaxScore,
	}
}
