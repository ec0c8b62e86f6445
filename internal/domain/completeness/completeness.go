// Package completeness measures how much of a phase's eligible pool each
// reviewer has covered.
package completeness

import (
	"math"
	"sort"

	"github.com/okian/cohort/internal/domain/model"
)

const percentScale = 100

// Input is everything Compute needs. Reviews outside EligibleApplicantIDs
// are ignored.
type Input struct {
	Reviews              []model.ApplicationReview
	EligibleApplicantIDs []string
	Reviewers            []model.Admin
	MinReviewersRequired int
}

// Compute aggregates review coverage. Missing data yields zero counts.
func Compute(in Input) model.PhaseCompleteness {
	eligible := make(map[string]struct{}, len(in.EligibleApplicantIDs))
	for _, id := range in.EligibleApplicantIDs {
		eligible[id] = struct{}{}
	}

	// reviewer -> set of applicants, applicant -> set of reviewers
	byReviewer := make(map[string]map[string]struct{})
	byApplicant := make(map[string]map[string]struct{})
	for _, r := range in.Reviews {
		if _, ok := eligible[r.ApplicationID]; !ok {
			continue
		}
		email := model.NormalizeEmail(r.ReviewerEmail)
		if byReviewer[email] == nil {
			byReviewer[email] = make(map[string]struct{})
		}
		byReviewer[email][r.ApplicationID] = struct{}{}
		if byApplicant[r.ApplicationID] == nil {
			byApplicant[r.ApplicationID] = make(map[string]struct{})
		}
		byApplicant[r.ApplicationID][email] = struct{}{}
	}

	total := len(eligible)
	out := model.PhaseCompleteness{
		TotalApplicants:    total,
		ReviewerCompletion: make([]model.ReviewerCompletion, 0, len(in.Reviewers)),
	}
	for _, reviewers := range byApplicant {
		out.ApplicantsWithReviews++
		if len(reviewers) >= in.MinReviewersRequired {
			out.ApplicantsFullyReviewed++
		}
	}

	seen := make(map[string]struct{}, len(in.Reviewers))
	for _, admin := range in.Reviewers {
		email := model.NormalizeEmail(admin.Email)
		if _, dup := seen[email]; dup || email == "" {
			continue
		}
		seen[email] = struct{}{}
		reviewed := len(byReviewer[email])
		out.ReviewerCompletion = append(out.ReviewerCompletion, model.ReviewerCompletion{
			Email:      email,
			Name:       admin.Name,
			Reviewed:   reviewed,
			Total:      total,
			Percentage: percentage(reviewed, total),
		})
	}
	sort.SliceStable(out.ReviewerCompletion, func(i, j int) bool {
		return out.ReviewerCompletion[i].Email < out.ReviewerCompletion[j].Email
	})
	return out
}

// Incomplete lists reviewers who have not reviewed every eligible applicant.
func Incomplete(pc model.PhaseCompleteness) []model.ReviewerCompletion {
	var out []model.ReviewerCompletion
	for _, rc := range pc.ReviewerCompletion {
		if !rc.Complete() {
			out = append(out, rc)
		}
	}
	return out
}

func percentage(reviewed, total int) float64 {
	if total == 0 {
		return 0
	}
	p := float64(reviewed) / float64(total) * percentScale
	return math.Round(p*percentScale) / percentScale
}
