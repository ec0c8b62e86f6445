package model

// ReviewerCompletion is one reviewer's progress over the eligible pool.
type ReviewerCompletion struct {
	Email      string  `json:"email"`
	Name       string  `json:"name,omitempty"`
	Reviewed   int     `json:"reviewed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// Complete reports whether the reviewer has reviewed every eligible applicant.
func (r ReviewerCompletion) Complete() bool { return r.Reviewed >= r.Total }

// PhaseCompleteness summarizes review coverage of a phase.
type PhaseCompleteness struct {
	TotalApplicants         int                  `json:"total_applicants"`
	ApplicantsWithReviews   int                  `json:"applicants_with_reviews"`
	ApplicantsFullyReviewed int                  `json:"applicants_fully_reviewed"`
	ReviewerCompletion      []ReviewerCompletion `json:"reviewer_completion"`
}
