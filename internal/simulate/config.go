// Package simulate generates synthetic recruitment data and drives a running
// review service with concurrent reviewers.
package simulate

import (
	"time"

	"github.com/okian/cohort/internal/domain/model"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL   string        // Base URL of the service
	CycleID   string        // Cycle to review
	Phase     model.Phase   // Phase to review
	Track     string        // Optional track filter
	Reviewers []string      // Reviewer emails; each reviews every applicant
	Workers   int           // Number of concurrent submitters
	Timeout   time.Duration // HTTP request timeout
	Seed      int64         // Generator seed; 0 picks a random one
	TopN      int           // When > 0, preview a top_n cutoff at the end
	Verbose   bool          // Log every failed request
}

// Stats holds run statistics.
type Stats struct {
	Applicants        int
	ReviewsSubmitted  int
	ReviewsSuccessful int
	ReviewsFailed     int
	Ranked            int
	Advanced          int
	Rejected          int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
