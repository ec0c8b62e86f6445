package simulate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/cohort/internal/domain/model"
	"github.com/okian/cohort/pkg/logger"
)

// ErrNoReviewers is returned when a run has nobody to review with.
var ErrNoReviewers = errors.New("no reviewers configured")

// Run reviews every applicant of the phase with every reviewer, then checks
// the ranking and coverage the service reports.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	if len(config.Reviewers) == 0 {
		return nil, ErrNoReviewers
	}
	stats := &Stats{StartTime: time.Now()}
	log := logger.Named("simulate")
	client := NewClient(config.BaseURL, config.Timeout)
	key := model.PhaseKey{CycleID: config.CycleID, Phase: config.Phase, Track: config.Track}

	log.Info(ctx, "starting review simulation",
		logger.String("baseURL", config.BaseURL),
		logger.String("phase_key", key.String()),
		logger.Int("reviewers", len(config.Reviewers)),
		logger.Int("workers", config.Workers),
	)

	// Step 1: Check service health
	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Make sure the cycle has configs and find the rubric
	configs, err := client.InitializePhaseConfigs(ctx, config.CycleID, config.Reviewers[0])
	if err != nil {
		return nil, fmt.Errorf("initialize phase configs: %w", err)
	}
	rubric, err := rubricFor(configs, key)
	if err != nil {
		return nil, err
	}

	// Step 3: Discover the pool from the current ranking
	pool, err := client.Rankings(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("initial ranking: %w", err)
	}
	stats.Applicants = len(pool)

	// Step 4: Submit reviews concurrently
	gen := NewGenerator(config.Seed)
	var reviews []model.ApplicationReview
	for _, r := range config.Reviewers {
		for _, app := range pool {
			reviews = append(reviews, gen.Review(app.ApplicationID, key.Phase, r, rubric))
		}
	}
	submitReviews(ctx, client, config, reviews, stats)

	// Step 5: Verify the ranking
	ranked, err := client.Rankings(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("final ranking: %w", err)
	}
	stats.Ranked = len(ranked)
	if err := VerifyRanking(ranked); err != nil {
		return stats, fmt.Errorf("ranking verification failed: %w", err)
	}

	// Step 6: Coverage
	completeness, err := client.Completeness(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("completeness: %w", err)
	}
	log.Info(ctx, "review coverage",
		logger.Int("applicants", completeness.TotalApplicants),
		logger.Int("with_reviews", completeness.ApplicantsWithReviews),
		logger.Int("fully_reviewed", completeness.ApplicantsFullyReviewed),
	)

	// Step 7: Optional cutoff preview
	if config.TopN > 0 {
		n := config.TopN
		preview, err := client.PreviewCutoff(ctx, key, model.CutoffCriteria{Type: model.CutoffTopN, TopN: &n})
		if err != nil {
			return nil, fmt.Errorf("cutoff preview: %w", err)
		}
		stats.Advanced, stats.Rejected = preview.Advanced, preview.Rejected
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)
	return stats, nil
}

// rubricFor returns the categories of the config effective for key.
func rubricFor(configs []model.PhaseConfig, key model.PhaseKey) ([]model.ScoringCategory, error) {
	var fallback *model.PhaseConfig
	for i, c := range configs {
		switch c.Key {
		case key:
			return c.ScoringCategories, nil
		case key.Default():
			fallback = &configs[i]
		}
	}
	if fallback == nil {
		return nil, fmt.Errorf("no phase config for %s", key)
	}
	return fallback.ScoringCategories, nil
}

// submitReviews posts reviews with a pool of workers.
func submitReviews(ctx context.Context, client *Client, config *Config, reviews []model.ApplicationReview, stats *Stats) {
	log := logger.Named("simulate")
	workers := max(1, min(config.Workers, len(reviews)))

	var (
		submitted  int64
		successful int64
		failed     int64
	)
	jobs := make(chan model.ApplicationReview, workers*2)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range jobs {
				atomic.AddInt64(&submitted, 1)
				if _, err := client.UpsertReview(ctx, r); err != nil {
					atomic.AddInt64(&failed, 1)
					if config.Verbose {
						log.Warn(ctx, "review rejected",
							logger.String("application_id", r.ApplicationID),
							logger.String("reviewer", r.ReviewerEmail),
							logger.Error(err),
						)
					}
					continue
				}
				atomic.AddInt64(&successful, 1)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, r := range reviews {
			select {
			case <-ctx.Done():
				return
			case jobs <- r:
			}
		}
	}()
	wg.Wait()

	stats.ReviewsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.ReviewsSuccessful = int(atomic.LoadInt64(&successful))
	stats.ReviewsFailed = int(atomic.LoadInt64(&failed))
}

func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.ReviewsSubmitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("applicants", stats.Applicants),
		logger.Int("reviewsSubmitted", stats.ReviewsSubmitted),
		logger.Int("reviewsSuccessful", stats.ReviewsSuccessful),
		logger.Int("reviewsFailed", stats.ReviewsFailed),
		logger.Int("ranked", stats.Ranked),
		logger.Int("advanced", stats.Advanced),
		logger.Int("rejected", stats.Rejected),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("reviewsPerSecond", perSecond),
	)
}
