// Package ranking aggregates reviews into an ordered phase ranking.
//
// Ordering: applicants with at least one scored review first, then
// weighted score DESC, net referrals DESC, applicant name ASC and
// application id ASC, so equal inputs always produce the same order.
package ranking

import (
	"math"
	"sort"

	"github.com/okian/cohort/internal/domain/model"
	"github.com/okian/cohort/internal/domain/scoring"
)

// minNormalizationSamples is the fewest scored reviews a reviewer needs
// before their scores are z-normalized.
const minNormalizationSamples = 2

// Input is everything Rank needs for one phase.
type Input struct {
	Config model.PhaseConfig
	// Pool is the eligible applicant set. Applicants with reviews but
	// outside the pool are looked up in Applications.
	Pool []model.Application
	// Applications resolves reviewed applicants that are not in Pool.
	Applications map[string]model.Application
	// Reviews are all reviews of the phase across every track; they feed
	// the per-reviewer normalization statistics.
	Reviews []model.ApplicationReview
	// Rubrics maps a track to the categories its reviews were validated
	// against. Tracks without an entry use Config.ScoringCategories.
	Rubrics map[string][]model.ScoringCategory
	// Track restricts the output when non-empty.
	Track string
	// Run, when set, fills RankedApplicant.Decision.
	Run *model.CutoffRun
}

type scoredReview struct {
	review model.ApplicationReview
	raw    float64
	scored bool
}

type reviewerStats struct {
	mean   float64
	stddev float64
	usable bool
}

// Rank builds the ordered ranking. An empty scope yields an empty slice.
func Rank(in Input) []model.RankedApplicant {
	rubricFor := rubricLookup(in)

	scored := make([]scoredReview, 0, len(in.Reviews))
	for _, r := range in.Reviews {
		raw, ok := scoring.Weighted(rubricFor(r.ApplicationID), r.Scores)
		scored = append(scored, scoredReview{review: r, raw: raw, scored: ok})
	}

	var stats map[string]reviewerStats
	if in.Config.UseZScoreNormalization {
		stats = normalizationStats(scored)
	}

	byApp := make(map[string][]scoredReview)
	for _, sr := range scored {
		byApp[sr.review.ApplicationID] = append(byApp[sr.review.ApplicationID], sr)
	}

	scope := scopeApplications(in, byApp)
	out := make([]model.RankedApplicant, 0, len(scope))
	for _, app := range scope {
		out = append(out, aggregate(app, byApp[app.ID], stats))
	}

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	for i := range out {
		out[i].Rank = i + 1
		if in.Run != nil {
			if d, ok := in.Run.DecisionFor(out[i].ApplicationID); ok {
				decision := d.Decision
				out[i].Decision = &decision
			}
		}
	}
	return out
}

// rubricLookup resolves the categories a review of an application is
// weighted with: the rubric of the applicant's track, else the config's.
func rubricLookup(in Input) func(applicationID string) []model.ScoringCategory {
	tracks := make(map[string]string, len(in.Pool))
	for _, app := range in.Pool {
		tracks[app.ID] = app.Track
	}
	return func(applicationID string) []model.ScoringCategory {
		track, ok := tracks[applicationID]
		if !ok {
			track = in.Applications[applicationID].Track
		}
		if cats, ok := in.Rubrics[track]; ok && len(cats) > 0 {
			return cats
		}
		return in.Config.ScoringCategories
	}
}

// scopeApplications returns the pool plus every reviewed applicant, deduped
// and filtered by track.
func scopeApplications(in Input, byApp map[string][]scoredReview) []model.Application {
	seen := make(map[string]struct{}, len(in.Pool))
	var scope []model.Application
	add := func(app model.Application) {
		if _, dup := seen[app.ID]; dup {
			return
		}
		if in.Track != "" && app.Track != in.Track {
			return
		}
		seen[app.ID] = struct{}{}
		scope = append(scope, app)
	}
	for _, app := range in.Pool {
		add(app)
	}
	ids := make([]string, 0, len(byApp))
	for id := range byApp {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if app, ok := in.Applications[id]; ok {
			add(app)
		}
	}
	return scope
}

func aggregate(app model.Application, reviews []scoredReview, stats map[string]reviewerStats) model.RankedApplicant {
	ra := model.RankedApplicant{
		ApplicationID:  app.ID,
		ApplicantName:  app.ApplicantName,
		ApplicantEmail: app.ApplicantEmail,
		Track:          app.Track,
		ReviewCount:    len(reviews),
	}

	var rawSum, weightedSum float64
	for _, sr := range reviews {
		switch sr.review.ReferralSignal {
		case model.SignalReferral:
			ra.ReferralCount++
		case model.SignalNeutral:
			ra.NeutralCount++
		case model.SignalDeferral:
			ra.DeferralCount++
		}
		if sr.review.Recommendation != nil {
			switch *sr.review.Recommendation {
			case model.RecommendAdvance:
				ra.Recommendations.Advance++
			case model.RecommendHold:
				ra.Recommendations.Hold++
			case model.RecommendReject:
				ra.Recommendations.Reject++
			}
		}
		if !sr.scored {
			continue
		}
		ra.ScoredCount++
		rawSum += sr.raw
		weightedSum += normalize(sr, stats)
	}

	if ra.ScoredCount > 0 {
		n := float64(ra.ScoredCount)
		ra.AverageScore = rawSum / n
		ra.WeightedScore = weightedSum / n
	}
	return ra
}

func normalize(sr scoredReview, stats map[string]reviewerStats) float64 {
	if stats == nil {
		return sr.raw
	}
	st, ok := stats[model.NormalizeEmail(sr.review.ReviewerEmail)]
	if !ok || !st.usable {
		return sr.raw
	}
	return (sr.raw - st.mean) / st.stddev
}

// normalizationStats computes each reviewer's mean and population standard
// deviation over their scored reviews.
func normalizationStats(reviews []scoredReview) map[string]reviewerStats {
	samples := make(map[string][]float64)
	for _, sr := range reviews {
		if !sr.scored {
			continue
		}
		email := model.NormalizeEmail(sr.review.ReviewerEmail)
		samples[email] = append(samples[email], sr.raw)
	}

	stats := make(map[string]reviewerStats, len(samples))
	for email, xs := range samples {
		if len(xs) < minNormalizationSamples {
			stats[email] = reviewerStats{}
			continue
		}
		var sum float64
		for _, x := range xs {
			sum += x
		}
		mean := sum / float64(len(xs))
		var sq float64
		for _, x := range xs {
			sq += (x - mean) * (x - mean)
		}
		stddev := math.Sqrt(sq / float64(len(xs)))
		stats[email] = reviewerStats{mean: mean, stddev: stddev, usable: stddev > 0}
	}
	return stats
}

// less returns true if a should appear before b.
func less(a, b model.RankedApplicant) bool {
	aScored, bScored := a.ScoredCount > 0, b.ScoredCount > 0
	if aScored != bScored {
		return aScored
	}
	if a.WeightedScore != b.WeightedScore {
		return a.WeightedScore > b.WeightedScore
	}
	if a.NetReferral() != b.NetReferral() {
		return a.NetReferral() > b.NetReferral()
	}
	if a.ApplicantName != b.ApplicantName {
		return a.ApplicantName < b.ApplicantName
	}
	return a.ApplicationID < b.ApplicationID
}
