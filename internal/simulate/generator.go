package simulate

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/okian/cohort/internal/domain/model"
)

// Performance tiers as a share of a category's range.
const (
	tierAverage = iota
	tierStrong
	tierWeak
	tierStandout
	tierWide
	tierCount
)

// Generator produces plausible applicants, reviewers and reviews.
type Generator struct {
	faker *gofakeit.Faker
}

// NewGenerator creates a generator. The same non-zero seed yields the same data.
func NewGenerator(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// Applicants creates n submitted applications of a cycle. Tracks are
// assigned round-robin when given.
func (g *Generator) Applicants(cycleID string, n int, tracks ...string) []model.Application {
	out := make([]model.Application, n)
	now := time.Now().UTC()
	for i := range out {
		person := g.faker.Person()
		submitted := now.Add(-time.Duration(g.faker.Number(1, 30*24)) * time.Hour)
		app := model.Application{
			ID:             g.faker.UUID(),
			CycleID:        cycleID,
			ApplicantName:  person.FirstName + " " + person.LastName,
			ApplicantEmail: strings.ToLower(person.FirstName+"."+person.LastName) + fmt.Sprintf("+%d@", i) + g.faker.DomainName(),
			Stage:          model.StageSubmitted,
			Answers: map[string]string{
				"motivation": g.faker.Sentence(24),
				"experience": g.faker.Sentence(16),
				"company":    g.faker.Company(),
			},
			SubmittedAt: &submitted,
			UpdatedAt:   now,
		}
		if len(tracks) > 0 {
			app.Track = tracks[i%len(tracks)]
		}
		out[i] = app
	}
	return out
}

// Admins creates n reviewers on a shared organization domain.
func (g *Generator) Admins(n int) []model.Admin {
	domain := g.faker.DomainName()
	out := make([]model.Admin, n)
	for i := range out {
		first, last := g.faker.FirstName(), g.faker.LastName()
		out[i] = model.Admin{
			Email: model.NormalizeEmail(fmt.Sprintf("%s.%s@%s", first, last, domain)),
			Name:  first + " " + last,
		}
	}
	return out
}

// Review scores every category of the rubric for one applicant. Roughly one
// score in twenty is left unscored.
func (g *Generator) Review(appID string, phase model.Phase, reviewer string, rubric []model.ScoringCategory) model.ApplicationReview {
	scores := make([]model.CategoryScore, 0, len(rubric))
	tier := g.faker.Number(0, tierCount-1)
	for _, c := range rubric {
		if g.faker.Number(1, 20) == 1 {
			scores = append(scores, model.Unscored(c.Key))
			continue
		}
		scores = append(scores, model.Score(c.Key, g.score(c, tier)))
	}
	return model.ApplicationReview{
		ApplicationID:  appID,
		Phase:          phase,
		ReviewerEmail:  reviewer,
		Scores:         scores,
		ReferralSignal: g.signal(tier),
		Recommendation: g.recommendation(tier),
		Notes:          g.faker.Sentence(12),
	}
}

// score draws a value inside the category range, shaped by tier and
// rounded to a half point.
func (g *Generator) score(c model.ScoringCategory, tier int) float64 {
	lo, hi := 0.4, 0.7
	switch tier {
	case tierStrong:
		lo, hi = 0.65, 0.9
	case tierWeak:
		lo, hi = 0.0, 0.4
	case tierStandout:
		lo, hi = 0.85, 1.0
	case tierWide:
		lo, hi = 0.0, 1.0
	}
	span := c.MaxScore - c.MinScore
	v := c.MinScore + span*g.faker.Float64Range(lo, hi)
	v = math.Round(v*2) / 2
	return math.Min(math.Max(v, c.MinScore), c.MaxScore)
}

func (g *Generator) signal(tier int) model.ReferralSignal {
	switch tier {
	case tierStandout, tierStrong:
		if g.faker.Bool() {
			return model.SignalReferral
		}
	case tierWeak:
		if g.faker.Bool() {
			return model.SignalDeferral
		}
	}
	return model.SignalNeutral
}

func (g *Generator) recommendation(tier int) *model.Recommendation {
	if g.faker.Number(1, 3) == 1 {
		return nil
	}
	r := model.RecommendHold
	switch tier {
	case tierStandout, tierStrong:
		r = model.RecommendAdvance
	case tierWeak:
		r = model.RecommendReject
	}
	return &r
}
