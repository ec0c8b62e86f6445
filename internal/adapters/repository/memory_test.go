package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/okian/cohort/internal/adapters/repository"
	"github.com/okian/cohort/internal/adapters/repository/storetest"
	"github.com/okian/cohort/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryStore_Contract(t *testing.T) {
	storetest.Run(t, func(*testing.T) repository.Store { return repository.NewMemoryStore() })
}

func TestMemoryStore_Options(t *testing.T) {
	Convey("Given a memory store with seeded admins and a fixed clock", t, func() {
		fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		s := repository.NewMemoryStore(
			repository.WithAdmins(model.Admin{Email: "ADA@org.test", Name: "Ada"}, model.Admin{Email: " "}),
			repository.WithClock(func() time.Time { return fixed }),
		)
		ctx := context.Background()

		Convey("Then blank admins are dropped and emails normalized", func() {
			admins, err := s.ListAdmins(ctx)
			So(err, ShouldBeNil)
			So(admins, ShouldResemble, []model.Admin{{Email: "ada@org.test", Name: "Ada"}})
		})

		Convey("Then timestamps come from the clock", func() {
			cfg, err := s.CreatePhaseConfig(ctx, model.PhaseConfig{Key: model.PhaseKey{CycleID: "c1", Phase: model.PhaseApplication}})
			So(err, ShouldBeNil)
			So(cfg.CreatedAt, ShouldEqual, fixed)
		})
	})
}

func TestMemoryStore_NoAliasing(t *testing.T) {
	Convey("Given a stored review", t, func() {
		s := repository.NewMemoryStore()
		ctx := context.Background()
		review := model.ApplicationReview{
			ApplicationID: "a", CycleID: "c1", Phase: model.PhaseApplication,
			ReviewerEmail: "ada@org.test", ReferralSignal: model.SignalNeutral,
			Scores: []model.CategoryScore{model.Score("writing", 3)},
		}
		_, err := s.UpsertReview(ctx, review)
		So(err, ShouldBeNil)

		Convey("When the caller mutates its copy", func() {
			*review.Scores[0].Value = 1
			got, _ := s.ListReviewsForApplicant(ctx, "a", model.PhaseApplication)

			Convey("Then the stored value is unchanged", func() {
				So(*got[0].Scores[0].Value, ShouldEqual, 3)
			})
		})
	})
}

func TestMemoryStore_ConcurrentUpserts(t *testing.T) {
	Convey("Given many reviewers writing at once", t, func() {
		s := repository.NewMemoryStore()
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _ = s.UpsertReview(ctx, model.ApplicationReview{
					ApplicationID: "a", CycleID: "c1", Phase: model.PhaseApplication,
					ReviewerEmail:  []string{"ada@org.test", "bo@org.test"}[i%2],
					ReferralSignal: model.SignalNeutral,
				})
			}(i)
		}
		wg.Wait()

		Convey("Then one row per reviewer remains", func() {
			got, err := s.ListReviewsForApplicant(ctx, "a", model.PhaseApplication)
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 2)
		})
	})
}
