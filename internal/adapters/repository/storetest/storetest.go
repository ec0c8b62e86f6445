// Package storetest is a behavioural suite every repository.Store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/cohort/internal/adapters/repository"
	"github.com/okian/cohort/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) repository.Store

// Run exercises every Store method against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	t.Run("PhaseConfigs", func(t *testing.T) { phaseConfigs(t, newStore) })
	t.Run("Reviews", func(t *testing.T) { reviews(t, newStore) })
	t.Run("Stages", func(t *testing.T) { stages(t, newStore) })
	t.Run("CutoffRuns", func(t *testing.T) { cutoffRuns(t, newStore) })
	t.Run("AuditAndAdmins", func(t *testing.T) { auditAndAdmins(t, newStore) })
}

// open builds a store for one Convey pass; goconvey re-runs the enclosing
// block for every leaf, so each leaf sees a fresh store.
func open(t *testing.T, newStore Factory) repository.Store {
	s := newStore(t)
	Reset(func() { _ = s.Close() })
	return s
}

func phaseConfigs(t *testing.T, newStore Factory) {
	ctx := context.Background()
	key := model.PhaseKey{CycleID: "c1", Phase: model.PhaseApplication}

	Convey("Given an empty phase config store", t, func() {
		s := open(t, newStore)
		Convey("When reading a missing config", func() {
			_, err := s.GetPhaseConfig(ctx, model.PhaseKey{CycleID: "nope", Phase: model.PhaseApplication})
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})
	})

	Convey("Given a created config", t, func() {
		s := open(t, newStore)
		created, err := s.CreatePhaseConfig(ctx, model.PhaseConfig{
			Key:                  key,
			MinReviewersRequired: 2,
			ScoringCategories: []model.ScoringCategory{
				{Key: "writing", Label: "Writing", Weight: 1.5, MinScore: 1, MaxScore: 5, StarDescriptions: map[string]string{"5": "superb"}},
			},
		})
		So(err, ShouldBeNil)
		So(created.Version, ShouldEqual, 1)
		So(created.Status, ShouldEqual, model.StatusNotStarted)

		Convey("Then it reads back unchanged", func() {
			got, err := s.GetPhaseConfig(ctx, key)
			So(err, ShouldBeNil)
			So(got.MinReviewersRequired, ShouldEqual, 2)
			So(got.ScoringCategories, ShouldHaveLength, 1)
			So(got.ScoringCategories[0].StarDescriptions["5"], ShouldEqual, "superb")
		})

		Convey("And creating it twice conflicts", func() {
			_, err := s.CreatePhaseConfig(ctx, model.PhaseConfig{Key: key})
			So(errors.Is(err, model.ErrConflict), ShouldBeTrue)
		})

		Convey("When updating at the current version", func() {
			now := time.Now().UTC().Truncate(time.Millisecond)
			created.Status = model.StatusFinalized
			created.FinalizedAt = &now
			created.FinalizedBy = "ada@org.test"
			updated, err := s.UpdatePhaseConfig(ctx, created)

			Convey("Then the version is bumped", func() {
				So(err, ShouldBeNil)
				So(updated.Version, ShouldEqual, 2)
				got, _ := s.GetPhaseConfig(ctx, key)
				So(got.Finalized(), ShouldBeTrue)
				So(got.FinalizedBy, ShouldEqual, "ada@org.test")
				So(got.FinalizedAt.Equal(now), ShouldBeTrue)
			})

			Convey("And a stale writer is rejected", func() {
				_, err := s.UpdatePhaseConfig(ctx, created)
				So(errors.Is(err, repository.ErrVersionConflict), ShouldBeTrue)
			})
		})

		Convey("When listing a cycle with a track config", func() {
			_, err := s.CreatePhaseConfig(ctx, model.PhaseConfig{Key: model.PhaseKey{CycleID: "c1", Phase: model.PhaseApplication, Track: "eng"}})
			So(err, ShouldBeNil)
			_, err = s.CreatePhaseConfig(ctx, model.PhaseConfig{Key: model.PhaseKey{CycleID: "c1", Phase: model.PhaseInterviewRound1}})
			So(err, ShouldBeNil)
			list, err := s.ListPhaseConfigs(ctx, "c1")

			Convey("Then configs come back ordered by phase and track", func() {
				So(err, ShouldBeNil)
				So(list, ShouldHaveLength, 3)
				So(list[0].Key, ShouldResemble, key)
				So(list[1].Key.Track, ShouldEqual, "eng")
				So(list[2].Key.Phase, ShouldEqual, model.PhaseInterviewRound1)
			})
		})
	})
}

func reviews(t *testing.T, newStore Factory) {
	ctx := context.Background()

	Convey("Given a review store", t, func() {
		s := open(t, newStore)
		rec := model.RecommendAdvance
		first, err := s.UpsertReview(ctx, model.ApplicationReview{
			ApplicationID:  "app-1",
			CycleID:        "c1",
			Phase:          model.PhaseApplication,
			ReviewerEmail:  " Ada@Org.Test ",
			Scores:         []model.CategoryScore{model.Score("writing", 0), model.Unscored("impact")},
			ReferralSignal: model.SignalReferral,
			Recommendation: &rec,
			Notes:          "strong",
		})
		So(err, ShouldBeNil)
		So(first.ReviewerEmail, ShouldEqual, "ada@org.test")

		Convey("Then an explicit zero and an unscored category survive the round trip", func() {
			got, err := s.ListReviewsForApplicant(ctx, "app-1", model.PhaseApplication)
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 1)
			So(got[0].Scores[0].Value, ShouldNotBeNil)
			So(*got[0].Scores[0].Value, ShouldEqual, 0)
			So(got[0].Scores[1].Value, ShouldBeNil)
			So(*got[0].Recommendation, ShouldEqual, model.RecommendAdvance)
		})

		Convey("When the same reviewer saves again", func() {
			time.Sleep(2 * time.Millisecond)
			second, err := s.UpsertReview(ctx, model.ApplicationReview{
				ApplicationID:  "app-1",
				CycleID:        "c1",
				Phase:          model.PhaseApplication,
				ReviewerEmail:  "ada@org.test",
				Scores:         []model.CategoryScore{model.Score("writing", 4)},
				ReferralSignal: model.SignalNeutral,
			})

			Convey("Then the row is replaced and CreatedAt is kept", func() {
				So(err, ShouldBeNil)
				So(second.CreatedAt.Equal(first.CreatedAt), ShouldBeTrue)
				got, _ := s.ListReviewsForApplicant(ctx, "app-1", model.PhaseApplication)
				So(got, ShouldHaveLength, 1)
				So(*got[0].Scores[0].Value, ShouldEqual, 4)
				So(got[0].ReferralSignal, ShouldEqual, model.SignalNeutral)
				So(got[0].Recommendation, ShouldBeNil)
			})
		})

		Convey("When other reviewers and phases are added", func() {
			for _, r := range []model.ApplicationReview{
				{ApplicationID: "app-2", CycleID: "c1", Phase: model.PhaseApplication, ReviewerEmail: "bo@org.test", ReferralSignal: model.SignalNeutral},
				{ApplicationID: "app-1", CycleID: "c1", Phase: model.PhaseInterviewRound1, ReviewerEmail: "bo@org.test", ReferralSignal: model.SignalNeutral},
				{ApplicationID: "app-9", CycleID: "c2", Phase: model.PhaseApplication, ReviewerEmail: "bo@org.test", ReferralSignal: model.SignalNeutral},
			} {
				_, err := s.UpsertReview(ctx, r)
				So(err, ShouldBeNil)
			}

			Convey("Then phase listings are scoped to cycle and phase", func() {
				got, err := s.ListReviewsForPhase(ctx, "c1", model.PhaseApplication)
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 2)
				So(got[0].ApplicationID, ShouldEqual, "app-1")
				So(got[1].ApplicationID, ShouldEqual, "app-2")
			})
		})
	})
}

func stages(t *testing.T, newStore Factory) {
	ctx := context.Background()

	Convey("Given three submitted applications", t, func() {
		s := open(t, newStore)
		for _, id := range []string{"a", "b", "c"} {
			So(s.PutApplication(ctx, model.Application{
				ID: id, CycleID: "c1", Track: "eng", ApplicantName: "Name " + id,
				ApplicantEmail: id + "@mail.test", Stage: model.StageSubmitted,
				Answers: map[string]string{"why": "because"},
			}), ShouldBeNil)
		}

		Convey("When moving two of them", func() {
			n, err := s.SetStages(ctx, []model.StageMove{
				{ApplicationID: "a", From: model.StageSubmitted, To: model.StageInterviewRound1},
				{ApplicationID: "b", From: model.StageSubmitted, To: model.StageRejected},
			})

			Convey("Then both are changed", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
				a, _ := s.GetApplication(ctx, "a")
				So(a.Stage, ShouldEqual, model.StageInterviewRound1)
				So(a.Answers["why"], ShouldEqual, "because")
			})

			Convey("And replaying the same moves changes nothing", func() {
				n, err := s.SetStages(ctx, []model.StageMove{
					{ApplicationID: "a", From: model.StageSubmitted, To: model.StageInterviewRound1},
					{ApplicationID: "b", From: model.StageSubmitted, To: model.StageRejected},
				})
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})

			Convey("And a batch with a stale move is rolled back as a whole", func() {
				_, err := s.SetStages(ctx, []model.StageMove{
					{ApplicationID: "c", From: model.StageSubmitted, To: model.StageInterviewRound1},
					{ApplicationID: "b", From: model.StageSubmitted, To: model.StageInterviewRound1},
				})
				So(errors.Is(err, model.ErrConflict), ShouldBeTrue)
				c, _ := s.GetApplication(ctx, "c")
				So(c.Stage, ShouldEqual, model.StageSubmitted)
			})
		})

		Convey("When moving an unknown application", func() {
			_, err := s.SetStages(ctx, []model.StageMove{{ApplicationID: "zz", From: model.StageSubmitted, To: model.StageRejected}})
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When listing the cycle", func() {
			apps, err := s.ListApplications(ctx, "c1")
			So(err, ShouldBeNil)
			So(apps, ShouldHaveLength, 3)
			So(apps[0].ID, ShouldEqual, "a")
		})
	})
}

func cutoffRuns(t *testing.T, newStore Factory) {
	ctx := context.Background()
	key := model.PhaseKey{CycleID: "c1", Phase: model.PhaseApplication}
	topN := 1
	at := time.Now().UTC().Truncate(time.Millisecond)

	Convey("Given two cutoff runs for a phase", t, func() {
		s := open(t, newStore)
		older := model.CutoffRun{
			ID: "run-1", Key: key, AppliedBy: "ada@org.test", AppliedAt: at.Add(-time.Hour),
			Criteria:  model.CutoffCriteria{Type: model.CutoffTopN, TopN: &topN},
			Decisions: []model.CutoffDecision{{ApplicationID: "a", Decision: model.DecisionAdvance, FromStage: model.StageSubmitted, ToStage: model.StageInterviewRound1}},
		}
		newer := older
		newer.ID = "run-2"
		newer.AppliedAt = at
		newer.Overrides = []model.ManualOverride{{ApplicationID: "a", Action: model.OverrideAdvance}}
		So(s.CreateCutoffRun(ctx, older), ShouldBeNil)
		So(s.CreateCutoffRun(ctx, newer), ShouldBeNil)

		Convey("Then the latest run is the newest one", func() {
			run, err := s.LatestCutoffRun(ctx, key)
			So(err, ShouldBeNil)
			So(run.ID, ShouldEqual, "run-2")
			So(*run.Criteria.TopN, ShouldEqual, 1)
			So(run.Overrides, ShouldHaveLength, 1)
			So(run.Decisions[0].ToStage, ShouldEqual, model.StageInterviewRound1)
		})

		Convey("When the newest is reverted", func() {
			So(s.MarkCutoffRunReverted(ctx, "run-2", "bo@org.test", at), ShouldBeNil)

			Convey("Then the older run becomes the latest", func() {
				run, err := s.LatestCutoffRun(ctx, key)
				So(err, ShouldBeNil)
				So(run.ID, ShouldEqual, "run-1")
				reverted, _ := s.GetCutoffRun(ctx, "run-2")
				So(reverted.RevertedBy, ShouldEqual, "bo@org.test")
				So(reverted.RevertedAt, ShouldNotBeNil)
			})

			Convey("And reverting it again conflicts", func() {
				err := s.MarkCutoffRunReverted(ctx, "run-2", "bo@org.test", at)
				So(errors.Is(err, model.ErrConflict), ShouldBeTrue)
			})
		})

		Convey("When no run exists for a key", func() {
			_, err := s.LatestCutoffRun(ctx, model.PhaseKey{CycleID: "c1", Phase: model.PhaseInterviewRound2})
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When outcomes are saved twice for the same applicant", func() {
			So(s.SaveNotificationOutcomes(ctx, []model.NotificationOutcome{
				{RunID: "run-2", ApplicationID: "b", Email: "b@mail.test", Template: model.TemplateReject, Phase: model.PhaseApplication, Status: model.NotificationFailed, Error: "smtp down", Attempts: 1, UpdatedAt: at},
				{RunID: "run-2", ApplicationID: "a", Email: "a@mail.test", Template: model.TemplateAdvance, Phase: model.PhaseApplication, Status: model.NotificationSent, Attempts: 1, UpdatedAt: at},
			}), ShouldBeNil)
			So(s.SaveNotificationOutcomes(ctx, []model.NotificationOutcome{
				{RunID: "run-2", ApplicationID: "b", Email: "b@mail.test", Template: model.TemplateReject, Phase: model.PhaseApplication, Status: model.NotificationSent, Attempts: 2, UpdatedAt: at},
			}), ShouldBeNil)

			Convey("Then the last write wins per applicant", func() {
				out, err := s.ListNotificationOutcomes(ctx, "run-2")
				So(err, ShouldBeNil)
				So(out, ShouldHaveLength, 2)
				So(out[0].ApplicationID, ShouldEqual, "a")
				So(out[1].Status, ShouldEqual, model.NotificationSent)
				So(out[1].Attempts, ShouldEqual, 2)
			})
		})
	})
}

func auditAndAdmins(t *testing.T, newStore Factory) {
	ctx := context.Background()

	Convey("Given audit entries and admins", t, func() {
		s := open(t, newStore)
		So(s.AppendAudit(ctx, model.AuditEntry{ID: "1", ActorEmail: "ada@org.test", Action: "finalize", TargetType: "phase_config", TargetID: "c1/application", Meta: map[string]any{"forced": true}}), ShouldBeNil)
		So(s.AppendAudit(ctx, model.AuditEntry{ID: "2", ActorEmail: "ada@org.test", Action: "update_stage", TargetType: "application", TargetID: "a"}), ShouldBeNil)
		So(s.PutAdmin(ctx, model.Admin{Email: "Bo@Org.Test", Name: "Bo"}), ShouldBeNil)
		So(s.PutAdmin(ctx, model.Admin{Email: "ada@org.test", Name: "Ada"}), ShouldBeNil)

		Convey("Then audit can be filtered by target", func() {
			all, err := s.ListAudit(ctx, "")
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 2)
			mine, _ := s.ListAudit(ctx, "c1/application")
			So(mine, ShouldHaveLength, 1)
			So(mine[0].Meta["forced"], ShouldEqual, true)
			So(mine[0].CreatedAt.IsZero(), ShouldBeFalse)
		})

		Convey("Then admins are normalized and ordered", func() {
			admins, err := s.ListAdmins(ctx)
			So(err, ShouldBeNil)
			So(admins, ShouldResemble, []model.Admin{{Email: "ada@org.test", Name: "Ada"}, {Email: "bo@org.test", Name: "Bo"}})
		})

		Convey("Then an admin without email is rejected", func() {
			So(errors.Is(s.PutAdmin(ctx, model.Admin{Name: "x"}), model.ErrValidation), ShouldBeTrue)
		})
	})
}
