package stage_test

import (
	"errors"
	"testing"

	"github.com/okian/cohort/internal/domain/model"
	"github.com/okian/cohort/internal/domain/stage"
	. "github.com/smartystreets/goconvey/convey"
)

func TestValidate(t *testing.T) {
	Convey("Given the application stage machine", t, func() {
		Convey("When the target equals the current stage", func() {
			So(stage.Validate(model.StageRejected, model.StageRejected, stage.Admin()), ShouldBeNil)
		})

		Convey("When a cutoff advances an application-phase applicant", func() {
			cause := stage.Cutoff(model.PhaseApplication, model.DecisionAdvance)

			Convey("Then interview_round1 is allowed", func() {
				So(stage.Validate(model.StageUnderReview, model.StageInterviewRound1, cause), ShouldBeNil)
			})

			Convey("And interview_round2 is not", func() {
				err := stage.Validate(model.StageUnderReview, model.StageInterviewRound2, cause)
				So(errors.Is(err, model.ErrInvalidTransition), ShouldBeTrue)
			})
		})

		Convey("When a cutoff rejects at any phase", func() {
			for _, p := range model.Phases {
				cause := stage.Cutoff(p, model.DecisionManualReject)
				So(stage.Validate(model.StageInterviewRound1, model.StageRejected, cause), ShouldBeNil)
			}
		})

		Convey("When an admin tries to set a cutoff-only stage", func() {
			for _, to := range []model.ApplicationStage{
				model.StageInterviewRound1, model.StageInterviewRound2, model.StageAccepted, model.StageRejected,
			} {
				err := stage.Validate(model.StageSubmitted, to, stage.Admin())
				So(errors.Is(err, model.ErrInvalidTransition), ShouldBeTrue)
			}
		})

		Convey("When an admin moves forward through intake stages", func() {
			So(stage.Validate(model.StageSubmitted, model.StageUnderReview, stage.Admin()), ShouldBeNil)
			So(stage.Validate(model.StageUnderReview, model.StageCoffeeChat, stage.Admin()), ShouldBeNil)
			So(stage.Validate(model.StageInterviewRound2, model.StageFinalReview, stage.Admin()), ShouldBeNil)
		})

		Convey("When an admin moves backwards", func() {
			err := stage.Validate(model.StageCoffeeChat, model.StageSubmitted, stage.Admin())
			So(errors.Is(err, model.ErrInvalidTransition), ShouldBeTrue)
		})

		Convey("When an applicant withdraws", func() {
			So(stage.Validate(model.StageInterviewRound1, model.StageWithdrawn, stage.Admin()), ShouldBeNil)

			Convey("Then it is not allowed from a terminal stage", func() {
				err := stage.Validate(model.StageAccepted, model.StageWithdrawn, stage.Admin())
				So(errors.Is(err, model.ErrInvalidTransition), ShouldBeTrue)
			})
		})

		Convey("When waitlisting", func() {
			So(stage.Validate(model.StageFinalReview, model.StageWaitlisted, stage.Admin()), ShouldBeNil)
			So(errors.Is(stage.Validate(model.StageSubmitted, model.StageWaitlisted, stage.Admin()), model.ErrInvalidTransition), ShouldBeTrue)
		})

		Convey("When reverting", func() {
			So(stage.Validate(model.StageRejected, model.StageUnderReview, stage.Revert()), ShouldBeNil)
		})
	})
}

func TestTarget(t *testing.T) {
	Convey("Given cutoff decisions", t, func() {
		cases := []struct {
			phase model.Phase
			d     model.Decision
			want  model.ApplicationStage
		}{
			{model.PhaseApplication, model.DecisionAdvance, model.StageInterviewRound1},
			{model.PhaseInterviewRound1, model.DecisionManualAdvance, model.StageInterviewRound2},
			{model.PhaseInterviewRound2, model.DecisionAdvance, model.StageAccepted},
			{model.PhaseInterviewRound2, model.DecisionReject, model.StageRejected},
		}
		for _, c := range cases {
			got, err := stage.Target(c.phase, c.d)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, c.want)
		}
	})
}

func TestPoolStages(t *testing.T) {
	Convey("Given the review pools", t, func() {
		So(stage.InPool(model.PhaseApplication, model.StageSubmitted), ShouldBeTrue)
		So(stage.InPool(model.PhaseApplication, model.StageDraft), ShouldBeFalse)
		So(stage.InPool(model.PhaseInterviewRound1, model.StageInterviewRound1), ShouldBeTrue)
		So(stage.InPool(model.PhaseInterviewRound2, model.StageFinalReview), ShouldBeTrue)
	})
}
