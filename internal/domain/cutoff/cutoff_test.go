package cutoff_test

import (
	"errors"
	"testing"

	"github.com/okian/cohort/internal/domain/cutoff"
	"github.com/okian/cohort/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func intPtr(n int) *int           { return &n }
func floatPtr(f float64) *float64 { return &f }

func ranked(id string, score float64) model.RankedApplicant {
	return model.RankedApplicant{ApplicationID: id, ApplicantName: id, WeightedScore: score, ScoredCount: 1}
}

func sample() []model.RankedApplicant {
	return []model.RankedApplicant{ranked("A", 90), ranked("B", 85), ranked("C", 85), ranked("D", 70)}
}

func covers(res cutoff.Result, rankings []model.RankedApplicant) bool {
	seen := map[string]int{}
	for _, id := range res.Advanced {
		seen[id]++
	}
	for _, id := range res.Rejected {
		seen[id]++
	}
	if len(seen) != len(rankings) {
		return false
	}
	for _, r := range rankings {
		if seen[r.ApplicationID] != 1 {
			return false
		}
	}
	return true
}

func TestPartition(t *testing.T) {
	Convey("Given a ranking of four applicants", t, func() {
		rankings := sample()

		Convey("When applying top_n=2", func() {
			res, err := cutoff.Partition(rankings, model.CutoffCriteria{Type: model.CutoffTopN, TopN: intPtr(2)}, nil)

			Convey("Then the first two in rank order advance", func() {
				So(err, ShouldBeNil)
				So(res.Advanced, ShouldResemble, []string{"A", "B"})
				So(res.Rejected, ShouldResemble, []string{"C", "D"})
				So(res.Decisions["A"], ShouldEqual, model.DecisionAdvance)
				So(res.Decisions["C"], ShouldEqual, model.DecisionReject)
			})

			Convey("And repeating the call yields identical sets", func() {
				again, err := cutoff.Partition(rankings, model.CutoffCriteria{Type: model.CutoffTopN, TopN: intPtr(2)}, nil)
				So(err, ShouldBeNil)
				So(again, ShouldResemble, res)
			})
		})

		Convey("When applying min_score above every score", func() {
			res, err := cutoff.Partition(rankings, model.CutoffCriteria{Type: model.CutoffMinScore, MinScore: floatPtr(95)}, nil)

			Convey("Then nobody advances", func() {
				So(err, ShouldBeNil)
				So(res.Advanced, ShouldBeEmpty)
				So(res.Rejected, ShouldHaveLength, 4)
			})
		})

		Convey("When applying min_score at a tie boundary", func() {
			res, _ := cutoff.Partition(rankings, model.CutoffCriteria{Type: model.CutoffMinScore, MinScore: floatPtr(85)}, nil)
			So(res.Advanced, ShouldResemble, []string{"A", "B", "C"})
		})

		Convey("When applying a manual cutoff", func() {
			res, _ := cutoff.Partition(rankings, model.CutoffCriteria{Type: model.CutoffManual}, []model.ManualOverride{
				{ApplicationID: "D", Action: model.OverrideAdvance},
			})

			Convey("Then only overridden applicants advance", func() {
				So(res.Advanced, ShouldResemble, []string{"D"})
				So(res.Decisions["D"], ShouldEqual, model.DecisionManualAdvance)
			})
		})

		Convey("When overrides contradict the rule", func() {
			res, _ := cutoff.Partition(rankings, model.CutoffCriteria{Type: model.CutoffTopN, TopN: intPtr(2)}, []model.ManualOverride{
				{ApplicationID: "A", Action: model.OverrideReject},
				{ApplicationID: "D", Action: model.OverrideAdvance},
			})

			Convey("Then the overrides win", func() {
				So(res.Decisions["A"], ShouldEqual, model.DecisionManualReject)
				So(res.Decisions["D"], ShouldEqual, model.DecisionManualAdvance)
				So(res.Advanced, ShouldResemble, []string{"B", "D"})
			})
		})

		Convey("For every criteria type the partition is disjoint and covering", func() {
			for _, c := range []model.CutoffCriteria{
				{Type: model.CutoffTopN, TopN: intPtr(0)},
				{Type: model.CutoffTopN, TopN: intPtr(10)},
				{Type: model.CutoffMinScore, MinScore: floatPtr(80)},
				{Type: model.CutoffManual},
			} {
				res, err := cutoff.Partition(rankings, c, []model.ManualOverride{{ApplicationID: "C", Action: model.OverrideAdvance}})
				So(err, ShouldBeNil)
				So(covers(res, rankings), ShouldBeTrue)
				So(res.Decisions["C"], ShouldEqual, model.DecisionManualAdvance)
			}
		})
	})

	Convey("Given invalid input", t, func() {
		Convey("When top_n is missing", func() {
			_, err := cutoff.Partition(sample(), model.CutoffCriteria{Type: model.CutoffTopN}, nil)
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})

		Convey("When the type is unknown", func() {
			_, err := cutoff.Partition(sample(), model.CutoffCriteria{Type: "lottery"}, nil)
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})

		Convey("When an override names someone outside the ranking", func() {
			_, err := cutoff.Partition(sample(), model.CutoffCriteria{Type: model.CutoffManual}, []model.ManualOverride{
				{ApplicationID: "Z", Action: model.OverrideAdvance},
			})
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})
	})

	Convey("Given an empty ranking", t, func() {
		res, err := cutoff.Partition(nil, model.CutoffCriteria{Type: model.CutoffManual}, nil)
		So(err, ShouldBeNil)
		So(res.Advanced, ShouldBeEmpty)
		So(res.Rejected, ShouldBeEmpty)
	})
}
