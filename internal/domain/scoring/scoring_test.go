package scoring_test

import (
	"errors"
	"testing"

	"github.com/okian/cohort/internal/domain/model"
	scoring "github.com/okian/cohort/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func rubric() []model.ScoringCategory {
	return []model.ScoringCategory{
		{Key: "experience", Weight: 1.5, MinScore: 0, MaxScore: 5},
		{Key: "writing", Weight: 1.0, MinScore: 0, MaxScore: 5},
	}
}

func TestValidate(t *testing.T) {
	Convey("Given a scoring rubric", t, func() {
		Convey("When it is well formed", func() {
			So(scoring.Validate(rubric()), ShouldBeNil)
		})

		Convey("When two categories share a key", func() {
			cats := append(rubric(), model.ScoringCategory{Key: "writing", Weight: 1, MaxScore: 5})
			err := scoring.Validate(cats)

			Convey("Then it should be a validation error", func() {
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "duplicate")
			})
		})

		Convey("When a weight is zero", func() {
			cats := rubric()
			cats[0].Weight = 0
			So(errors.Is(scoring.Validate(cats), model.ErrValidation), ShouldBeTrue)
		})

		Convey("When min equals max", func() {
			cats := rubric()
			cats[1].MinScore = 5
			So(errors.Is(scoring.Validate(cats), model.ErrValidation), ShouldBeTrue)
		})

		Convey("When a key is blank", func() {
			cats := rubric()
			cats[0].Key = "  "
			So(errors.Is(scoring.Validate(cats), model.ErrValidation), ShouldBeTrue)
		})
	})
}

func TestValidateScores(t *testing.T) {
	Convey("Given review scores for a rubric", t, func() {
		Convey("When all scores are in range", func() {
			out, err := scoring.ValidateScores(rubric(), []model.CategoryScore{
				model.Score("writing", 4),
				model.Score("experience", 0),
			})

			Convey("Then they come back in rubric order", func() {
				So(err, ShouldBeNil)
				So(out, ShouldHaveLength, 2)
				So(out[0].Key, ShouldEqual, "experience")
				So(*out[0].Value, ShouldEqual, 0)
				So(out[1].Key, ShouldEqual, "writing")
			})
		})

		Convey("When a category is missing", func() {
			out, err := scoring.ValidateScores(rubric(), []model.CategoryScore{model.Score("writing", 3)})

			Convey("Then it is returned unscored", func() {
				So(err, ShouldBeNil)
				So(out[0].Value, ShouldBeNil)
			})
		})

		Convey("When a score exceeds the maximum", func() {
			_, err := scoring.ValidateScores(rubric(), []model.CategoryScore{model.Score("writing", 6)})

			Convey("Then a ScoreOutOfRangeError is returned", func() {
				var rangeErr *model.ScoreOutOfRangeError
				So(errors.As(err, &rangeErr), ShouldBeTrue)
				So(rangeErr.Category, ShouldEqual, "writing")
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When a category is unknown", func() {
			_, err := scoring.ValidateScores(rubric(), []model.CategoryScore{model.Score("charisma", 3)})
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})

		Convey("When a category is repeated", func() {
			_, err := scoring.ValidateScores(rubric(), []model.CategoryScore{
				model.Score("writing", 3),
				model.Score("writing", 4),
			})
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})
	})
}

func TestWeighted(t *testing.T) {
	Convey("Given three reviews of the same applicant", t, func() {
		cats := rubric()

		Convey("Then each per-reviewer weighted score matches the rubric weights", func() {
			a, ok := scoring.Weighted(cats, []model.CategoryScore{model.Score("experience", 5), model.Score("writing", 4)})
			So(ok, ShouldBeTrue)
			So(a, ShouldAlmostEqual, 4.6, 1e-9)

			b, _ := scoring.Weighted(cats, []model.CategoryScore{model.Score("experience", 3), model.Score("writing", 3)})
			So(b, ShouldAlmostEqual, 3.0, 1e-9)

			c, _ := scoring.Weighted(cats, []model.CategoryScore{model.Score("experience", 4), model.Score("writing", 5)})
			So(c, ShouldAlmostEqual, 4.4, 1e-9)
		})

		Convey("When only one category is scored", func() {
			s, ok := scoring.Weighted(cats, []model.CategoryScore{model.Score("writing", 2), model.Unscored("experience")})

			Convey("Then the unscored category is excluded from both sums", func() {
				So(ok, ShouldBeTrue)
				So(s, ShouldEqual, 2)
			})
		})

		Convey("When an explicit zero is given", func() {
			s, ok := scoring.Weighted(cats, []model.CategoryScore{model.Score("writing", 0), model.Score("experience", 5)})

			Convey("Then it counts as a real score", func() {
				So(ok, ShouldBeTrue)
				So(s, ShouldAlmostEqual, 3.0, 1e-9)
			})
		})

		Convey("When nothing is scored", func() {
			_, ok := scoring.Weighted(cats, nil)
			So(ok, ShouldBeFalse)
		})
	})
}

func TestDefaultCategories(t *testing.T) {
	Convey("Given the built-in rubrics", t, func() {
		for _, p := range model.Phases {
			So(scoring.Validate(scoring.DefaultCategories(p)), ShouldBeNil)
			So(scoring.DefaultCategories(p), ShouldNotBeEmpty)
		}
	})
}
