package config_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/okian/cohort/internal/config"
	"github.com/okian/cohort/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.NotifyDriver, convey.ShouldEqual, config.NotifyLog)
			convey.So(cfg.NotifyWorkers, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.StageBatchSize, convey.ShouldEqual, 200)
			convey.So(cfg.DefaultMinReviewers, convey.ShouldEqual, 1)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then scoring falls back to the built-in rubric", func() {
			convey.So(cfg.ScoringFor(model.PhaseApplication), convey.ShouldNotBeEmpty)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with broken cross-field settings", t, func() {
		cases := map[string]func(c *config.Config){
			"sqlite without path":       func(c *config.Config) { c.StoreDriver, c.SQLitePath = config.StoreSQLite, "" },
			"postgres without dsn":      func(c *config.Config) { c.StoreDriver = config.StorePostgres },
			"unknown store":             func(c *config.Config) { c.StoreDriver = "bolt" },
			"smtp without host":         func(c *config.Config) { c.NotifyDriver = config.NotifySMTP },
			"zero batch size":           func(c *config.Config) { c.StageBatchSize = 0 },
			"negative min reviewers":    func(c *config.Config) { c.DefaultMinReviewers = -1 },
			"zero rate":                 func(c *config.Config) { c.NotifyRatePerSecond = 0 },
			"admin without email":       func(c *config.Config) { c.Admins = []model.Admin{{Name: "Nobody"}} },
			"scoring for unknown phase": func(c *config.Config) {
				c.DefaultScoring = map[string][]model.ScoringCategory{"bootcamp": {{Key: "x", Weight: 1, MinScore: 1, MaxScore: 5}}}
			},
			"scoring with bad weight": func(c *config.Config) {
				c.DefaultScoring = map[string][]model.ScoringCategory{"application": {{Key: "x", Weight: 0, MinScore: 1, MaxScore: 5}}}
			},
		}
		for name, mutate := range cases {
			convey.Convey("Then "+name+" is rejected", func() {
				cfg := config.New()
				mutate(cfg)
				err := cfg.Validate()
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})

	convey.Convey("Given an unknown driver", t, func() {
		cfg := config.New()
		cfg.NotifyDriver = "pigeon"
		err := cfg.Validate()

		convey.Convey("Then it is reported as an unknown driver and as invalid", func() {
			convey.So(errors.Is(err, config.ErrUnknownDriver), convey.ShouldBeTrue)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "pigeon")
		})
	})

	convey.Convey("Given a configured rubric override", t, func() {
		cfg := config.New()
		cats := []model.ScoringCategory{{Key: "grit", Weight: 2, MinScore: 0, MaxScore: 10}}
		cfg.DefaultScoring = map[string][]model.ScoringCategory{"interview_round1": cats}

		convey.So(cfg.Validate(), convey.ShouldBeNil)
		convey.So(cfg.ScoringFor(model.PhaseInterviewRound1), convey.ShouldResemble, cats)
	})
}
