package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/cohort/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cohort.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigLoader(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given a config loader", t, func() {
		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "memory")
			})
		})
	})

	t.Run("env overrides defaults", func(t *testing.T) {
		t.Setenv("COHORT_ADDR", ":8080")
		t.Setenv("COHORT_STAGE_BATCH_SIZE", "50")
		t.Setenv("COHORT_NOTIFY_RATE_PER_SECOND", "2.5")

		convey.Convey("Given environment overrides", t, func() {
			cfg, err := config.Load(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.StageBatchSize, convey.ShouldEqual, 50)
			convey.So(cfg.NotifyRatePerSecond, convey.ShouldEqual, 2.5)
		})
	})

	t.Run("file then env", func(t *testing.T) {
		path := writeConfigFile(t, `
addr: ":9090"
store_driver: sqlite
sqlite_path: /tmp/cohort-test.db
notify_workers: 3
admins:
  - email: ada@org.test
    name: Ada
  - email: bo@org.test
default_scoring:
  application:
    - key: motivation
      label: Motivation
      weight: 2
      min_score: 1
      max_score: 5
`)
		t.Setenv("COHORT_CONFIG", path)
		t.Setenv("COHORT_NOTIFY_WORKERS", "7")

		convey.Convey("Given a YAML file and an env override", t, func() {
			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, "sqlite")
			convey.So(cfg.NotifyWorkers, convey.ShouldEqual, 7)
			convey.So(cfg.Admins, convey.ShouldHaveLength, 2)
			convey.So(cfg.Admins[0].Name, convey.ShouldEqual, "Ada")
			convey.So(cfg.DefaultScoring["application"], convey.ShouldHaveLength, 1)
			convey.So(cfg.DefaultScoring["application"][0].Weight, convey.ShouldEqual, 2)
			convey.So(cfg.NotifyQueueSize, convey.ShouldEqual, 10_000)
		})
	})

	t.Run("invalid yaml", func(t *testing.T) {
		t.Setenv("COHORT_CONFIG", writeConfigFile(t, `invalid: yaml: content: [`))

		convey.Convey("Given a broken YAML file", t, func() {
			cfg, err := config.Load(ctx)
			convey.So(cfg, convey.ShouldBeNil)
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})
	})

	t.Run("missing file", func(t *testing.T) {
		t.Setenv("COHORT_CONFIG", "/non/existent/file.yaml")

		convey.Convey("Given a missing file", t, func() {
			cfg, err := config.Load(ctx)
			convey.So(cfg, convey.ShouldBeNil)
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})
	})

	t.Run("empty addr", func(t *testing.T) {
		t.Setenv("COHORT_ADDR", "")

		convey.Convey("Given an empty addr", t, func() {
			cfg, err := config.Load(ctx)
			convey.So(cfg, convey.ShouldBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
		})
	})

	t.Run("non numeric", func(t *testing.T) {
		t.Setenv("COHORT_NOTIFY_WORKERS", "lots")

		convey.Convey("Given a non-numeric worker count", t, func() {
			cfg, err := config.Load(ctx)
			convey.So(cfg, convey.ShouldBeNil)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}
