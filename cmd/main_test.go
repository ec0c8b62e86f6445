package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/cohort/internal/adapters/repository"
	"github.com/okian/cohort/internal/config"
	"github.com/okian/cohort/internal/domain/model"
	"github.com/okian/cohort/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.InitWithWriter(io.Discard); err != nil {
		panic(err)
	}
}

func TestMainConfiguration(t *testing.T) {
	convey.Convey("Given environment overrides", t, func() {
		t.Setenv("COHORT_ADDR", ":8081")
		t.Setenv("COHORT_STAGE_BATCH_SIZE", "25")

		convey.Convey("Then configuration should be loadable", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8081")
			convey.So(cfg.StageBatchSize, convey.ShouldEqual, 25)
		})
	})
}

func TestOpenStore(t *testing.T) {
	convey.Convey("Given store drivers", t, func() {
		ctx := context.Background()

		convey.Convey("The memory driver needs no setup", func() {
			store, err := openStore(ctx, config.New())
			convey.So(err, convey.ShouldBeNil)
			_, ok := store.(*repository.MemoryStore)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(store.Close(), convey.ShouldBeNil)
		})

		convey.Convey("The sqlite driver migrates a fresh file", func() {
			cfg := config.New()
			cfg.StoreDriver = config.StoreSQLite
			cfg.SQLitePath = filepath.Join(t.TempDir(), "cohort.db")

			store, err := openStore(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			defer store.Close()

			convey.So(seedAdmins(ctx, store, []model.Admin{{Email: "ada@org.test", Name: "Ada"}}), convey.ShouldBeNil)
			admins, err := store.ListAdmins(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(admins, convey.ShouldHaveLength, 1)
		})
	})
}

func TestApplicationWiring(t *testing.T) {
	convey.Convey("Given a fully wired application", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.DefaultMinReviewers = 2
		store := repository.NewMemoryStore()

		notifier, err := newNotifier(cfg, store)
		convey.So(err, convey.ShouldBeNil)
		svc := newService(cfg, store, notifier)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		convey.Convey("Then seeded configs use the configured minimum", func() {
			configs, err := svc.InitializePhaseConfigs(ctx, "c1", "ada@org.test")
			convey.So(err, convey.ShouldBeNil)
			convey.So(configs, convey.ShouldHaveLength, len(model.Phases))
			convey.So(configs[0].MinReviewersRequired, convey.ShouldEqual, 2)
		})

		convey.Convey("Then the mux serves the API and the docs", func() {
			mux := newMux(ctx, svc)
			for _, path := range []string{"/stats", "/api-docs", "/openapi.yaml", "/api/v1/cycles/c1/phase-configs"} {
				rec := httptest.NewRecorder()
				mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			}
		})
	})
}

func TestSystemMetrics(t *testing.T) {
	convey.Convey("Given the system metrics updater", t, func() {
		convey.Convey("Then a single update should not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})

		convey.Convey("Then the loop returns when the context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		})
	})
}
