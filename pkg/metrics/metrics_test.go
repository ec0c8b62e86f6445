package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should register under the cohort namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "cohort")
				manager.reviewsUpserted.WithLabelValues("application").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(families, ShouldNotBeEmpty)
				So(families[0].GetName(), ShouldStartWith, "cohort_recruitment_")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("sub"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(manager.namespace, ShouldEqual, "test")
				So(manager.subsystem, ShouldEqual, "sub")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.constLabels["env"], ShouldEqual, "test")
			})
		})

		Convey("When empty option values are passed", func() {
			manager := NewManager(WithNamespace(""), WithHistogramBuckets(nil), WithPrometheusRegistry(prometheus.NewRegistry()))

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "cohort")
				So(manager.histogramBuckets, ShouldNotBeEmpty)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording domain events", func() {
			before := testutil.ToFloat64(globalManager.cutoffDecisions.WithLabelValues("application", "advance"))
			RecordCutoffDecisions("application", "advance", 3)
			RecordStageTransitions("cutoff", 3)
			RecordCutoffApplied("application", "top_n")
			RecordReviewUpsert("application")
			RecordRanking("application", 12, 4*time.Millisecond)

			Convey("Then counters move by the recorded amount", func() {
				after := testutil.ToFloat64(globalManager.cutoffDecisions.WithLabelValues("application", "advance"))
				So(after-before, ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.rankingSize.WithLabelValues("application")), ShouldEqual, 12)
			})
		})

		Convey("When recording phase actions", func() {
			okBefore := testutil.ToFloat64(globalManager.phaseActions.WithLabelValues("finalize", "ok"))
			errBefore := testutil.ToFloat64(globalManager.phaseActions.WithLabelValues("finalize", "error"))
			RecordPhaseAction("finalize", nil)
			RecordPhaseAction("finalize", errors.New("boom"))

			Convey("Then results are split by outcome", func() {
				So(testutil.ToFloat64(globalManager.phaseActions.WithLabelValues("finalize", "ok"))-okBefore, ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.phaseActions.WithLabelValues("finalize", "error"))-errBefore, ShouldEqual, 1)
			})
		})

		Convey("When recording operational metrics", func() {
			UpdateQueueSize(7)
			UpdateQueueCapacity(100)
			UpdateWorkerCount(4)
			UpdateWorkerActiveCount(2)
			UpdateSystemMemoryUsage(1 << 20)
			UpdateSystemGoroutineCount(12)
			RecordSystemGCPauseTime(0.5)

			Convey("Then gauges hold the last value", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 100)
				So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 4)
				So(testutil.ToFloat64(globalManager.workerActiveCount), ShouldEqual, 2)
				So(testutil.ToFloat64(globalManager.systemMemory), ShouldEqual, 1<<20)
				So(testutil.ToFloat64(globalManager.systemGoroutines), ShouldEqual, 12)
			})
		})

		Convey("When recording store and HTTP calls", func() {
			Convey("Then it should not panic", func() {
				So(func() {
					RecordStoreOperation("memory", "upsert_review", time.Millisecond, nil)
					RecordStoreOperation("sqlite", "set_stages", time.Millisecond, errors.New("locked"))
					RecordHTTPRequest("/api/v1/cycles", "GET", 200, 2*time.Millisecond)
					RecordNotification("advance", "sent", time.Millisecond)
					RecordNotificationDuplicate()
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError()
					RecordWorkerProcessingLatency(time.Millisecond)
					RecordWorkerError()
					RecordErrorByComponent("notify", "send_failed")
				}, ShouldNotPanic)
			})
		})

		Convey("When the registry is requested", func() {
			So(GetRegistry(), ShouldEqual, customRegistry)
		})
	})
}
