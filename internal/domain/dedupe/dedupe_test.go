package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/cohort/internal/domain/dedupe"
	"github.com/okian/cohort/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new deduper", t, func() {
		d := dedupe.NewInMemoryDeduper()
		So(d.Size(), ShouldEqual, 0)

		job := model.NotificationJob{RunID: "run-1", ApplicationID: "a", Template: model.TemplateAdvance}

		Convey("When a delivery key is recorded", func() {
			So(d.SeenAndRecord(ctx, job.Key()), ShouldBeFalse)

			Convey("Then the same key is reported as seen", func() {
				So(d.SeenAndRecord(ctx, job.Key()), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("Then another run for the same applicant is not", func() {
				other := job
				other.RunID = "run-2"
				So(d.SeenAndRecord(ctx, other.Key()), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 2)
			})

			Convey("And it is unrecorded after a failed send", func() {
				d.Unrecord(ctx, job.Key())

				Convey("Then it may be delivered again", func() {
					So(d.Size(), ShouldEqual, 0)
					So(d.SeenAndRecord(ctx, job.Key()), ShouldBeFalse)
				})
			})
		})

		Convey("When unrecording an unknown key", func() {
			d.Unrecord(ctx, "missing")
			So(d.Size(), ShouldEqual, 0)
		})
	})

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))
		d.SeenAndRecord(ctx, "k1")
		d.SeenAndRecord(ctx, "k2")
		d.SeenAndRecord(ctx, "k3")

		Convey("Then the oldest key is evicted first", func() {
			So(d.Size(), ShouldEqual, 2)
			So(d.SeenAndRecord(ctx, "k3"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "k2"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "k1"), ShouldBeFalse)
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 1000; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("k%d", i))
		}
		So(d.Size(), ShouldEqual, 1000)
	})

	Convey("Given a deduper with a TTL", t, func() {
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		d := dedupe.NewInMemoryDeduper(
			dedupe.WithTTL(time.Minute),
			dedupe.WithClock(func() time.Time { return now }),
		)
		So(d.SeenAndRecord(ctx, "k"), ShouldBeFalse)

		Convey("When the TTL has not elapsed", func() {
			now = now.Add(30 * time.Second)
			So(d.SeenAndRecord(ctx, "k"), ShouldBeTrue)
		})

		Convey("When the TTL has elapsed", func() {
			now = now.Add(time.Minute)
			So(d.Size(), ShouldEqual, 0)
			So(d.SeenAndRecord(ctx, "k"), ShouldBeFalse)
		})
	})
}

func TestInMemoryDeduper_Concurrent(t *testing.T) {
	Convey("Given many goroutines racing on the same keys", t, func() {
		d := dedupe.NewInMemoryDeduper()
		ctx := context.Background()

		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			fresh  int
			keys   = 50
			racers = 8
		)
		for r := 0; r < racers; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for k := 0; k < keys; k++ {
					if !d.SeenAndRecord(ctx, fmt.Sprintf("key-%d", k)) {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each key is recorded exactly once", func() {
			So(fresh, ShouldEqual, keys)
			So(d.Size(), ShouldEqual, keys)
		})
	})
}
