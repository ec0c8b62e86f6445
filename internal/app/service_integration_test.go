package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/cohort/internal/adapters/notify"
	service "github.com/okian/cohort/internal/app"
	"github.com/okian/cohort/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// flakySender fails the first send to each address in failOnce.
type flakySender struct {
	mu       sync.Mutex
	failOnce map[string]bool
	sent     []notify.Message
}

func (s *flakySender) Send(_ context.Context, m notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOnce[m.To] {
		delete(s.failOnce, m.To)
		return errors.New("mailbox unavailable")
	}
	s.sent = append(s.sent, m)
	return nil
}

func TestServiceIntegration_Notifications(t *testing.T) {
	Convey("Given a service wired to the notification coordinator", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		Reset(cancel)

		sender := &flakySender{failOnce: map[string]bool{"a2@applicant.test": true}}
		svc, store := setup(nil,
			applicant("a1", "Ann", "eng", model.StageSubmitted),
			applicant("a2", "Ben", "eng", model.StageSubmitted),
			applicant("a3", "Cat", "eng", model.StageSubmitted),
		)
		coordinator, err := notify.NewCoordinator(sender, store,
			notify.WithWorkers(2),
			notify.WithRateLimit(1000, 10),
		)
		So(err, ShouldBeNil)
		svc = service.New(store, service.WithNotifier(coordinator))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(context.Background()) })

		reviewAll(svc, map[string][2]float64{"a1": {5, 5}, "a2": {4, 4}, "a3": {1, 1}}, ada, bob)
		key := model.PhaseKey{CycleID: cycle, Phase: model.PhaseApplication, Track: "eng"}

		Convey("When a cutoff is applied with emails", func() {
			res, err := svc.ApplyCutoff(ctx, service.ApplyCutoffRequest{
				Key:        key,
				Criteria:   model.CutoffCriteria{Type: model.CutoffMinScore, MinScore: ptr(3.5)},
				Actor:      ada.Email,
				SendEmails: true,
			})
			So(err, ShouldBeNil)

			Convey("Then one bad mailbox does not stop the others", func() {
				So(res.Notifications.Sent, ShouldEqual, 2)
				So(res.Notifications.Failed, ShouldEqual, 1)
				So(res.Config.Status, ShouldEqual, model.StatusFinalized)
			})

			Convey("And every outcome is persisted", func() {
				outcomes, err := store.ListNotificationOutcomes(ctx, res.Run.ID)
				So(err, ShouldBeNil)
				So(outcomes, ShouldHaveLength, 3)
			})

			Convey("And retrying resends only the failed one", func() {
				summary, err := svc.RetryNotifications(ctx, res.Run.ID, bob.Email)
				So(err, ShouldBeNil)
				So(summary.Sent, ShouldEqual, 1)
				So(summary.Failed, ShouldEqual, 0)
				So(sender.sent, ShouldHaveLength, 3)

				outcomes, _ := store.ListNotificationOutcomes(ctx, res.Run.ID)
				for _, o := range outcomes {
					So(o.Status, ShouldEqual, model.NotificationSent)
					if o.ApplicationID == "a2" {
						So(o.Attempts, ShouldEqual, 2)
					}
				}
			})

			Convey("And a second retry has nothing left to send", func() {
				_, err := svc.RetryNotifications(ctx, res.Run.ID, bob.Email)
				So(err, ShouldBeNil)
				summary, err := svc.RetryNotifications(ctx, res.Run.ID, bob.Email)
				So(err, ShouldBeNil)
				So(summary, ShouldResemble, model.NotificationSummary{})
			})
		})

		Convey("When retrying an unknown run", func() {
			_, err := svc.RetryNotifications(ctx, "missing", ada.Email)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})
	})
}
