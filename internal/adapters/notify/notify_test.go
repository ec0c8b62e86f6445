package notify

import (
	"bytes"
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/cohort/internal/domain/dedupe"
	"github.com/okian/cohort/internal/domain/model"
	"github.com/okian/cohort/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.InitWithWriter(&bytes.Buffer{})
}

type recordingSender struct {
	mu   sync.Mutex
	fail map[string]error
	sent []Message
}

func (s *recordingSender) Send(_ context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[m.To]; err != nil {
		return err
	}
	s.sent = append(s.sent, m)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type alwaysFailing struct{}

func (alwaysFailing) Send(context.Context, Message) error { return errors.New("smtp unavailable") }

type blockingSender struct{ release chan struct{} }

func (s blockingSender) Send(ctx context.Context, _ Message) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []model.NotificationOutcome
	err      error
}

func (r *outcomeRecorder) SaveNotificationOutcomes(_ context.Context, o []model.NotificationOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.outcomes = append(r.outcomes, o...)
	return nil
}

func jobs(tmpl model.Template, apps ...string) []model.NotificationJob {
	out := make([]model.NotificationJob, 0, len(apps))
	for _, a := range apps {
		out = append(out, model.NotificationJob{
			RunID: "run-1", ApplicationID: a, Email: a + "@mail.test", Name: strings.ToUpper(a),
			Track: "backend", Template: tmpl, Phase: model.PhaseApplication, Attempt: 1,
		})
	}
	return out
}

func TestRenderer(t *testing.T) {
	Convey("Given the embedded templates", t, func() {
		r, err := NewRenderer()
		So(err, ShouldBeNil)

		Convey("When rendering an advance at the application phase", func() {
			m, err := r.Render(model.NotificationJob{Email: "a@mail.test", Name: "Ada <script>", Track: "backend", Template: model.TemplateAdvance, Phase: model.PhaseApplication})
			So(err, ShouldBeNil)

			Convey("Then the name is escaped and the next step is named", func() {
				So(m.To, ShouldEqual, "a@mail.test")
				So(m.Subject, ShouldEqual, "You're invited to interview")
				So(m.HTML, ShouldContainSubstring, "Ada &lt;script&gt;")
				So(m.HTML, ShouldContainSubstring, "first interview round")
				So(m.HTML, ShouldContainSubstring, "backend track")
			})
		})

		Convey("When rendering a reject without a name or track", func() {
			m, err := r.Render(model.NotificationJob{Email: "b@mail.test", Template: model.TemplateReject, Phase: model.PhaseInterviewRound2})
			So(err, ShouldBeNil)
			So(m.Subject, ShouldEqual, "Update on your application")
			So(m.HTML, ShouldContainSubstring, "Hi there,")
			So(m.HTML, ShouldNotContainSubstring, "track")
		})

		Convey("When the job is malformed", func() {
			_, err := r.Render(model.NotificationJob{Template: model.TemplateReject, Phase: model.PhaseApplication})
			So(errors.Is(err, ErrNoRecipient), ShouldBeTrue)

			_, err = r.Render(model.NotificationJob{Email: "x@mail.test", Template: "welcome", Phase: model.PhaseApplication})
			So(errors.Is(err, ErrUnknownTemplate), ShouldBeTrue)

			_, err = r.Render(model.NotificationJob{Email: "x@mail.test", Template: model.TemplateAdvance, Phase: "onsite"})
			So(errors.Is(err, ErrUnknownTemplate), ShouldBeTrue)
		})
	})
}

func TestSMTPSender(t *testing.T) {
	Convey("Given an SMTP sender with a captured transport", t, func() {
		var (
			gotAddr string
			gotAuth smtp.Auth
			gotTo   []string
			gotMsg  string
		)
		s := NewSMTPSender(SMTPConfig{Host: "mail.test", Port: 2525, Username: "u", Password: "p", From: "jobs@org.test"})
		s.now = func() time.Time { return time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC) }
		s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotAuth, gotTo, gotMsg = addr, a, to, string(msg)
			return nil
		}

		Convey("When a message is sent", func() {
			err := s.Send(context.Background(), Message{To: "a@mail.test", Subject: "Update", HTML: "<p>hi</p>"})
			So(err, ShouldBeNil)

			Convey("Then the relay receives a MIME html message", func() {
				So(gotAddr, ShouldEqual, "mail.test:2525")
				So(gotAuth, ShouldNotBeNil)
				So(gotTo, ShouldResemble, []string{"a@mail.test"})
				So(gotMsg, ShouldContainSubstring, "From: jobs@org.test\r\n")
				So(gotMsg, ShouldContainSubstring, "Content-Type: text/html")
				So(gotMsg, ShouldEndWith, "\r\n\r\n<p>hi</p>")
			})
		})

		Convey("When the relay fails", func() {
			s.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("421 try later") }
			err := s.Send(context.Background(), Message{To: "a@mail.test"})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "421 try later")
		})

		Convey("When there is no recipient", func() {
			So(errors.Is(s.Send(context.Background(), Message{}), ErrNoRecipient), ShouldBeTrue)
		})
	})
}

func TestLogSender(t *testing.T) {
	Convey("Given a log sender", t, func() {
		s := NewLogSender()
		So(s.Send(context.Background(), Message{To: "a@mail.test", Subject: "x"}), ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		So(s.Send(ctx, Message{To: "a@mail.test"}), ShouldNotBeNil)
	})
}

func TestCoordinator(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started coordinator", t, func() {
		sender := &recordingSender{fail: map[string]error{"c@mail.test": errors.New("mailbox full")}}
		store := &outcomeRecorder{}
		c, err := NewCoordinator(sender, store, WithWorkers(3), WithQueueSize(16), WithRateLimit(1000, 100))
		So(err, ShouldBeNil)
		runCtx, cancel := context.WithCancel(ctx)
		c.Start(runCtx)
		Reset(func() {
			_ = c.Shutdown(ctx)
			cancel()
		})

		Convey("When a batch with one bad mailbox is notified", func() {
			summary, err := c.Notify(ctx, jobs(model.TemplateAdvance, "a", "b", "c"))
			So(err, ShouldBeNil)

			Convey("Then failures are counted, not returned", func() {
				So(summary.Sent, ShouldEqual, 2)
				So(summary.Failed, ShouldEqual, 1)
				So(summary.Errors, ShouldResemble, []string{"c@mail.test: mailbox full"})
				So(sender.count(), ShouldEqual, 2)
			})

			Convey("Then one outcome per applicant is persisted", func() {
				So(store.outcomes, ShouldHaveLength, 3)
				for _, o := range store.outcomes {
					So(o.RunID, ShouldEqual, "run-1")
					So(o.Attempts, ShouldEqual, 1)
				}
			})

			Convey("And the same batch is notified again", func() {
				again, err := c.Notify(ctx, jobs(model.TemplateAdvance, "a", "b", "c"))
				So(err, ShouldBeNil)

				Convey("Then delivered jobs are suppressed and the failed one retried", func() {
					So(again.Sent, ShouldEqual, 0)
					So(again.Failed, ShouldEqual, 1)
					So(again.Skipped, ShouldEqual, 2)
					So(again.Sent+again.Failed+again.Skipped, ShouldEqual, 3)
					So(sender.count(), ShouldEqual, 2)
				})
			})
		})

		Convey("When the outcome store fails", func() {
			store.err = errors.New("disk full")
			summary, err := c.Notify(ctx, jobs(model.TemplateReject, "d"))
			So(err, ShouldNotBeNil)
			So(summary.Sent, ShouldEqual, 1)
		})

		Convey("When there is nothing to send", func() {
			summary, err := c.Notify(ctx, nil)
			So(err, ShouldBeNil)
			So(summary, ShouldResemble, model.NotificationSummary{})
		})
	})

	Convey("Given an always-failing sender", t, func() {
		store := &outcomeRecorder{}
		c, err := NewCoordinator(alwaysFailing{}, store, WithWorkers(2), WithDeduper(dedupe.NewInMemoryDeduper()))
		So(err, ShouldBeNil)
		runCtx, cancel := context.WithCancel(ctx)
		c.Start(runCtx)
		Reset(func() {
			_ = c.Shutdown(ctx)
			cancel()
		})

		summary, err := c.Notify(ctx, jobs(model.TemplateReject, "a", "b"))
		So(err, ShouldBeNil)
		So(summary.Sent, ShouldEqual, 0)
		So(summary.Failed, ShouldEqual, 2)
		So(store.outcomes, ShouldHaveLength, 2)
		So(store.outcomes[0].Status, ShouldEqual, model.NotificationFailed)
	})

	Convey("Given a coordinator that was never started", t, func() {
		store := &outcomeRecorder{}
		c, err := NewCoordinator(&recordingSender{}, store)
		So(err, ShouldBeNil)
		summary, err := c.Notify(ctx, jobs(model.TemplateAdvance, "a", "b"))
		So(errors.Is(err, ErrNotStarted), ShouldBeTrue)

		Convey("Then every job is counted and recorded as failed for a later retry", func() {
			So(summary.Failed, ShouldEqual, 2)
			So(store.outcomes, ShouldHaveLength, 2)
			for _, o := range store.outcomes {
				So(o.Status, ShouldEqual, model.NotificationFailed)
				So(o.Error, ShouldEqual, ErrNotStarted.Error())
			}
		})

		So(c.Shutdown(ctx), ShouldBeNil)
	})

	Convey("Given a sender that blocks until released", t, func() {
		release := make(chan struct{})
		store := &outcomeRecorder{}
		c, err := NewCoordinator(blockingSender{release: release}, store, WithWorkers(1))
		So(err, ShouldBeNil)
		runCtx, cancel := context.WithCancel(ctx)
		c.Start(runCtx)
		Reset(func() {
			close(release)
			_ = c.Shutdown(ctx)
			cancel()
		})

		Convey("When the caller stops waiting", func() {
			waitCtx, stop := context.WithTimeout(ctx, 50*time.Millisecond)
			defer stop()
			summary, err := c.Notify(waitCtx, jobs(model.TemplateAdvance, "a"))
			So(err, ShouldBeNil)

			Convey("Then the pending job is counted and recorded as failed", func() {
				So(summary.Sent, ShouldEqual, 0)
				So(summary.Failed, ShouldEqual, 1)
				So(store.outcomes, ShouldHaveLength, 1)
				So(store.outcomes[0].ApplicationID, ShouldEqual, "a")
				So(store.outcomes[0].Status, ShouldEqual, model.NotificationFailed)
			})
		})
	})
}
