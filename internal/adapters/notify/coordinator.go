package notify

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/okian/cohort/internal/adapters/mq/queue"
	"github.com/okian/cohort/internal/adapters/mq/worker"
	"github.com/okian/cohort/internal/domain/dedupe"
	"github.com/okian/cohort/internal/domain/model"
	"github.com/okian/cohort/pkg/logger"
	"github.com/okian/cohort/pkg/metrics"
	"golang.org/x/time/rate"
)

// OutcomeStore persists per-applicant delivery results.
type OutcomeStore interface {
	SaveNotificationOutcomes(ctx context.Context, outcomes []model.NotificationOutcome) error
}

// Coordinator fans notification jobs out to a worker pool, throttles the
// sends and records one outcome per job. Delivery failures are reported as
// counts and never returned as errors.
type Coordinator struct {
	sender   Sender
	store    OutcomeStore
	renderer *Renderer
	deduper  dedupe.Deduper
	limiter  *rate.Limiter
	queue    *queue.InMemoryQueue
	pool     *worker.Pool
	started  atomic.Bool
	logger   logger.Logger

	workers   int
	queueSize int
}

// NewCoordinator wires a coordinator. Call Start before Notify.
func NewCoordinator(sender Sender, store OutcomeStore, opts ...Option) (*Coordinator, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	c := &Coordinator{
		sender:    sender,
		store:     store,
		renderer:  renderer,
		deduper:   dedupe.NewInMemoryDeduper(),
		limiter:   rate.NewLimiter(rate.Limit(defaultRate), defaultBurst),
		logger:    logger.Named("notify"),
		workers:   defaultWorkers,
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.queue = queue.NewInMemoryQueue(queue.WithCapacity(c.queueSize))
	c.pool = worker.NewPool(c.workers, c.queue, worker.ProcessorFunc(c.deliver))
	return c, nil
}

// Start launches the worker pool.
func (c *Coordinator) Start(ctx context.Context) {
	if c.started.CompareAndSwap(false, true) {
		c.pool.Start(ctx)
	}
}

// Shutdown drains queued jobs and stops the workers.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	if !c.started.Load() {
		return c.queue.Close()
	}
	return c.pool.Shutdown(ctx)
}

// deliver is run by a worker for each job.
func (c *Coordinator) deliver(ctx context.Context, job model.NotificationJob) error {
	err := c.send(ctx, job)
	if err != nil {
		// Let a later retry through.
		c.deduper.Unrecord(ctx, job.Key())
	}
	return err
}

func (c *Coordinator) send(ctx context.Context, job model.NotificationJob) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	msg, err := c.renderer.Render(job)
	if err != nil {
		return err
	}
	return c.sender.Send(ctx, msg)
}

// Notify delivers jobs and waits for their outcomes. Jobs whose delivery
// key is already in flight or sent are skipped. Every other job gets a
// persisted outcome, failed when it could not be queued or was still
// pending when ctx ended, so a retry can pick it up. A persistence failure
// is returned alongside the summary.
func (c *Coordinator) Notify(ctx context.Context, jobs []model.NotificationJob) (model.NotificationSummary, error) {
	var summary model.NotificationSummary
	if len(jobs) == 0 {
		return summary, nil
	}
	if !c.started.Load() {
		outcomes := make([]model.NotificationOutcome, 0, len(jobs))
		for _, j := range jobs {
			outcomes = append(outcomes, failed(j, ErrNotStarted))
		}
		summary = summarize(outcomes, 0)
		if err := c.persist(ctx, outcomes); err != nil {
			return summary, errors.Join(ErrNotStarted, err)
		}
		return summary, ErrNotStarted
	}

	results := make(chan model.NotificationOutcome, len(jobs))
	outcomes := make([]model.NotificationOutcome, 0, len(jobs))
	inflight := make(map[string]model.NotificationJob, len(jobs))
	skipped := 0
	for _, j := range jobs {
		if c.deduper.SeenAndRecord(ctx, j.Key()) {
			skipped++
			metrics.RecordNotificationDuplicate()
			c.logger.Debug(ctx, "skipping duplicate notification",
				logger.String("run_id", j.RunID),
				logger.String("application_id", j.ApplicationID),
			)
			continue
		}
		if err := c.queue.Enqueue(ctx, queue.Job{Notification: j, Result: results}); err != nil {
			c.deduper.Unrecord(ctx, j.Key())
			outcomes = append(outcomes, failed(j, err))
			continue
		}
		inflight[j.Key()] = j
	}

wait:
	for len(inflight) > 0 {
		select {
		case o := <-results:
			delete(inflight, outcomeKey(o))
			outcomes = append(outcomes, o)
		case <-ctx.Done():
			break wait
		}
	}
	if len(inflight) > 0 {
		c.logger.Warn(ctx, "stopped waiting for notifications", logger.Int("pending", len(inflight)), logger.Error(ctx.Err()))
		for _, j := range inflight {
			outcomes = append(outcomes, failed(j, ctx.Err()))
		}
	}

	summary = summarize(outcomes, skipped)
	if err := c.persist(ctx, outcomes); err != nil {
		return summary, err
	}
	return summary, nil
}

// persist records outcomes even when the caller has given up waiting.
func (c *Coordinator) persist(ctx context.Context, outcomes []model.NotificationOutcome) error {
	if c.store == nil || len(outcomes) == 0 {
		return nil
	}
	if err := c.store.SaveNotificationOutcomes(context.WithoutCancel(ctx), outcomes); err != nil {
		c.logger.Error(ctx, "failed to persist notification outcomes", logger.Error(err))
		return fmt.Errorf("persist notification outcomes: %w", err)
	}
	return nil
}

func summarize(outcomes []model.NotificationOutcome, skipped int) model.NotificationSummary {
	summary := model.NotificationSummary{Skipped: skipped}
	for _, o := range outcomes {
		switch o.Status {
		case model.NotificationSent:
			summary.Sent++
		default:
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %s", o.Email, o.Error))
		}
	}
	return summary
}

func outcomeKey(o model.NotificationOutcome) string {
	return model.NotificationJob{RunID: o.RunID, ApplicationID: o.ApplicationID, Template: o.Template}.Key()
}

func failed(j model.NotificationJob, err error) model.NotificationOutcome {
	return model.NotificationOutcome{
		RunID:         j.RunID,
		ApplicationID: j.ApplicationID,
		Email:         j.Email,
		Template:      j.Template,
		Phase:         j.Phase,
		Status:        model.NotificationFailed,
		Error:         err.Error(),
		Attempts:      j.Attempt,
	}
}
