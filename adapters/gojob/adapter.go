package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-submissions/core"
	reconcile "github.com/goliatone/go-submissions/sync"
)

const (
	JobIDReconcilePoll = "submissions.reconcile.poll"

	paramUserID = "user_id"
	dedupDrop   = "drop"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// Backoff doubles BaseDelay per attempt, bounded by MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 || attempt <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// Poller runs one reconciliation pass for the active session.
type Poller interface {
	Poll(ctx context.Context) (reconcile.PollResult, error)
}

type ReconcileJobs struct {
	enqueuer queue.Enqueuer
	poller   Poller
	policy   RetryPolicy
	logger   core.Logger
	now      func() time.Time
	interval time.Duration
}

type ReconcileOption func(*ReconcileJobs)

func WithRetryPolicy(policy RetryPolicy) ReconcileOption {
	return func(r *ReconcileJobs) {
		r.policy = policy
	}
}

func WithLogger(logger core.Logger) ReconcileOption {
	return func(r *ReconcileJobs) {
		r.logger = logger
	}
}

func WithClock(now func() time.Time) ReconcileOption {
	return func(r *ReconcileJobs) {
		r.now = now
	}
}

// WithDedupInterval sets the window within which repeated poll requests for
// the same user collapse into one job.
func WithDedupInterval(interval time.Duration) ReconcileOption {
	return func(r *ReconcileJobs) {
		r.interval = interval
	}
}

// NewReconcileJobs drives reconciliation passes through a go-job queue so
// polls can be scheduled out of process.
func NewReconcileJobs(enqueuer queue.Enqueuer, poller Poller, opts ...ReconcileOption) *ReconcileJobs {
	r := &ReconcileJobs{
		enqueuer: enqueuer,
		poller:   poller,
		now:      time.Now,
		interval: 30 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.logger = glog.Ensure(r.logger)
	return r
}

// PollMessage builds the execution message for one poll of userID.
func (r *ReconcileJobs) PollMessage(userID string) (*job.ExecutionMessage, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("gojob: user id is required")
	}
	bucket := int64(0)
	if r.interval > 0 {
		bucket = r.now().UnixNano() / int64(r.interval)
	}
	return &job.ExecutionMessage{
		JobID:          JobIDReconcilePoll,
		ScriptPath:     JobIDReconcilePoll,
		Parameters:     map[string]any{paramUserID: userID},
		IdempotencyKey: fmt.Sprintf("%s:%s:%d", JobIDReconcilePoll, userID, bucket),
		DedupPolicy:    job.DeduplicationPolicy(dedupDrop),
	}, nil
}

func (r *ReconcileJobs) EnqueuePoll(ctx context.Context, userID string) error {
	if r == nil || r.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	msg, err := r.PollMessage(userID)
	if err != nil {
		return err
	}
	return r.enqueuer.Enqueue(ctx, msg)
}

// Handle runs the poll carried by delivery and settles it. Failed polls are
// nacked with the retry policy backoff; unknown jobs are dead-lettered.
func (r *ReconcileJobs) Handle(ctx context.Context, delivery queue.Delivery, attempt int) error {
	if r == nil || r.poller == nil {
		return fmt.Errorf("gojob: poller is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	msg := delivery.Message()
	if msg == nil || strings.TrimSpace(msg.JobID) != JobIDReconcilePoll {
		jobID := ""
		if msg != nil {
			jobID = msg.JobID
		}
		r.logger.Warn("unexpected job on reconcile queue", "job_id", jobID)
		return delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: "unknown job " + jobID})
	}

	userID, _ := msg.Parameters[paramUserID].(string)
	result, err := r.poller.Poll(ctx)
	if err != nil {
		r.logger.Warn("reconcile poll failed", "user_id", userID, "attempt", attempt, "error", err)
		opts := r.policy.NormalizeAttempt(queue.NackOptions{
			Delay:   r.policy.Backoff(attempt),
			Requeue: true,
			Reason:  err.Error(),
		}, attempt)
		return delivery.Nack(ctx, opts)
	}
	if userID != "" && result.UserID != "" && result.UserID != userID {
		r.logger.Debug("reconcile poll ran for a different user", "queued_user_id", userID, "user_id", result.UserID)
	}
	return delivery.Ack(ctx)
}

// ProcessNext dequeues one delivery and handles it.
func (r *ReconcileJobs) ProcessNext(ctx context.Context, dequeuer queue.Dequeuer, attempt int) error {
	if dequeuer == nil {
		return fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	return r.Handle(ctx, delivery, attempt)
}

// LoggingHook reports worker lifecycle events through a structured logger.
type LoggingHook struct {
	logger core.Logger
}

func NewLoggingHook(logger core.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(_ context.Context, event worker.Event) {
	h.logger.Debug("reconcile job started", eventFields(event)...)
}

func (h *LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.logger.Info("reconcile job succeeded", eventFields(event)...)
}

func (h *LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	h.logger.Error("reconcile job failed", eventFields(event)...)
}

func (h *LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	h.logger.Warn("reconcile job retrying", eventFields(event)...)
}

func eventFields(event worker.Event) []any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	fields := []any{"attempt", event.Attempt, "duration_ms", event.Duration.Milliseconds()}
	if message != nil {
		fields = append(fields, "job_id", message.JobID, "idempotency_key", message.IdempotencyKey)
		if userID, ok := message.Parameters[paramUserID]; ok {
			fields = append(fields, paramUserID, userID)
		}
	}
	if event.Delay > 0 {
		fields = append(fields, "delay_ms", event.Delay.Milliseconds())
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err.Error())
	}
	return fields
}

var (
	_ worker.Hook = (*LoggingHook)(nil)
	_ Poller      = (*reconcile.Engine)(nil)
)
