package sync

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-submissions/core"
)

const defaultPollInterval = 30 * time.Second

var ErrEngineClosed = errors.New("sync: engine closed")

// Refresher is the part of the submission service the engine drives.
type Refresher interface {
	RefreshSubmissions(ctx context.Context, options core.RefreshOptions) (core.RefreshResult, error)
	CurrentSession() (core.Session, bool)
}

type Option func(*Engine)

func WithInterval(interval time.Duration) Option {
	return func(e *Engine) {
		if interval > 0 {
			e.interval = interval
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithTicker replaces the ticker factory. The returned stop func is called
// when the loop exits.
func WithTicker(factory func(time.Duration) (<-chan time.Time, func())) Option {
	return func(e *Engine) {
		if factory != nil {
			e.ticker = factory
		}
	}
}

// PollResult summarizes one reconciliation pass.
type PollResult struct {
	UserID    string
	Skipped   bool
	Discarded bool
	Changes   []core.Event
}

// Engine periodically refreshes the submission mirror of the active session
// and publishes one status-changed event per submission whose review status
// moved since the previous pass.
type Engine struct {
	refresher Refresher
	mirror    core.MirrorStore
	bus       *core.EventBus
	logger    core.Logger
	interval  time.Duration
	now       func() time.Time
	ticker    func(time.Duration) (<-chan time.Time, func())

	busy    atomic.Bool
	skipped atomic.Int64
	polls   atomic.Int64

	mu          gosync.Mutex
	session     core.Session
	cancel      context.CancelFunc
	done        chan struct{}
	closed      bool
	unsubscribe func()
}

func NewEngine(refresher Refresher, mirror core.MirrorStore, bus *core.EventBus, opts ...Option) *Engine {
	e := &Engine{
		refresher: refresher,
		mirror:    mirror,
		bus:       bus,
		interval:  defaultPollInterval,
		now:       func() time.Time { return time.Now().UTC() },
		ticker: func(interval time.Duration) (<-chan time.Time, func()) {
			ticker := time.NewTicker(interval)
			return ticker.C, ticker.Stop
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.logger = glog.Ensure(e.logger)
	if e.mirror == nil {
		e.mirror = core.NewMemoryMirrorStore()
	}
	if bus != nil {
		e.unsubscribe = bus.Subscribe(e.recordCreated, core.EventSubmissionCreated)
	}
	return e
}

func (e *Engine) Interval() time.Duration {
	return e.interval
}

// Skipped reports how many polls were dropped because one was in flight.
func (e *Engine) Skipped() int64 {
	return e.skipped.Load()
}

func (e *Engine) Polls() int64 {
	return e.polls.Load()
}

// Running reports whether the ticker loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel != nil
}

func (e *Engine) OnSessionStart(ctx context.Context, session core.Session) {
	if err := e.Start(ctx, session); err != nil {
		e.logger.Warn("reconcile loop not started", "user_id", session.UserID, "error", err)
	}
}

// OnSessionEnd stops the loop without waiting for it. A logout may be raised
// from inside a poll, which must not block on itself.
func (e *Engine) OnSessionEnd(_ context.Context, session core.Session, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.ID != session.ID {
		return
	}
	e.detachLocked()
	e.logger.Debug("reconcile loop stopped", "user_id", session.UserID, "reason", reason)
}

// Start runs the polling loop for session until Stop or the session ends.
// Starting again replaces any previous loop.
func (e *Engine) Start(ctx context.Context, session core.Session) error {
	if !session.Active() {
		return errors.New("sync: session is required")
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	e.detachLocked()
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	e.session = session
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	go e.loop(loopCtx, done)
	return nil
}

// Stop cancels the loop and waits for it to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	done := e.done
	e.detachLocked()
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close stops the loop and releases the event subscription.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()
	e.Stop()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (e *Engine) detachLocked() {
	if e.cancel != nil {
		e.cancel()
	}
	e.cancel = nil
	e.done = nil
	e.session = core.Session{}
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticks, stop := e.ticker(e.interval)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			if _, err := e.Poll(ctx); err != nil && ctx.Err() == nil {
				e.logger.Warn("reconcile poll failed", "error", err)
			}
		}
	}
}

// Poll performs one reconciliation pass. A call made while another pass is
// in flight returns immediately with Skipped set.
func (e *Engine) Poll(ctx context.Context) (PollResult, error) {
	if !e.busy.CompareAndSwap(false, true) {
		e.skipped.Add(1)
		e.logger.Debug("reconcile poll skipped, previous poll still running")
		return PollResult{Skipped: true}, nil
	}
	defer e.busy.Store(false)

	session, ok := e.refresher.CurrentSession()
	if !ok {
		return PollResult{}, nil
	}
	result := PollResult{UserID: session.UserID}
	e.polls.Add(1)

	snapshotKey := core.SnapshotKey(session.UserID)
	snapshot, err := e.mirror.Load(ctx, snapshotKey)
	if err != nil {
		return result, err
	}

	refreshed, err := e.refresher.RefreshSubmissions(ctx, core.RefreshOptions{Silent: true})
	if err != nil {
		if core.IsSessionChanged(err) {
			result.Discarded = true
			return result, nil
		}
		return result, err
	}
	if refreshed.UserID != session.UserID {
		result.Discarded = true
		return result, nil
	}

	changes := diffStatuses(priorStatuses(refreshed.Previous, snapshot), refreshed.Submissions)

	e.mu.Lock()
	current, ok := e.refresher.CurrentSession()
	if !ok || current.ID != session.ID || e.session.ID != session.ID {
		e.mu.Unlock()
		result.Discarded = true
		return result, nil
	}
	err = e.mirror.Replace(ctx, snapshotKey, refreshed.Submissions)
	e.mu.Unlock()
	if err != nil {
		return result, err
	}

	occurredAt := e.now()
	for _, change := range changes {
		submission := change.submission
		event := core.Event{
			Type:           core.EventStatusChanged,
			UserID:         session.UserID,
			Submission:     &submission,
			PreviousStatus: change.previous,
			OccurredAt:     occurredAt,
		}
		result.Changes = append(result.Changes, event)
		e.bus.Publish(ctx, event)
	}
	if len(changes) > 0 {
		e.logger.Info("submission statuses changed", "user_id", session.UserID, "count", len(changes))
	}
	return result, nil
}

// recordCreated adds a freshly created submission to the poll snapshot, so a
// review observed by a manual refresh before the next poll still counts as a
// transition.
func (e *Engine) recordCreated(ctx context.Context, event core.Event) {
	if event.Submission == nil || event.UserID == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.UserID != event.UserID {
		return
	}
	if err := e.mirror.Prepend(ctx, core.SnapshotKey(event.UserID), *event.Submission); err != nil {
		e.logger.Warn("snapshot update failed", "user_id", event.UserID, "error", err)
	}
}

type statusChange struct {
	submission core.Submission
	previous   core.SubmissionStatus
}

// priorStatuses is the status last seen per id: the mirror before the
// refresh, overridden by the snapshot of the previous poll.
func priorStatuses(previous []core.Submission, snapshot []core.Submission) map[string]core.SubmissionStatus {
	prior := make(map[string]core.SubmissionStatus, len(previous)+len(snapshot))
	for _, submission := range previous {
		if submission.Ref.IsConfirmed() {
			prior[submission.ID()] = submission.Status
		}
	}
	for _, submission := range snapshot {
		if submission.Ref.IsConfirmed() {
			prior[submission.ID()] = submission.Status
		}
	}
	return prior
}

// diffStatuses keeps the order of next. Ids with no prior status are new and
// do not count as a change.
func diffStatuses(prior map[string]core.SubmissionStatus, next []core.Submission) []statusChange {
	var changes []statusChange
	for _, submission := range next {
		previous, ok := prior[submission.ID()]
		if !ok || previous == submission.Status {
			continue
		}
		changes = append(changes, statusChange{submission: submission, previous: previous})
	}
	return changes
}

var _ core.SessionListener = (*Engine)(nil)
