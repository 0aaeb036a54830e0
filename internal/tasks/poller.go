// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/arag-cli/internal/client"
	"github.com/jeranaias/arag-cli/internal/logging"
)

// DefaultInterval is the pause between two status fetches.
const DefaultInterval = 2000 * time.Millisecond

var (
	// ErrTimedOut is returned when MaxAttempts or MaxDuration is exceeded.
	// It is distinct from a failed task.
	ErrTimedOut = errors.New("task polling timed out")

	// ErrCanceled ends a sequence stopped through Watch.Cancel.
	ErrCanceled = errors.New("task polling canceled")

	errConsumed = errors.New("watch already consumed")
)

// TaskFailedError carries the server message of a failed task.
type TaskFailedError struct {
	TaskID  string
	Message string
}

func (e *TaskFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("task %s failed", e.TaskID)
	}
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Message)
}

// StatusFetcher fetches one task status. *client.Client satisfies it.
type StatusFetcher interface {
	TaskStatus(ctx context.Context, taskID string) (*client.TaskStatusResponse, error)
}

// Options tunes a Poller. Zero values mean "default" or "no limit".
type Options struct {
	Interval    time.Duration
	MaxAttempts int
	MaxDuration time.Duration

	// Registry, when set, receives a record for every watch.
	Registry *Registry
}

// Poller watches background tasks until they reach a terminal status.
type Poller struct {
	fetcher StatusFetcher
	opts    Options
}

// NewPoller creates a poller over fetcher.
func NewPoller(fetcher StatusFetcher, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Poller{fetcher: fetcher, opts: opts}
}

// Watch starts a cancellable watch of taskID. Nothing is fetched until the
// sequence returned by Snapshots is ranged over.
func (p *Poller) Watch(ctx context.Context, taskID string) *Watch {
	return p.WatchNamed(ctx, taskID, "")
}

// WatchNamed is Watch with a description for the task record.
func (p *Poller) WatchNamed(ctx context.Context, taskID, description string) *Watch {
	wctx, cancel := context.WithCancel(ctx)
	w := &Watch{
		poller: p,
		parent: ctx,
		ctx:    wctx,
		cancel: cancel,
		task:   NewTask(taskID, description),
	}
	if p.opts.Registry != nil {
		p.opts.Registry.Add(w.task)
	}
	return w
}

// Poll watches taskID to the end, calling onProgress for every processing
// snapshot and once for the completed one. It returns the completed snapshot,
// or the last snapshot seen together with the error that ended the watch.
func (p *Poller) Poll(ctx context.Context, taskID string, onProgress func(Snapshot)) (Snapshot, error) {
	w := p.Watch(ctx, taskID)
	defer w.Cancel()
	return w.Wait(onProgress)
}

// =============================================================================
// WATCH
// =============================================================================

// Watch is a handle on one polling run.
type Watch struct {
	poller *Poller
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc

	// mu orders Cancel against the check made before each delivery.
	mu       sync.Mutex
	canceled atomic.Bool
	consumed atomic.Bool

	task *Task
}

// Cancel stops the watch. An in-flight fetch is aborted and its result is
// dropped; once Cancel returns no further snapshot is delivered and the
// sequence ends with ErrCanceled. Safe to call more than once.
func (w *Watch) Cancel() {
	w.mu.Lock()
	w.canceled.Store(true)
	w.mu.Unlock()
	w.cancel()
}

// admit reports whether a snapshot may still be delivered. The lock is not
// held across yield so that Cancel can be called from the loop body.
func (w *Watch) admit() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.canceled.Load()
}

// Task returns a copy of the watch's record.
func (w *Watch) Task() *Task {
	return w.task.Clone()
}

// TaskID returns the backend task id.
func (w *Watch) TaskID() string {
	return w.task.TaskID
}

// Wait ranges over Snapshots with a callback. See Poller.Poll.
func (w *Watch) Wait(onProgress func(Snapshot)) (Snapshot, error) {
	var last Snapshot
	for snap, err := range w.Snapshots() {
		if snap.TaskID != "" {
			last = snap
		}
		if err != nil {
			return last, err
		}
		if onProgress != nil {
			onProgress(snap)
		}
		if snap.Status == StatusCompleted {
			return snap, nil
		}
	}
	return last, ErrCanceled
}

// Snapshots returns the lazy sequence of observations. The sequence is
// finite: it ends after a completed snapshot, or after yielding an error
// (a failed task yields its snapshot with a *TaskFailedError). A watch can
// be ranged over once.
func (w *Watch) Snapshots() iter.Seq2[Snapshot, error] {
	return func(yield func(Snapshot, error) bool) {
		if !w.consumed.CompareAndSwap(false, true) {
			yield(Snapshot{}, errConsumed)
			return
		}
		defer w.cancel()
		w.run(yield)
	}
}

func (w *Watch) run(yield func(Snapshot, error) bool) {
	p := w.poller
	ctx := w.ctx
	if p.opts.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.MaxDuration)
		defer cancel()
	}

	limiter := rate.NewLimiter(rate.Every(p.opts.Interval), 1)
	w.task.markStarted()
	taskID := w.task.TaskID
	var last Status

	for attempt := 1; ; attempt++ {
		if w.canceled.Load() {
			w.end(yield, Snapshot{}, StateCanceled, ErrCanceled)
			return
		}
		if err := limiter.Wait(ctx); err != nil {
			w.interrupted(yield, ctx, err, true)
			return
		}

		resp, err := p.fetcher.TaskStatus(ctx, taskID)
		if w.canceled.Load() || ctx.Err() != nil {
			w.interrupted(yield, ctx, ctx.Err(), false)
			return
		}
		if err != nil {
			w.interrupted(yield, ctx, err, false)
			return
		}
		limiter = pace(p.opts.Interval, time.Now())

		snap := SnapshotFrom(resp)
		if snap.TaskID == "" {
			snap.TaskID = taskID
		}
		w.task.observe(snap)

		if snap.Status != last {
			logging.WithFields("debug", "task status", logging.Fields{
				"task_id": taskID,
				"status":  snap.Status.String(),
				"attempt": attempt,
				"chunks":  fmt.Sprintf("%d/%d", snap.ChunksProcessed, snap.TotalChunks),
			})
			last = snap.Status
		}

		if !w.admit() {
			w.end(yield, Snapshot{}, StateCanceled, ErrCanceled)
			return
		}

		switch snap.Status {
		case StatusCompleted:
			w.end(yield, snap, StateComplete, nil)
			return
		case StatusFailed:
			w.end(yield, snap, StateFailed, &TaskFailedError{TaskID: taskID, Message: snap.Message})
			return
		}

		if !yield(snap, nil) {
			w.finish(StateCanceled, nil)
			return
		}

		if p.opts.MaxAttempts > 0 && attempt >= p.opts.MaxAttempts {
			w.end(yield, Snapshot{}, StateTimedOut, ErrTimedOut)
			return
		}
	}
}

// pace returns a limiter whose next token is one interval after now, so the
// pause between fetches is measured from the previous response.
func pace(interval time.Duration, now time.Time) *rate.Limiter {
	l := rate.NewLimiter(rate.Every(interval), 1)
	l.AllowN(now, 1)
	return l
}

// interrupted classifies an error from the limiter or the fetcher.
// A limiter error means the next fetch would miss a deadline of ctx.
func (w *Watch) interrupted(yield func(Snapshot, error) bool, ctx context.Context, err error, fromLimiter bool) {
	_, hasDeadline := ctx.Deadline()
	switch {
	case w.canceled.Load():
		w.end(yield, Snapshot{}, StateCanceled, ErrCanceled)
	case errors.Is(w.parent.Err(), context.DeadlineExceeded):
		w.end(yield, Snapshot{}, StateTimedOut, w.parentTimeout())
	case w.parent.Err() != nil:
		w.end(yield, Snapshot{}, StateCanceled, w.parent.Err())
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		w.end(yield, Snapshot{}, StateTimedOut, ErrTimedOut)
	case fromLimiter && hasDeadline:
		if w.parentDeadlineFirst(ctx) {
			w.end(yield, Snapshot{}, StateTimedOut, w.parentTimeout())
			return
		}
		w.end(yield, Snapshot{}, StateTimedOut, ErrTimedOut)
	default:
		w.end(yield, Snapshot{}, StateFailed, err)
	}
}

// parentDeadlineFirst reports whether the caller's deadline, not MaxDuration,
// bounds ctx.
func (w *Watch) parentDeadlineFirst(ctx context.Context) bool {
	parentDL, ok := w.parent.Deadline()
	if !ok {
		return false
	}
	own, _ := ctx.Deadline()
	return !parentDL.After(own)
}

func (w *Watch) parentTimeout() error {
	return fmt.Errorf("%w: %w", ErrTimedOut, context.DeadlineExceeded)
}

// end finishes the record and yields the final element.
func (w *Watch) end(yield func(Snapshot, error) bool, snap Snapshot, state State, err error) {
	w.finish(state, err)
	if state == StateComplete {
		yield(snap, nil)
		return
	}
	yield(snap, err)
}

func (w *Watch) finish(state State, err error) {
	if !w.task.finish(state, err) {
		return
	}
	if state != StateComplete {
		logging.WithFields("info", "task watch ended", logging.Fields{
			"task_id": w.task.TaskID,
			"state":   state.String(),
			"error":   fmt.Sprint(err),
		})
	}
	if w.poller.opts.Registry != nil {
		w.poller.opts.Registry.finished(w.task)
	}
}
