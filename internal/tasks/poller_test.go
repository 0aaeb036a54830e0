// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/arag-cli/internal/apierr"
	"github.com/jeranaias/arag-cli/internal/client"
	"github.com/jeranaias/arag-cli/internal/logging"
)

// scriptedFetcher replays a fixed list of responses, repeating the last one.
type scriptedFetcher struct {
	mu     sync.Mutex
	script []scriptStep
	calls  int
}

type scriptStep struct {
	resp *client.TaskStatusResponse
	err  error
}

func (f *scriptedFetcher) TaskStatus(ctx context.Context, taskID string) (*client.TaskStatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	f.calls++
	step := f.script[i]
	if step.resp != nil {
		r := *step.resp
		r.TaskID = taskID
		return &r, step.err
	}
	return nil, step.err
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func processing(done, total int) scriptStep {
	return scriptStep{resp: &client.TaskStatusResponse{Status: "processing", ChunksProcessed: done, TotalChunks: total}}
}

func completed() scriptStep {
	now := time.Now()
	return scriptStep{resp: &client.TaskStatusResponse{Status: "completed", ChunksProcessed: 4, TotalChunks: 4, CompletedAt: &now}}
}

func failed(msg string) scriptStep {
	return scriptStep{resp: &client.TaskStatusResponse{Status: "failed", Message: msg}}
}

func fastOptions() Options {
	return Options{Interval: 5 * time.Millisecond}
}

func TestPoll_ProcessingThenCompleted(t *testing.T) {
	f := &scriptedFetcher{script: []scriptStep{processing(1, 4), processing(2, 4), completed()}}
	p := NewPoller(f, fastOptions())

	var seen []Status
	final, err := p.Poll(context.Background(), "t1", func(s Snapshot) {
		seen = append(seen, s.Status)
	})

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, "t1", final.TaskID)
	assert.Equal(t, []Status{StatusProcessing, StatusProcessing, StatusCompleted}, seen)
	assert.Equal(t, 3, f.Calls())
}

func TestPoll_Failed(t *testing.T) {
	f := &scriptedFetcher{script: []scriptStep{processing(0, 0), failed("parse error")}}
	p := NewPoller(f, fastOptions())

	calls := 0
	final, err := p.Poll(context.Background(), "t1", func(Snapshot) { calls++ })

	var failedErr *TaskFailedError
	require.ErrorAs(t, err, &failedErr)
	assert.Equal(t, "parse error", failedErr.Message)
	assert.Contains(t, err.Error(), "parse error")
	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, 1, calls, "failed snapshot must not reach the progress callback")
}

func TestPoll_TransportErrorAborts(t *testing.T) {
	f := &scriptedFetcher{script: []scriptStep{
		processing(1, 2),
		{err: &apierr.ApiError{Detail: "Task not found", Status: 404}},
	}}
	p := NewPoller(f, fastOptions())

	_, err := p.Poll(context.Background(), "t1", nil)

	assert.True(t, apierr.IsStatus(err, 404))
	assert.Equal(t, 2, f.Calls())
}

func TestPoll_FirstFetchIsImmediate(t *testing.T) {
	f := &scriptedFetcher{script: []scriptStep{completed()}}
	p := NewPoller(f, Options{Interval: time.Hour})

	start := time.Now()
	_, err := p.Poll(context.Background(), "t1", nil)

	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPoll_WaitsBetweenFetches(t *testing.T) {
	f := &scriptedFetcher{script: []scriptStep{processing(0, 1), processing(0, 1), completed()}}
	p := NewPoller(f, Options{Interval: 40 * time.Millisecond})

	start := time.Now()
	_, err := p.Poll(context.Background(), "t1", nil)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

// slowFetcher answers after a fixed delay and records when each fetch
// started and when its response was returned.
type slowFetcher struct {
	delay time.Duration

	mu        sync.Mutex
	starts    []time.Time
	responses []time.Time
}

func (f *slowFetcher) TaskStatus(ctx context.Context, taskID string) (*client.TaskStatusResponse, error) {
	f.mu.Lock()
	f.starts = append(f.starts, time.Now())
	n := len(f.starts)
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.responses = append(f.responses, time.Now())
	f.mu.Unlock()

	status := "processing"
	if n >= 3 {
		status = "completed"
	}
	return &client.TaskStatusResponse{TaskID: taskID, Status: status}, nil
}

func TestPoll_IntervalCountsFromResponse(t *testing.T) {
	const interval = 100 * time.Millisecond
	f := &slowFetcher{delay: 60 * time.Millisecond}
	p := NewPoller(f, Options{Interval: interval})

	_, err := p.Poll(context.Background(), "t1", nil)
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.starts, 3)
	for i := 1; i < len(f.starts); i++ {
		gap := f.starts[i].Sub(f.responses[i-1])
		assert.GreaterOrEqual(t, gap, interval-10*time.Millisecond, "fetch %d started %v after the previous response", i+1, gap)
	}
}

func TestWatch_CancelBetweenPolls(t *testing.T) {
	f := &scriptedFetcher{script: []scriptStep{processing(1, 10)}}
	p := NewPoller(f, Options{Interval: 50 * time.Millisecond})
	w := p.Watch(context.Background(), "t1")

	var snaps int
	var last error
	for snap, err := range w.Snapshots() {
		if err != nil {
			last = err
			break
		}
		snaps++
		assert.Equal(t, StatusProcessing, snap.Status)
		w.Cancel()
	}

	assert.ErrorIs(t, last, ErrCanceled)
	assert.Equal(t, 1, snaps)
	assert.Equal(t, 1, f.Calls())
	assert.Equal(t, StateCanceled, w.Task().State)
}

// blockingFetcher holds every fetch until its context ends.
type blockingFetcher struct {
	started chan struct{}
	once    sync.Once
}

func (f *blockingFetcher) TaskStatus(ctx context.Context, taskID string) (*client.TaskStatusResponse, error) {
	f.once.Do(func() { close(f.started) })
	<-ctx.Done()
	// Pretend the response arrived anyway.
	return &client.TaskStatusResponse{TaskID: taskID, Status: "processing"}, nil
}

func TestWatch_CancelDuringFetch(t *testing.T) {
	f := &blockingFetcher{started: make(chan struct{})}
	p := NewPoller(f, fastOptions())
	w := p.Watch(context.Background(), "t1")

	go func() {
		<-f.started
		w.Cancel()
	}()

	var delivered int32
	_, err := w.Wait(func(Snapshot) { atomic.AddInt32(&delivered, 1) })

	assert.ErrorIs(t, err, ErrCanceled)
	assert.Zero(t, atomic.LoadInt32(&delivered))
}

func TestWatch_ParentContextCanceled(t *testing.T) {
	f := &blockingFetcher{started: make(chan struct{})}
	p := NewPoller(f, fastOptions())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-f.started
		cancel()
	}()

	_, err := p.Poll(ctx, "t1", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimedOut)
}

// cancelOnStatusLog cancels a watch when the poller logs a status change,
// which happens after the fetch returned and before the snapshot is delivered.
type cancelOnStatusLog struct {
	logging.Logger
	w *Watch
}

func (l cancelOnStatusLog) Debug(args ...any) {
	if len(args) > 0 && strings.HasPrefix(fmt.Sprint(args[0]), "task status") {
		l.w.Cancel()
	}
}

func TestWatch_CancelAfterFetchBeforeDelivery(t *testing.T) {
	for name, step := range map[string]scriptStep{
		"processing": processing(1, 2),
		"completed":  completed(),
		"failed":     failed("boom"),
	} {
		t.Run(name, func(t *testing.T) {
			f := &scriptedFetcher{script: []scriptStep{step}}
			w := NewPoller(f, fastOptions()).Watch(context.Background(), "t1")

			prev := logging.Log()
			logging.SetLogger(cancelOnStatusLog{Logger: prev, w: w})
			defer logging.SetLogger(prev)

			var delivered int
			var last error
			for snap, err := range w.Snapshots() {
				if err != nil {
					last = err
					break
				}
				if snap.TaskID != "" {
					delivered++
				}
			}

			assert.ErrorIs(t, last, ErrCanceled)
			assert.Zero(t, delivered)
			assert.Equal(t, 1, f.Calls())
			assert.Equal(t, StateCanceled, w.Task().State)
		})
	}
}

func TestPoll_CallerDeadlineBeforeNextFetch(t *testing.T) {
	f := &scriptedFetcher{script: []scriptStep{processing(0, 1)}}
	p := NewPoller(f, Options{Interval: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	w := p.Watch(ctx, "t1")
	calls := 0
	_, err := w.Wait(func(Snapshot) { calls++ })

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, ErrTimedOut)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var failedErr *TaskFailedError
	assert.False(t, errors.As(err, &failedErr))
	assert.Equal(t, StateTimedOut, w.Task().State)
}

func TestPoll_MaxAttempts(t *testing.T) {
	f := &scriptedFetcher{script: []scriptStep{processing(0, 0)}}
	p := NewPoller(f, Options{Interval: time.Millisecond, MaxAttempts: 3})
	w := p.Watch(context.Background(), "t1")

	calls := 0
	_, err := w.Wait(func(Snapshot) { calls++ })

	assert.ErrorIs(t, err, ErrTimedOut)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, f.Calls())
	assert.Equal(t, StateTimedOut, w.Task().State)
}

func TestPoll_MaxDuration(t *testing.T) {
	f := &scriptedFetcher{script: []scriptStep{processing(0, 0)}}
	p := NewPoller(f, Options{Interval: 10 * time.Millisecond, MaxDuration: 35 * time.Millisecond})

	_, err := p.Poll(context.Background(), "t1", nil)

	assert.ErrorIs(t, err, ErrTimedOut)
	var failedErr *TaskFailedError
	assert.False(t, errors.As(err, &failedErr))
}

func TestWatch_RangedOnce(t *testing.T) {
	f := &scriptedFetcher{script: []scriptStep{completed()}}
	w := NewPoller(f, fastOptions()).Watch(context.Background(), "t1")

	_, err := w.Wait(nil)
	require.NoError(t, err)

	_, err = w.Wait(nil)
	assert.Error(t, err)
	assert.Equal(t, 1, f.Calls())
}

func TestWatch_BreakStopsPolling(t *testing.T) {
	f := &scriptedFetcher{script: []scriptStep{processing(0, 0)}}
	w := NewPoller(f, fastOptions()).Watch(context.Background(), "t1")

	for range w.Snapshots() {
		break
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.Calls())
	assert.True(t, w.Task().IsComplete())
}

func TestPoll_RegistryNotification(t *testing.T) {
	reg := NewRegistry(10)
	f := &scriptedFetcher{script: []scriptStep{processing(1, 2), completed()}}
	p := NewPoller(f, Options{Interval: time.Millisecond, Registry: reg})

	_, err := p.Poll(context.Background(), "t1", nil)
	require.NoError(t, err)

	select {
	case n := <-reg.Notifications():
		assert.Equal(t, "t1", n.TaskID)
		assert.Equal(t, StateComplete, n.State)
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}

	rec := reg.Get("t1")
	require.NotNil(t, rec)
	assert.Equal(t, 100, rec.Progress)
	assert.Empty(t, reg.Active())
}

func TestPoll_AgainstServer(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		status := "processing"
		if n >= 3 {
			status = "completed"
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"task_id":"abc","status":%q,"file_id":"f1","message":"","chunks_processed":%d,"total_chunks":3,"created_at":"2025-01-02T03:04:05Z","completed_at":null}`, status, n)
	}))
	defer server.Close()

	p := NewPoller(client.New(server.URL), fastOptions())
	final, err := p.Poll(context.Background(), "abc", nil)

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	require.NotNil(t, final.FileID)
	assert.Equal(t, "f1", *final.FileID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}
