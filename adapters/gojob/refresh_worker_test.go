package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	job "github.com/goliatone/go-job"

	"github.com/goliatone/go-authclient/core"
)

func TestRefreshWorker_RunOnceHandlesDelivery(t *testing.T) {
	raw := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: JobIDRefresh, ScriptPath: JobIDRefresh}}
	dequeuer := NewDequeuerAdapter(&stubQueueDequeuer{delivery: raw}, RetryPolicy{})
	hook := &recordingWorkerHook{}
	handler := &stubRefreshHandler{}

	worker := NewRefreshWorker(dequeuer, handler, RefreshWorkerOptions{Hook: hook})
	if err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if handler.calls != 1 {
		t.Fatalf("expected one handled delivery, got %d", handler.calls)
	}
	if !raw.acked {
		t.Fatalf("expected handler ack to reach the go-job delivery")
	}
	if hook.started != 1 || hook.succeeded != 1 {
		t.Fatalf("unexpected hook counts %#v", hook)
	}
	if hook.last.Message == nil || hook.last.Message.JobID != JobIDRefresh {
		t.Fatalf("expected hook event to carry the job message")
	}
}

func TestRefreshWorker_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		failures int
		retries  int
	}{
		{name: "refresh failure", err: core.NewRefreshFailure(errors.New("revoked"), core.RefreshFailureReasonRejected), failures: 1},
		{name: "transient", err: errors.New("connection reset"), retries: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			raw := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: JobIDRefresh}}
			hook := &recordingWorkerHook{}
			worker := NewRefreshWorker(
				NewDequeuerAdapter(&stubQueueDequeuer{delivery: raw}, RetryPolicy{}),
				&stubRefreshHandler{err: tc.err},
				RefreshWorkerOptions{Hook: hook},
			)
			err := worker.RunOnce(context.Background())
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected handler error, got %v", err)
			}
			if hook.failed != tc.failures || hook.retried != tc.retries {
				t.Fatalf("unexpected hook counts %#v", hook)
			}
			if hook.last.Err == nil {
				t.Fatalf("expected hook event error")
			}
		})
	}
}

func TestRefreshWorker_RunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	handler := &stubRefreshHandler{onCall: cancel}
	raw := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: JobIDRefresh}}
	worker := NewRefreshWorker(
		NewDequeuerAdapter(&stubQueueDequeuer{delivery: raw}, RetryPolicy{}),
		handler,
		RefreshWorkerOptions{IdleDelay: time.Millisecond},
	)

	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop after cancellation")
	}
	if handler.calls == 0 {
		t.Fatalf("expected at least one handled delivery")
	}
}

func TestRefreshWorker_RequiresDependencies(t *testing.T) {
	if err := NewRefreshWorker(nil, nil, RefreshWorkerOptions{}).RunOnce(context.Background()); err == nil {
		t.Fatalf("expected configuration error")
	}
}

type stubRefreshHandler struct {
	calls  int
	err    error
	onCall func()
}

func (h *stubRefreshHandler) HandleRefreshJob(ctx context.Context, delivery core.JobDelivery) error {
	h.calls++
	if h.onCall != nil {
		h.onCall()
	}
	if h.err != nil {
		return h.err
	}
	return delivery.Ack(ctx)
}

type recordingWorkerHook struct {
	started   int
	succeeded int
	failed    int
	retried   int
	last      core.JobWorkerEvent
}

func (h *recordingWorkerHook) OnStart(_ context.Context, e core.JobWorkerEvent) {
	h.started++
	h.last = e
}

func (h *recordingWorkerHook) OnSuccess(_ context.Context, e core.JobWorkerEvent) {
	h.succeeded++
	h.last = e
}

func (h *recordingWorkerHook) OnFailure(_ context.Context, e core.JobWorkerEvent) {
	h.failed++
	h.last = e
}

func (h *recordingWorkerHook) OnRetry(_ context.Context, e core.JobWorkerEvent) {
	h.retried++
	h.last = e
}
