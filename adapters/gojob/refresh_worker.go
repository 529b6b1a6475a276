package gojob

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-authclient/core"
)

const defaultWorkerIdleDelay = time.Second

// RefreshJobHandler settles a delivered refresh job. *core.Service
// implements it.
type RefreshJobHandler interface {
	HandleRefreshJob(ctx context.Context, delivery core.JobDelivery) error
}

type RefreshWorkerOptions struct {
	Hook      core.JobWorkerHook
	Logger    glog.Logger
	IdleDelay time.Duration
}

// RefreshWorker pulls refresh jobs from a dequeuer and hands them to the
// session service one at a time.
type RefreshWorker struct {
	dequeuer  core.JobDequeuer
	handler   RefreshJobHandler
	hook      core.JobWorkerHook
	logger    glog.Logger
	idleDelay time.Duration
	now       func() time.Time
}

func NewRefreshWorker(dequeuer core.JobDequeuer, handler RefreshJobHandler, opts RefreshWorkerOptions) *RefreshWorker {
	idle := opts.IdleDelay
	if idle <= 0 {
		idle = defaultWorkerIdleDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	return &RefreshWorker{
		dequeuer:  dequeuer,
		handler:   handler,
		hook:      opts.Hook,
		logger:    logger,
		idleDelay: idle,
		now:       time.Now,
	}
}

// RunOnce dequeues and handles a single delivery.
func (w *RefreshWorker) RunOnce(ctx context.Context) error {
	if w == nil || w.dequeuer == nil || w.handler == nil {
		return fmt.Errorf("gojob: refresh worker is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}

	event := core.JobWorkerEvent{Message: delivery.Message(), Attempt: 1, StartedAt: w.now().UTC()}
	if counted, ok := delivery.(interface{ Attempt() int }); ok && counted.Attempt() > 0 {
		event.Attempt = counted.Attempt()
	}
	if w.hook != nil {
		w.hook.OnStart(ctx, event)
	}
	err = w.handler.HandleRefreshJob(ctx, delivery)
	event.Duration = w.now().Sub(event.StartedAt)
	event.Err = err
	if w.hook == nil {
		return err
	}
	switch {
	case err == nil:
		w.hook.OnSuccess(ctx, event)
	case core.IsRefreshFailure(err):
		w.hook.OnFailure(ctx, event)
	default:
		w.hook.OnRetry(ctx, event)
	}
	return err
}

// Run processes deliveries until ctx is done. Errors are logged and the loop
// backs off for the idle delay before the next dequeue.
func (w *RefreshWorker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		err := w.RunOnce(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		w.logger.WithContext(ctx).Warn("refresh worker iteration failed", "error", err.Error())
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.idleDelay):
		}
	}
}

var _ RefreshJobHandler = (*core.Service)(nil)
