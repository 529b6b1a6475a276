package adapters_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	"github.com/goliatone/go-authclient/adapters/gocommand"
	"github.com/goliatone/go-authclient/adapters/gojob"
	"github.com/goliatone/go-authclient/adapters/gologger"
	authcommand "github.com/goliatone/go-authclient/command"
	"github.com/goliatone/go-authclient/core"
)

func TestRuntimeCompatibility_ScheduledRefreshRunsThroughGoJob(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	backlog := &memoryQueue{}
	endpoint := &compatEndpoint{refreshed: core.AuthResult{
		Credential: core.Credential{AccessToken: "a2", RefreshToken: "r2", ExpiresAt: now.Add(2 * time.Hour)},
	}}
	svc, err := core.NewService(core.DefaultConfig(),
		core.WithTransport(compatTransport{}),
		core.WithAuthEndpoint(endpoint),
		core.WithJobEnqueuer(gojob.NewEnqueuerAdapter(backlog)),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.Store().Set(ctx, core.Credential{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: now.Add(time.Hour)})

	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	handlers, err := gocommand.RegisterSessionHandlers(adapter, svc)
	if err != nil {
		t.Fatalf("register session handlers: %v", err)
	}
	defer handlers.Unsubscribe()

	if err := gocommand.Dispatch(ctx, authcommand.ScheduleRefreshMessage{
		Request: core.ScheduleRefreshRequest{Force: true},
	}); err != nil {
		t.Fatalf("dispatch schedule refresh: %v", err)
	}
	if backlog.len() != 1 {
		t.Fatalf("expected one queued go-job message, got %d", backlog.len())
	}

	_, _, jobProvider, jobLogger := gologger.ResolveForJob(nil, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	worker := gojob.NewRefreshWorker(
		gojob.NewDequeuerAdapter(backlog, gojob.RetryPolicy{MaxAttempts: 3}),
		svc,
		gojob.RefreshWorkerOptions{Logger: gologger.RefreshWorkerLogger(nil, nil)},
	)
	if err := worker.RunOnce(ctx); err != nil {
		t.Fatalf("run refresh worker: %v", err)
	}
	if backlog.acked != 1 {
		t.Fatalf("expected the refresh job to be acknowledged, got %d acks", backlog.acked)
	}
	current, ok := svc.Store().Current()
	if !ok || current.AccessToken != "a2" {
		t.Fatalf("expected refreshed credential, got %#v", current)
	}
	if endpoint.refreshCalls != 1 {
		t.Fatalf("expected one refresh call, got %d", endpoint.refreshCalls)
	}
}

func TestRuntimeCompatibility_CommandsMirrorIntoQueueRegistry(t *testing.T) {
	queueRegistry := jobqueuecommand.NewRegistry()
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := adapter.RegisterCommand(authcommand.NewRefreshCommand(&compatMutatingService{})); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get(authcommand.TypeRefresh); !ok {
		t.Fatalf("expected refresh command to be mirrored into go-job queue registry")
	}
}

type memoryQueue struct {
	mu       sync.Mutex
	messages []*job.ExecutionMessage
	acked    int
}

func (q *memoryQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

func (q *memoryQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
	return nil
}

func (q *memoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.messages) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	msg := q.messages[0]
	q.messages = q.messages[1:]
	return &memoryDelivery{queue: q, msg: msg}, nil
}

type memoryDelivery struct {
	queue *memoryQueue
	msg   *job.ExecutionMessage
}

func (d *memoryDelivery) Message() *job.ExecutionMessage { return d.msg }

func (d *memoryDelivery) Ack(context.Context) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	d.queue.acked++
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	if opts.Requeue {
		return d.queue.Enqueue(context.Background(), d.msg)
	}
	return nil
}

type compatEndpoint struct {
	refreshed    core.AuthResult
	refreshCalls int
}

func (e *compatEndpoint) Login(context.Context, core.LoginRequest) (core.AuthResult, error) {
	return e.refreshed, nil
}

func (e *compatEndpoint) Register(context.Context, core.RegisterRequest) (core.AuthResult, error) {
	return e.refreshed, nil
}

func (e *compatEndpoint) Refresh(context.Context, core.Credential) (core.AuthResult, error) {
	e.refreshCalls++
	return e.refreshed, nil
}

type compatTransport struct{}

func (compatTransport) Do(context.Context, core.TransportRequest) (core.TransportResponse, error) {
	return core.TransportResponse{StatusCode: 200}, nil
}

type compatMutatingService struct{}

func (compatMutatingService) Login(context.Context, core.LoginRequest) (core.AuthResult, error) {
	return core.AuthResult{}, nil
}

func (compatMutatingService) Register(context.Context, core.RegisterRequest) (core.AuthResult, error) {
	return core.AuthResult{}, nil
}

func (compatMutatingService) Logout(context.Context) error { return nil }

func (compatMutatingService) RefreshNow(context.Context) (core.Credential, error) {
	return core.Credential{}, nil
}

func (compatMutatingService) Restore(context.Context) error { return nil }
