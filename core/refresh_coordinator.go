package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type RefreshState int

const (
	RefreshStateIdle RefreshState = iota
	RefreshStateRefreshing
)

func (s RefreshState) String() string {
	if s == RefreshStateRefreshing {
		return "refreshing"
	}
	return "idle"
}

// CredentialRefresher issues a new credential from the current pair.
type CredentialRefresher interface {
	Refresh(ctx context.Context, cred Credential) (AuthResult, error)
}

type RefreshCoordinatorOptions struct {
	Store     *CredentialStore
	Refresher CredentialRefresher
	Timeout   time.Duration
	Listener  SessionListener
	Logger    Logger
	Metrics   MetricsRecorder
}

type refreshOutcome struct {
	credential Credential
	err        error
}

type refreshWaiter struct {
	seq uint64
	ch  chan refreshOutcome
}

// RefreshCoordinator collapses concurrent refresh requests into one call to
// the refresh endpoint. Callers arriving while a refresh is in flight wait in
// a FIFO queue and receive the same outcome.
type RefreshCoordinator struct {
	store     *CredentialStore
	refresher CredentialRefresher
	timeout   time.Duration
	listener  SessionListener
	observer  observer

	mu      sync.Mutex
	state   RefreshState
	waiters []*refreshWaiter
	nextSeq uint64

	// released is called in release order for every drained waiter.
	released func(seq uint64)
}

func NewRefreshCoordinator(opts RefreshCoordinatorOptions) (*RefreshCoordinator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("core: refresh coordinator requires a credential store")
	}
	if opts.Refresher == nil {
		return nil, fmt.Errorf("core: refresh coordinator requires a refresher")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	return &RefreshCoordinator{
		store:     opts.Store,
		refresher: opts.Refresher,
		timeout:   timeout,
		listener:  opts.Listener,
		observer: observer{
			logger:  glog.Ensure(opts.Logger),
			metrics: metrics,
		},
	}, nil
}

func (c *RefreshCoordinator) State() RefreshState {
	if c == nil {
		return RefreshStateIdle
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Waiting returns the number of callers queued behind the in-flight refresh.
func (c *RefreshCoordinator) Waiting() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// ObtainFreshCredential starts a refresh, or joins the one in flight, and
// returns its outcome.
func (c *RefreshCoordinator) ObtainFreshCredential(ctx context.Context) (Credential, error) {
	return c.obtain(ctx, "")
}

// ObtainFreshCredentialFor is ObtainFreshCredential for a request that was
// rejected while carrying rejectedAccessToken. When the store already holds a
// different token the refresh has happened since the request was sent and
// the current credential is returned without another round trip.
func (c *RefreshCoordinator) ObtainFreshCredentialFor(ctx context.Context, rejectedAccessToken string) (Credential, error) {
	return c.obtain(ctx, strings.TrimSpace(rejectedAccessToken))
}

func (c *RefreshCoordinator) obtain(ctx context.Context, rejected string) (Credential, error) {
	if c == nil {
		return Credential{}, NewRefreshFailure(fmt.Errorf("core: refresh coordinator is nil"), RefreshFailureReasonNoSession)
	}
	ctx = contextOrBackground(ctx)

	c.mu.Lock()
	if c.state == RefreshStateRefreshing {
		waiter := &refreshWaiter{seq: c.nextSeq, ch: make(chan refreshOutcome, 1)}
		c.nextSeq++
		c.waiters = append(c.waiters, waiter)
		c.mu.Unlock()

		c.observer.recordCounter(ctx, MetricRefreshWaiters, 1, nil)
		select {
		case outcome := <-waiter.ch:
			return outcome.credential, outcome.err
		case <-ctx.Done():
			c.dropWaiter(waiter)
			return Credential{}, ctx.Err()
		}
	}

	current, generation, ok := c.store.currentWithGeneration()
	if rejected != "" {
		// The session ended after the request was sent; there is nothing to
		// refresh and the termination was already reported.
		if !ok {
			c.mu.Unlock()
			return Credential{}, NewRefreshFailure(ErrNoSession, RefreshFailureReasonNoSession)
		}
		if current.AccessToken != rejected {
			c.mu.Unlock()
			return current, nil
		}
	}
	c.state = RefreshStateRefreshing
	c.mu.Unlock()

	outcome := c.run(ctx, current, generation, ok)
	return outcome.credential, outcome.err
}

// dropWaiter removes a waiter whose caller gave up. A waiter already drained
// by finish is not in the queue and is left alone.
func (c *RefreshCoordinator) dropWaiter(waiter *refreshWaiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, queued := range c.waiters {
		if queued == waiter {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

func (c *RefreshCoordinator) run(ctx context.Context, current Credential, generation uint64, hasCredential bool) (outcome refreshOutcome) {
	startedAt := time.Now().UTC()
	finished := false
	defer func() {
		if finished {
			return
		}
		recovered := recover()
		outcome = refreshOutcome{err: NewRefreshFailure(fmt.Errorf("core: refresh panicked: %v", recovered), RefreshFailureReasonRejected)}
		c.finish(ctx, startedAt, generation, outcome)
		if recovered != nil {
			panic(recovered)
		}
	}()

	outcome = c.refresh(ctx, current, generation, hasCredential)
	finished = true
	c.finish(ctx, startedAt, generation, outcome)
	return outcome
}

func (c *RefreshCoordinator) refresh(ctx context.Context, current Credential, generation uint64, hasCredential bool) refreshOutcome {
	if !hasCredential || strings.TrimSpace(current.RefreshToken) == "" {
		return refreshOutcome{err: NewRefreshFailure(ErrNoSession, RefreshFailureReasonNoSession)}
	}

	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	result, err := c.refresher.Refresh(refreshCtx, current)
	if err != nil {
		reason := RefreshFailureReasonRejected
		if errors.Is(refreshCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			reason = RefreshFailureReasonTimeout
		}
		return refreshOutcome{err: NewRefreshFailure(err, reason)}
	}
	if strings.TrimSpace(result.Credential.AccessToken) == "" {
		return refreshOutcome{err: NewRefreshFailure(fmt.Errorf("core: refresh returned an empty access token"), RefreshFailureReasonRejected)}
	}

	// A logout or login while the call was in flight wins over its result.
	if !c.store.SetSessionIf(ctx, generation, Session{Credential: result.Credential, User: result.User}) {
		return refreshOutcome{err: NewRefreshFailure(fmt.Errorf("core: session changed during refresh: %w", ErrNoSession), RefreshFailureReasonNoSession)}
	}
	return refreshOutcome{credential: result.Credential}
}

// finish settles the store, returns to Idle and drains the waiter queue in
// arrival order. The listener hears about a failure only when it removed the
// session the refresh started from.
func (c *RefreshCoordinator) finish(ctx context.Context, startedAt time.Time, generation uint64, outcome refreshOutcome) {
	terminated := false
	if outcome.err != nil {
		terminated = c.store.ClearIf(ctx, generation)
	}

	c.mu.Lock()
	c.state = RefreshStateIdle
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	for _, waiter := range waiters {
		waiter.ch <- outcome
		if c.released != nil {
			c.released(waiter.seq)
		}
	}

	fields := map[string]any{"waiters": len(waiters), "terminated": terminated}
	if outcome.err != nil {
		fields["reason"] = refreshFailureReason(outcome.err)
	}
	c.observer.observeOperation(ctx, startedAt, "refresh", outcome.err, fields)

	if terminated && c.listener != nil {
		c.listener.OnSessionTerminated(ctx, outcome.err)
	}
}

func refreshFailureReason(err error) string {
	richErr := asRichError(err)
	if richErr == nil {
		return ""
	}
	reason, _ := richErr.Metadata["reason"].(string)
	return reason
}
