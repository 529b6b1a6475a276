package gocommand

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	if _, err := messageTypeOf(msg); err != nil {
		return err
	}
	return nil
}

func messageTypeOf(msg any) (string, error) {
	m, ok := msg.(command.Message)
	if !ok {
		return "", fmt.Errorf("gocommand: message must implement Type() string")
	}
	msgType := strings.TrimSpace(m.Type())
	if msgType == "" {
		return "", fmt.Errorf("gocommand: message type is required")
	}
	return msgType, nil
}

// RegistryAdapter owns a go-command registry plus the dispatcher
// subscriptions made through it. Each message type is subscribed at most once
// per adapter.
type RegistryAdapter struct {
	registry *command.Registry

	mu            sync.Mutex
	subscribed    map[string]commanddispatcher.Subscription
	subscribeList []string
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{
		registry:   registry,
		subscribed: map[string]commanddispatcher.Subscription{},
	}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) configured() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return nil
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if err := a.configured(); err != nil {
		return err
	}
	return a.registry.RegisterCommand(cmd)
}

// RegisterQuery registers a querier. go-command keeps commands and queries in
// one registry keyed by message type.
func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if err := a.configured(); err != nil {
		return err
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if err := a.configured(); err != nil {
		return err
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors registered commands into a go-job command registry
// so they can be enqueued by message type.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if err := a.configured(); err != nil {
		return err
	}
	return a.registry.Initialize()
}

// SubscribedTypes lists message types subscribed through the adapter in
// subscription order.
func (a *RegistryAdapter) SubscribedTypes() []string {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.subscribeList...)
}

// Close unsubscribes every handler subscribed through the adapter.
func (a *RegistryAdapter) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	subs := a.subscribed
	a.subscribed = map[string]commanddispatcher.Subscription{}
	a.subscribeList = nil
	a.mu.Unlock()
	for _, sub := range subs {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

func (a *RegistryAdapter) reserve(msgType string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.subscribed == nil {
		a.subscribed = map[string]commanddispatcher.Subscription{}
	}
	if _, exists := a.subscribed[msgType]; exists {
		return fmt.Errorf("gocommand: message type %q already subscribed", msgType)
	}
	a.subscribed[msgType] = nil
	return nil
}

func (a *RegistryAdapter) commit(msgType string, sub commanddispatcher.Subscription) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subscribed[msgType] = sub
	a.subscribeList = append(a.subscribeList, msgType)
}

func (a *RegistryAdapter) release(msgType string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.subscribed, msgType)
}

// Unsubscribe removes the handler subscribed for msgType, if any.
func (a *RegistryAdapter) Unsubscribe(msgType string) {
	if a == nil {
		return
	}
	msgType = strings.TrimSpace(msgType)
	a.mu.Lock()
	sub := a.subscribed[msgType]
	delete(a.subscribed, msgType)
	for i, existing := range a.subscribeList {
		if existing == msgType {
			a.subscribeList = append(a.subscribeList[:i], a.subscribeList[i+1:]...)
			break
		}
	}
	a.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// RegisterAndSubscribe registers cmd and subscribes it on the dispatcher. The
// subscription is rolled back when registration fails.
func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if err := adapter.configured(); err != nil {
		return nil, err
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	var zero T
	msgType, err := messageTypeOf(zero)
	if err != nil {
		return nil, err
	}
	if err := adapter.reserve(msgType); err != nil {
		return nil, err
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		adapter.release(msgType)
		return nil, err
	}
	adapter.commit(msgType, subscription)
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if err := adapter.configured(); err != nil {
		return nil, err
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	var zero T
	msgType, err := messageTypeOf(zero)
	if err != nil {
		return nil, err
	}
	if err := adapter.reserve(msgType); err != nil {
		return nil, err
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		adapter.release(msgType)
		return nil, err
	}
	adapter.commit(msgType, subscription)
	return subscription, nil
}
