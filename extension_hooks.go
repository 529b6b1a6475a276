package authclient

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-authclient/core"
)

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks collects named session listeners and command/query bundles
// contributed by the host application.
type ExtensionHooks struct {
	mu sync.RWMutex

	listeners map[string]core.SessionListener
	bundles   map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		listeners: map[string]core.SessionListener{},
		bundles:   map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterSessionListener(name string, listener core.SessionListener) error {
	if h == nil {
		return fmt.Errorf("authclient: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("authclient: session listener name is required")
	}
	if listener == nil {
		return fmt.Errorf("authclient: session listener %q is nil", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.listeners[name]; exists {
		return fmt.Errorf("authclient: session listener %q already registered", name)
	}
	h.listeners[name] = listener
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("authclient: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("authclient: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("authclient: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("authclient: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// SessionListener fans a termination out to every registered listener in
// name order. Pass it to WithSessionListener.
func (h *ExtensionHooks) SessionListener() core.SessionListener {
	return core.SessionListenerFunc(func(ctx context.Context, cause error) {
		if h == nil {
			return
		}
		h.mu.RLock()
		names := sortedKeys(h.listeners)
		listeners := make([]core.SessionListener, 0, len(names))
		for _, name := range names {
			listeners = append(listeners, h.listeners[name])
		}
		h.mu.RUnlock()

		for _, listener := range listeners {
			listener.OnSessionTerminated(ctx, cause)
		}
	})
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("authclient: command/query service is required")
	}

	h.mu.RLock()
	names := sortedKeys(h.bundles)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) ListenerNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return sortedKeys(h.listeners)
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return sortedKeys(h.bundles)
}

func sortedKeys[V any](in map[string]V) []string {
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
