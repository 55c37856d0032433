// Package delivery routes outbound messages to chat transports by key prefix.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Handler delivers a message to the destination identified by key.
type Handler func(ctx context.Context, key, message string) error

// Registry routes messages to the appropriate delivery handler based on
// key prefix (e.g. "telegram:"). Failed deliveries are retried with the
// registry's RetryPolicy.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	retry    *RetryPolicy
}

// NewRegistry creates an empty delivery registry using DefaultRetryPolicy.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		retry:    DefaultRetryPolicy(),
	}
}

// SetRetryPolicy replaces the retry policy.
func (r *Registry) SetRetryPolicy(p *RetryPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retry = p
}

// Register adds a handler for keys starting with prefix.
func (r *Registry) Register(prefix string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[prefix] = handler
}

// lookup returns the handler with the longest prefix matching key.
func (r *Registry) lookup(key string) (Handler, *RetryPolicy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prefixes := make([]string, 0, len(r.handlers))
	for prefix := range r.handlers {
		prefixes = append(prefixes, prefix)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	for _, prefix := range prefixes {
		if strings.HasPrefix(key, prefix) {
			return r.handlers[prefix], r.retry, true
		}
	}
	return nil, nil, false
}

// Deliver finds the handler matching the key prefix and calls it, retrying
// transient failures. Returns an error if no handler is registered for the
// prefix.
func (r *Registry) Deliver(ctx context.Context, key, message string) error {
	handler, retry, ok := r.lookup(key)
	if !ok {
		return fmt.Errorf("no delivery handler for key: %s", key)
	}
	attempt := 0
	return retry.Execute(ctx, func() error {
		attempt++
		err := handler(ctx, key, message)
		if err != nil {
			slog.Warn("delivery attempt failed", "key", key, "attempt", attempt, "error", err)
		}
		return err
	})
}
