package delivery

import (
	"context"
	"log/slog"
	"sync"
)

// Notifier broadcasts messages to a fixed set of keys in the background.
type Notifier struct {
	registry *Registry
	keys     []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNotifier creates a Notifier delivering to keys through registry.
func NewNotifier(registry *Registry, keys []string) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		registry: registry,
		keys:     keys,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Keys returns the destinations of the notifier.
func (n *Notifier) Keys() []string {
	return n.keys
}

// Notify sends message to every key without blocking the caller. Failures
// are logged.
func (n *Notifier) Notify(message string) {
	for _, key := range n.keys {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.registry.Deliver(n.ctx, key, message); err != nil {
				slog.Error("delivery failed", "key", key, "error", err)
			}
		}()
	}
}

// Stop cancels pending retries and waits for in-flight deliveries.
func (n *Notifier) Stop() {
	n.cancel()
	n.wg.Wait()
}
