package store

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Notifier fans out change signals for the events table. Live queries
// register a signal channel; every committed write through the EventStore
// broadcasts, and each subscriber re-runs its query. Signals are
// collapsible: a subscriber that misses one picks up the same state on the
// next, so sends never block.
type Notifier struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]chan struct{}
	logger *slog.Logger
}

func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{
		subs:   make(map[uuid.UUID]chan struct{}),
		logger: logger,
	}
}

func (n *Notifier) register(id uuid.UUID) <-chan struct{} {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.subs[id] = ch
	n.mu.Unlock()
	n.logger.Debug("live query registered", "subscription", id)
	return ch
}

func (n *Notifier) unregister(id uuid.UUID) {
	n.mu.Lock()
	delete(n.subs, id)
	n.mu.Unlock()
	n.logger.Debug("live query unregistered", "subscription", id)
}

// Broadcast signals every registered subscriber that the events table
// changed.
func (n *Notifier) Broadcast() {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
			// A signal is already pending for this subscriber
		}
	}
}

// SubscriberCount returns the number of registered live queries.
func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}
