package store

import (
	"context"

	"github.com/google/uuid"

	"planbook/internal/filter"
	"planbook/internal/model"
)

// Subscription is a live query: it emits the current result set on
// creation, then re-runs its query and re-emits after every committed
// events-table write. Emissions use the live ordering (date, then start
// time). The updates channel closes when the subscription ends.
type Subscription struct {
	id      uuid.UUID
	updates chan []model.EventFull
	cancel  context.CancelFunc
	done    chan struct{}
}

// ID identifies the subscription in logs.
func (sub *Subscription) ID() uuid.UUID {
	return sub.id
}

// Updates delivers result sets. Only the latest result is kept: a slow
// reader skips intermediate states, never blocks writers.
func (sub *Subscription) Updates() <-chan []model.EventFull {
	return sub.updates
}

// Close ends the subscription and closes the updates channel. Safe to call
// more than once.
func (sub *Subscription) Close() {
	sub.cancel()
	<-sub.done
}

// Live opens a live query for the composed filter. The subscription ends
// when ctx is cancelled or Close is called.
func (s *EventStore) Live(ctx context.Context, profileID int64, f filter.Filter) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		id:      uuid.New(),
		updates: make(chan []model.EventFull, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	signals := s.notifier.register(sub.id)

	go func() {
		defer close(sub.done)
		defer close(sub.updates)
		defer s.notifier.unregister(sub.id)

		emit := func() {
			result, err := s.queryFull(profileID, f, orderLive)
			if err != nil {
				s.notifier.logger.Error("live query failed", "subscription", sub.id, "error", err)
				return
			}
			// Drop the stale pending result, then buffer the fresh one.
			// This goroutine is the only sender, so the send cannot block.
			select {
			case <-sub.updates:
			default:
			}
			sub.updates <- result
		}

		emit()
		for {
			select {
			case <-ctx.Done():
				return
			case <-signals:
				emit()
			}
		}
	}()

	return sub
}

// --- Live counterparts of the snapshot reads ---

func (s *EventStore) GetAll(ctx context.Context, profileID int64) *Subscription {
	return s.Live(ctx, profileID, filter.All())
}

func (s *EventStore) GetAllWhere(ctx context.Context, profileID int64, f filter.Filter) *Subscription {
	return s.Live(ctx, profileID, f)
}

func (s *EventStore) GetAllByKind(ctx context.Context, profileID int64, kind model.EventKind, f filter.Filter) *Subscription {
	return s.Live(ctx, profileID, filter.ByKind(kind).And(f))
}

func (s *EventStore) GetAllByDate(ctx context.Context, profileID int64, date model.Date) *Subscription {
	return s.Live(ctx, profileID, filter.ByDate(date))
}

func (s *EventStore) GetAllByDateTime(ctx context.Context, profileID int64, date model.Date, t *model.ClockTime) *Subscription {
	return s.Live(ctx, profileID, filter.ByDateTime(date, t))
}

func (s *EventStore) GetNotNotified(ctx context.Context, profileID int64) *Subscription {
	return s.Live(ctx, profileID, filter.NotNotified())
}
