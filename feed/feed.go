// Package feed delivers live collection views as a stream of full snapshots.
//
// A subscription fetches once on start and again every time its trigger
// channel fires. Delivery is latest-wins: a reader that falls behind only
// ever sees the newest snapshot. A failed fetch is logged and the previous
// snapshot stays current.
package feed

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// FetchFunc loads the full result set for a subscription
type FetchFunc[T any] func(ctx context.Context) ([]T, error)

// Subscription is a cancellable stream of snapshots
type Subscription[T any] struct {
	c      chan []T
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// C returns the snapshot channel. It is closed once the subscription stops.
func (s *Subscription[T]) C() <-chan []T {
	return s.c
}

// Cancel stops the subscription and waits for its worker to exit, so no
// snapshot is delivered after Cancel returns.
func (s *Subscription[T]) Cancel() {
	s.once.Do(s.cancel)
	<-s.done
}

// Done is closed when the subscription has stopped
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Start runs fetch immediately and on every value received from triggers
// until ctx is cancelled or Cancel is called. A closed triggers channel
// leaves the subscription holding its last snapshot until cancelled.
func Start[T any](ctx context.Context, fetch FetchFunc[T], triggers <-chan struct{}, logger *zap.SugaredLogger) *Subscription[T] {
	if logger == nil {
		logger = zap.S()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription[T]{
		c:      make(chan []T, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer close(s.c)

		refresh := func() {
			snapshot, err := fetch(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warnw("failed to refresh subscription, keeping previous snapshot", "error", err)
				}
				return
			}
			if ctx.Err() != nil {
				return
			}
			s.deliver(snapshot)
		}

		refresh()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-triggers:
				if !ok {
					triggers = nil
					continue
				}
				refresh()
			}
		}
	}()

	return s
}

// deliver replaces any unread snapshot with the new one. Only the worker
// goroutine sends on c, so after draining there is always room.
func (s *Subscription[T]) deliver(snapshot []T) {
	if snapshot == nil {
		snapshot = []T{}
	}
	select {
	case <-s.c:
	default:
	}
	s.c <- snapshot
}
