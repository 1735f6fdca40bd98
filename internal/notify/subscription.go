package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Subscription is a running subscriber goroutine. Stop cancels it and waits
// for it to exit, so no handler runs after Stop returns.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Start subscribes handler to channel on a new goroutine. It returns once
// the subscription is registered with the backend (or has already failed),
// so a message published after Start returns is never missed.
func Start(ctx context.Context, backend Backend, channel string, handler Handler, logger *slog.Logger) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	ready := make(chan struct{})
	var once sync.Once
	markReady := func() { once.Do(func() { close(ready) }) }

	go func() {
		defer close(sub.done)
		err := backend.Subscribe(ctx, channel, handler, markReady)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("subscription ended",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
			sub.err = err
		}
	}()

	select {
	case <-ready:
	case <-sub.done:
	case <-ctx.Done():
	}
	return sub
}

// Done is closed once the subscriber goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Stop cancels the subscription and returns the error it ended with, if any.
func (s *Subscription) Stop() error {
	s.cancel()
	<-s.done
	return s.err
}
