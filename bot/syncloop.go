package bot

import (
	"context"
	"time"

	"github.com/42wim/matrixbotd/bridge"
	"github.com/desertbit/timer"
)

// Poller is the long-poll capability of the transport.
type Poller interface {
	Sync(ctx context.Context, timeoutMS int, fullState bool) ([]*bridge.Event, error)
}

// SyncLoop polls the transport until the context is cancelled or the
// session is rejected. Polls never overlap: all events of one poll are
// dispatched before the next one starts.
type SyncLoop struct {
	poller     Poller
	router     *EventRouter
	retryDelay time.Duration
}

func NewSyncLoop(poller Poller, router *EventRouter, retryDelay time.Duration) *SyncLoop {
	return &SyncLoop{
		poller:     poller,
		router:     router,
		retryDelay: retryDelay,
	}
}

// Run returns nil when ctx is cancelled and a *SyncError for a fatal
// transport failure. fullState only applies to the first successful poll.
func (l *SyncLoop) Run(ctx context.Context, timeoutMS int, fullState bool) error {
	first := true

	for {
		if ctx.Err() != nil {
			return nil
		}

		events, err := l.poller.Sync(ctx, timeoutMS, first && fullState)
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("sync cancelled")
				return nil
			}

			if !IsTransient(err) {
				return &SyncError{Err: err}
			}

			logger.Warnf("%s, retrying in %s", &TransientTransportError{Err: err}, l.retryDelay)

			if !l.wait(ctx) {
				return nil
			}

			continue
		}

		first = false

		for _, event := range events {
			l.router.Dispatch(ctx, event)
		}
	}
}

// wait sleeps for the retry delay. It returns false when ctx is done first.
func (l *SyncLoop) wait(ctx context.Context) bool {
	if l.retryDelay <= 0 {
		return ctx.Err() == nil
	}

	t := timer.NewTimer(l.retryDelay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
