package listener

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/code-payments/flipchat-iap/iap"
	"github.com/code-payments/flipchat-iap/purchase"
)

// Listener drains the storefront's transaction updates for the lifetime of
// an engine, running each through the same Finisher as user initiated
// purchases.
type Listener struct {
	log *zap.Logger

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Start subscribes to store's transaction updates and begins processing them
// on a new goroutine. It must be called at most once per storefront.
func Start(log *zap.Logger, store iap.Storefront, finisher *purchase.Finisher) *Listener {
	ctx, cancel := context.WithCancel(context.Background())

	l := &Listener{
		log:    log,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	updates := store.TransactionUpdates(ctx)
	go l.run(ctx, updates, finisher)

	return l
}

// Close stops the listener and waits for it to exit. Once Close returns the
// listener produces no further notifications. Calling Close more than once
// is a no-op.
func (l *Listener) Close() {
	l.closeOnce.Do(func() {
		l.cancel()
		<-l.done
		l.log.Debug("Transaction listener stopped")
	})
}

func (l *Listener) run(ctx context.Context, updates <-chan iap.VerificationResult, finisher *purchase.Finisher) {
	defer close(l.done)

	l.log.Debug("Transaction listener started")

	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-updates:
			if !ok {
				l.log.Warn("Transaction update stream ended")
				return
			}

			// Both cases may be ready at once; cancellation wins.
			if ctx.Err() != nil {
				return
			}

			if _, err := finisher.Finish(ctx, "", result); err != nil {
				l.log.Debug("Transaction update was not finished", zap.Error(err))
			}
		}
	}
}
