package notify

import (
	"sync"

	"go.uber.org/zap"

	"github.com/code-payments/flipchat-iap/iap"
)

// Notifier delivers observer callbacks, and any other posted work, one at a
// time on a single dispatch goroutine. Producers never block: work is queued
// without bound and drained in FIFO order.
type Notifier struct {
	log *zap.Logger

	observerMu sync.RWMutex
	observer   iap.Observer

	queueMu sync.Mutex
	queue   []func()
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func NewNotifier(log *zap.Logger) *Notifier {
	n := &Notifier{
		log:  log,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go n.dispatch()
	return n
}

// SetObserver registers the single observer. A nil observer unregisters it.
// The observer is resolved when a callback is delivered, not when it was
// queued.
func (n *Notifier) SetObserver(o iap.Observer) {
	n.observerMu.Lock()
	n.observer = o
	n.observerMu.Unlock()
}

func (n *Notifier) FinishPurchase(productID string, tx iap.Transaction) {
	n.deliver(func(o iap.Observer) {
		o.OnFinishPurchase(productID, tx.Clone())
	})
}

func (n *Notifier) FailPurchase(productID string, reason string) {
	n.deliver(func(o iap.Observer) {
		o.OnFailPurchase(productID, reason)
	})
}

func (n *Notifier) ProductsUpdated(products []iap.Product) {
	copied := make([]iap.Product, len(products))
	copy(copied, products)

	n.deliver(func(o iap.Observer) {
		o.OnProductsUpdated(copied)
	})
}

func (n *Notifier) PurchasesRestored(txs []iap.Transaction) {
	copied := make([]iap.Transaction, len(txs))
	for i, tx := range txs {
		copied[i] = tx.Clone()
	}

	n.deliver(func(o iap.Observer) {
		o.OnPurchasesRestored(copied)
	})
}

// Post runs fn on the dispatch goroutine, after everything queued before it.
// It reports false if the notifier is closed, in which case fn never runs.
func (n *Notifier) Post(fn func()) bool {
	n.queueMu.Lock()
	if n.closed {
		n.queueMu.Unlock()
		return false
	}
	n.queue = append(n.queue, fn)
	n.queueMu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
	return true
}

// Close delivers everything already queued and stops the dispatch goroutine.
// It must not be called from a callback running on the notifier.
func (n *Notifier) Close() {
	n.queueMu.Lock()
	if n.closed {
		n.queueMu.Unlock()
		<-n.done
		return
	}
	n.closed = true
	n.queueMu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
	<-n.done
}

func (n *Notifier) deliver(fn func(o iap.Observer)) {
	ok := n.Post(func() {
		n.observerMu.RLock()
		o := n.observer
		n.observerMu.RUnlock()

		if o == nil {
			return
		}
		fn(o)
	})
	if !ok {
		n.log.Debug("Dropping notification, notifier is closed")
	}
}

func (n *Notifier) dispatch() {
	defer close(n.done)

	for {
		n.queueMu.Lock()
		batch := n.queue
		n.queue = nil
		closed := n.closed
		n.queueMu.Unlock()

		for _, fn := range batch {
			n.run(fn)
		}

		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-n.wake
	}
}

func (n *Notifier) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error("Recovered from panic in observer callback", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	fn()
}
