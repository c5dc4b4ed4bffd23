package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/flipchat-iap/iap"
)

type EventKind uint8

const (
	EventFinishPurchase EventKind = iota
	EventFailPurchase
	EventProductsUpdated
	EventPurchasesRestored
)

type Event struct {
	Kind         EventKind
	ProductID    string
	Reason       string
	Transaction  iap.Transaction
	Products     []iap.Product
	Transactions []iap.Transaction
}

// RecordingObserver records every callback it receives. It implements
// iap.Observer, and can also stand in for the notifier itself since its
// notifier-style methods record synchronously.
type RecordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{}
}

func (r *RecordingObserver) OnFinishPurchase(productID string, tx iap.Transaction) {
	r.record(Event{Kind: EventFinishPurchase, ProductID: productID, Transaction: tx})
}

func (r *RecordingObserver) OnFailPurchase(productID string, reason string) {
	r.record(Event{Kind: EventFailPurchase, ProductID: productID, Reason: reason})
}

func (r *RecordingObserver) OnProductsUpdated(products []iap.Product) {
	r.record(Event{Kind: EventProductsUpdated, Products: products})
}

func (r *RecordingObserver) OnPurchasesRestored(txs []iap.Transaction) {
	r.record(Event{Kind: EventPurchasesRestored, Transactions: txs})
}

func (r *RecordingObserver) FinishPurchase(productID string, tx iap.Transaction) {
	r.OnFinishPurchase(productID, tx)
}

func (r *RecordingObserver) FailPurchase(productID string, reason string) {
	r.OnFailPurchase(productID, reason)
}

func (r *RecordingObserver) ProductsUpdated(products []iap.Product) {
	r.OnProductsUpdated(products)
}

func (r *RecordingObserver) PurchasesRestored(txs []iap.Transaction) {
	r.OnPurchasesRestored(txs)
}

func (r *RecordingObserver) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := make([]Event, len(r.events))
	copy(events, r.events)
	return events
}

func (r *RecordingObserver) EventsOf(kind EventKind) []Event {
	var matched []Event
	for _, e := range r.Events() {
		if e.Kind == kind {
			matched = append(matched, e)
		}
	}
	return matched
}

// WaitFor blocks until at least n events of kind have been recorded and
// returns them.
func (r *RecordingObserver) WaitFor(t *testing.T, kind EventKind, n int) []Event {
	require.Eventually(t, func() bool {
		return len(r.EventsOf(kind)) >= n
	}, 2*time.Second, 5*time.Millisecond)

	return r.EventsOf(kind)
}

func (r *RecordingObserver) record(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}
