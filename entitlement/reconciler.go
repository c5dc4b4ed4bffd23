package entitlement

import (
	"context"

	"go.uber.org/zap"

	"github.com/code-payments/flipchat-iap/iap"
)

// Finder answers point queries for a product's current entitlement.
type Finder interface {
	FindCurrent(ctx context.Context, productID string) (iap.Transaction, bool)
}

// Notifier is the subset of notify.Notifier restores report through.
type Notifier interface {
	PurchasesRestored(txs []iap.Transaction)
}

// Reconciler reads the storefront's current entitlements.
type Reconciler struct {
	log      *zap.Logger
	store    iap.Storefront
	notifier Notifier
}

func NewReconciler(log *zap.Logger, store iap.Storefront, notifier Notifier) *Reconciler {
	return &Reconciler{
		log:      log,
		store:    store,
		notifier: notifier,
	}
}

// Collect returns every verified current entitlement. Entitlements that fail
// verification can't be trusted and are dropped.
func (r *Reconciler) Collect(ctx context.Context) []iap.Transaction {
	var txs []iap.Transaction

	var dropped int
	for result := range r.store.CurrentEntitlements(ctx) {
		switch typed := result.(type) {
		case iap.Verified:
			txs = append(txs, iap.NewTransaction(typed.Transaction))
		default:
			dropped++
		}
	}

	if dropped > 0 {
		r.log.Debug("Dropped unverified entitlements", zap.Int("count", dropped))
	}
	return txs
}

// Restore syncs entitlements with the storefront, then reports the full set
// of verified entitlements to the observer exactly once, even when empty.
func (r *Reconciler) Restore(ctx context.Context) ([]iap.Transaction, error) {
	if err := r.store.SyncEntitlements(ctx); err != nil {
		r.log.Warn("Failed to sync entitlements", zap.Error(err))
		return nil, iap.NewServiceError("sync entitlements", err)
	}

	txs := r.Collect(ctx)
	if txs == nil {
		txs = []iap.Transaction{}
	}

	r.log.Debug("Restored purchases", zap.Int("count", len(txs)))
	r.notifier.PurchasesRestored(txs)

	return txs, nil
}

// FindCurrent returns the first verified current entitlement for productID.
func (r *Reconciler) FindCurrent(ctx context.Context, productID string) (iap.Transaction, bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for result := range r.store.CurrentEntitlements(ctx) {
		verified, ok := result.(iap.Verified)
		if !ok {
			continue
		}
		if verified.Transaction.ProductID == productID {
			return iap.NewTransaction(verified.Transaction), true
		}
	}
	return iap.Transaction{}, false
}
