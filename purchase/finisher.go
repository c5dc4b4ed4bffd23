package purchase

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/code-payments/flipchat-iap/iap"
)

// Notifier is the subset of notify.Notifier purchases report through.
type Notifier interface {
	FinishPurchase(productID string, tx iap.Transaction)
	FailPurchase(productID string, reason string)
}

// FinishHook is called with every transaction the Finisher finalizes.
type FinishHook func(tx iap.Transaction)

// Finisher applies the verified/unverified pipeline shared by user initiated
// purchases and out of band transaction updates.
type Finisher struct {
	log      *zap.Logger
	store    iap.Storefront
	notifier Notifier
	hooks    []FinishHook
}

func NewFinisher(log *zap.Logger, store iap.Storefront, notifier Notifier, hooks ...FinishHook) *Finisher {
	return &Finisher{
		log:      log,
		store:    store,
		notifier: notifier,
		hooks:    hooks,
	}
}

// Finish classifies result. A verified transaction is reported to the
// observer and then finalized with the storefront. An unverified one is
// reported as a failure and never finalized.
//
// productID is the product the caller was purchasing, if any. When empty, the
// product is taken from the transaction itself.
func (f *Finisher) Finish(ctx context.Context, productID string, result iap.VerificationResult) (iap.Transaction, error) {
	switch typed := result.(type) {
	case iap.Verified:
		tx := iap.NewTransaction(typed.Transaction)
		if productID == "" {
			productID = tx.ProductID
		}

		log := f.log.With(
			zap.String("product_id", productID),
			zap.String("transaction_id", tx.ID),
		)
		if tx.IsRevoked() {
			log.Info("Finishing revoked transaction", zap.Stringer("revocation_reason", tx.RevocationReason))
		} else {
			log.Debug("Finishing verified transaction")
		}

		f.notifier.FinishPurchase(productID, tx)
		f.store.FinalizeTransaction(ctx, typed.Transaction)

		for _, hook := range f.hooks {
			hook(tx)
		}

		return tx, nil
	case iap.Unverified:
		if productID == "" {
			productID = iap.UnknownProductID
			if typed.Transaction != nil && typed.Transaction.ProductID != "" {
				productID = typed.Transaction.ProductID
			}
		}

		cause := typed.Err
		if cause == nil {
			cause = errors.New("no verification error reported")
		}

		f.log.Warn("Transaction failed verification", zap.String("product_id", productID), zap.Error(cause))
		f.notifier.FailPurchase(productID, "Unverified transaction: "+cause.Error())

		return iap.Transaction{}, errors.Wrapf(iap.ErrVerificationFailed, "transaction for %s", productID)
	default:
		f.log.Warn("Unexpected verification result", zap.String("product_id", productID), zap.String("type", fmt.Sprintf("%T", result)))
		return iap.Transaction{}, iap.ErrUnknownResult
	}
}

