package purchase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/code-payments/flipchat-iap/iap"
)

// Catalog is where the orchestrator resolves purchasable handles.
type Catalog interface {
	Handle(productID string) (*iap.StoreProduct, bool)
}

// Orchestrator drives a single purchase attempt from submission through to a
// finalized, failed or pending Result.
type Orchestrator struct {
	log      *zap.Logger
	store    iap.Storefront
	catalog  Catalog
	finisher *Finisher
	notifier Notifier
}

func NewOrchestrator(log *zap.Logger, store iap.Storefront, catalog Catalog, finisher *Finisher, notifier Notifier) *Orchestrator {
	return &Orchestrator{
		log:      log,
		store:    store,
		catalog:  catalog,
		finisher: finisher,
		notifier: notifier,
	}
}

// Purchase buys productID, which must already be in the catalog. The
// returned error is nil only for a Success result. Observer notifications
// for the attempt are queued before Purchase returns.
func (o *Orchestrator) Purchase(ctx context.Context, productID string, accountToken *uuid.UUID) (Result, error) {
	log := o.log.With(zap.String("product_id", productID))
	if accountToken != nil {
		log = log.With(zap.String("app_account_token", accountToken.String()))
	}

	handle, ok := o.catalog.Handle(productID)
	if !ok {
		log.Debug("Product is not in the catalog")
		return nil, errors.Wrapf(iap.ErrProductNotFound, "product %s", productID)
	}

	outcome, err := o.store.SubmitPurchase(ctx, handle, accountToken)
	if err != nil {
		log.Warn("Failed to submit purchase", zap.Error(err))

		err = iap.NewServiceError("submit purchase", err)
		o.notifier.FailPurchase(productID, err.Error())
		return nil, err
	}

	switch typed := outcome.(type) {
	case iap.StorePurchaseSuccess:
		tx, err := o.finisher.Finish(ctx, productID, typed.Verification)
		switch {
		case err == nil:
			log.Info("Purchase succeeded", zap.String("transaction_id", tx.ID))
			return Success{Transaction: tx}, nil
		case errors.Is(err, iap.ErrVerificationFailed):
			return Unverified{Reason: reason(typed.Verification)}, err
		default:
			return Unknown{}, err
		}
	case iap.StorePurchaseCancelled:
		log.Debug("Purchase cancelled by user")
		o.notifier.FailPurchase(productID, "User cancelled")
		return UserCancelled{}, errors.Wrapf(iap.ErrUserCancelled, "product %s", productID)
	case iap.StorePurchasePending:
		log.Debug("Purchase is pending")
		return Pending{}, errors.Wrapf(iap.ErrPending, "product %s", productID)
	default:
		log.Warn("Unrecognized purchase outcome", zap.String("type", fmt.Sprintf("%T", outcome)))
		return Unknown{}, errors.Wrapf(iap.ErrUnknownResult, "product %s", productID)
	}
}

func reason(result iap.VerificationResult) string {
	if unverified, ok := result.(iap.Unverified); ok && unverified.Err != nil {
		return unverified.Err.Error()
	}
	return iap.ErrVerificationFailed.Error()
}
