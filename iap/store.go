package iap

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Storefront revocation reason codes, as reported on StoreTransaction.
const (
	RevocationCodeOther          = 0
	RevocationCodeDeveloperIssue = 1
)

// StoreProduct is the storefront's own product object. The engine keeps it as
// the opaque handle it submits purchases against.
type StoreProduct struct {
	ID           string
	DisplayName  string
	Description  string
	Price        decimal.Decimal
	DisplayPrice string
	Kind         string
}

// StoreTransaction is the storefront's own transaction object. It is also the
// handle passed back to FinalizeTransaction.
type StoreTransaction struct {
	ID               uint64
	ProductID        string
	PurchaseDate     time.Time
	IsUpgraded       bool
	RevocationDate   *time.Time
	RevocationReason *int
	AppAccountToken  *uuid.UUID
}

type Storefront interface {
	// LookupProducts returns the products the storefront knows about out of
	// ids. Unknown ids are omitted rather than reported as an error.
	LookupProducts(ctx context.Context, ids []string) ([]*StoreProduct, error)

	// SubmitPurchase starts a purchase for product, optionally attributing it
	// to accountToken, and waits for the storefront's outcome.
	SubmitPurchase(ctx context.Context, product *StoreProduct, accountToken *uuid.UUID) (PurchaseOutcome, error)

	// FinalizeTransaction tells the storefront the transaction was fully
	// processed locally.
	FinalizeTransaction(ctx context.Context, tx *StoreTransaction)

	// SyncEntitlements asks the storefront to bring current entitlements up to
	// date with its backend.
	SyncEntitlements(ctx context.Context) error

	// CurrentEntitlements streams the currently valid entitlements. The
	// channel is closed once the enumeration is complete or ctx is done.
	CurrentEntitlements(ctx context.Context) <-chan VerificationResult

	// TransactionUpdates streams transactions that happen outside an explicit
	// purchase call, such as renewals, revocations and approvals of pending
	// purchases. Only one subscription is expected per storefront.
	TransactionUpdates(ctx context.Context) <-chan VerificationResult
}
