package iap

// VerificationResult is the storefront's classification of a signed
// transaction. It is either Verified or Unverified.
type VerificationResult interface {
	isVerificationResult()
}

type Verified struct {
	Transaction *StoreTransaction
}

// Unverified carries whatever the storefront managed to decode from the
// payload. Transaction may be nil and must never be trusted.
type Unverified struct {
	Transaction *StoreTransaction
	Err         error
}

func (Verified) isVerificationResult()   {}
func (Unverified) isVerificationResult() {}

// PurchaseOutcome is the storefront's answer to SubmitPurchase.
type PurchaseOutcome interface {
	isPurchaseOutcome()
}

type StorePurchaseSuccess struct {
	Verification VerificationResult
}

type StorePurchaseCancelled struct{}

// StorePurchasePending means the purchase awaits an external approval. The
// resolution arrives later through TransactionUpdates.
type StorePurchasePending struct{}

// StorePurchaseUnrecognized is used by storefronts for outcomes they can't
// map onto the other variants.
type StorePurchaseUnrecognized struct {
	Kind string
}

func (StorePurchaseSuccess) isPurchaseOutcome()      {}
func (StorePurchaseCancelled) isPurchaseOutcome()    {}
func (StorePurchasePending) isPurchaseOutcome()      {}
func (StorePurchaseUnrecognized) isPurchaseOutcome() {}
