package iap

// Observer receives purchase lifecycle notifications. Embed NopObserver to
// implement only the callbacks you care about.
type Observer interface {
	OnFinishPurchase(productID string, tx Transaction)
	OnFailPurchase(productID string, reason string)
	OnProductsUpdated(products []Product)
	OnPurchasesRestored(txs []Transaction)
}

type NopObserver struct{}

func (NopObserver) OnFinishPurchase(string, Transaction) {}
func (NopObserver) OnFailPurchase(string, string)        {}
func (NopObserver) OnProductsUpdated([]Product)          {}
func (NopObserver) OnPurchasesRestored([]Transaction)    {}

// ObserverFuncs is an adapter to allow the use of ordinary functions as an
// Observer. Nil fields are ignored.
type ObserverFuncs struct {
	FinishPurchase    func(productID string, tx Transaction)
	FailPurchase      func(productID string, reason string)
	ProductsUpdated   func(products []Product)
	PurchasesRestored func(txs []Transaction)
}

func (f ObserverFuncs) OnFinishPurchase(productID string, tx Transaction) {
	if f.FinishPurchase != nil {
		f.FinishPurchase(productID, tx)
	}
}

func (f ObserverFuncs) OnFailPurchase(productID string, reason string) {
	if f.FailPurchase != nil {
		f.FailPurchase(productID, reason)
	}
}

func (f ObserverFuncs) OnProductsUpdated(products []Product) {
	if f.ProductsUpdated != nil {
		f.ProductsUpdated(products)
	}
}

func (f ObserverFuncs) OnPurchasesRestored(txs []Transaction) {
	if f.PurchasesRestored != nil {
		f.PurchasesRestored(txs)
	}
}
