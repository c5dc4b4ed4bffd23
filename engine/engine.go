package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/code-payments/flipchat-iap/catalog"
	"github.com/code-payments/flipchat-iap/entitlement"
	entitlementcache "github.com/code-payments/flipchat-iap/entitlement/cache"
	"github.com/code-payments/flipchat-iap/iap"
	"github.com/code-payments/flipchat-iap/listener"
	"github.com/code-payments/flipchat-iap/notify"
	"github.com/code-payments/flipchat-iap/purchase"
)

var ErrClosed = errors.New("purchase engine is closed")

// Completion receives the outcome of an asynchronous engine operation. A nil
// error means success; otherwise err.Error() is a human readable message.
type Completion func(err error)

// StatusCompletion receives the outcome of CheckPurchaseStatus.
type StatusCompletion func(tx iap.Transaction, found bool)

type Option func(*options)

type options struct {
	observer       iap.Observer
	statusCacheTTL time.Duration
}

// WithObserver registers o before the transaction listener starts, so no
// update can be delivered without it.
func WithObserver(o iap.Observer) Option {
	return func(opts *options) {
		opts.observer = o
	}
}

// WithStatusCacheTTL caches CheckPurchaseStatus answers per product for ttl.
// Cached answers are dropped whenever a transaction for the product is
// finished. A ttl of zero disables the cache.
func WithStatusCacheTTL(ttl time.Duration) Option {
	return func(opts *options) {
		opts.statusCacheTTL = ttl
	}
}

// Engine is the purchase and entitlement manager. Creating one starts its
// transaction listener; Close stops it. Applications are expected to create
// a single Engine per storefront and share it.
//
// Every operation runs on its own goroutine. Observer callbacks and
// completions are all delivered on one dispatch goroutine, one at a time, and
// an operation's observer callbacks are delivered before its completion.
type Engine struct {
	log   *zap.Logger
	store iap.Storefront

	notifier     *notify.Notifier
	catalog      *catalog.Catalog
	orchestrator *purchase.Orchestrator
	reconciler   *entitlement.Reconciler
	status       entitlement.Finder
	statusCache  *entitlementcache.Cache
	listener     *listener.Listener

	mu     sync.RWMutex
	closed bool
	tasks  sync.WaitGroup

	closeOnce sync.Once
}

// New creates an Engine for store and starts its transaction listener. A nil
// log disables logging.
func New(log *zap.Logger, store iap.Storefront, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	e := &Engine{
		log:      log,
		store:    store,
		notifier: notify.NewNotifier(log.Named("notifier")),
		catalog:  catalog.New(log.Named("catalog"), store),
	}
	e.notifier.SetObserver(o.observer)

	reconciler := entitlement.NewReconciler(log.Named("entitlement"), store, e.notifier)
	e.reconciler = reconciler
	e.status = reconciler

	var hooks []purchase.FinishHook
	if o.statusCacheTTL > 0 {
		cache := entitlementcache.NewInCache(reconciler, o.statusCacheTTL)
		e.status = cache
		e.statusCache = cache
		hooks = append(hooks, func(tx iap.Transaction) {
			cache.Invalidate(tx.ProductID)
		})
	}

	finisher := purchase.NewFinisher(log.Named("finisher"), store, e.notifier, hooks...)
	e.orchestrator = purchase.NewOrchestrator(log.Named("purchase"), store, e.catalog, finisher, e.notifier)
	e.listener = listener.Start(log.Named("listener"), store, finisher)

	return e
}

// SetObserver replaces the registered observer. Nil unregisters it.
func (e *Engine) SetObserver(o iap.Observer) {
	e.notifier.SetObserver(o)
}

// RequestProducts fetches ids from the storefront into the product catalog.
// On success the observer is told about every product that was returned.
func (e *Engine) RequestProducts(ids []string, completion Completion) {
	e.spawn(completion, func(ctx context.Context) error {
		products, err := e.catalog.Fetch(ctx, ids)
		if err != nil {
			return err
		}

		e.notifier.ProductsUpdated(products)
		return nil
	})
}

// PurchaseProduct buys productID, which must have been fetched with
// RequestProducts first. accountToken, if set, attributes the purchase to an
// account on the storefront.
func (e *Engine) PurchaseProduct(productID string, accountToken *uuid.UUID, completion Completion) {
	e.spawn(completion, func(ctx context.Context) error {
		_, err := e.orchestrator.Purchase(ctx, productID, accountToken)
		return err
	})
}

// RestorePurchases syncs entitlements with the storefront and reports every
// verified current entitlement to the observer.
func (e *Engine) RestorePurchases(completion Completion) {
	e.spawn(completion, func(ctx context.Context) error {
		_, err := e.reconciler.Restore(ctx)
		return err
	})
}

// CheckPurchaseStatus looks up the current entitlement for productID. It
// doesn't notify the observer.
func (e *Engine) CheckPurchaseStatus(productID string, completion StatusCompletion) {
	if !e.begin() {
		completion(iap.Transaction{}, false)
		return
	}

	go func() {
		defer e.tasks.Done()

		tx, found := e.status.FindCurrent(context.Background(), productID)
		e.complete(func() { completion(tx, found) })
	}()
}

func (e *Engine) GetProduct(productID string) (iap.Product, bool) {
	return e.catalog.Lookup(productID)
}

func (e *Engine) GetAllProducts() []iap.Product {
	return e.catalog.List()
}

// Close stops the transaction listener, waits for in flight operations to
// complete, and delivers their remaining callbacks. Operations started after
// Close complete with ErrClosed. Close must not be called from an observer
// callback or completion.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		e.listener.Close()
		e.tasks.Wait()
		if e.statusCache != nil {
			e.statusCache.Close()
		}
		e.notifier.Close()

		e.log.Debug("Purchase engine closed")
	})
}

func (e *Engine) spawn(completion Completion, op func(ctx context.Context) error) {
	if !e.begin() {
		completion(ErrClosed)
		return
	}

	go func() {
		defer e.tasks.Done()

		err := op(context.Background())
		e.complete(func() { completion(err) })
	}()
}

func (e *Engine) begin() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return false
	}
	e.tasks.Add(1)
	return true
}

func (e *Engine) complete(fn func()) {
	if !e.notifier.Post(fn) {
		// Only reachable if the notifier was closed out from under a task.
		fn()
	}
}
