package memory

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/code-payments/flipchat-iap/iap"
)

// Behavior controls how the storefront answers a purchase for a product.
type Behavior uint8

const (
	BehaviorApprove Behavior = iota
	BehaviorCancel
	BehaviorPending
	BehaviorTamper
	BehaviorUnrecognized
)

// Op identifies a storefront call that can be made to fail with SetError.
type Op uint8

const (
	OpLookup Op = iota
	OpSubmit
	OpSync
)

const defaultUpdateBufferSize = 64

// ErrUpdatesFull is returned when a transaction update can't be delivered
// because the update buffer is full.
var ErrUpdatesFull = errors.New("transaction update buffer is full")

type Option func(*InMemoryStorefront)

// WithLocale sets the locale display prices are formatted for.
func WithLocale(tag language.Tag) Option {
	return func(s *InMemoryStorefront) {
		s.printer = message.NewPrinter(tag)
	}
}

func WithCurrencySymbol(symbol string) Option {
	return func(s *InMemoryStorefront) {
		s.currencySymbol = symbol
	}
}

func WithUpdateBufferSize(size int) Option {
	return func(s *InMemoryStorefront) {
		s.updates = make(chan iap.VerificationResult, size)
	}
}

// InMemoryStorefront is a storefront backed by process memory. Every
// transaction it hands out is signed, and classified against its public key
// on delivery, so callers see the same Verified/Unverified vocabulary a real
// storefront produces.
type InMemoryStorefront struct {
	publicKey ed25519.PublicKey
	signer    ed25519.PrivateKey

	printer        *message.Printer
	currencySymbol string

	mu           sync.Mutex
	products     map[string]*iap.StoreProduct
	behaviors    map[string]Behavior
	errs         map[Op]error
	entitlements []*entitlement
	pending      map[string][]*uuid.UUID
	finalized    map[uint64]int
	submissions  int
	nextID       uint64

	updates chan iap.VerificationResult
}

type entitlement struct {
	productID string
	tx        *iap.StoreTransaction
	signed    *signedTransaction
}

func NewInMemory(opts ...Option) *InMemoryStorefront {
	pub, priv := mustGenerateKeyPair()

	s := &InMemoryStorefront{
		publicKey:      pub,
		signer:         priv,
		printer:        message.NewPrinter(language.English),
		currencySymbol: "$",
		products:       map[string]*iap.StoreProduct{},
		behaviors:      map[string]Behavior{},
		errs:           map[Op]error{},
		pending:        map[string][]*uuid.UUID{},
		finalized:      map[uint64]int{},
		nextID:         2000000000,
		updates:        make(chan iap.VerificationResult, defaultUpdateBufferSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddProduct registers a product with the storefront. price must be a decimal
// string, e.g. "4.99".
func (s *InMemoryStorefront) AddProduct(id, displayName, description, price, kind string) *iap.StoreProduct {
	amount := decimal.RequireFromString(price)

	product := &iap.StoreProduct{
		ID:           id,
		DisplayName:  displayName,
		Description:  description,
		Price:        amount,
		DisplayPrice: s.formatPrice(amount),
		Kind:         kind,
	}

	s.mu.Lock()
	s.products[id] = product
	s.mu.Unlock()

	return product
}

func (s *InMemoryStorefront) SetBehavior(productID string, behavior Behavior) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.behaviors[productID] = behavior
}

// SetError makes every subsequent call of op fail with err. A nil err clears
// the failure.
func (s *InMemoryStorefront) SetError(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.errs, op)
		return
	}
	s.errs[op] = err
}

func (s *InMemoryStorefront) Submissions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.submissions
}

func (s *InMemoryStorefront) FinalizedCount(txID uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.finalized[txID]
}

// AddEntitlement seeds a current entitlement for productID. Entitlements added
// with valid=false fail verification when enumerated.
func (s *InMemoryStorefront) AddEntitlement(productID string, valid bool) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, granted, err := s.grantLocked(productID, nil, !valid)
	if err != nil {
		return 0, err
	}

	return granted.id, nil
}

// Approve resolves the oldest pending purchase of productID and delivers the
// resulting transaction as an update.
func (s *InMemoryStorefront) Approve(productID string) (uint64, error) {
	s.mu.Lock()
	queue := s.pending[productID]
	if len(queue) == 0 {
		s.mu.Unlock()
		return 0, errors.Errorf("no pending purchase for %s", productID)
	}
	token := queue[0]
	s.pending[productID] = queue[1:]

	result, granted, err := s.grantLocked(productID, token, false)
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	return granted.id, s.publish(result)
}

// Renew issues a new transaction for productID, replacing its current
// entitlement, and delivers it as an update.
func (s *InMemoryStorefront) Renew(productID string) (uint64, error) {
	s.mu.Lock()
	result, granted, err := s.grantLocked(productID, nil, false)
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	return granted.id, s.publish(result)
}

// Revoke marks a transaction as revoked, removes it from the current
// entitlements and delivers the revocation as an update.
func (s *InMemoryStorefront) Revoke(txID uint64, reasonCode int) error {
	s.mu.Lock()

	var revoked *iap.StoreTransaction
	for i, e := range s.entitlements {
		if e.tx.ID == txID {
			revoked = e.tx
			s.entitlements = append(s.entitlements[:i], s.entitlements[i+1:]...)
			break
		}
	}
	if revoked == nil {
		s.mu.Unlock()
		return errors.Errorf("transaction %d is not a current entitlement", txID)
	}

	revokedAt := time.Now().UTC()
	code := reasonCode
	revoked.RevocationDate = &revokedAt
	revoked.RevocationReason = &code

	signed, err := signTransaction(s.signer, revoked, false)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	return s.publish(verifyTransaction(s.publicKey, signed))
}

// PushUnverified delivers an update for productID whose signature doesn't
// verify.
func (s *InMemoryStorefront) PushUnverified(productID string) error {
	s.mu.Lock()
	s.nextID++
	tx := &iap.StoreTransaction{
		ID:           s.nextID,
		ProductID:    productID,
		PurchaseDate: time.Now().UTC(),
	}
	signed, err := signTransaction(s.signer, tx, true)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	return s.publish(verifyTransaction(s.publicKey, signed))
}

func (s *InMemoryStorefront) LookupProducts(_ context.Context, ids []string) ([]*iap.StoreProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.errs[OpLookup]; err != nil {
		return nil, err
	}

	var found []*iap.StoreProduct
	for _, id := range ids {
		product, ok := s.products[id]
		if !ok {
			continue
		}
		copied := *product
		found = append(found, &copied)
	}
	return found, nil
}

func (s *InMemoryStorefront) SubmitPurchase(_ context.Context, product *iap.StoreProduct, accountToken *uuid.UUID) (iap.PurchaseOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.submissions++

	if err := s.errs[OpSubmit]; err != nil {
		return nil, err
	}
	if _, ok := s.products[product.ID]; !ok {
		return nil, errors.Errorf("unknown product %s", product.ID)
	}

	switch s.behaviors[product.ID] {
	case BehaviorCancel:
		return iap.StorePurchaseCancelled{}, nil
	case BehaviorPending:
		s.pending[product.ID] = append(s.pending[product.ID], accountToken)
		return iap.StorePurchasePending{}, nil
	case BehaviorUnrecognized:
		return iap.StorePurchaseUnrecognized{Kind: "deferred"}, nil
	case BehaviorTamper:
		result, _, err := s.grantLocked(product.ID, accountToken, true)
		if err != nil {
			return nil, err
		}
		return iap.StorePurchaseSuccess{Verification: result}, nil
	default:
		result, _, err := s.grantLocked(product.ID, accountToken, false)
		if err != nil {
			return nil, err
		}
		return iap.StorePurchaseSuccess{Verification: result}, nil
	}
}

func (s *InMemoryStorefront) FinalizeTransaction(_ context.Context, tx *iap.StoreTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finalized[tx.ID]++
}

func (s *InMemoryStorefront) SyncEntitlements(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.errs[OpSync]
}

func (s *InMemoryStorefront) CurrentEntitlements(ctx context.Context) <-chan iap.VerificationResult {
	s.mu.Lock()
	snapshot := make([]*signedTransaction, len(s.entitlements))
	for i, e := range s.entitlements {
		snapshot[i] = e.signed
	}
	s.mu.Unlock()

	ch := make(chan iap.VerificationResult)
	go func() {
		defer close(ch)

		for _, signed := range snapshot {
			select {
			case ch <- verifyTransaction(s.publicKey, signed):
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (s *InMemoryStorefront) TransactionUpdates(_ context.Context) <-chan iap.VerificationResult {
	return s.updates
}

// publish queues an update without blocking. The buffer only fills up when
// nothing is listening.
func (s *InMemoryStorefront) publish(result iap.VerificationResult) error {
	select {
	case s.updates <- result:
		return nil
	default:
		return ErrUpdatesFull
	}
}

type grant struct {
	id uint64
}

// grantLocked issues a signed transaction for productID. Anything other than
// a consumable becomes the product's current entitlement.
func (s *InMemoryStorefront) grantLocked(productID string, accountToken *uuid.UUID, tamper bool) (iap.VerificationResult, grant, error) {
	product, ok := s.products[productID]
	if !ok {
		return nil, grant{}, errors.Errorf("unknown product %s", productID)
	}

	s.nextID++
	tx := &iap.StoreTransaction{
		ID:              s.nextID,
		ProductID:       productID,
		PurchaseDate:    time.Now().UTC(),
		AppAccountToken: accountToken,
	}

	signed, err := signTransaction(s.signer, tx, tamper)
	if err != nil {
		return nil, grant{}, err
	}

	if iap.ParseProductType(product.Kind) != iap.ProductTypeConsumable {
		e := &entitlement{productID: productID, tx: tx, signed: signed}

		replaced := false
		for i, existing := range s.entitlements {
			if existing.productID == productID {
				s.entitlements[i] = e
				replaced = true
				break
			}
		}
		if !replaced {
			s.entitlements = append(s.entitlements, e)
		}
	}

	return verifyTransaction(s.publicKey, signed), grant{id: tx.ID}, nil
}

// formatPrice renders amount with two decimal places in the storefront's
// locale. Digits come from the decimal itself; the printer only contributes
// grouping and the decimal separator.
func (s *InMemoryStorefront) formatPrice(amount decimal.Decimal) string {
	fixed := amount.Round(2)
	sign := ""
	if fixed.IsNegative() {
		sign = "-"
		fixed = fixed.Neg()
	}

	whole := fixed.Truncate(0)
	cents := fixed.Sub(whole).Shift(2).IntPart()
	separator := strings.Trim(s.printer.Sprintf("%.1f", 1.5), "15")

	return fmt.Sprintf("%s%s%s%s%02d", sign, s.currencySymbol, s.printer.Sprintf("%d", whole.IntPart()), separator, cents)
}
