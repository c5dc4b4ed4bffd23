package iap

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UnknownProductID is reported to observers when an unverified transaction
// update carries no decodable product identifier.
const UnknownProductID = "unknown"

type ProductType uint8

const (
	ProductTypeUnknown ProductType = iota
	ProductTypeConsumable
	ProductTypeNonConsumable
	ProductTypeAutoRenewable
	ProductTypeNonRenewable
)

func (t ProductType) String() string {
	switch t {
	case ProductTypeConsumable:
		return "consumable"
	case ProductTypeNonConsumable:
		return "nonConsumable"
	case ProductTypeAutoRenewable:
		return "autoRenewable"
	case ProductTypeNonRenewable:
		return "nonRenewable"
	default:
		return "unknown"
	}
}

// ParseProductType maps a storefront product kind onto a ProductType. Kinds
// the engine doesn't know about map to ProductTypeUnknown.
func ParseProductType(kind string) ProductType {
	switch kind {
	case "consumable":
		return ProductTypeConsumable
	case "nonConsumable":
		return ProductTypeNonConsumable
	case "autoRenewable":
		return ProductTypeAutoRenewable
	case "nonRenewable":
		return ProductTypeNonRenewable
	default:
		return ProductTypeUnknown
	}
}

type RevocationReason uint8

const (
	RevocationReasonNone RevocationReason = iota
	RevocationReasonDeveloperIssue
	RevocationReasonOther
	RevocationReasonUnknown
)

func (r RevocationReason) String() string {
	switch r {
	case RevocationReasonNone:
		return ""
	case RevocationReasonDeveloperIssue:
		return "developerIssue"
	case RevocationReasonOther:
		return "other"
	default:
		return "unknown"
	}
}

// Product describes a purchasable item as last reported by the storefront.
type Product struct {
	ID           string
	DisplayName  string
	Description  string
	Price        decimal.Decimal
	DisplayPrice string
	Type         ProductType
}

func NewProduct(p *StoreProduct) Product {
	return Product{
		ID:           p.ID,
		DisplayName:  p.DisplayName,
		Description:  p.Description,
		Price:        p.Price,
		DisplayPrice: p.DisplayPrice,
		Type:         ParseProductType(p.Kind),
	}
}

func (p Product) Equal(other Product) bool {
	return p.ID == other.ID &&
		p.DisplayName == other.DisplayName &&
		p.Description == other.Description &&
		p.Price.Equal(other.Price) &&
		p.DisplayPrice == other.DisplayPrice &&
		p.Type == other.Type
}

// Transaction is a completed or historical purchase. Only verified storefront
// transactions are ever turned into a Transaction.
type Transaction struct {
	ID               string
	ProductID        string
	PurchaseDate     time.Time
	IsUpgraded       bool
	RevocationDate   *time.Time
	RevocationReason RevocationReason
	AppAccountToken  *uuid.UUID
}

func NewTransaction(tx *StoreTransaction) Transaction {
	t := Transaction{
		ID:           strconv.FormatUint(tx.ID, 10),
		ProductID:    tx.ProductID,
		PurchaseDate: tx.PurchaseDate,
		IsUpgraded:   tx.IsUpgraded,
	}

	if tx.RevocationDate != nil {
		revokedAt := *tx.RevocationDate
		t.RevocationDate = &revokedAt

		t.RevocationReason = RevocationReasonUnknown
		if tx.RevocationReason != nil {
			switch *tx.RevocationReason {
			case RevocationCodeOther:
				t.RevocationReason = RevocationReasonOther
			case RevocationCodeDeveloperIssue:
				t.RevocationReason = RevocationReasonDeveloperIssue
			}
		}
	}

	if tx.AppAccountToken != nil {
		token := *tx.AppAccountToken
		t.AppAccountToken = &token
	}

	return t
}

func (t Transaction) IsRevoked() bool {
	return t.RevocationDate != nil
}

func (t Transaction) Clone() Transaction {
	cloned := t
	if t.RevocationDate != nil {
		revokedAt := *t.RevocationDate
		cloned.RevocationDate = &revokedAt
	}
	if t.AppAccountToken != nil {
		token := *t.AppAccountToken
		cloned.AppAccountToken = &token
	}
	return cloned
}
