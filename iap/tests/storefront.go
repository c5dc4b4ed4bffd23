package tests

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/flipchat-iap/iap"
)

// Harness is a storefront that tests can seed with products and
// entitlements.
type Harness interface {
	iap.Storefront

	AddProduct(id, displayName, description, price, kind string) *iap.StoreProduct
	AddEntitlement(productID string, valid bool) (uint64, error)
}

// RunStorefrontTests runs the generic storefront contract against fresh
// storefronts returned by newStorefront.
func RunStorefrontTests(t *testing.T, newStorefront func() Harness) {
	for _, tf := range []func(t *testing.T, s Harness){
		testLookupProducts,
		testSubmitPurchase,
		testCurrentEntitlements,
		testCurrentEntitlements_Cancelled,
	} {
		tf(t, newStorefront())
	}
}

func testLookupProducts(t *testing.T, s Harness) {
	ctx := context.Background()

	s.AddProduct("coins.100", "100 Coins", "A pile of coins", "0.99", "consumable")
	s.AddProduct("pro", "Pro", "Unlock everything", "9.99", "nonConsumable")

	products, err := s.LookupProducts(ctx, []string{"pro", "missing"})
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, "pro", products[0].ID)
	require.Equal(t, "Pro", products[0].DisplayName)
	require.Equal(t, "nonConsumable", products[0].Kind)

	products, err = s.LookupProducts(ctx, []string{"missing"})
	require.NoError(t, err)
	require.Empty(t, products)
}

func testSubmitPurchase(t *testing.T, s Harness) {
	ctx := context.Background()

	handle := s.AddProduct("pro", "Pro", "Unlock everything", "9.99", "nonConsumable")
	token := uuid.New()

	outcome, err := s.SubmitPurchase(ctx, handle, &token)
	require.NoError(t, err)

	success, ok := outcome.(iap.StorePurchaseSuccess)
	require.True(t, ok)
	verified, ok := success.Verification.(iap.Verified)
	require.True(t, ok)
	require.Equal(t, "pro", verified.Transaction.ProductID)
	require.NotNil(t, verified.Transaction.AppAccountToken)
	require.Equal(t, token, *verified.Transaction.AppAccountToken)

	results := drain(t, s.CurrentEntitlements(ctx))
	require.Len(t, results, 1)
	entitled, ok := results[0].(iap.Verified)
	require.True(t, ok)
	require.Equal(t, verified.Transaction.ID, entitled.Transaction.ID)
}

func testCurrentEntitlements(t *testing.T, s Harness) {
	ctx := context.Background()

	s.AddProduct("pro", "Pro", "Unlock everything", "9.99", "nonConsumable")
	s.AddProduct("id.bundle.sub", "Monthly", "Monthly subscription", "4.99", "autoRenewable")

	validID, err := s.AddEntitlement("pro", true)
	require.NoError(t, err)
	_, err = s.AddEntitlement("id.bundle.sub", false)
	require.NoError(t, err)

	var verified, unverified int
	for _, result := range drain(t, s.CurrentEntitlements(ctx)) {
		switch typed := result.(type) {
		case iap.Verified:
			verified++
			require.Equal(t, validID, typed.Transaction.ID)
		case iap.Unverified:
			unverified++
			require.Error(t, typed.Err)
		default:
			t.Fatalf("unexpected verification result %T", result)
		}
	}
	require.Equal(t, 1, verified)
	require.Equal(t, 1, unverified)
}

func testCurrentEntitlements_Cancelled(t *testing.T, s Harness) {
	ctx, cancel := context.WithCancel(context.Background())

	for _, id := range []string{"a", "b", "c"} {
		s.AddProduct(id, id, id, "1.99", "nonConsumable")
		_, err := s.AddEntitlement(id, true)
		require.NoError(t, err)
	}

	ch := s.CurrentEntitlements(ctx)
	<-ch
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func drain(t *testing.T, ch <-chan iap.VerificationResult) []iap.VerificationResult {
	var results []iap.VerificationResult
	timeout := time.After(time.Second)
	for {
		select {
		case result, ok := <-ch:
			if !ok {
				return results
			}
			results = append(results, result)
		case <-timeout:
			t.Fatal("timed out draining stream")
			return nil
		}
	}
}
