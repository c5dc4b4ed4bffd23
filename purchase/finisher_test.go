package purchase

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/code-payments/flipchat-iap/iap"
	"github.com/code-payments/flipchat-iap/iap/memory"
	"github.com/code-payments/flipchat-iap/testutil"
)

func TestFinisher_Verified(t *testing.T) {
	store := memory.NewInMemory()
	recorder := testutil.NewRecordingObserver()

	var hooked []iap.Transaction
	finisher := NewFinisher(zaptest.NewLogger(t), store, recorder, func(tx iap.Transaction) {
		hooked = append(hooked, tx)
	})

	revokedAt := time.Now()
	code := iap.RevocationCodeDeveloperIssue
	storeTx := &iap.StoreTransaction{
		ID:               42,
		ProductID:        "pro",
		PurchaseDate:     time.Now(),
		RevocationDate:   &revokedAt,
		RevocationReason: &code,
	}

	tx, err := finisher.Finish(context.Background(), "", iap.Verified{Transaction: storeTx})
	require.NoError(t, err)
	require.Equal(t, "42", tx.ID)
	require.Equal(t, iap.RevocationReasonDeveloperIssue, tx.RevocationReason)

	finished := recorder.EventsOf(testutil.EventFinishPurchase)
	require.Len(t, finished, 1)
	require.Equal(t, "pro", finished[0].ProductID)
	require.Equal(t, 1, store.FinalizedCount(42))

	require.Len(t, hooked, 1)
	require.Equal(t, "42", hooked[0].ID)
}

func TestFinisher_Unverified(t *testing.T) {
	for _, tc := range []struct {
		name      string
		productID string
		result    iap.Unverified
		expected  string
	}{
		{
			name:      "CallerProduct",
			productID: "pro",
			result:    iap.Unverified{Transaction: &iap.StoreTransaction{ID: 1, ProductID: "other"}, Err: errors.New("bad signature")},
			expected:  "pro",
		},
		{
			name:     "DecodedProduct",
			result:   iap.Unverified{Transaction: &iap.StoreTransaction{ID: 1, ProductID: "id.bundle.sub"}, Err: errors.New("bad signature")},
			expected: "id.bundle.sub",
		},
		{
			name:     "Placeholder",
			result:   iap.Unverified{Err: errors.New("malformed payload")},
			expected: iap.UnknownProductID,
		},
		{
			name:     "NoError",
			result:   iap.Unverified{},
			expected: iap.UnknownProductID,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store := memory.NewInMemory()
			recorder := testutil.NewRecordingObserver()
			finisher := NewFinisher(zaptest.NewLogger(t), store, recorder)

			_, err := finisher.Finish(context.Background(), tc.productID, tc.result)
			require.ErrorIs(t, err, iap.ErrVerificationFailed)

			failed := recorder.EventsOf(testutil.EventFailPurchase)
			require.Len(t, failed, 1)
			require.Equal(t, tc.expected, failed[0].ProductID)
			require.Contains(t, failed[0].Reason, "Unverified transaction: ")
			require.Empty(t, recorder.EventsOf(testutil.EventFinishPurchase))
			require.Zero(t, store.FinalizedCount(1))
		})
	}
}

func TestFinisher_NilResult(t *testing.T) {
	recorder := testutil.NewRecordingObserver()
	finisher := NewFinisher(zaptest.NewLogger(t), memory.NewInMemory(), recorder)

	_, err := finisher.Finish(context.Background(), "pro", nil)
	require.ErrorIs(t, err, iap.ErrUnknownResult)
	require.Empty(t, recorder.Events())
}
