package purchase

import (
	"context"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/code-payments/flipchat-iap/catalog"
	"github.com/code-payments/flipchat-iap/iap"
	"github.com/code-payments/flipchat-iap/iap/memory"
	"github.com/code-payments/flipchat-iap/testutil"
)

type testEnv struct {
	store        *memory.InMemoryStorefront
	catalog      *catalog.Catalog
	recorder     *testutil.RecordingObserver
	orchestrator *Orchestrator
}

func setup(t *testing.T, ids ...string) *testEnv {
	log := zaptest.NewLogger(t)

	store := memory.NewInMemory()
	store.AddProduct("id.bundle.sub", "Monthly", "Monthly subscription", "4.99", "autoRenewable")
	store.AddProduct("pro", "Pro", "Unlock everything", "9.99", "nonConsumable")
	store.AddProduct("coins.100", "100 Coins", "A pile of coins", "0.99", "consumable")

	c := catalog.New(log, store)
	if len(ids) > 0 {
		_, err := c.Fetch(context.Background(), ids)
		require.NoError(t, err)
	}

	recorder := testutil.NewRecordingObserver()
	finisher := NewFinisher(log, store, recorder)

	return &testEnv{
		store:        store,
		catalog:      c,
		recorder:     recorder,
		orchestrator: NewOrchestrator(log, store, c, finisher, recorder),
	}
}

func TestOrchestrator_Success(t *testing.T) {
	env := setup(t, "id.bundle.sub")
	token := uuid.New()

	result, err := env.orchestrator.Purchase(context.Background(), "id.bundle.sub", &token)
	require.NoError(t, err)

	success, ok := result.(Success)
	require.True(t, ok)
	require.Equal(t, "id.bundle.sub", success.Transaction.ProductID)
	require.Equal(t, token, *success.Transaction.AppAccountToken)

	finished := env.recorder.EventsOf(testutil.EventFinishPurchase)
	require.Len(t, finished, 1)
	require.Equal(t, "id.bundle.sub", finished[0].ProductID)
	require.Equal(t, success.Transaction.ID, finished[0].Transaction.ID)
	require.Empty(t, env.recorder.EventsOf(testutil.EventFailPurchase))

	txID, err := strconv.ParseUint(success.Transaction.ID, 10, 64)
	require.NoError(t, err)
	require.Equal(t, 1, env.store.FinalizedCount(txID))
}

func TestOrchestrator_ProductNotFound(t *testing.T) {
	env := setup(t)

	result, err := env.orchestrator.Purchase(context.Background(), "missing.sku", nil)
	require.Nil(t, result)
	require.ErrorIs(t, err, iap.ErrProductNotFound)
	require.Contains(t, err.Error(), "missing.sku")

	require.Zero(t, env.store.Submissions())
	require.Empty(t, env.recorder.Events())
}

func TestOrchestrator_Unverified(t *testing.T) {
	env := setup(t, "pro")
	env.store.SetBehavior("pro", memory.BehaviorTamper)

	result, err := env.orchestrator.Purchase(context.Background(), "pro", nil)
	require.ErrorIs(t, err, iap.ErrVerificationFailed)

	unverified, ok := result.(Unverified)
	require.True(t, ok)
	require.NotEmpty(t, unverified.Reason)

	failed := env.recorder.EventsOf(testutil.EventFailPurchase)
	require.Len(t, failed, 1)
	require.Equal(t, "pro", failed[0].ProductID)
	require.Contains(t, failed[0].Reason, "Unverified transaction")
	require.Empty(t, env.recorder.EventsOf(testutil.EventFinishPurchase))
}

func TestOrchestrator_UserCancelled(t *testing.T) {
	env := setup(t, "pro")
	env.store.SetBehavior("pro", memory.BehaviorCancel)

	result, err := env.orchestrator.Purchase(context.Background(), "pro", nil)
	require.ErrorIs(t, err, iap.ErrUserCancelled)
	require.Equal(t, UserCancelled{}, result)

	failed := env.recorder.EventsOf(testutil.EventFailPurchase)
	require.Len(t, failed, 1)
	require.Equal(t, "User cancelled", failed[0].Reason)
}

func TestOrchestrator_Pending(t *testing.T) {
	env := setup(t, "pro")
	env.store.SetBehavior("pro", memory.BehaviorPending)

	result, err := env.orchestrator.Purchase(context.Background(), "pro", nil)
	require.ErrorIs(t, err, iap.ErrPending)
	require.Equal(t, Pending{}, result)
	require.Empty(t, env.recorder.Events())
}

func TestOrchestrator_Unknown(t *testing.T) {
	env := setup(t, "pro")
	env.store.SetBehavior("pro", memory.BehaviorUnrecognized)

	result, err := env.orchestrator.Purchase(context.Background(), "pro", nil)
	require.ErrorIs(t, err, iap.ErrUnknownResult)
	require.Equal(t, Unknown{}, result)
	require.Empty(t, env.recorder.Events())
}

func TestOrchestrator_ServiceError(t *testing.T) {
	env := setup(t, "pro")
	env.store.SetError(memory.OpSubmit, errors.New("storefront unavailable"))

	result, err := env.orchestrator.Purchase(context.Background(), "pro", nil)
	require.Nil(t, result)
	require.ErrorIs(t, err, iap.ErrService)

	failed := env.recorder.EventsOf(testutil.EventFailPurchase)
	require.Len(t, failed, 1)
	require.Equal(t, "pro", failed[0].ProductID)
	require.Equal(t, err.Error(), failed[0].Reason)

	// The failure leaves the orchestrator usable.
	env.store.SetError(memory.OpSubmit, nil)
	result, err = env.orchestrator.Purchase(context.Background(), "pro", nil)
	require.NoError(t, err)
	require.IsType(t, Success{}, result)
}
