package repository

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"mailseller-api/internal/model"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteBalances(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Unknown user reads as zero
	balance, err := store.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, balance)

	err = store.UpsertBalances(ctx, map[int64]float64{
		1: 10.5,
		2: 99.99,
	})
	require.NoError(t, err)

	balance, err = store.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 10.5, balance)

	// Upsert overwrites
	err = store.UpsertBalances(ctx, map[int64]float64{1: 4.25})
	require.NoError(t, err)

	all, err := store.AllBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]float64{1: 4.25, 2: 99.99}, all)
}

func TestSQLiteTokens(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	token, err := store.GetToken(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, token)

	first := gofakeit.UUID()
	err = store.UpsertTokens(ctx, map[int64]string{7: first})
	require.NoError(t, err)

	token, err = store.GetToken(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, first, token)

	// Rotation replaces the row rather than adding one
	second := gofakeit.UUID()
	err = store.UpsertTokens(ctx, map[int64]string{7: second})
	require.NoError(t, err)

	all, err := store.AllTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{7: second}, all)
}

func TestSQLiteTransactionsPagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	var txs []model.Transaction
	for i := 0; i < 5; i++ {
		txs = append(txs, model.Transaction{
			ID:          uuid.NewString(),
			UserID:      42,
			Amount:      -1.5,
			Type:        model.TxTypePurchase,
			Description: fmt.Sprintf("purchase %d", i),
			ItemIDs:     []string{gofakeit.Email(), gofakeit.Email()},
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		})
	}
	// A record for another user must not leak into listings
	txs = append(txs, model.Transaction{
		ID:        uuid.NewString(),
		UserID:    99,
		Amount:    20,
		Type:      model.TxTypeAdminDeposit,
		Timestamp: base,
	})
	require.NoError(t, store.InsertTransactions(ctx, txs))

	page, total, err := store.ListTransactions(ctx, 42, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)

	// Newest first
	assert.Equal(t, "purchase 4", page[0].Description)
	assert.Equal(t, "purchase 3", page[1].Description)
	assert.Len(t, page[0].ItemIDs, 2)

	page, total, err = store.ListTransactions(ctx, 42, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 1)
	assert.Equal(t, "purchase 0", page[0].Description)
}

func TestSQLiteDeleteTransactionsOlderThan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	recent := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, store.InsertTransactions(ctx, []model.Transaction{
		{ID: uuid.NewString(), UserID: 1, Amount: -1, Type: model.TxTypePurchase, Timestamp: old},
		{ID: uuid.NewString(), UserID: 1, Amount: -2, Type: model.TxTypePurchase, Timestamp: recent},
		// Deposits are kept regardless of age
		{ID: uuid.NewString(), UserID: 1, Amount: 50, Type: model.TxTypeExternalDeposit, Timestamp: old},
	}))

	deleted, err := store.DeleteTransactionsOlderThan(ctx, model.TxTypePurchase, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, total, err := store.ListTransactions(ctx, 1, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestSQLiteSumDeposits(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	since := time.Now().UTC().Add(-7 * 24 * time.Hour)

	require.NoError(t, store.InsertTransactions(ctx, []model.Transaction{
		// Exactly on the boundary counts
		{ID: uuid.NewString(), UserID: 5, Amount: 30, Type: model.TxTypeExternalDeposit, Timestamp: since},
		{ID: uuid.NewString(), UserID: 5, Amount: 20, Type: model.TxTypeAdminDeposit, Timestamp: since.Add(time.Hour)},
		// Before the window
		{ID: uuid.NewString(), UserID: 5, Amount: 100, Type: model.TxTypeExternalDeposit, Timestamp: since.Add(-time.Minute)},
		// Purchases are negative and excluded
		{ID: uuid.NewString(), UserID: 5, Amount: -10, Type: model.TxTypePurchase, Timestamp: since.Add(2 * time.Hour)},
		// Other user
		{ID: uuid.NewString(), UserID: 6, Amount: 500, Type: model.TxTypeExternalDeposit, Timestamp: since.Add(time.Hour)},
	}))

	sum, err := store.SumDeposits(ctx, 5, since)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, sum, 1e-9)
}

func TestSQLiteCustomDiscount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	discount, err := store.CustomDiscount(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, discount)

	value := 0.15
	require.NoError(t, store.SetCustomDiscount(ctx, 3, &value))

	discount, err = store.CustomDiscount(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, discount)
	assert.Equal(t, 0.15, *discount)

	// Clearing the override reverts to tier pricing
	require.NoError(t, store.SetCustomDiscount(ctx, 3, nil))

	discount, err = store.CustomDiscount(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, discount)
}
