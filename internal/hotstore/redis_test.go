package hotstore

import (
	"context"
	"testing"
	"time"

	"mailseller-api/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedis(client)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisBalance(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedis(t)

	bal, err := store.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, bal)

	bal, err = store.IncrementBalance(ctx, 1, 12.5)
	require.NoError(t, err)
	assert.Equal(t, 12.5, bal)

	require.NoError(t, store.SetBalance(ctx, 2, 4.2))
	all, err := store.AllBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]float64{1: 12.5, 2: 4.2}, all)
}

func TestRedisDeductBalance(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedis(t)

	require.NoError(t, store.SetBalance(ctx, 1, 10.00))

	bal, ok, err := store.DeductBalance(ctx, 1, 4.00)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 6.00, bal)

	// Shortfall leaves the balance untouched.
	bal, ok, err = store.DeductBalance(ctx, 1, 6.01)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 6.00, bal)

	bal, err = store.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 6.00, bal)

	// Unknown users read as zero and never go negative.
	bal, ok, err = store.DeductBalance(ctx, 2, 1.00)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0.0, bal)
}

func TestRedisPool(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedis(t)

	added, err := store.AddItems(ctx, "gmail", []string{"a@x.com", "b@x.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = store.AddItems(ctx, "gmail", []string{"a@x.com", "c@x.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	size, err := store.PoolSize(ctx, "gmail")
	require.NoError(t, err)
	assert.Equal(t, 3, size)

	items, err := store.PopItems(ctx, "gmail", 2)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	size, err = store.PoolSize(ctx, "gmail")
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestRedisPurchaseScript(t *testing.T) {
	ctx := context.Background()

	t.Run("partial pool charges popped count", func(t *testing.T) {
		store, _ := newTestRedis(t)
		require.NoError(t, store.SetBalance(ctx, 1, 10.00))
		_, err := store.AddItems(ctx, "gmail", []string{"a@x.com", "b@x.com"})
		require.NoError(t, err)

		res, err := store.Purchase(ctx, 1, "gmail", 5, 3.00)
		require.NoError(t, err)
		assert.Equal(t, model.StatusSuccess, res.Status)
		assert.Len(t, res.Items, 2)
		assert.Equal(t, 6.00, res.Cost)
		assert.Equal(t, 4.00, res.BalanceRemaining)

		sold, err := store.SoldItems(ctx, 1)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a@x.com", "b@x.com"}, sold)

		bal, err := store.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 4.00, bal)
	})

	t.Run("insufficient credit leaves pool untouched", func(t *testing.T) {
		store, _ := newTestRedis(t)
		require.NoError(t, store.SetBalance(ctx, 1, 2.00))
		_, err := store.AddItems(ctx, "gmail", []string{"a@x.com"})
		require.NoError(t, err)

		res, err := store.Purchase(ctx, 1, "gmail", 1, 3.00)
		require.NoError(t, err)
		assert.Equal(t, model.StatusInsufficientCredit, res.Status)
		assert.Equal(t, 2.00, res.BalanceRemaining)
		assert.Empty(t, res.Items)

		size, err := store.PoolSize(ctx, "gmail")
		require.NoError(t, err)
		assert.Equal(t, 1, size)
	})

	t.Run("empty pool leaves balance untouched", func(t *testing.T) {
		store, _ := newTestRedis(t)
		require.NoError(t, store.SetBalance(ctx, 1, 10.00))

		res, err := store.Purchase(ctx, 1, "gmail", 1, 3.00)
		require.NoError(t, err)
		assert.Equal(t, model.StatusNoData, res.Status)
		assert.Equal(t, 10.00, res.BalanceRemaining)

		bal, err := store.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 10.00, bal)
	})

	t.Run("pools are isolated per type", func(t *testing.T) {
		store, _ := newTestRedis(t)
		require.NoError(t, store.SetBalance(ctx, 1, 10.00))
		_, err := store.AddItems(ctx, "hotmail", []string{"h@x.com"})
		require.NoError(t, err)

		res, err := store.Purchase(ctx, 1, "gmail", 1, 1.00)
		require.NoError(t, err)
		assert.Equal(t, model.StatusNoData, res.Status)

		size, err := store.PoolSize(ctx, "hotmail")
		require.NoError(t, err)
		assert.Equal(t, 1, size)
	})
}

func TestRedisTokenRotation(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedis(t)

	require.NoError(t, store.SetToken(ctx, 1, "tok-1"))
	userID, err := store.ResolveToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), userID)

	require.NoError(t, store.SetToken(ctx, 1, "tok-2"))

	_, err = store.ResolveToken(ctx, "tok-1")
	assert.ErrorIs(t, err, ErrNotFound)

	userID, err = store.ResolveToken(ctx, "tok-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), userID)

	tokens, err := store.AllTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{1: "tok-2"}, tokens)
}

func TestRedisDiscountAndSession(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedis(t)

	_, ok, err := store.GetDiscount(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetDiscount(ctx, 1, 0.05, time.Hour))
	d, ok, err := store.GetDiscount(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.05, d)

	require.NoError(t, store.DeleteDiscount(ctx, 1))
	_, ok, err = store.GetDiscount(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetSession(ctx, "sess-1", 9, time.Minute))
	userID, err := store.ResolveSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), userID)

	// TTL expiry is handled server-side.
	mr.FastForward(2 * time.Minute)
	_, err = store.ResolveSession(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
