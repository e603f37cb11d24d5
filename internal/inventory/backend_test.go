package inventory

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"mailseller-api/internal/catalog"
	"mailseller-api/internal/hotstore"
	"mailseller-api/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPool is an in-memory PoolStore standing in for PostgreSQL.
type stubPool struct {
	mu    sync.Mutex
	items map[string][]string
	sold  map[string][]string
	fail  error
	onPop func() // runs after a successful claim, before the deduction
}

func newStubPool() *stubPool {
	return &stubPool{items: make(map[string][]string), sold: make(map[string][]string)}
}

func (s *stubPool) AddItems(_ context.Context, poolType string, items []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[poolType] = append(s.items[poolType], items...)
	return len(items), nil
}

func (s *stubPool) PopItems(_ context.Context, poolType string, _ int64, count int) ([]string, error) {
	s.mu.Lock()
	if s.fail != nil {
		s.mu.Unlock()
		return nil, s.fail
	}
	pool := s.items[poolType]
	if count > len(pool) {
		count = len(pool)
	}
	popped := append([]string(nil), pool[:count]...)
	s.items[poolType] = pool[count:]
	s.sold[poolType] = append(s.sold[poolType], popped...)
	hook := s.onPop
	s.mu.Unlock()

	if hook != nil && len(popped) > 0 {
		hook()
	}
	return popped, nil
}

func (s *stubPool) Release(_ context.Context, poolType string, items []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	released := make(map[string]bool, len(items))
	for _, item := range items {
		released[item] = true
	}
	var kept []string
	for _, item := range s.sold[poolType] {
		if released[item] {
			s.items[poolType] = append(s.items[poolType], item)
			continue
		}
		kept = append(kept, item)
	}
	s.sold[poolType] = kept
	return nil
}

func (s *stubPool) PoolSize(_ context.Context, poolType string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items[poolType]), nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestSelectorRoutesByBackend(t *testing.T) {
	hot := hotstore.NewMemory()
	sel := NewSelector(hot, newStubPool(), testLogger())

	fast, ok := sel.For(catalog.ItemType{Code: "short_gmail", Backend: catalog.BackendFast})
	require.True(t, ok)
	assert.IsType(t, &fastBackend{}, fast)

	durable, ok := sel.For(catalog.ItemType{Code: "aged_hotmail", Backend: catalog.BackendDurable})
	require.True(t, ok)
	assert.IsType(t, &durableBackend{}, durable)
}

func TestSelectorWithoutDurablePool(t *testing.T) {
	sel := NewSelector(hotstore.NewMemory(), nil, testLogger())

	_, ok := sel.For(catalog.ItemType{Code: "aged_hotmail", Backend: catalog.BackendDurable})
	assert.False(t, ok)

	_, ok = sel.For(catalog.ItemType{Code: "short_gmail", Backend: catalog.BackendFast})
	assert.True(t, ok)
}

func TestDurablePurchase(t *testing.T) {
	ctx := context.Background()
	hot := hotstore.NewMemory()
	pool := newStubPool()
	b := &durableBackend{hot: hot, pool: pool, log: testLogger()}

	_, err := pool.AddItems(ctx, "aged_hotmail", []string{"a@x.com", "b@x.com"})
	require.NoError(t, err)
	require.NoError(t, hot.SetBalance(ctx, 1, 10.00))

	// Asking for more than the pool holds succeeds with what's there
	res, err := b.Purchase(ctx, 1, "aged_hotmail", 3, 3.00)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, res.Status)
	assert.Len(t, res.Items, 2)
	assert.InDelta(t, 6.00, res.Cost, 1e-9)
	assert.InDelta(t, 4.00, res.BalanceRemaining, 1e-9)

	// Pool is now empty
	res, err = b.Purchase(ctx, 1, "aged_hotmail", 1, 3.00)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNoData, res.Status)
	assert.InDelta(t, 4.00, res.BalanceRemaining, 1e-9)
}

func TestDurablePurchaseInsufficientCredit(t *testing.T) {
	ctx := context.Background()
	hot := hotstore.NewMemory()
	pool := newStubPool()
	b := &durableBackend{hot: hot, pool: pool, log: testLogger()}

	_, err := pool.AddItems(ctx, "aged_hotmail", []string{"a@x.com", "b@x.com"})
	require.NoError(t, err)
	require.NoError(t, hot.SetBalance(ctx, 1, 5.00))

	// 2 x 3.00 exceeds the balance even though 1 would fit
	res, err := b.Purchase(ctx, 1, "aged_hotmail", 2, 3.00)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInsufficientCredit, res.Status)
	assert.InDelta(t, 5.00, res.BalanceRemaining, 1e-9)

	// Nothing was claimed
	size, err := pool.PoolSize(ctx, "aged_hotmail")
	require.NoError(t, err)
	assert.Equal(t, 2, size)
}

// failingDeductStore forces the deduction step to error after items
// have been claimed.
type failingDeductStore struct {
	hotstore.Store
}

func (s *failingDeductStore) DeductBalance(context.Context, int64, float64) (float64, bool, error) {
	return 0, false, errors.New("store unavailable")
}

func TestDurablePurchaseFastSpendBetweenCheckAndDeduct(t *testing.T) {
	ctx := context.Background()
	hot := hotstore.NewMemory()
	pool := newStubPool()
	b := &durableBackend{hot: hot, pool: pool, log: testLogger()}

	require.NoError(t, hot.SetBalance(ctx, 1, 10.00))

	fastItems := make([]string, 8)
	durableItems := make([]string, 9)
	for i := range fastItems {
		fastItems[i] = "f" + string(rune('0'+i)) + "@x.com"
	}
	for i := range durableItems {
		durableItems[i] = "d" + string(rune('0'+i)) + "@x.com"
	}
	_, err := hot.AddItems(ctx, "short_gmail", fastItems)
	require.NoError(t, err)
	_, err = pool.AddItems(ctx, "aged_hotmail", durableItems)
	require.NoError(t, err)

	// A fast-pool purchase drains 8.00 after the durable path's
	// affordability check but before its deduction.
	pool.onPop = func() {
		res, err := hot.Purchase(ctx, 1, "short_gmail", 8, 1.00)
		require.NoError(t, err)
		require.Equal(t, model.StatusSuccess, res.Status)
	}

	res, err := b.Purchase(ctx, 1, "aged_hotmail", 9, 1.00)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInsufficientCredit, res.Status)
	assert.InDelta(t, 2.00, res.BalanceRemaining, 1e-9)

	// Balance never went negative and the claimed items went back.
	balance, err := hot.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 2.00, balance, 1e-9)

	size, err := pool.PoolSize(ctx, "aged_hotmail")
	require.NoError(t, err)
	assert.Equal(t, 9, size)
	assert.Empty(t, pool.sold["aged_hotmail"])
}

func TestDurablePurchaseDeductErrorReleasesItems(t *testing.T) {
	ctx := context.Background()
	hot := hotstore.NewMemory()
	pool := newStubPool()
	b := &durableBackend{hot: &failingDeductStore{Store: hot}, pool: pool, log: testLogger()}

	_, err := pool.AddItems(ctx, "aged_hotmail", []string{"a@x.com", "b@x.com"})
	require.NoError(t, err)
	require.NoError(t, hot.SetBalance(ctx, 1, 100))

	_, err = b.Purchase(ctx, 1, "aged_hotmail", 2, 1.00)
	assert.Error(t, err)

	// The claim was undone and the balance untouched.
	size, err := pool.PoolSize(ctx, "aged_hotmail")
	require.NoError(t, err)
	assert.Equal(t, 2, size)
	assert.Empty(t, pool.sold["aged_hotmail"])

	balance, err := hot.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, balance, 1e-9)
}

func TestDurablePurchasePoolError(t *testing.T) {
	ctx := context.Background()
	hot := hotstore.NewMemory()
	pool := newStubPool()
	pool.fail = errors.New("connection refused")
	b := &durableBackend{hot: hot, pool: pool, log: testLogger()}

	require.NoError(t, hot.SetBalance(ctx, 1, 100))

	_, err := b.Purchase(ctx, 1, "aged_hotmail", 1, 1.00)
	assert.Error(t, err)

	// Balance untouched on failure
	balance, err := hot.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, balance, 1e-9)
}

func TestDurablePurchaseConcurrentSameUser(t *testing.T) {
	ctx := context.Background()
	hot := hotstore.NewMemory()
	pool := newStubPool()
	b := &durableBackend{hot: hot, pool: pool, log: testLogger()}

	items := make([]string, 100)
	for i := range items {
		items[i] = string(rune('a'+i%26)) + "-" + string(rune('0'+i/26)) + "@x.com"
	}
	_, err := pool.AddItems(ctx, "aged_hotmail", items)
	require.NoError(t, err)
	require.NoError(t, hot.SetBalance(ctx, 1, 50.00))

	// 50 credits at 1.00 each: exactly 50 of 100 items are affordable
	var wg sync.WaitGroup
	var mu sync.Mutex
	bought := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				res, err := b.Purchase(ctx, 1, "aged_hotmail", 1, 1.00)
				if !assert.NoError(t, err) {
					continue
				}
				if res.Status == model.StatusSuccess {
					mu.Lock()
					bought += len(res.Items)
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, bought)

	balance, err := hot.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, balance, 1e-9)
}
