package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mailseller-api/internal/catalog"
	"mailseller-api/internal/hotstore"
	"mailseller-api/internal/inventory"
	"mailseller-api/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalogYAML = `
types:
  - code: short_gmail
    name: Short Gmail
    price: 3.00
    backend: fast
tiers:
  - code: iron
    name: Iron
    discount: 0
    weekly_deposit: 0
  - code: silver
    name: Silver
    discount: 0.10
    weekly_deposit: 200
`

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalogYAML), 0o644))
	cat, err := catalog.Load(path)
	require.NoError(t, err)
	return cat
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// captureSink records transactions handed to the log.
type captureSink struct {
	mu  sync.Mutex
	txs []model.Transaction
}

func (s *captureSink) Add(tx model.Transaction) {
	s.mu.Lock()
	s.txs = append(s.txs, tx)
	s.mu.Unlock()
}

func (s *captureSink) all() []model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Transaction(nil), s.txs...)
}

// stubSources backs the discount service without a database.
type stubSources struct {
	deposits float64
	override *float64
	calls    int
}

func (s *stubSources) SumDeposits(context.Context, int64, time.Time) (float64, error) {
	s.calls++
	return s.deposits, nil
}

func (s *stubSources) CustomDiscount(context.Context, int64) (*float64, error) {
	return s.override, nil
}

func newTestEngine(t *testing.T, hot hotstore.Store, sources *stubSources) (*PurchaseEngine, *captureSink) {
	t.Helper()
	cat := testCatalog(t)
	log := testLogger()
	sink := &captureSink{}
	discounts := NewDiscountService(hot, sources, sources, cat, time.Hour, log)
	backends := inventory.NewSelector(hot, nil, log)
	return NewPurchaseEngine(cat, backends, discounts, sink, 100, log), sink
}

func TestBuySuccess(t *testing.T) {
	ctx := context.Background()
	hot := hotstore.NewMemory()
	engine, sink := newTestEngine(t, hot, &stubSources{})

	require.NoError(t, hot.SetBalance(ctx, 1, 10.00))
	_, err := hot.AddItems(ctx, "short_gmail", []string{"a@gmail.com", "b@gmail.com"})
	require.NoError(t, err)

	// Asking for 5 with 2 in stock delivers 2 and charges for 2
	res, err := engine.Buy(ctx, 1, "short_gmail", 5)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, res.Status)
	assert.Len(t, res.Items, 2)
	assert.InDelta(t, 6.00, res.Cost, 1e-9)
	assert.InDelta(t, 4.00, res.BalanceRemaining, 1e-9)

	txs := sink.all()
	require.Len(t, txs, 1)
	assert.NotEmpty(t, txs[0].ID)
	assert.Equal(t, model.TxTypePurchase, txs[0].Type)
	assert.InDelta(t, -6.00, txs[0].Amount, 1e-9)
	assert.ElementsMatch(t, res.Items, txs[0].ItemIDs)
}

func TestBuyAppliesDiscount(t *testing.T) {
	ctx := context.Background()
	hot := hotstore.NewMemory()
	// 250 deposited in the window puts the user in the 10% tier
	engine, _ := newTestEngine(t, hot, &stubSources{deposits: 250})

	require.NoError(t, hot.SetBalance(ctx, 1, 10.00))
	_, err := hot.AddItems(ctx, "short_gmail", []string{"a@gmail.com"})
	require.NoError(t, err)

	res, err := engine.Buy(ctx, 1, "short_gmail", 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, res.Status)
	assert.InDelta(t, 2.70, res.Cost, 1e-9)
	assert.InDelta(t, 7.30, res.BalanceRemaining, 1e-9)
}

func TestBuyInsufficientCredit(t *testing.T) {
	ctx := context.Background()
	hot := hotstore.NewMemory()
	engine, sink := newTestEngine(t, hot, &stubSources{})

	require.NoError(t, hot.SetBalance(ctx, 1, 5.00))
	_, err := hot.AddItems(ctx, "short_gmail", []string{"a@gmail.com", "b@gmail.com"})
	require.NoError(t, err)

	res, err := engine.Buy(ctx, 1, "short_gmail", 2)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInsufficientCredit, res.Status)
	assert.InDelta(t, 5.00, res.BalanceRemaining, 1e-9)

	// No transaction and no items taken
	assert.Empty(t, sink.all())
	size, err := hot.PoolSize(ctx, "short_gmail")
	require.NoError(t, err)
	assert.Equal(t, 2, size)
}

func TestBuyNoData(t *testing.T) {
	ctx := context.Background()
	hot := hotstore.NewMemory()
	engine, sink := newTestEngine(t, hot, &stubSources{})

	require.NoError(t, hot.SetBalance(ctx, 1, 5.00))

	res, err := engine.Buy(ctx, 1, "short_gmail", 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNoData, res.Status)
	assert.InDelta(t, 5.00, res.BalanceRemaining, 1e-9)
	assert.Empty(t, sink.all())
}

func TestBuyValidation(t *testing.T) {
	ctx := context.Background()
	hot := hotstore.NewMemory()
	engine, sink := newTestEngine(t, hot, &stubSources{})

	require.NoError(t, hot.SetBalance(ctx, 1, 100))
	_, err := hot.AddItems(ctx, "short_gmail", []string{"a@gmail.com"})
	require.NoError(t, err)

	_, err = engine.Buy(ctx, 1, "short_gmail", 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = engine.Buy(ctx, 1, "short_gmail", 101)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = engine.Buy(ctx, 1, "aol_classic", 1)
	assert.ErrorIs(t, err, ErrUnknownItemType)

	// Rejected requests leave no trace
	assert.Empty(t, sink.all())
	balance, err := hot.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, balance, 1e-9)
	size, err := hot.PoolSize(ctx, "short_gmail")
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestPoolStats(t *testing.T) {
	ctx := context.Background()
	hot := hotstore.NewMemory()
	engine, _ := newTestEngine(t, hot, &stubSources{})

	_, err := hot.AddItems(ctx, "short_gmail", []string{"a@gmail.com", "b@gmail.com", "c@gmail.com"})
	require.NoError(t, err)

	stats, err := engine.PoolStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "short_gmail", stats[0].Type)
	assert.Equal(t, 3, stats[0].Size)
	assert.InDelta(t, 3.00, stats[0].Price, 1e-9)
}

func TestAddItemsUnknownType(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, hotstore.NewMemory(), &stubSources{})

	_, err := engine.AddItems(ctx, "aol_classic", []string{"a@aol.com"})
	assert.ErrorIs(t, err, ErrUnknownItemType)
}
