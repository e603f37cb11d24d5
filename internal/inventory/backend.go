// Package inventory routes pool operations to the backend an item
// type is configured for: "fast" pools live entirely in the hot store,
// "durable" pools keep their items in PostgreSQL while balances stay
// in the hot store.
package inventory

import (
	"context"
	"sync"

	"mailseller-api/internal/catalog"
	"mailseller-api/internal/hotstore"
	"mailseller-api/internal/model"
	"mailseller-api/internal/pricing"

	"github.com/sirupsen/logrus"
)

// Backend is one storage strategy for inventory pools. Purchase is the
// whole buy path for that strategy: balance check, item claim and
// deduction as one unit.
type Backend interface {
	AddItems(ctx context.Context, poolType string, items []string) (int, error)
	PoolSize(ctx context.Context, poolType string) (int, error)
	Purchase(ctx context.Context, userID int64, poolType string, count int, unitPrice float64) (*model.PurchaseResult, error)
}

// Selector hands out the backend configured for an item type.
type Selector struct {
	fast    Backend
	durable Backend
}

// NewSelector builds the two backends. pool may be nil when the
// catalog declares no durable item types.
func NewSelector(hot hotstore.Store, pool PoolStore, log *logrus.Logger) *Selector {
	s := &Selector{fast: &fastBackend{hot: hot}}
	if pool != nil {
		s.durable = &durableBackend{hot: hot, pool: pool, log: log}
	}
	return s
}

// For returns the backend for an item type. Callers validate the type
// against the catalog first, so an unconfigured durable backend is a
// deployment error rather than a user error.
func (s *Selector) For(t catalog.ItemType) (Backend, bool) {
	if t.Backend == catalog.BackendDurable {
		if s.durable == nil {
			return nil, false
		}
		return s.durable, true
	}
	return s.fast, true
}

// PoolStore is the slice of the durable pool repository this package
// needs.
type PoolStore interface {
	AddItems(ctx context.Context, poolType string, items []string) (int, error)
	PopItems(ctx context.Context, poolType string, userID int64, count int) ([]string, error)
	Release(ctx context.Context, poolType string, items []string) error
	PoolSize(ctx context.Context, poolType string) (int, error)
}

// fastBackend keeps everything in the hot store; the purchase is a
// single server-side script there.
type fastBackend struct {
	hot hotstore.Store
}

func (b *fastBackend) AddItems(ctx context.Context, poolType string, items []string) (int, error) {
	return b.hot.AddItems(ctx, poolType, items)
}

func (b *fastBackend) PoolSize(ctx context.Context, poolType string) (int, error) {
	return b.hot.PoolSize(ctx, poolType)
}

func (b *fastBackend) Purchase(ctx context.Context, userID int64, poolType string, count int, unitPrice float64) (*model.PurchaseResult, error) {
	return b.hot.Purchase(ctx, userID, poolType, count, unitPrice)
}

// durableBackend claims items from PostgreSQL and settles the balance
// in the hot store. The database serializes item claims across
// processes; the per-user lock keeps one user's concurrent purchases
// from interleaving between balance check and deduction.
type durableBackend struct {
	hot   hotstore.Store
	pool  PoolStore
	locks userLocks
	log   *logrus.Logger
}

func (b *durableBackend) AddItems(ctx context.Context, poolType string, items []string) (int, error) {
	return b.pool.AddItems(ctx, poolType, items)
}

func (b *durableBackend) PoolSize(ctx context.Context, poolType string) (int, error) {
	return b.pool.PoolSize(ctx, poolType)
}

func (b *durableBackend) Purchase(ctx context.Context, userID int64, poolType string, count int, unitPrice float64) (*model.PurchaseResult, error) {
	unlock := b.locks.lock(userID)
	defer unlock()

	balance, err := b.hot.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Affordability is checked against the full requested quantity,
	// not whatever the pool happens to hold
	if balance < pricing.Cost(unitPrice, count) {
		return &model.PurchaseResult{Status: model.StatusInsufficientCredit, BalanceRemaining: balance}, nil
	}

	items, err := b.pool.PopItems(ctx, poolType, userID, count)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return &model.PurchaseResult{Status: model.StatusNoData, BalanceRemaining: balance}, nil
	}

	// The deduction re-checks affordability atomically in the hot
	// store: a fast-pool purchase can land between the pre-check above
	// and this point, and the actual cost may be lower than the
	// pre-checked one when the pool came up short.
	cost := pricing.Cost(unitPrice, len(items))
	newBalance, ok, err := b.hot.DeductBalance(ctx, userID, cost)
	if err != nil {
		b.release(ctx, poolType, userID, items)
		b.log.WithFields(logrus.Fields{
			"user_id":   userID,
			"pool_type": poolType,
			"cost":      cost,
		}).WithError(err).Error("[Inventory] Balance deduction failed after item claim")
		return nil, err
	}
	if !ok {
		b.release(ctx, poolType, userID, items)
		return &model.PurchaseResult{Status: model.StatusInsufficientCredit, BalanceRemaining: newBalance}, nil
	}

	return &model.PurchaseResult{
		Status:           model.StatusSuccess,
		Items:            items,
		Cost:             cost,
		BalanceRemaining: newBalance,
	}, nil
}

// release returns claimed items to the pool when the deduction did not
// happen. Failure here leaves the items marked sold, which only shrinks
// the pool; it never corrupts a balance.
func (b *durableBackend) release(ctx context.Context, poolType string, userID int64, items []string) {
	if err := b.pool.Release(ctx, poolType, items); err != nil {
		b.log.WithFields(logrus.Fields{
			"user_id":   userID,
			"pool_type": poolType,
			"items":     len(items),
		}).WithError(err).Error("[Inventory] Failed to release claimed items")
	}
}

// userLocks is a keyed mutex set, one per active user.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (u *userLocks) lock(userID int64) func() {
	u.mu.Lock()
	if u.locks == nil {
		u.locks = make(map[int64]*lockEntry)
	}
	e, ok := u.locks[userID]
	if !ok {
		e = &lockEntry{}
		u.locks[userID] = e
	}
	e.refs++
	u.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		u.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(u.locks, userID)
		}
		u.mu.Unlock()
	}
}
