package hotstore

import (
	"context"
	"sync"
	"time"

	"mailseller-api/internal/model"
	"mailseller-api/internal/pricing"
)

// ttlEntry is a cached value with expiration.
type ttlEntry struct {
	userID    int64
	value     float64
	expiresAt time.Time
}

func (e *ttlEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Memory is an in-process implementation of Store. Use it for
// development, tests and single-instance deployments; it holds the
// same key families as the Redis store behind one mutex, which makes
// every operation trivially linearizable.
type Memory struct {
	mu        sync.Mutex
	balances  map[int64]float64
	pools     map[string]map[string]struct{}
	sold      map[int64]map[string]struct{}
	tokens    map[int64]string
	tokenRev  map[string]int64
	discounts map[int64]*ttlEntry
	sessions  map[string]*ttlEntry
}

// NewMemory creates an empty in-memory hot store.
func NewMemory() *Memory {
	return &Memory{
		balances:  make(map[int64]float64),
		pools:     make(map[string]map[string]struct{}),
		sold:      make(map[int64]map[string]struct{}),
		tokens:    make(map[int64]string),
		tokenRev:  make(map[string]int64),
		discounts: make(map[int64]*ttlEntry),
		sessions:  make(map[string]*ttlEntry),
	}
}

// GetBalance returns the user's balance, 0 for unknown users.
func (m *Memory) GetBalance(ctx context.Context, userID int64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID], nil
}

// SetBalance overwrites the user's balance.
func (m *Memory) SetBalance(ctx context.Context, userID int64, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = pricing.Round(amount)
	return nil
}

// IncrementBalance atomically adds delta and returns the new balance.
func (m *Memory) IncrementBalance(ctx context.Context, userID int64, delta float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incrementLocked(userID, delta), nil
}

// DeductBalance subtracts amount only when the balance covers it,
// returning the resulting (or unchanged) balance and whether the
// deduction happened.
func (m *Memory) DeductBalance(ctx context.Context, userID int64, amount float64) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[userID] < amount {
		return m.balances[userID], false, nil
	}
	return m.incrementLocked(userID, -amount), true, nil
}

func (m *Memory) incrementLocked(userID int64, delta float64) float64 {
	next := pricing.Round(m.balances[userID] + delta)
	m.balances[userID] = next
	return next
}

// AllBalances snapshots every known balance.
func (m *Memory) AllBalances(ctx context.Context) (map[int64]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]float64, len(m.balances))
	for id, v := range m.balances {
		out[id] = v
	}
	return out, nil
}

// AddItems inserts items into a pool, ignoring duplicates.
func (m *Memory) AddItems(ctx context.Context, poolType string, items []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pool, ok := m.pools[poolType]
	if !ok {
		pool = make(map[string]struct{})
		m.pools[poolType] = pool
	}

	added := 0
	for _, item := range items {
		if _, dup := pool[item]; !dup {
			pool[item] = struct{}{}
			added++
		}
	}
	return added, nil
}

// PopItems removes and returns up to count distinct items.
func (m *Memory) PopItems(ctx context.Context, poolType string, count int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.popLocked(poolType, count), nil
}

func (m *Memory) popLocked(poolType string, count int) []string {
	pool := m.pools[poolType]
	if len(pool) == 0 || count <= 0 {
		return nil
	}

	popped := make([]string, 0, count)
	for item := range pool {
		if len(popped) == count {
			break
		}
		delete(pool, item)
		popped = append(popped, item)
	}
	return popped
}

// PoolSize returns the number of unsold items in a pool.
func (m *Memory) PoolSize(ctx context.Context, poolType string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pools[poolType]), nil
}

// SoldItems returns every item sold to a user.
func (m *Memory) SoldItems(ctx context.Context, userID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.sold[userID]))
	for item := range m.sold[userID] {
		out = append(out, item)
	}
	return out, nil
}

// Purchase runs the atomic buy transaction under the store lock:
// balance pre-check, pop, deduction and sold tracking cannot
// interleave with any other operation.
func (m *Memory) Purchase(ctx context.Context, userID int64, poolType string, count int, unitPrice float64) (*model.PurchaseResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance := m.balances[userID]
	if balance < pricing.Cost(unitPrice, count) {
		return &model.PurchaseResult{
			Status:           model.StatusInsufficientCredit,
			BalanceRemaining: balance,
		}, nil
	}

	items := m.popLocked(poolType, count)
	if len(items) == 0 {
		return &model.PurchaseResult{
			Status:           model.StatusNoData,
			BalanceRemaining: balance,
		}, nil
	}

	cost := pricing.Cost(unitPrice, len(items))
	newBalance := m.incrementLocked(userID, -cost)

	soldSet, ok := m.sold[userID]
	if !ok {
		soldSet = make(map[string]struct{})
		m.sold[userID] = soldSet
	}
	for _, item := range items {
		soldSet[item] = struct{}{}
	}

	return &model.PurchaseResult{
		Status:           model.StatusSuccess,
		Items:            items,
		Cost:             cost,
		BalanceRemaining: newBalance,
	}, nil
}

// SetToken publishes the user->token mapping, dropping the previous
// token's reverse lookup first.
func (m *Memory) SetToken(ctx context.Context, userID int64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.tokens[userID]; ok {
		delete(m.tokenRev, old)
	}
	m.tokens[userID] = token
	m.tokenRev[token] = userID
	return nil
}

// GetToken returns the user's live token.
func (m *Memory) GetToken(ctx context.Context, userID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[userID]
	if !ok {
		return "", ErrNotFound
	}
	return token, nil
}

// ResolveToken maps a token back to its user.
func (m *Memory) ResolveToken(ctx context.Context, token string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, ok := m.tokenRev[token]
	if !ok {
		return 0, ErrNotFound
	}
	return userID, nil
}

// AllTokens snapshots every user->token mapping.
func (m *Memory) AllTokens(ctx context.Context) (map[int64]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[int64]string, len(m.tokens))
	for id, token := range m.tokens {
		out[id] = token
	}
	return out, nil
}

// GetDiscount returns a cached discount and whether it was present.
func (m *Memory) GetDiscount(ctx context.Context, userID int64) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.discounts[userID]
	if !ok || entry.expired(time.Now()) {
		return 0, false, nil
	}
	return entry.value, true, nil
}

// SetDiscount caches a discount with a TTL.
func (m *Memory) SetDiscount(ctx context.Context, userID int64, discount float64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.discounts[userID] = &ttlEntry{value: discount, expiresAt: time.Now().Add(ttl)}
	return nil
}

// DeleteDiscount drops the cached discount.
func (m *Memory) DeleteDiscount(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.discounts, userID)
	return nil
}

// SetSession stores a session token with a TTL.
func (m *Memory) SetSession(ctx context.Context, token string, userID int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[token] = &ttlEntry{userID: userID, expiresAt: time.Now().Add(ttl)}
	return nil
}

// ResolveSession maps a session token to a user.
func (m *Memory) ResolveSession(ctx context.Context, token string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[token]
	if !ok {
		return 0, ErrNotFound
	}
	if entry.expired(time.Now()) {
		delete(m.sessions, token)
		return 0, ErrNotFound
	}
	return entry.userID, nil
}

// DeleteSession revokes a session token.
func (m *Memory) DeleteSession(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, token)
	return nil
}

// CleanupExpired removes expired sessions and discount entries.
func (m *Memory) CleanupExpired(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	removed := 0
	for token, entry := range m.sessions {
		if entry.expired(now) {
			delete(m.sessions, token)
			removed++
		}
	}
	for userID, entry := range m.discounts {
		if entry.expired(now) {
			delete(m.discounts, userID)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }

// Ensure Memory implements Store
var _ Store = (*Memory)(nil)
