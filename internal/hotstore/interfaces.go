// Package hotstore is the low-latency store that owns balances,
// inventory pools, token mappings, sessions and cached discounts
// during normal operation. The durable store only mirrors this state;
// after a restart the reconciliation loader re-populates it.
package hotstore

import (
	"context"
	"time"

	"mailseller-api/internal/model"
)

// Store is the hot-path store. All operations on a single key are
// linearizable with respect to concurrent callers; Purchase mutates
// the balance, pool and sold-set keys as one indivisible operation.
// This abstraction allows swapping between the in-memory store
// (development, tests) and Redis (production) without changing
// business logic.
type Store interface {
	// GetBalance returns the user's balance, 0 for unknown users.
	GetBalance(ctx context.Context, userID int64) (float64, error)

	// SetBalance overwrites the user's balance. Only the startup loader
	// uses this; request paths go through IncrementBalance or Purchase.
	SetBalance(ctx context.Context, userID int64, amount float64) error

	// IncrementBalance atomically adds delta (which may be negative)
	// and returns the new balance. No lower-bound check here; bound
	// checks happen in the purchase engine before calling.
	IncrementBalance(ctx context.Context, userID int64, delta float64) (float64, error)

	// DeductBalance subtracts amount only when the balance covers it.
	// Check and decrement are one indivisible step; it returns the
	// resulting (or unchanged) balance and whether the deduction
	// happened. Purchase paths that claim inventory outside the store
	// use this instead of IncrementBalance.
	DeductBalance(ctx context.Context, userID int64, amount float64) (float64, bool, error)

	// AllBalances snapshots every known balance for reconciliation.
	AllBalances(ctx context.Context) (map[int64]float64, error)

	// AddItems inserts items into a pool, ignoring duplicates, and
	// returns the count of items newly inserted.
	AddItems(ctx context.Context, poolType string, items []string) (int, error)

	// PopItems atomically removes and returns up to count distinct
	// items; fewer (possibly zero) are returned if the pool is short.
	PopItems(ctx context.Context, poolType string, count int) ([]string, error)

	// PoolSize returns the number of unsold items in a pool.
	PoolSize(ctx context.Context, poolType string) (int, error)

	// SoldItems returns every item ever sold to a user from fast pools.
	SoldItems(ctx context.Context, userID int64) ([]string, error)

	// Purchase runs the atomic buy transaction: optimistic balance
	// check against count*unitPrice, pop of up to count items, deduction
	// of popped*unitPrice, and sold-set tracking, all in one step.
	Purchase(ctx context.Context, userID int64, poolType string, count int, unitPrice float64) (*model.PurchaseResult, error)

	// SetToken publishes the user->token mapping, atomically deleting
	// the user's previous token mapping first.
	SetToken(ctx context.Context, userID int64, token string) error

	// GetToken returns the user's live token. ErrNotFound if none.
	GetToken(ctx context.Context, userID int64) (string, error)

	// ResolveToken maps a token back to its user. ErrNotFound if the
	// token is unknown or has been rotated away.
	ResolveToken(ctx context.Context, token string) (int64, error)

	// AllTokens snapshots every user->token mapping for reconciliation.
	AllTokens(ctx context.Context) (map[int64]string, error)

	// GetDiscount returns a cached discount and whether it was present.
	GetDiscount(ctx context.Context, userID int64) (float64, bool, error)

	// SetDiscount caches a discount with a TTL.
	SetDiscount(ctx context.Context, userID int64, discount float64, ttl time.Duration) error

	// DeleteDiscount drops the cached discount, forcing a recompute on
	// the next lookup.
	DeleteDiscount(ctx context.Context, userID int64) error

	// SetSession stores a session token with a TTL.
	SetSession(ctx context.Context, token string, userID int64, ttl time.Duration) error

	// ResolveSession maps a session token to a user. ErrNotFound if
	// missing or expired.
	ResolveSession(ctx context.Context, token string) (int64, error)

	// DeleteSession revokes a session token.
	DeleteSession(ctx context.Context, token string) error

	// CleanupExpired removes expired sessions and discount entries and
	// returns how many were dropped. Backends with native TTL support
	// may report 0.
	CleanupExpired(ctx context.Context) (int, error)

	// Close releases the underlying connection or goroutines.
	Close() error
}

// StoreError is a sentinel error value for hot store lookups.
type StoreError string

func (e StoreError) Error() string { return string(e) }

const (
	// ErrNotFound indicates the key was not present in the store.
	ErrNotFound StoreError = "not found"
)
