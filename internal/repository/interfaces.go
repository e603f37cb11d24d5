package repository

import (
	"context"
	"time"

	"mailseller-api/internal/model"
)

// BalanceRepository mirrors hot-store balances for crash recovery.
type BalanceRepository interface {
	// GetBalance returns the persisted balance, 0 if the user has none.
	GetBalance(ctx context.Context, userID int64) (float64, error)

	// UpsertBalances writes a batch of balances in a single commit.
	UpsertBalances(ctx context.Context, balances map[int64]float64) error

	// AllBalances loads every persisted balance (startup recovery).
	AllBalances(ctx context.Context) (map[int64]float64, error)
}

// TokenRepository mirrors the user->token mappings.
type TokenRepository interface {
	// GetToken returns the persisted token for a user, "" if none.
	GetToken(ctx context.Context, userID int64) (string, error)

	// UpsertTokens writes a batch of token mappings in a single commit.
	UpsertTokens(ctx context.Context, tokens map[int64]string) error

	// AllTokens loads every persisted token mapping (startup recovery).
	AllTokens(ctx context.Context) (map[int64]string, error)
}

// TransactionRepository is the append-only transaction history.
type TransactionRepository interface {
	// InsertTransactions appends a batch of records in a single commit.
	InsertTransactions(ctx context.Context, txs []model.Transaction) error

	// DeleteTransactionsOlderThan prunes records of one type older than
	// the given age and returns how many were removed.
	DeleteTransactionsOlderThan(ctx context.Context, txType string, age time.Duration) (int64, error)

	// SumDeposits sums positive amounts for a user since the given
	// instant (inclusive). Drives tier calculation.
	SumDeposits(ctx context.Context, userID int64, since time.Time) (float64, error)

	// ListTransactions returns a user's records newest first, plus the
	// total count for pagination.
	ListTransactions(ctx context.Context, userID int64, limit, offset int) ([]model.Transaction, int64, error)
}

// UserRepository exposes the slice of the user row the core consumes.
type UserRepository interface {
	// CustomDiscount returns the admin-set per-user discount override,
	// nil when the user has none (tier applies).
	CustomDiscount(ctx context.Context, userID int64) (*float64, error)

	// SetCustomDiscount sets or clears (nil) the override.
	SetCustomDiscount(ctx context.Context, userID int64, discount *float64) error
}

// Store is the full durable store consumed by the core.
type Store interface {
	BalanceRepository
	TokenRepository
	TransactionRepository
	UserRepository

	// Close closes the underlying connection pool.
	Close() error
}

// PoolRepository is the durable inventory pool backend: unique item
// rows plus a sold-marker table. PopItems must use a non-blocking
// row-lock strategy so concurrent purchasers do not serialize, and the
// sold marker's uniqueness constraint guarantees no item sells twice.
type PoolRepository interface {
	// AddItems bulk-inserts items, skipping values already present,
	// and returns the count newly inserted.
	AddItems(ctx context.Context, poolType string, items []string) (int, error)

	// PopItems atomically marks up to count unsold items as sold to the
	// user and returns their values; fewer if the pool is short.
	PopItems(ctx context.Context, poolType string, userID int64, count int) ([]string, error)

	// Release drops the sold markers for items so they become claimable
	// again. Compensation path for a claim whose payment did not land.
	Release(ctx context.Context, poolType string, items []string) error

	// PoolSize returns the number of unsold items of one type.
	PoolSize(ctx context.Context, poolType string) (int, error)

	// SoldItems returns every item sold to a user, newest first.
	SoldItems(ctx context.Context, userID int64) ([]string, error)

	// Close closes the underlying connection pool.
	Close() error
}
