package model

import "time"

// Purchase result statuses.
const (
	StatusSuccess            = "success"
	StatusInsufficientCredit = "insufficient_credit"
	StatusNoData             = "no_data"
)

// PurchaseResult is the outcome of a purchase attempt. Items and Cost
// are only set on success; BalanceRemaining is always the balance as
// observed by the operation (unchanged for the two failure statuses).
type PurchaseResult struct {
	Status           string   `json:"status"`
	Items            []string `json:"items,omitempty"`
	Cost             float64  `json:"cost"`
	BalanceRemaining float64  `json:"balance_remaining"`
}

// PoolItem is a single row of a durable-backend inventory pool.
type PoolItem struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// PoolStats reports the remaining size and pricing of one pool type.
type PoolStats struct {
	Type    string  `json:"type"`
	Name    string  `json:"name"`
	Size    int     `json:"pool_size"`
	Price   float64 `json:"price"`
	Backend string  `json:"-"`
}
