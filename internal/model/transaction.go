package model

import "time"

// Transaction types.
const (
	TxTypePurchase        = "purchase"
	TxTypeAdminDeposit    = "admin_deposit"
	TxTypeExternalDeposit = "external_deposit"
)

// Transaction is an immutable, append-only record of a balance change.
// Amount is signed: negative for purchases, positive for deposits.
// Records are buffered by the transaction log and persisted in batches,
// so durability is eventually consistent.
type Transaction struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"user_id"`
	Amount      float64   `json:"amount"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	ItemIDs     []string  `json:"item_ids,omitempty"`
	Metadata    string    `json:"metadata,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
