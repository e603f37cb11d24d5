package model

import "time"

// Balance is a user's credit balance. During normal operation the hot
// store owns this value; the durable store only mirrors it via the
// reconciliation scheduler.
type Balance struct {
	UserID    int64     `json:"user_id"`
	Amount    float64   `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}
