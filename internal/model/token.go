package model

import "time"

// APIToken is the bidirectional user<->token mapping. Exactly one live
// token per user; rotation atomically invalidates the previous one.
type APIToken struct {
	UserID    int64     `json:"user_id"`
	Token     string    `json:"token"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TierStatus describes a user's current discount tier and progress
// towards the next one, derived from the trailing 7-day deposit total.
type TierStatus struct {
	TierCode      string    `json:"tier_code"`
	TierName      string    `json:"tier_name"`
	Discount      float64   `json:"tier_discount"`
	DepositAmount float64   `json:"deposit_amount"`
	NextTier      *NextTier `json:"next_tier,omitempty"`
}

// NextTier is the tier immediately above the current one.
type NextTier struct {
	TierCode        string  `json:"tier_code"`
	TierName        string  `json:"tier_name"`
	Discount        float64 `json:"tier_discount"`
	RequiredDeposit float64 `json:"required_deposit"`
	Remaining       float64 `json:"remaining"`
}
