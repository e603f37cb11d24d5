package service

import "github.com/pkg/errors"

var (
	// ErrInvalidQuantity is returned when a purchase quantity is not a
	// positive integer within the configured maximum.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrUnknownItemType is returned when the requested type is not in
	// the catalog.
	ErrUnknownItemType = errors.New("unknown item type")

	// ErrBackendUnavailable is returned when an item type's configured
	// backend is not wired up in this deployment.
	ErrBackendUnavailable = errors.New("inventory backend unavailable")

	// ErrInvalidToken is returned for malformed or unknown API tokens
	// and sessions.
	ErrInvalidToken = errors.New("invalid token")
)
