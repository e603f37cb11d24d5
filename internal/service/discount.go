package service

import (
	"context"
	"time"

	"mailseller-api/internal/catalog"
	"mailseller-api/internal/hotstore"
	"mailseller-api/internal/model"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DiscountWindow is the trailing deposit window tiers are computed
// over.
const DiscountWindow = 7 * 24 * time.Hour

// DepositSource sums a user's recent deposits.
type DepositSource interface {
	SumDeposits(ctx context.Context, userID int64, since time.Time) (float64, error)
}

// OverrideSource reads the admin-set per-user discount override.
type OverrideSource interface {
	CustomDiscount(ctx context.Context, userID int64) (*float64, error)
}

// DiscountService computes effective discounts and caches them in the
// hot store so the purchase path does not touch the durable store. An
// admin override beats the deposit tier; the cache is invalidated
// whenever either input changes.
type DiscountService struct {
	hot       hotstore.Store
	deposits  DepositSource
	overrides OverrideSource
	catalog   *catalog.Catalog
	ttl       time.Duration
	log       *logrus.Logger
}

// NewDiscountService creates a new discount service. ttl bounds how
// stale a cached discount may get if an invalidation is missed.
func NewDiscountService(hot hotstore.Store, deposits DepositSource, overrides OverrideSource, cat *catalog.Catalog, ttl time.Duration, log *logrus.Logger) *DiscountService {
	return &DiscountService{
		hot:       hot,
		deposits:  deposits,
		overrides: overrides,
		catalog:   cat,
		ttl:       ttl,
		log:       log,
	}
}

// GetDiscount returns the user's effective discount in [0, 1),
// cache-first.
func (s *DiscountService) GetDiscount(ctx context.Context, userID int64) (float64, error) {
	cached, ok, err := s.hot.GetDiscount(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read discount cache")
	}
	if ok {
		return cached, nil
	}

	discount, err := s.compute(ctx, userID)
	if err != nil {
		return 0, err
	}

	if err := s.hot.SetDiscount(ctx, userID, discount, s.ttl); err != nil {
		// Serve the computed value even if caching fails
		s.log.WithField("user_id", userID).WithError(err).Warn("[DiscountService] Failed to cache discount")
	}
	return discount, nil
}

// Invalidate drops the cached discount so the next lookup recomputes.
func (s *DiscountService) Invalidate(ctx context.Context, userID int64) error {
	return s.hot.DeleteDiscount(ctx, userID)
}

// Refresh recomputes and recaches eagerly, for paths that know the
// inputs just changed (deposits, override edits).
func (s *DiscountService) Refresh(ctx context.Context, userID int64) (float64, error) {
	if err := s.Invalidate(ctx, userID); err != nil {
		return 0, err
	}
	return s.GetDiscount(ctx, userID)
}

// TierInfo reports the user's deposit tier and progress to the next
// one. The effective discount reflects an admin override when set.
func (s *DiscountService) TierInfo(ctx context.Context, userID int64) (*model.TierStatus, error) {
	deposit, err := s.deposits.SumDeposits(ctx, userID, time.Now().Add(-DiscountWindow))
	if err != nil {
		return nil, errors.Wrap(err, "failed to sum deposits")
	}

	tier := s.catalog.TierFor(deposit)
	status := &model.TierStatus{
		TierCode:      tier.Code,
		TierName:      tier.Name,
		Discount:      tier.Discount,
		DepositAmount: deposit,
	}

	if override, err := s.overrides.CustomDiscount(ctx, userID); err != nil {
		return nil, errors.Wrap(err, "failed to read discount override")
	} else if override != nil {
		status.Discount = *override
	}

	if next, ok := s.catalog.NextTier(tier.Code); ok {
		status.NextTier = &model.NextTier{
			TierCode:        next.Code,
			TierName:        next.Name,
			Discount:        next.Discount,
			RequiredDeposit: next.WeeklyDeposit,
			Remaining:       next.WeeklyDeposit - deposit,
		}
	}
	return status, nil
}

func (s *DiscountService) compute(ctx context.Context, userID int64) (float64, error) {
	override, err := s.overrides.CustomDiscount(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read discount override")
	}
	if override != nil {
		return *override, nil
	}

	deposit, err := s.deposits.SumDeposits(ctx, userID, time.Now().Add(-DiscountWindow))
	if err != nil {
		return 0, errors.Wrap(err, "failed to sum deposits")
	}
	return s.catalog.TierFor(deposit).Discount, nil
}
