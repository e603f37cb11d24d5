package service

import (
	"context"
	"time"

	"mailseller-api/internal/hotstore"
	"mailseller-api/internal/model"
	"mailseller-api/internal/repository"
	"mailseller-api/pkg/uid"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// TransactionSink receives transaction records for asynchronous
// persistence.
type TransactionSink interface {
	Add(tx model.Transaction)
}

// CreditService owns balance mutations outside the purchase path:
// deposits from payments and admins, balance reads and transaction
// history. The hot store is authoritative; the durable store is
// updated best-effort here and authoritatively by reconciliation.
type CreditService struct {
	hot       hotstore.Store
	store     repository.Store
	txlog     TransactionSink
	discounts *DiscountService
	log       *logrus.Logger
}

// NewCreditService creates a new credit service.
func NewCreditService(hot hotstore.Store, store repository.Store, txlog TransactionSink, discounts *DiscountService, log *logrus.Logger) *CreditService {
	return &CreditService{
		hot:       hot,
		store:     store,
		txlog:     txlog,
		discounts: discounts,
		log:       log,
	}
}

// AddCredits applies a signed delta to the user's balance and records
// the transaction. The record's id and metadata are fixed at creation
// time, which is what external systems correlate on. Returns the new
// balance.
func (s *CreditService) AddCredits(ctx context.Context, userID int64, amount float64, txType, description, metadata string) (float64, error) {
	newBalance, err := s.hot.IncrementBalance(ctx, userID, amount)
	if err != nil {
		return 0, errors.Wrap(err, "failed to update balance")
	}

	tx := model.Transaction{
		ID:          uid.New(),
		UserID:      userID,
		Amount:      amount,
		Type:        txType,
		Description: description,
		Metadata:    metadata,
		Timestamp:   time.Now().UTC(),
	}

	// Deposit records commit synchronously so tier recalculation sees
	// them immediately; only purchase records ride the batched log.
	if err := s.store.InsertTransactions(ctx, []model.Transaction{tx}); err != nil {
		s.log.WithFields(logrus.Fields{
			"user_id": userID,
			"type":    txType,
		}).WithError(err).Warn("[CreditService] Synchronous transaction insert failed, queueing")
		s.txlog.Add(tx)
	}

	// Mirror to the durable store now; reconciliation covers failures
	if err := s.store.UpsertBalances(ctx, map[int64]float64{userID: newBalance}); err != nil {
		s.log.WithField("user_id", userID).WithError(err).Warn("[CreditService] Durable balance mirror failed")
	}

	// A deposit can move the user across a tier boundary
	if amount > 0 {
		if err := s.discounts.Invalidate(ctx, userID); err != nil {
			s.log.WithField("user_id", userID).WithError(err).Warn("[CreditService] Discount invalidation failed")
		}
	}

	s.log.WithFields(logrus.Fields{
		"user_id": userID,
		"amount":  amount,
		"type":    txType,
		"balance": newBalance,
	}).Info("[CreditService] Credits updated")

	return newBalance, nil
}

// GetBalance returns the user's live balance.
func (s *CreditService) GetBalance(ctx context.Context, userID int64) (float64, error) {
	return s.hot.GetBalance(ctx, userID)
}

// Transactions returns one page of the user's history, newest first.
func (s *CreditService) Transactions(ctx context.Context, userID int64, page, limit int) ([]model.Transaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.store.ListTransactions(ctx, userID, limit, (page-1)*limit)
}

// SetCustomDiscount sets or clears (nil) the user's discount override
// and invalidates the cached discount.
func (s *CreditService) SetCustomDiscount(ctx context.Context, userID int64, discount *float64) error {
	if discount != nil && (*discount < 0 || *discount >= 1) {
		return errors.New("discount must be in [0, 1)")
	}
	if err := s.store.SetCustomDiscount(ctx, userID, discount); err != nil {
		return errors.Wrap(err, "failed to set discount override")
	}
	return s.discounts.Invalidate(ctx, userID)
}
