package scheduler

import (
	"context"
	"time"

	"mailseller-api/internal/hotstore"
	"mailseller-api/internal/model"
	"mailseller-api/internal/repository"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PurchaseRetention is how long purchase records stay queryable before
// pruning. Deposits are kept indefinitely; tier math depends on them.
const PurchaseRetention = 24 * time.Hour

// Reconciler keeps the durable store converged with the hot store. It
// remembers what it last wrote so steady-state passes with no changes
// cost nothing.
type Reconciler struct {
	hot   hotstore.Store
	store repository.Store
	log   *logrus.Logger

	lastBalances map[int64]float64
	lastTokens   map[int64]string
}

// NewReconciler creates a reconciler.
func NewReconciler(hot hotstore.Store, store repository.Store, log *logrus.Logger) *Reconciler {
	return &Reconciler{
		hot:          hot,
		store:        store,
		log:          log,
		lastBalances: make(map[int64]float64),
		lastTokens:   make(map[int64]string),
	}
}

// LoadFromStore populates the hot store with durable state it does not
// already hold. Called once at startup, before traffic; existing hot
// keys win because they may carry writes the durable store never saw.
func (r *Reconciler) LoadFromStore(ctx context.Context) error {
	existing, err := r.hot.AllBalances(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to snapshot hot balances")
	}
	balances, err := r.store.AllBalances(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load durable balances")
	}
	loaded := 0
	for userID, amount := range balances {
		if _, ok := existing[userID]; ok {
			continue
		}
		if err := r.hot.SetBalance(ctx, userID, amount); err != nil {
			return errors.Wrapf(err, "failed to load balance for user %d", userID)
		}
		r.lastBalances[userID] = amount
		loaded++
	}

	hotTokens, err := r.hot.AllTokens(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to snapshot hot tokens")
	}
	tokens, err := r.store.AllTokens(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load durable tokens")
	}
	tokensLoaded := 0
	for userID, token := range tokens {
		if _, ok := hotTokens[userID]; ok {
			continue
		}
		if err := r.hot.SetToken(ctx, userID, token); err != nil {
			return errors.Wrapf(err, "failed to load token for user %d", userID)
		}
		r.lastTokens[userID] = token
		tokensLoaded++
	}

	r.log.WithFields(logrus.Fields{
		"balances": loaded,
		"tokens":   tokensLoaded,
	}).Info("[Reconciler] Hot store populated from durable store")
	return nil
}

// SyncCredits writes balances that changed since the last pass.
func (r *Reconciler) SyncCredits(ctx context.Context) error {
	balances, err := r.hot.AllBalances(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to snapshot hot balances")
	}

	changed := make(map[int64]float64)
	for userID, amount := range balances {
		if last, ok := r.lastBalances[userID]; !ok || last != amount {
			changed[userID] = amount
		}
	}
	if len(changed) == 0 {
		return nil
	}

	if err := r.store.UpsertBalances(ctx, changed); err != nil {
		return errors.Wrap(err, "failed to sync balances")
	}
	for userID, amount := range changed {
		r.lastBalances[userID] = amount
	}

	r.log.WithField("changed", len(changed)).Debug("[Reconciler] Balances synced")
	return nil
}

// SyncTokens writes token mappings that changed since the last pass.
func (r *Reconciler) SyncTokens(ctx context.Context) error {
	tokens, err := r.hot.AllTokens(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to snapshot hot tokens")
	}

	changed := make(map[int64]string)
	for userID, token := range tokens {
		if r.lastTokens[userID] != token {
			changed[userID] = token
		}
	}
	if len(changed) == 0 {
		return nil
	}

	if err := r.store.UpsertTokens(ctx, changed); err != nil {
		return errors.Wrap(err, "failed to sync tokens")
	}
	for userID, token := range changed {
		r.lastTokens[userID] = token
	}

	r.log.WithField("changed", len(changed)).Debug("[Reconciler] Tokens synced")
	return nil
}

// CleanupHotStore reaps expired sessions and discount cache entries.
func (r *Reconciler) CleanupHotStore(ctx context.Context) error {
	n, err := r.hot.CleanupExpired(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to clean up hot store")
	}
	if n > 0 {
		r.log.WithField("removed", n).Debug("[Reconciler] Expired hot store entries removed")
	}
	return nil
}

// CleanupTransactions prunes old purchase records.
func (r *Reconciler) CleanupTransactions(ctx context.Context) error {
	n, err := r.store.DeleteTransactionsOlderThan(ctx, model.TxTypePurchase, PurchaseRetention)
	if err != nil {
		return errors.Wrap(err, "failed to prune transactions")
	}
	if n > 0 {
		r.log.WithField("removed", n).Info("[Reconciler] Old purchase records pruned")
	}
	return nil
}
