package service

import (
	"context"
	"fmt"
	"time"

	"mailseller-api/internal/catalog"
	"mailseller-api/internal/inventory"
	"mailseller-api/internal/model"
	"mailseller-api/internal/pricing"
	"mailseller-api/pkg/uid"

	"github.com/sirupsen/logrus"
)

// PurchaseEngine is the buy path: it validates the request, prices the
// item type with the user's discount, runs the atomic purchase on the
// type's backend and records the transaction. The hot store is the
// only synchronous dependency on success.
type PurchaseEngine struct {
	catalog     *catalog.Catalog
	backends    *inventory.Selector
	discounts   *DiscountService
	txlog       TransactionSink
	maxQuantity int
	log         *logrus.Logger
}

// NewPurchaseEngine creates a new purchase engine.
func NewPurchaseEngine(cat *catalog.Catalog, backends *inventory.Selector, discounts *DiscountService, txlog TransactionSink, maxQuantity int, log *logrus.Logger) *PurchaseEngine {
	return &PurchaseEngine{
		catalog:     cat,
		backends:    backends,
		discounts:   discounts,
		txlog:       txlog,
		maxQuantity: maxQuantity,
		log:         log,
	}
}

// Buy attempts to purchase quantity items of the given type. The
// returned result carries the business outcome; a non-nil error means
// the attempt itself failed and nothing was charged.
func (e *PurchaseEngine) Buy(ctx context.Context, userID int64, typeCode string, quantity int) (*model.PurchaseResult, error) {
	if quantity < 1 || quantity > e.maxQuantity {
		return nil, ErrInvalidQuantity
	}

	itemType, ok := e.catalog.Type(typeCode)
	if !ok {
		return nil, ErrUnknownItemType
	}

	backend, ok := e.backends.For(itemType)
	if !ok {
		return nil, ErrBackendUnavailable
	}

	discount, err := e.discounts.GetDiscount(ctx, userID)
	if err != nil {
		return nil, err
	}

	unitPrice := pricing.UnitPrice(itemType.Price, discount)

	result, err := backend.Purchase(ctx, userID, typeCode, quantity, unitPrice)
	if err != nil {
		return nil, err
	}

	if result.Status == model.StatusSuccess {
		e.txlog.Add(model.Transaction{
			ID:          uid.New(),
			UserID:      userID,
			Amount:      -result.Cost,
			Type:        model.TxTypePurchase,
			Description: fmt.Sprintf("%s x%d", typeCode, len(result.Items)),
			ItemIDs:     result.Items,
			Timestamp:   time.Now().UTC(),
		})

		e.log.WithFields(logrus.Fields{
			"user_id":    userID,
			"type":       typeCode,
			"requested":  quantity,
			"delivered":  len(result.Items),
			"unit_price": unitPrice,
			"cost":       result.Cost,
		}).Info("[PurchaseEngine] Purchase completed")
	}

	return result, nil
}

// AddItems loads items into a type's pool and returns how many were
// new.
func (e *PurchaseEngine) AddItems(ctx context.Context, typeCode string, items []string) (int, error) {
	itemType, ok := e.catalog.Type(typeCode)
	if !ok {
		return 0, ErrUnknownItemType
	}
	backend, ok := e.backends.For(itemType)
	if !ok {
		return 0, ErrBackendUnavailable
	}
	added, err := backend.AddItems(ctx, typeCode, items)
	if err != nil {
		return 0, err
	}
	e.log.WithFields(logrus.Fields{
		"type":     typeCode,
		"received": len(items),
		"added":    added,
	}).Info("[PurchaseEngine] Pool items added")
	return added, nil
}

// PoolStats reports the remaining size and price of every catalog
// type, in catalog order.
func (e *PurchaseEngine) PoolStats(ctx context.Context) ([]model.PoolStats, error) {
	types := e.catalog.Types()
	stats := make([]model.PoolStats, 0, len(types))
	for _, t := range types {
		backend, ok := e.backends.For(t)
		if !ok {
			return nil, ErrBackendUnavailable
		}
		size, err := backend.PoolSize(ctx, t.Code)
		if err != nil {
			return nil, err
		}
		stats = append(stats, model.PoolStats{
			Type:    t.Code,
			Name:    t.Name,
			Size:    size,
			Price:   t.Price,
			Backend: t.Backend,
		})
	}
	return stats, nil
}
