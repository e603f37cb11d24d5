package handler

import (
	"net/http"
	"sync"
	"time"

	"mailseller-api/internal/model"
	"mailseller-api/internal/service"
	"mailseller-api/pkg/response"
)

// poolCacheTTL bounds how often the public listing hits the backends.
const poolCacheTTL = 1 * time.Second

// PoolsHandler serves the public stock listing. Storefronts poll it
// aggressively, so responses come from a short-lived snapshot.
type PoolsHandler struct {
	engine *service.PurchaseEngine

	mu      sync.Mutex
	cached  []model.PoolStats
	fetched time.Time
}

// NewPoolsHandler creates a new pools handler.
func NewPoolsHandler(engine *service.PurchaseEngine) *PoolsHandler {
	return &PoolsHandler{engine: engine}
}

// List handles GET /api/v1/pools
func (h *PoolsHandler) List(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if time.Since(h.fetched) < poolCacheTTL && h.cached != nil {
		stats := h.cached
		h.mu.Unlock()
		response.OK(w, stats)
		return
	}
	h.mu.Unlock()

	stats, err := h.engine.PoolStats(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}

	h.mu.Lock()
	h.cached = stats
	h.fetched = time.Now()
	h.mu.Unlock()

	response.OK(w, stats)
}
