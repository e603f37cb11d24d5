package handler

import (
	"net/http"
	"strconv"

	"mailseller-api/internal/middleware"
	"mailseller-api/internal/service"
	"mailseller-api/pkg/apierror"
	"mailseller-api/pkg/response"
)

// CreditsHandler serves authenticated account endpoints: balance,
// tier, history and credential management.
type CreditsHandler struct {
	credits   *service.CreditService
	discounts *service.DiscountService
	tokens    *service.TokenService
}

// NewCreditsHandler creates a new credits handler.
func NewCreditsHandler(credits *service.CreditService, discounts *service.DiscountService, tokens *service.TokenService) *CreditsHandler {
	return &CreditsHandler{credits: credits, discounts: discounts, tokens: tokens}
}

// GetBalance handles GET /api/v1/credits
func (h *CreditsHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Error(w, apierror.Unauthorized(""))
		return
	}

	balance, err := h.credits.GetBalance(r.Context(), userID)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"user_id": userID,
		"credits": balance,
	})
}

// GetTier handles GET /api/v1/credits/tier
func (h *CreditsHandler) GetTier(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Error(w, apierror.Unauthorized(""))
		return
	}

	status, err := h.discounts.TierInfo(r.Context(), userID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, status)
}

// ListTransactions handles GET /api/v1/transactions?page=&limit=
func (h *CreditsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Error(w, apierror.Unauthorized(""))
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	txs, total, err := h.credits.Transactions(r.Context(), userID, page, limit)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSONWithMeta(w, http.StatusOK, txs, page, limit, total)
}

// RotateToken handles POST /api/v1/token/rotate
func (h *CreditsHandler) RotateToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Error(w, apierror.Unauthorized(""))
		return
	}

	token, err := h.tokens.RotateToken(r.Context(), userID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"token": token,
	})
}

// CreateSession handles POST /api/v1/auth/session. The API token
// comes in X-Token; the response is a short-lived session token.
func (h *CreditsHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	apiToken := r.Header.Get("X-Token")
	if apiToken == "" {
		response.Error(w, apierror.Unauthorized("X-Token header is required"))
		return
	}

	session, err := h.tokens.CreateSession(r.Context(), apiToken)
	if err != nil {
		response.Error(w, apierror.Unauthorized("Invalid token"))
		return
	}
	response.OK(w, map[string]interface{}{
		"session":    session,
		"expires_in": int(service.SessionTTL.Seconds()),
	})
}

// RevokeSession handles POST /api/v1/auth/logout.
func (h *CreditsHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	session := r.Header.Get("X-Token")
	if err := h.tokens.RevokeSession(r.Context(), session); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}
