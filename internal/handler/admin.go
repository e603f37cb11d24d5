package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"mailseller-api/internal/model"
	"mailseller-api/internal/service"
	"mailseller-api/pkg/apierror"
	"mailseller-api/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

// AdminHandler serves the operator surface: deposits, pool loading,
// discount overrides and token issuance.
type AdminHandler struct {
	credits *service.CreditService
	engine  *service.PurchaseEngine
	tokens  *service.TokenService
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(credits *service.CreditService, engine *service.PurchaseEngine, tokens *service.TokenService) *AdminHandler {
	return &AdminHandler{credits: credits, engine: engine, tokens: tokens}
}

// AddCreditsRequest is the body of POST /api/v1/admin/credits.
type AddCreditsRequest struct {
	UserID      int64   `json:"user_id"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

// AddCredits handles POST /api/v1/admin/credits
func (h *AdminHandler) AddCredits(w http.ResponseWriter, r *http.Request) {
	var req AddCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	if req.UserID <= 0 {
		response.Error(w, apierror.ValidationError("validation failed",
			apierror.FieldError{Field: "user_id", Message: "must be positive"}))
		return
	}
	if req.Amount == 0 {
		response.Error(w, apierror.ValidationError("validation failed",
			apierror.FieldError{Field: "amount", Message: "must be non-zero"}))
		return
	}

	balance, err := h.credits.AddCredits(r.Context(), req.UserID, req.Amount,
		model.TxTypeAdminDeposit, req.Description, "")
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"user_id": req.UserID,
		"credits": balance,
	})
}

// AddPoolItemsRequest is the body of POST /api/v1/admin/pool/{type}.
type AddPoolItemsRequest struct {
	Items []string `json:"items"`
}

// AddPoolItems handles POST /api/v1/admin/pool/{type}
func (h *AdminHandler) AddPoolItems(w http.ResponseWriter, r *http.Request) {
	typeCode := chi.URLParam(r, "type")

	var req AddPoolItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	if len(req.Items) == 0 {
		response.Error(w, apierror.ValidationError("validation failed",
			apierror.FieldError{Field: "items", Message: "must not be empty"}))
		return
	}

	added, err := h.engine.AddItems(r.Context(), typeCode, req.Items)
	if errors.Is(err, service.ErrUnknownItemType) {
		response.Error(w, apierror.BadRequest("unknown item type"))
		return
	}
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"type":     typeCode,
		"received": len(req.Items),
		"added":    added,
	})
}

// PoolStats handles GET /api/v1/admin/pools
func (h *AdminHandler) PoolStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.PoolStats(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, stats)
}

// SetDiscountRequest is the body of POST /api/v1/admin/users/{user_id}/discount.
// A null discount clears the override.
type SetDiscountRequest struct {
	Discount *float64 `json:"discount"`
}

// SetDiscount handles POST /api/v1/admin/users/{user_id}/discount
func (h *AdminHandler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil || userID <= 0 {
		response.Error(w, apierror.BadRequest("user_id must be a positive integer"))
		return
	}

	var req SetDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}

	if err := h.credits.SetCustomDiscount(r.Context(), userID, req.Discount); err != nil {
		response.Error(w, apierror.BadRequest(err.Error()))
		return
	}
	response.NoContent(w)
}

// IssueToken handles POST /api/v1/admin/users/{user_id}/token. Issues
// or rotates the user's API token.
func (h *AdminHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil || userID <= 0 {
		response.Error(w, apierror.BadRequest("user_id must be a positive integer"))
		return
	}

	token, err := h.tokens.RotateToken(r.Context(), userID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"user_id": userID,
		"token":   token,
	})
}
