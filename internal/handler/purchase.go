package handler

import (
	"net/http"
	"strconv"

	"mailseller-api/internal/model"
	"mailseller-api/internal/service"
	"mailseller-api/pkg/apierror"
	"mailseller-api/pkg/response"

	"github.com/pkg/errors"
)

// PurchaseHandler handles the buy endpoint.
type PurchaseHandler struct {
	engine *service.PurchaseEngine
	tokens *service.TokenService
}

// NewPurchaseHandler creates a new purchase handler.
func NewPurchaseHandler(engine *service.PurchaseEngine, tokens *service.TokenService) *PurchaseHandler {
	return &PurchaseHandler{engine: engine, tokens: tokens}
}

// Purchase handles GET /purchase?amount=&type=&token=
//
// The endpoint authenticates from the query string because the
// established client integrations send everything that way.
func (h *PurchaseHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		response.Error(w, apierror.Unauthorized("token is required"))
		return
	}

	userID, err := h.tokens.ResolveToken(r.Context(), token)
	if err != nil {
		response.Error(w, apierror.Unauthorized("Invalid token"))
		return
	}

	typeCode := r.URL.Query().Get("type")
	if typeCode == "" {
		response.Error(w, apierror.BadRequest("type is required"))
		return
	}

	amount, err := strconv.Atoi(r.URL.Query().Get("amount"))
	if err != nil {
		response.Error(w, apierror.BadRequest("amount must be an integer"))
		return
	}

	result, err := h.engine.Buy(r.Context(), userID, typeCode, amount)
	switch {
	case errors.Is(err, service.ErrInvalidQuantity):
		response.Error(w, apierror.BadRequest("amount out of range"))
		return
	case errors.Is(err, service.ErrUnknownItemType):
		response.Error(w, apierror.BadRequest("unknown item type"))
		return
	case err != nil:
		response.Error(w, err)
		return
	}

	switch result.Status {
	case model.StatusInsufficientCredit:
		response.Error(w, apierror.PaymentRequired(""))
	case model.StatusNoData:
		response.Error(w, apierror.NotFound("no items available"))
	default:
		response.OK(w, result)
	}
}
