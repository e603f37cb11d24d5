package handler

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"mailseller-api/internal/model"
	"mailseller-api/internal/service"

	"github.com/sirupsen/logrus"
)

// PaymentHandler receives the payment provider's webhook. The provider
// retries on anything but its expected body, so every outcome answers
// {"state":0}; bad notifications are only logged.
type PaymentHandler struct {
	credits   *service.CreditService
	discounts *service.DiscountService
	apiKey    string
	log       *logrus.Logger
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(credits *service.CreditService, discounts *service.DiscountService, apiKey string, log *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{credits: credits, discounts: discounts, apiKey: apiKey, log: log}
}

// paymentNotification is the provider's webhook body.
type paymentNotification struct {
	OrderID string  `json:"order_id"`
	UserID  int64   `json:"user_id"`
	Amount  float64 `json:"amount"`
	Status  string  `json:"status"`
	Sign    string  `json:"sign"`
}

// Webhook handles POST /api/v1/payment/webhook
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	defer h.ack(w)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.log.WithError(err).Warn("[PaymentHandler] Failed to read webhook body")
		return
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		h.log.WithError(err).Warn("[PaymentHandler] Invalid webhook JSON")
		return
	}

	sign, _ := raw["sign"].(string)
	if !h.verifySignature(raw, sign) {
		h.log.WithField("order_id", raw["order_id"]).Warn("[PaymentHandler] Signature mismatch")
		return
	}

	var note paymentNotification
	if err := json.Unmarshal(body, &note); err != nil {
		h.log.WithError(err).Warn("[PaymentHandler] Malformed notification fields")
		return
	}

	if note.Status != "paid" {
		h.log.WithFields(logrus.Fields{
			"order_id": note.OrderID,
			"status":   note.Status,
		}).Info("[PaymentHandler] Ignoring non-paid notification")
		return
	}
	if note.UserID <= 0 || note.Amount <= 0 {
		h.log.WithField("order_id", note.OrderID).Warn("[PaymentHandler] Rejecting notification with invalid user or amount")
		return
	}

	_, err = h.credits.AddCredits(r.Context(), note.UserID, note.Amount,
		model.TxTypeExternalDeposit, "payment order "+note.OrderID, note.OrderID)
	if err != nil {
		h.log.WithField("order_id", note.OrderID).WithError(err).Error("[PaymentHandler] Failed to credit deposit")
		return
	}

	// Recompute eagerly so the next purchase already sees the new tier
	if _, err := h.discounts.Refresh(r.Context(), note.UserID); err != nil {
		h.log.WithField("user_id", note.UserID).WithError(err).Warn("[PaymentHandler] Discount refresh failed")
	}

	h.log.WithFields(logrus.Fields{
		"order_id": note.OrderID,
		"user_id":  note.UserID,
		"amount":   note.Amount,
	}).Info("[PaymentHandler] Deposit credited")
}

// verifySignature checks sign == md5(base64(json(body minus sign)) +
// key). json.Marshal on a map emits keys sorted, which matches the
// provider's canonical form.
func (h *PaymentHandler) verifySignature(raw map[string]interface{}, sign string) bool {
	if h.apiKey == "" || sign == "" {
		return false
	}

	delete(raw, "sign")
	canonical, err := json.Marshal(raw)
	if err != nil {
		return false
	}

	encoded := base64.StdEncoding.EncodeToString(canonical)
	sum := md5.Sum([]byte(encoded + h.apiKey))
	expected := hex.EncodeToString(sum[:])

	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(sign))) == 1
}

func (h *PaymentHandler) ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"state":0}`))
}
