package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
	"github.com/vladislavdragonenkov/stayawake/internal/service/idempotency"
)

// apiError — JSON-конверт ошибки: {"error", "message", "status", "requestId"}.
type apiError struct {
	Code    string
	Message string
	Status  int
}

func newError(code, message string, status int) apiError {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return apiError{Code: code, Message: sanitize(message, 512), Status: status}
}

var errInternal = newError("internal_error", "internal server error", http.StatusInternalServerError)

// classify переводит ошибку сервисов в HTTP-ответ. internal=true означает,
// что детали ошибки клиенту не показываются.
func classify(err error) (apiError, bool) {
	var unavailable *domain.ProductUnavailableError
	var conflict *domain.StockConflictError

	switch {
	case errors.Is(err, domain.ErrValidation):
		return newError("validation_failed", err.Error(), http.StatusBadRequest), false
	case errors.Is(err, domain.ErrEmptyCart):
		return newError("empty_cart", "cart is empty", http.StatusBadRequest), false
	case errors.Is(err, domain.ErrInvalidAddress):
		return newError("invalid_address", "shipping address not found", http.StatusBadRequest), false
	case errors.As(err, &unavailable):
		return newError("product_unavailable", unavailable.Error(), http.StatusBadRequest), false
	case errors.Is(err, domain.ErrProductUnavailable):
		return newError("product_unavailable", "product unavailable", http.StatusBadRequest), false
	case errors.Is(err, domain.ErrAmountMismatch):
		return newError("amount_mismatch", "payment amount does not match order total", http.StatusBadRequest), false
	case errors.As(err, &conflict):
		return newError("stock_conflict", conflict.Error(), http.StatusConflict), false
	case errors.Is(err, domain.ErrStockConflict):
		return newError("stock_conflict", "stock changed during checkout", http.StatusConflict), false
	case errors.Is(err, domain.ErrPaymentAlreadyRecorded):
		return newError("payment_already_recorded", "payment already recorded for order", http.StatusConflict), false
	case errors.Is(err, domain.ErrInvalidStatusTransition):
		return newError("invalid_status_transition", "order status does not allow this operation", http.StatusConflict), false
	case domain.IsIdempotencyConflict(err):
		return newError("idempotency_conflict", "idempotency key reused with different request", http.StatusConflict), false
	case errors.Is(err, idempotency.ErrInProgress):
		return newError("idempotency_in_progress", "request with the same idempotency key is still processing", http.StatusConflict), false
	case errors.Is(err, domain.ErrOrderNotFound):
		return newError("order_not_found", "order not found", http.StatusNotFound), false
	case errors.Is(err, domain.ErrProductNotFound):
		return newError("product_not_found", "product not found", http.StatusNotFound), false
	case errors.Is(err, domain.ErrCartLineNotFound):
		return newError("cart_line_not_found", "product is not in the cart", http.StatusNotFound), false
	case errors.Is(err, context.DeadlineExceeded):
		return newError("timeout", "request timed out", http.StatusGatewayTimeout), true
	default:
		return errInternal, true
	}
}

// errorBody сериализует конверт ошибки.
func errorBody(ctx context.Context, e apiError) []byte {
	payload := map[string]any{
		"error":   e.Code,
		"message": e.Message,
		"status":  e.Status,
	}
	if id := sanitize(middleware.GetReqID(ctx), 80); id != "" {
		payload["requestId"] = id
	}
	body, _ := json.Marshal(payload)
	return body
}

func writeError(ctx context.Context, w http.ResponseWriter, e apiError) {
	writeRaw(w, e.Status, errorBody(ctx, e))
}

// respondError классифицирует ошибку, логирует сбои хранилища и пишет ответ.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	e := s.errorFor(r, err)
	writeError(r.Context(), w, e)
}

func (s *Server) errorFor(r *http.Request, err error) apiError {
	e, internal := classify(err)
	if internal {
		s.logger.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).WithError(err).Error("request failed")
	}
	return e
}

func sanitize(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
