package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
	"github.com/vladislavdragonenkov/stayawake/internal/service/idempotency"
	"github.com/vladislavdragonenkov/stayawake/internal/service/payment"
)

// GET /products
func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseProductFilter(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	page, err := s.catalog.List(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductPageDTO(page))
}

// GET /products/{productID}
func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(r, "productID")
	if !ok {
		writeError(r.Context(), w, newError("product_not_found", "product not found", http.StatusNotFound))
		return
	}

	product, err := s.catalog.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(product))
}

// GET /cart
func (s *Server) viewCart(w http.ResponseWriter, r *http.Request) {
	view, err := s.cart.View(r.Context(), customerID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartDTO(view))
}

// POST /cart/items
func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	view, err := s.cart.AddItem(r.Context(), customerID(r), req.ProductID, req.Quantity)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartDTO(view))
}

// PUT /cart/items/{productID}
func (s *Server) setCartItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := int64Param(r, "productID")
	if !ok {
		writeError(r.Context(), w, newError("validation_failed", "product id must be a positive integer", http.StatusBadRequest))
		return
	}
	var req setCartItemRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	view, err := s.cart.SetQuantity(r.Context(), customerID(r), productID, req.Quantity)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartDTO(view))
}

// DELETE /cart/items/{productID}
func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := int64Param(r, "productID")
	if !ok {
		writeError(r.Context(), w, newError("validation_failed", "product id must be a positive integer", http.StatusBadRequest))
		return
	}

	view, err := s.cart.RemoveItem(r.Context(), customerID(r), productID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartDTO(view))
}

// POST /orders
//
// С заголовком Idempotency-Key первый исход (успех или ошибка) сохраняется
// и возвращается на повторы с тем же телом.
func (s *Server) placeOrder(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(r.Context(), w, newError("invalid_body", "request body is too large or unreadable", http.StatusBadRequest))
		return
	}

	customer := customerID(r)
	scope := "POST /orders customer=" + strconv.FormatInt(customer, 10)

	resp, replayed, err := s.guard.Execute(r.Context(), scope, r.Header.Get(IdempotencyHeader), body,
		func(ctx context.Context) idempotency.Response {
			var req placeOrderRequest
			if err := decodeJSON(body, &req); err != nil {
				return errorResponse(ctx, errInvalidJSON)
			}

			placed, err := s.checkout.PlaceOrder(ctx, customer, req.AddressID)
			if err != nil {
				return errorResponse(ctx, s.errorFor(r, err))
			}
			return jsonResponse(http.StatusCreated, placeOrderResponse{
				OrderID:    placed.OrderID,
				TotalPrice: placed.TotalPrice,
			})
		})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if replayed {
		w.Header().Set(ReplayedHeader, "true")
	}
	writeRaw(w, resp.Status, resp.Body)
}

// GET /orders
func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(r.Context(), w, newError("validation_failed", "limit must be a non-negative integer", http.StatusBadRequest))
			return
		}
		limit = n
	}

	orders, err := s.orders.List(r.Context(), customerID(r), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	items := make([]orderDTO, 0, len(orders))
	for _, o := range orders {
		items = append(items, toOrderDTO(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GET /orders/{orderID}
func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	details, err := s.orders.Details(r.Context(), customerID(r), chi.URLParam(r, "orderID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDetailsDTO(details))
}

// POST /payments
func (s *Server) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req recordPaymentRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	p, err := s.payments.RecordPayment(r.Context(), payment.RecordPaymentInput{
		CustomerID:    customerID(r),
		OrderID:       strings.TrimSpace(req.OrderID),
		Method:        req.Method,
		Status:        domain.PaymentStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		TransactionID: req.TransactionID,
		AmountPaid:    req.AmountPaid,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, recordPaymentResponse{PaymentID: p.ID, Status: string(p.Status)})
}

func errorResponse(ctx context.Context, e apiError) idempotency.Response {
	return idempotency.Response{Status: e.Status, Body: errorBody(ctx, e)}
}

func parseProductFilter(r *http.Request) (domain.ProductFilter, error) {
	q := r.URL.Query()
	filter := domain.ProductFilter{
		Category: q.Get("category"),
		Query:    q.Get("q"),
		Sort:     domain.ProductSort(q.Get("sort")),
	}

	for _, p := range []struct {
		name string
		dst  **decimal.Decimal
	}{
		{"min_price", &filter.MinPrice},
		{"max_price", &filter.MaxPrice},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return filter, domain.Validation(fmt.Errorf("%s must be a decimal number", p.name))
		}
		*p.dst = &v
	}

	if raw := q.Get("in_stock"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, domain.Validation(errors.New("in_stock must be a boolean"))
		}
		filter.InStockOnly = v
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limit", &filter.Limit},
		{"offset", &filter.Offset},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return filter, domain.Validation(fmt.Errorf("%s must be a non-negative integer", p.name))
		}
		*p.dst = v
	}

	return filter, nil
}
