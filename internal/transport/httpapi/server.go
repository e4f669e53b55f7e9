// Package httpapi — REST API витрины поверх chi.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stayawake/internal/auth"
	"github.com/vladislavdragonenkov/stayawake/internal/domain"
	"github.com/vladislavdragonenkov/stayawake/internal/service/catalog"
	"github.com/vladislavdragonenkov/stayawake/internal/service/idempotency"
	"github.com/vladislavdragonenkov/stayawake/internal/service/payment"
)

const (
	// IdempotencyHeader — заголовок с клиентским ключом повтора оформления заказа.
	IdempotencyHeader = "Idempotency-Key"
	// ReplayedHeader выставляется, если ответ взят из сохранённого исхода.
	ReplayedHeader = "Idempotent-Replayed"

	maxBodyBytes          = 1 << 20
	defaultRequestTimeout = 10 * time.Second
)

type CatalogService interface {
	List(ctx context.Context, filter domain.ProductFilter) (catalog.Page, error)
	Get(ctx context.Context, id int64) (domain.Product, error)
}

type CartService interface {
	View(ctx context.Context, customerID int64) (domain.CartView, error)
	AddItem(ctx context.Context, customerID, productID int64, qty int) (domain.CartView, error)
	SetQuantity(ctx context.Context, customerID, productID int64, qty int) (domain.CartView, error)
	RemoveItem(ctx context.Context, customerID, productID int64) (domain.CartView, error)
}

type CheckoutService interface {
	PlaceOrder(ctx context.Context, customerID, addressID int64) (domain.PlacedOrder, error)
}

type PaymentService interface {
	RecordPayment(ctx context.Context, in payment.RecordPaymentInput) (domain.Payment, error)
}

type OrderQueries interface {
	Details(ctx context.Context, customerID int64, orderID string) (domain.OrderDetails, error)
	List(ctx context.Context, customerID int64, limit int) ([]domain.Order, error)
}

// Deps — зависимости REST API. Guard может быть nil: тогда Idempotency-Key игнорируется.
type Deps struct {
	Catalog        CatalogService
	Cart           CartService
	Checkout       CheckoutService
	Payments       PaymentService
	Orders         OrderQueries
	Guard          *idempotency.Guard
	Authenticator  *auth.Authenticator
	Logger         *log.Entry
	RequestTimeout time.Duration
}

// Server обслуживает REST API витрины.
type Server struct {
	catalog  CatalogService
	cart     CartService
	checkout CheckoutService
	payments PaymentService
	orders   OrderQueries
	guard    *idempotency.Guard
	authn    *auth.Authenticator
	logger   *log.Entry
	timeout  time.Duration
}

func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	authn := deps.Authenticator
	if authn == nil {
		authn = auth.NewAuthenticator("")
	}
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Server{
		catalog:  deps.Catalog,
		cart:     deps.Cart,
		checkout: deps.Checkout,
		payments: deps.Payments,
		orders:   deps.Orders,
		guard:    deps.Guard,
		authn:    authn,
		logger:   logger,
		timeout:  timeout,
	}
}

// Handler собирает chi-роутер со всеми маршрутами.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(recoverer(s.logger))
	r.Use(middleware.Timeout(s.timeout))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(r.Context(), w, newError("not_found", "route not found", http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(r.Context(), w, newError("method_not_allowed", "method not allowed", http.StatusMethodNotAllowed))
	})

	r.Get("/products", s.listProducts)
	r.Get("/products/{productID}", s.getProduct)

	r.Group(func(r chi.Router) {
		r.Use(s.authn.Middleware())

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", s.viewCart)
			r.Post("/items", s.addCartItem)
			r.Put("/items/{productID}", s.setCartItem)
			r.Delete("/items/{productID}", s.removeCartItem)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", s.placeOrder)
			r.Get("/", s.listOrders)
			r.Get("/{orderID}", s.getOrder)
		})

		r.Post("/payments", s.recordPayment)
	})

	return r
}

var errInvalidJSON = newError("invalid_json", "request body must be a valid JSON object", http.StatusBadRequest)

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

func decodeJSON(body []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON object")
	}
	return nil
}

// decodeRequest читает и разбирает тело; при ошибке ответ уже записан.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readBody(w, r)
	if err != nil {
		writeError(r.Context(), w, newError("invalid_body", "request body is too large or unreadable", http.StatusBadRequest))
		return false
	}
	if err := decodeJSON(body, dst); err != nil {
		writeError(r.Context(), w, errInvalidJSON)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	resp := jsonResponse(status, v)
	writeRaw(w, resp.Status, resp.Body)
}

func jsonResponse(status int, v any) idempotency.Response {
	body, err := json.Marshal(v)
	if err != nil {
		return idempotency.Response{Status: errInternal.Status, Body: errorBody(context.Background(), errInternal)}
	}
	return idempotency.Response{Status: status, Body: body}
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n"))
}

// customerID возвращает клиента, установленного auth-middleware.
func customerID(r *http.Request) int64 {
	id, _ := auth.CustomerIDFromContext(r.Context())
	return id
}

func int64Param(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
