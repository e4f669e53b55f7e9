package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/stayawake/internal/auth"
	"github.com/vladislavdragonenkov/stayawake/internal/cache"
	"github.com/vladislavdragonenkov/stayawake/internal/domain"
	"github.com/vladislavdragonenkov/stayawake/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/stayawake/internal/metrics"
	"github.com/vladislavdragonenkov/stayawake/internal/service/cart"
	"github.com/vladislavdragonenkov/stayawake/internal/service/catalog"
	"github.com/vladislavdragonenkov/stayawake/internal/service/checkout"
	"github.com/vladislavdragonenkov/stayawake/internal/service/idempotency"
	"github.com/vladislavdragonenkov/stayawake/internal/service/orders"
	"github.com/vladislavdragonenkov/stayawake/internal/service/outbox"
	"github.com/vladislavdragonenkov/stayawake/internal/service/payment"
	"github.com/vladislavdragonenkov/stayawake/internal/storage/memory"
	"github.com/vladislavdragonenkov/stayawake/internal/storage/seed"
	"github.com/vladislavdragonenkov/stayawake/internal/transport/httpapi"
)

// StorefrontLifecycleTestSuite проходит путь покупателя через REST API:
// корзина, оформление, оплата, история заказа и публикация событий.
type StorefrontLifecycleTestSuite struct {
	suite.Suite
	ctx     context.Context
	store   *memory.Store
	demo    seed.Demo
	handler http.Handler
}

func (suite *StorefrontLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "integration-test")

	suite.ctx = context.Background()
	suite.store = memory.NewStore()

	demo, err := seed.Run(suite.ctx, suite.store)
	suite.Require().NoError(err)
	suite.demo = demo

	server := httpapi.NewServer(httpapi.Deps{
		Catalog:       catalog.NewService(suite.store.Products()),
		Cart:          cart.NewService(suite.store, cache.Noop{}, logger),
		Checkout:      checkout.NewService(suite.store, checkout.WithLogger(logger), checkout.WithMetrics(metrics.NewCheckoutMetrics())),
		Payments:      payment.NewService(suite.store, logger, metrics.NewPaymentMetrics()),
		Orders:        orders.NewService(suite.store),
		Guard:         idempotency.NewGuard(memory.NewIdempotencyRepository(), time.Hour, logger),
		Authenticator: auth.NewAuthenticator("", auth.WithTrustedHeader(true)),
		Logger:        logger,
	})
	suite.handler = server.Handler()
}

func (suite *StorefrontLifecycleTestSuite) TestCheckoutPaymentAndHistory() {
	arabica := suite.demo.Products[0]
	address := suite.demo.Addresses[0]
	customer := address.CustomerID

	suite.addToCart(customer, arabica.ID, 2)

	orderID, total := suite.placeOrder(customer, address.ID, "lifecycle-order")
	suite.True(total.Equal(decimal.NewFromInt(300000)), "unexpected total %s", total)

	product, err := suite.store.Products().FindByID(suite.ctx, arabica.ID)
	suite.Require().NoError(err)
	suite.Equal(arabica.Stock-2, product.Stock)

	cartResp := suite.do(http.MethodGet, "/cart/", customer, "", nil)
	suite.Require().Equal(http.StatusOK, cartResp.Code)
	suite.Contains(cartResp.Body.String(), `"lines":[]`)

	pay := suite.do(http.MethodPost, "/payments", customer, "lifecycle-pay", map[string]any{
		"orderId":       orderID,
		"method":        "bank_transfer",
		"status":        "completed",
		"amountPaid":    total,
		"transactionId": "trx-1",
	})
	suite.Require().Equal(http.StatusCreated, pay.Code, pay.Body.String())

	details := suite.do(http.MethodGet, "/orders/"+orderID, customer, "", nil)
	suite.Require().Equal(http.StatusOK, details.Code)

	var order struct {
		Status   string `json:"status"`
		Payments []struct {
			Method string `json:"method"`
			Status string `json:"status"`
		} `json:"payments"`
		Timeline []struct {
			Type string `json:"type"`
		} `json:"timeline"`
	}
	suite.Require().NoError(json.Unmarshal(details.Body.Bytes(), &order))
	suite.Equal(string(domain.OrderStatusPaid), order.Status)
	suite.Require().Len(order.Payments, 1)
	suite.Equal("bank_transfer", order.Payments[0].Method)
	suite.NotEmpty(order.Timeline)

	second := suite.do(http.MethodPost, "/payments", customer, "lifecycle-pay-2", map[string]any{
		"orderId":    orderID,
		"method":     "card",
		"status":     "completed",
		"amountPaid": total,
	})
	suite.Equal(http.StatusConflict, second.Code)
	suite.Contains(second.Body.String(), "payment_already_recorded")

	foreign := suite.do(http.MethodGet, "/orders/"+orderID, suite.demo.Addresses[1].CustomerID, "", nil)
	suite.Equal(http.StatusNotFound, foreign.Code)
}

func (suite *StorefrontLifecycleTestSuite) TestPaymentAmountMismatch() {
	address := suite.demo.Addresses[0]
	suite.addToCart(address.CustomerID, suite.demo.Products[1].ID, 1)
	orderID, _ := suite.placeOrder(address.CustomerID, address.ID, "mismatch-order")

	resp := suite.do(http.MethodPost, "/payments", address.CustomerID, "", map[string]any{
		"orderId":    orderID,
		"method":     "card",
		"status":     "completed",
		"amountPaid": "1",
	})
	suite.Equal(http.StatusBadRequest, resp.Code)
	suite.Contains(resp.Body.String(), "amount_mismatch")
}

func (suite *StorefrontLifecycleTestSuite) TestLastUnitSoldOnce() {
	last, err := suite.store.Products().Create(suite.ctx, domain.Product{
		Name:  "Limited Geisha",
		Price: decimal.NewFromInt(500000),
		Stock: 1,
	})
	suite.Require().NoError(err)

	buyers := suite.demo.Addresses
	for _, a := range buyers {
		suite.addToCart(a.CustomerID, last.ID, 1)
	}

	codes := make([]int, len(buyers))
	bodies := make([]string, len(buyers))
	var wg sync.WaitGroup
	for i, a := range buyers {
		wg.Add(1)
		go func(i int, a domain.Address) {
			defer wg.Done()
			resp := suite.do(http.MethodPost, "/orders", a.CustomerID, fmt.Sprintf("race-%d", i), map[string]any{"addressId": a.ID})
			codes[i] = resp.Code
			bodies[i] = resp.Body.String()
		}(i, a)
	}
	wg.Wait()

	created := 0
	for i, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			suite.Contains(bodies[i], "stock_conflict")
		case http.StatusBadRequest:
			suite.Contains(bodies[i], "product_unavailable")
		default:
			suite.Failf("unexpected status", "status %d body %s", code, bodies[i])
		}
	}
	suite.Equal(1, created)

	product, err := suite.store.Products().FindByID(suite.ctx, last.ID)
	suite.Require().NoError(err)
	suite.Zero(product.Stock)
}

func (suite *StorefrontLifecycleTestSuite) TestOutboxEventsPublished() {
	address := suite.demo.Addresses[0]
	suite.addToCart(address.CustomerID, suite.demo.Products[0].ID, 1)
	orderID, total := suite.placeOrder(address.CustomerID, address.ID, "events-order")

	pay := suite.do(http.MethodPost, "/payments", address.CustomerID, "", map[string]any{
		"orderId":    orderID,
		"method":     "card",
		"status":     "completed",
		"amountPaid": total,
	})
	suite.Require().Equal(http.StatusCreated, pay.Code)

	pending, err := suite.store.Outbox().PullPending(suite.ctx, 100)
	suite.Require().NoError(err)
	suite.Require().NotEmpty(pending)

	eventTypes := make(map[string]bool)
	for _, msg := range pending {
		suite.Equal(orderID, msg.AggregateID)
		eventTypes[msg.EventType] = true
	}
	suite.True(eventTypes[domain.EventOrderPlaced])
	suite.True(eventTypes[domain.EventPaymentRecorded])

	producer := mocks.NewSyncProducer(suite.T(), nil)
	for range pending {
		producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			if msg.Topic != kafka.TopicOrderEvents {
				return fmt.Errorf("unexpected topic %s", msg.Topic)
			}
			key, err := msg.Key.Encode()
			if err != nil {
				return err
			}
			if string(key) != orderID {
				return fmt.Errorf("unexpected key %s", key)
			}
			return nil
		})
	}
	kafkaProducer := kafka.NewProducerFrom(producer)
	defer func() { suite.NoError(kafkaProducer.Close()) }()

	relay := outbox.NewRelay(
		suite.store.Outbox(),
		kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicOrderEvents),
		outbox.Config{BatchSize: 100},
	)
	suite.Equal(len(pending), relay.Drain(suite.ctx))

	stats, err := suite.store.Outbox().Stats(suite.ctx)
	suite.Require().NoError(err)
	suite.Zero(stats.PendingCount)
}

func (suite *StorefrontLifecycleTestSuite) TestCheckoutRequiresCartAndOwnAddress() {
	own := suite.demo.Addresses[0]
	other := suite.demo.Addresses[1]

	empty := suite.do(http.MethodPost, "/orders", own.CustomerID, "", map[string]any{"addressId": own.ID})
	suite.Equal(http.StatusBadRequest, empty.Code)
	suite.Contains(empty.Body.String(), "empty_cart")

	suite.addToCart(own.CustomerID, suite.demo.Products[0].ID, 1)
	foreign := suite.do(http.MethodPost, "/orders", own.CustomerID, "", map[string]any{"addressId": other.ID})
	suite.Equal(http.StatusBadRequest, foreign.Code)
	suite.Contains(foreign.Body.String(), "invalid_address")
}

func (suite *StorefrontLifecycleTestSuite) addToCart(customerID, productID int64, qty int) {
	resp := suite.do(http.MethodPost, "/cart/items", customerID, "", map[string]any{"productId": productID, "quantity": qty})
	suite.Require().Equal(http.StatusOK, resp.Code, resp.Body.String())
}

func (suite *StorefrontLifecycleTestSuite) placeOrder(customerID, addressID int64, key string) (string, decimal.Decimal) {
	resp := suite.do(http.MethodPost, "/orders", customerID, key, map[string]any{"addressId": addressID})
	suite.Require().Equal(http.StatusCreated, resp.Code, resp.Body.String())

	var placed struct {
		OrderID    string          `json:"orderId"`
		TotalPrice decimal.Decimal `json:"totalPrice"`
	}
	suite.Require().NoError(json.Unmarshal(resp.Body.Bytes(), &placed))
	suite.Require().NotEmpty(placed.OrderID)
	return placed.OrderID, placed.TotalPrice
}

func (suite *StorefrontLifecycleTestSuite) do(method, path string, customerID int64, idempotencyKey string, body any) *httptest.ResponseRecorder {
	var payload string
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(suite.T(), err)
		payload = string(raw)
	}

	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.CustomerHeader, strconv.FormatInt(customerID, 10))
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	w := httptest.NewRecorder()
	suite.handler.ServeHTTP(w, req)
	return w
}

func TestStorefrontLifecycle(t *testing.T) {
	suite.Run(t, new(StorefrontLifecycleTestSuite))
}
