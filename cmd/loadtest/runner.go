package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// outcome — итог сценария. Конфликт остатков, пустая корзина и распроданный товар
// ожидаемы при конкурентных покупках и не считаются сбоем прогона.
type outcome string

const (
	outcomeOK                 outcome = "ok"
	outcomeStockConflict      outcome = "stock_conflict"
	outcomeEmptyCart          outcome = "empty_cart"
	outcomeProductUnavailable outcome = "product_unavailable"
	outcomeFailed             outcome = "failed"
)

// contention — коды ошибок API, которые означают проигранную гонку за товар.
var contention = map[int]map[string]outcome{
	http.StatusConflict: {
		string(outcomeStockConflict): outcomeStockConflict,
	},
	http.StatusBadRequest: {
		string(outcomeEmptyCart):          outcomeEmptyCart,
		string(outcomeProductUnavailable): outcomeProductUnavailable,
	},
}

func classifyOutcome(resp apiResponse, err error) outcome {
	if err != nil {
		return outcomeFailed
	}
	if o, ok := contention[resp.status][resp.errorCode]; ok {
		return o
	}
	return outcomeFailed
}

// runLoad раздаёт номера сценариев пулу из cfg.concurrency воркеров.
func runLoad(client *apiClient, cfg config) report {
	started := time.Now()
	runID := fmt.Sprintf("%d-%d", started.UnixNano(), os.Getpid())
	rec := newRecorder()

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	wg.Add(cfg.concurrency)
	for range cfg.concurrency {
		go func() {
			defer wg.Done()
			for n := range jobs {
				runScenario(client, cfg, n, runID, rec)
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()
	return rec.report(started, time.Since(started))
}

// dispatchJobs закрывает jobs, когда выдано cfg.total номеров или истекла cfg.duration.
func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	ctx := context.Background()
	limit := cfg.total
	if cfg.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.duration)
		defer cancel()
		if !cfg.totalSet {
			limit = -1
		}
	}

	for n := 0; limit < 0 || n < limit; n++ {
		select {
		case <-ctx.Done():
			return
		case jobs <- n:
		}
	}
}

type placedOrder struct {
	OrderID    string          `json:"orderId"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

// runScenario: товар в корзину, оформление заказа, в checkout-pay — оплата на всю сумму.
func runScenario(client *apiClient, cfg config, n int, runID string, rec *recorder) (result outcome) {
	started := time.Now()
	defer func() {
		rec.observe(scenarioMetric, time.Since(started), string(result), result == outcomeOK)
	}()

	shopper := cfg.customers[n%len(cfg.customers)]

	resp, err := client.timed(rec, "AddCartItem", cfg.timeout, request{
		method:     http.MethodPost,
		path:       "/cart/items",
		customerID: shopper.customerID,
		body:       map[string]any{"productId": cfg.productID, "quantity": cfg.quantity},
	})
	if err != nil || resp.status != http.StatusOK {
		return classifyOutcome(resp, err)
	}

	resp, err = client.timed(rec, "PlaceOrder", cfg.timeout, request{
		method:         http.MethodPost,
		path:           "/orders",
		customerID:     shopper.customerID,
		idempotencyKey: fmt.Sprintf("lt-order-%s-%d", runID, n),
		body:           map[string]any{"addressId": shopper.addressID},
	})
	if err != nil || resp.status != http.StatusCreated {
		return classifyOutcome(resp, err)
	}

	var order placedOrder
	if err := json.Unmarshal(resp.body, &order); err != nil || order.OrderID == "" {
		return outcomeFailed
	}
	if cfg.mode != modeCheckoutPay {
		return outcomeOK
	}

	resp, err = client.timed(rec, "RecordPayment", cfg.timeout, request{
		method:     http.MethodPost,
		path:       "/payments",
		customerID: shopper.customerID,
		body: map[string]any{
			"orderId":       order.OrderID,
			"method":        cfg.paymentMethod,
			"status":        "completed",
			"amountPaid":    order.TotalPrice,
			"transactionId": fmt.Sprintf("lt-pay-%s-%d", runID, n),
		},
	})
	if err != nil || resp.status != http.StatusCreated {
		return outcomeFailed
	}
	return outcomeOK
}
