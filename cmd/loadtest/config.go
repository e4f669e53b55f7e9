package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

type loadMode string

const (
	modeCheckout    loadMode = "checkout"
	modeCheckoutPay loadMode = "checkout-pay"
)

type customerAddress struct {
	customerID int64
	addressID  int64
}

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode

	productID     int64
	quantity      int
	customers     []customerAddress
	paymentMethod string
	jwtSecret     string
	outputPath    string
}

// parseConfig разбирает аргументы командной строки (без имени программы).
func parseConfig(args []string) (config, error) {
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		cfg       config
		mode      string
		customers string
	)
	fs.StringVar(&cfg.baseURL, "addr", "http://localhost:8080", "storefront REST API base URL")
	fs.IntVar(&cfg.total, "total", 400, "scenarios to run; with -duration it caps the run")
	fs.DurationVar(&cfg.duration, "duration", 0, "run for this long instead of a fixed count (e.g. 10m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "parallel shoppers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&mode, "mode", string(modeCheckout), "checkout | checkout-pay")
	fs.Int64Var(&cfg.productID, "product-id", 1, "product put in the cart by every scenario")
	fs.IntVar(&cfg.quantity, "quantity", 1, "cart line quantity")
	fs.StringVar(&customers, "customers", "1:1,2:2", "comma-separated customerID:addressID pairs")
	fs.StringVar(&cfg.paymentMethod, "payment-method", "card", "payment method for checkout-pay")
	fs.StringVar(&cfg.jwtSecret, "jwt-secret", "", "HS256 secret; empty sends X-Customer-ID instead")
	fs.StringVar(&cfg.outputPath, "output", "", "write the JSON report to this file")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	fs.Visit(func(f *flag.Flag) { cfg.totalSet = cfg.totalSet || f.Name == "total" })

	var err error
	if cfg.mode, err = parseMode(mode); err != nil {
		return config{}, err
	}
	if cfg.customers, err = parseCustomers(customers); err != nil {
		return config{}, err
	}
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	cfg.paymentMethod = strings.TrimSpace(cfg.paymentMethod)

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) validate() error {
	checks := []struct {
		bad bool
		msg string
	}{
		{c.baseURL == "", "addr is required"},
		{c.duration < 0, "duration must be >= 0"},
		{c.duration == 0 && c.total <= 0, "total must be > 0 when duration is not set"},
		{c.duration > 0 && c.totalSet && c.total <= 0, "total must be > 0 when set together with duration"},
		{c.concurrency <= 0, "concurrency must be > 0"},
		{c.timeout <= 0, "timeout must be > 0"},
		{c.productID <= 0, "product-id must be > 0"},
		{c.quantity <= 0, "quantity must be > 0"},
		{c.mode == modeCheckoutPay && c.paymentMethod == "", "payment-method is required in checkout-pay mode"},
	}
	for _, check := range checks {
		if check.bad {
			return errors.New(check.msg)
		}
	}
	return nil
}

// target описывает границу прогона для сводки.
func (c config) target() string {
	switch {
	case c.duration <= 0:
		return fmt.Sprintf("count:%d", c.total)
	case c.totalSet:
		return fmt.Sprintf("duration:%s,max-total:%d", c.duration, c.total)
	default:
		return fmt.Sprintf("duration:%s", c.duration)
	}
}

func parseMode(value string) (loadMode, error) {
	switch m := loadMode(strings.TrimSpace(value)); m {
	case modeCheckout, modeCheckoutPay:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

// parseCustomers разбирает "1:1,2:2" в пары покупатель-адрес.
func parseCustomers(value string) ([]customerAddress, error) {
	var out []customerAddress
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		rawCustomer, rawAddress, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("customer %q must look like customerID:addressID", pair)
		}
		customerID, err := positiveID(rawCustomer)
		if err != nil {
			return nil, fmt.Errorf("customer id in %q: %w", pair, err)
		}
		addressID, err := positiveID(rawAddress)
		if err != nil {
			return nil, fmt.Errorf("address id in %q: %w", pair, err)
		}
		out = append(out, customerAddress{customerID: customerID, addressID: addressID})
	}
	if len(out) == 0 {
		return nil, errors.New("at least one customer is required")
	}
	return out, nil
}

func positiveID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, errors.New("must be > 0")
	}
	return id, nil
}
