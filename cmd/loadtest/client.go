package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/vladislavdragonenkov/stayawake/internal/version"
)

const (
	idempotencyHeader = "Idempotency-Key"
	customerHeader    = "X-Customer-ID"
	tokenTTL          = time.Hour
)

// apiResponse — статус и тело ответа; errorCode заполнен для 4xx/5xx с JSON-ошибкой.
type apiResponse struct {
	status    int
	errorCode string
	body      []byte
}

func (r apiResponse) code() string {
	if r.errorCode == "" {
		return strconv.Itoa(r.status)
	}
	return strconv.Itoa(r.status) + " " + r.errorCode
}

// request — один вызов REST API от имени покупателя.
type request struct {
	method         string
	path           string
	customerID     int64
	idempotencyKey string
	body           any
}

// apiClient ходит в REST API витрины. Токены кешируются по покупателю.
type apiClient struct {
	baseURL   string
	http      *http.Client
	jwtSecret []byte

	mu     sync.Mutex
	tokens map[int64]string
}

func newAPIClient(baseURL string, httpClient *http.Client, jwtSecret string) *apiClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &apiClient{
		baseURL:   baseURL,
		http:      httpClient,
		jwtSecret: []byte(jwtSecret),
		tokens:    make(map[int64]string),
	}
}

// timed выполняет запрос с таймаутом и записывает результат в rec под именем name.
func (c *apiClient) timed(rec *recorder, name string, timeout time.Duration, req request) (apiResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	started := time.Now()
	resp, err := c.do(ctx, req)
	if err != nil {
		rec.observe(name, time.Since(started), "transport_error", false)
		return apiResponse{}, err
	}
	rec.observe(name, time.Since(started), resp.code(), resp.status < http.StatusBadRequest)
	return resp, nil
}

func (c *apiClient) do(ctx context.Context, r request) (apiResponse, error) {
	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return apiResponse{}, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return apiResponse{}, err
	}
	req.Header.Set("User-Agent", version.UserAgent("loadtest"))
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.idempotencyKey != "" {
		req.Header.Set(idempotencyHeader, r.idempotencyKey)
	}
	if err := c.authorize(req, r.customerID); err != nil {
		return apiResponse{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apiResponse{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiResponse{}, fmt.Errorf("read response: %w", err)
	}
	out := apiResponse{status: resp.StatusCode, body: raw}
	if resp.StatusCode >= http.StatusBadRequest {
		var problem struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &problem) == nil {
			out.errorCode = problem.Error
		}
	}
	return out, nil
}

// authorize подписывает запрос JWT, а без секрета передаёт покупателя заголовком.
func (c *apiClient) authorize(req *http.Request, customerID int64) error {
	if len(c.jwtSecret) == 0 {
		req.Header.Set(customerHeader, strconv.FormatInt(customerID, 10))
		return nil
	}
	token, err := c.token(customerID)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (c *apiClient) token(customerID int64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.tokens[customerID]; ok {
		return t, nil
	}
	now := time.Now()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(customerID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}).SignedString(c.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	c.tokens[customerID] = signed
	return signed, nil
}
