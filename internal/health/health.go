// Package health собирает проверки зависимостей витрины для /healthz и /readyz.
//
// Хранилище — критичная зависимость: без него сервис не готов. Кеш корзин и
// брокер необязательны, их отказ только переводит отчёт в degraded.
package health

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const defaultCheckTimeout = 2 * time.Second

// Check — результат проверки одного компонента.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Critical   bool   `json:"critical"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response — тело ответа /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

type Checker interface {
	Check(ctx context.Context) Check
}

// overall: отказ критичной проверки — unhealthy, любой другой отказ — degraded.
func overall(checks map[string]Check) Status {
	status := StatusHealthy
	for _, c := range checks {
		if c.Status == StatusHealthy {
			continue
		}
		if c.Critical {
			return StatusUnhealthy
		}
		status = StatusDegraded
	}
	return status
}

// Handler хранит зарегистрированные проверки и отдаёт /healthz и /readyz.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	version  string
	started  time.Time
	timeout  time.Duration
}

func NewHandler(version string) *Handler {
	return &Handler{
		checkers: make(map[string]Checker),
		version:  version,
		started:  time.Now(),
		timeout:  defaultCheckTimeout,
	}
}

// RegisterChecker заменяет проверку с тем же именем.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	h.checkers[name] = checker
	h.mu.Unlock()
}

func (h *Handler) snapshot() map[string]Checker {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return maps.Clone(h.checkers)
}

// Run опрашивает все компоненты одновременно; у каждой проверки свой таймаут.
func (h *Handler) Run(ctx context.Context) Response {
	checkers := h.snapshot()

	type named struct {
		name  string
		check Check
	}
	results := make(chan named, len(checkers))
	for _, name := range slices.Sorted(maps.Keys(checkers)) {
		go func(name string, c Checker) {
			cctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			results <- named{name: name, check: c.Check(cctx)}
		}(name, checkers[name])
	}

	checks := make(map[string]Check, len(checkers))
	for range checkers {
		r := <-results
		checks[r.name] = r.check
	}

	return Response{
		Status:        overall(checks),
		Timestamp:     time.Now().UTC(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
}

// ServeHTTP отдаёт полный отчёт; 503 — только при отказе критичного компонента.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Run(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpCode(report.Status))
	_ = json.NewEncoder(w).Encode(report)
}

func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	code := httpCode(h.Run(r.Context()).Status)
	body := "ready"
	if code != http.StatusOK {
		body = "not ready"
	}
	writePlain(w, code, body)
}

func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	writePlain(w, http.StatusOK, "ok")
}

func httpCode(s Status) int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func writePlain(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// FuncChecker превращает функцию пинга в Checker.
type FuncChecker struct {
	name     string
	critical bool
	ping     func(ctx context.Context) error
}

// NewCritical — проверка, без которой сервис не готов принимать заказы.
func NewCritical(name string, ping func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, critical: true, ping: ping}
}

// NewOptional — проверка вспомогательного компонента.
func NewOptional(name string, ping func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, ping: ping}
}

func (c *FuncChecker) Check(ctx context.Context) Check {
	started := time.Now()
	err := c.ping(ctx)

	result := Check{
		Name:       c.name,
		Status:     StatusHealthy,
		Critical:   c.critical,
		DurationMs: time.Since(started).Milliseconds(),
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
	}
	return result
}
