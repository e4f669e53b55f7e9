package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	jwt "github.com/golang-jwt/jwt/v4"
	log "github.com/sirupsen/logrus"
)

// CustomerHeader передаёт идентификатор клиента от доверенного шлюза.
const CustomerHeader = "X-Customer-ID"

var (
	// ErrUnauthenticated — запрос не содержит учётных данных клиента.
	ErrUnauthenticated = errors.New("auth: customer credentials missing")
	// ErrTokenInvalid — токен не прошёл проверку подписи или содержит некорректный subject.
	ErrTokenInvalid = errors.New("auth: bearer token invalid")
	// ErrTokenExpired — срок действия токена истёк.
	ErrTokenExpired = errors.New("auth: bearer token expired")
)

// Authenticator определяет клиента по HS256 JWT или по заголовку доверенного шлюза.
type Authenticator struct {
	secret       []byte
	trustHeader  bool
	leeway       time.Duration
	logger       *log.Entry
	now          func() time.Time
	allowedAlgos []string
}

// Option настраивает Authenticator.
type Option func(*Authenticator)

// WithTrustedHeader включает приём X-Customer-ID без токена.
func WithTrustedHeader(enabled bool) Option {
	return func(a *Authenticator) {
		a.trustHeader = enabled
	}
}

// WithLeeway допускает расхождение часов при проверке exp/nbf.
func WithLeeway(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.leeway = d
		}
	}
}

func WithLogger(logger *log.Entry) Option {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAuthenticator создаёт аутентификатор. Пустой секрет отключает проверку токенов.
func NewAuthenticator(secret string, opts ...Option) *Authenticator {
	a := &Authenticator{
		secret:       []byte(secret),
		logger:       log.WithField("component", "auth"),
		now:          time.Now,
		allowedAlgos: []string{jwt.SigningMethodHS256.Alg()},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate извлекает идентификатор клиента из запроса.
func (a *Authenticator) Authenticate(r *http.Request) (int64, error) {
	if token, ok := extractBearerToken(r.Header.Get("Authorization")); ok {
		return a.ParseToken(token)
	}
	if a.trustHeader {
		if raw := strings.TrimSpace(r.Header.Get(CustomerHeader)); raw != "" {
			return parseCustomerID(raw)
		}
	}
	return 0, ErrUnauthenticated
}

// ParseToken проверяет подпись HS256 и возвращает числовой subject.
func (a *Authenticator) ParseToken(raw string) (int64, error) {
	if len(a.secret) == 0 {
		return 0, fmt.Errorf("%w: signing secret not configured", ErrTokenInvalid)
	}

	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods(a.allowedAlgos), jwt.WithoutClaimsValidation())
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	now := a.now()
	if claims.ExpiresAt != nil && now.After(claims.ExpiresAt.Time.Add(a.leeway)) {
		return 0, ErrTokenExpired
	}
	if claims.NotBefore != nil && now.Add(a.leeway).Before(claims.NotBefore.Time) {
		return 0, fmt.Errorf("%w: token not valid yet", ErrTokenInvalid)
	}

	return parseCustomerID(claims.Subject)
}

// Middleware отклоняет запросы без валидного клиента ответом 401.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			customerID, err := a.Authenticate(r)
			if err != nil {
				a.logger.WithFields(log.Fields{
					"path":       r.URL.Path,
					"request_id": middleware.GetReqID(r.Context()),
				}).WithError(err).Debug("customer authentication failed")
				respondAuthError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCustomerID(r.Context(), customerID)))
		})
	}
}

type contextKey string

const customerContextKey contextKey = "github.com/vladislavdragonenkov/stayawake/internal/auth/customer"

// WithCustomerID сохраняет идентификатор клиента в контексте.
func WithCustomerID(ctx context.Context, customerID int64) context.Context {
	return context.WithValue(ctx, customerContextKey, customerID)
}

// CustomerIDFromContext возвращает идентификатор клиента, сохранённый middleware.
func CustomerIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(customerContextKey).(int64)
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}

func parseCustomerID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: subject %q is not a customer id", ErrTokenInvalid, raw)
	}
	return id, nil
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func respondAuthError(w http.ResponseWriter, r *http.Request, err error) {
	code, message := "unauthenticated", "customer credentials missing"
	switch {
	case errors.Is(err, ErrTokenExpired):
		code, message = "token_expired", "bearer token expired"
	case errors.Is(err, ErrTokenInvalid):
		code, message = "invalid_token", "bearer token invalid"
	}

	payload := map[string]any{
		"error":   code,
		"message": message,
		"status":  http.StatusUnauthorized,
	}
	if id := middleware.GetReqID(r.Context()); id != "" {
		payload["request_id"] = id
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(payload)
}
