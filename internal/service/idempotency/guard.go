package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

const (
	// DefaultTTL — сколько хранится исход запроса с idempotency-key.
	DefaultTTL = 24 * time.Hour
	// MaxKeyLength ограничивает длину клиентского ключа.
	MaxKeyLength = 255
)

// ErrInProgress — запрос с тем же ключом ещё выполняется.
var ErrInProgress = errors.New("request with the same idempotency key is already processing")

// ErrKeyTooLong — ключ длиннее MaxKeyLength.
var ErrKeyTooLong = errors.New("idempotency key is too long")

// Response — сохранённый исход запроса: HTTP статус и тело.
type Response struct {
	Status int
	Body   []byte
}

// Guard повторяет первый исход запроса при повторе с тем же ключом.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
	now    func() time.Time
}

// NewGuard создаёт Guard. ttl <= 0 заменяется на DefaultTTL.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency-guard")
	}
	return &Guard{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Execute выполняет handler один раз на (scope, key). Повтор с тем же телом
// возвращает сохранённый ответ и replayed=true; повтор с другим телом —
// domain.ErrIdempotencyHashMismatch. Пустой key отключает защиту.
// Ответ 5xx не сохраняется: ключ освобождается, и клиент может повторить запрос.
func (g *Guard) Execute(
	ctx context.Context,
	scope, key string,
	request []byte,
	handler func(ctx context.Context) Response,
) (resp Response, replayed bool, err error) {
	key = strings.TrimSpace(key)
	if g == nil || g.repo == nil || key == "" {
		return handler(ctx), false, nil
	}
	if len(key) > MaxKeyLength {
		return Response{}, false, domain.Validation(ErrKeyTooLong)
	}

	storedKey := scope + "|" + key
	record, err := g.repo.CreateProcessing(storedKey, RequestHash(scope, request), g.now().Add(g.ttl))
	if err != nil {
		return g.replay(storedKey, record, err)
	}

	resp = handler(ctx)

	switch {
	case resp.Status >= 500:
		err = g.repo.Release(storedKey)
	case resp.Status >= 400:
		err = g.repo.MarkFailed(storedKey, resp.Body, resp.Status)
	default:
		err = g.repo.MarkDone(storedKey, resp.Body, resp.Status)
	}
	if err != nil {
		g.logger.WithError(err).WithFields(log.Fields{
			"idempotency_key": key,
			"http_status":     resp.Status,
		}).Warn("failed to settle idempotency key")
	}

	return resp, false, nil
}

func (g *Guard) replay(storedKey string, record domain.IdempotencyRecord, createErr error) (Response, bool, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return Response{}, false, createErr
	case !errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		return Response{}, false, fmt.Errorf("create idempotency record: %w", createErr)
	case record.Status == domain.IdempotencyStatusProcessing:
		return Response{}, false, ErrInProgress
	case !record.Status.Valid():
		return Response{}, false, fmt.Errorf("unknown idempotency record status %q", record.Status)
	case !record.Replayable():
		return Response{}, false, fmt.Errorf("idempotency record %q has no stored response", storedKey)
	}
	g.logger.WithField("idempotency_key", storedKey).Debug("replaying stored checkout response")
	return Response{Status: record.HTTPStatus, Body: record.ResponseBody}, true, nil
}

// RequestHash возвращает отпечаток запроса в пределах scope.
func RequestHash(scope string, request []byte) string {
	payload := make([]byte, 0, len(scope)+1+len(request))
	payload = append(payload, scope...)
	payload = append(payload, ':')
	payload = append(payload, request...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
