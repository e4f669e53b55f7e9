package memory

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

const defaultIdempotencyTTL = 24 * time.Hour

// IdempotencyRepository держит ключи Idempotency-Key в памяти процесса.
// В транзакциях Store не участвует: ключ переживает откат оформления.
type IdempotencyRepository struct {
	mu   sync.Mutex
	keys map[string]*domain.IdempotencyRecord
	now  func() time.Time
}

func NewIdempotencyRepository() *IdempotencyRepository {
	return &IdempotencyRepository{
		keys: make(map[string]*domain.IdempotencyRecord),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *IdempotencyRepository) CreateProcessing(key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key, requestHash = strings.TrimSpace(key), strings.TrimSpace(requestHash)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := r.now()
	if ttlAt.IsZero() {
		ttlAt = now.Add(defaultIdempotencyTTL)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Просроченный ключ свободен, даже если уборщик до него ещё не дошёл.
	if held := r.keys[key]; held != nil && !held.Expired(now) {
		err := domain.ErrIdempotencyKeyAlreadyExists
		if held.RequestHash != requestHash {
			err = domain.ErrIdempotencyHashMismatch
		}
		return copyRecord(held), err
	}

	rec := &domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.keys[key] = rec
	return copyRecord(rec), nil
}

func (r *IdempotencyRepository) Get(key string) (domain.IdempotencyRecord, error) {
	if key = strings.TrimSpace(key); key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.keys[key]
	if rec == nil {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return copyRecord(rec), nil
}

func (r *IdempotencyRepository) MarkDone(key string, responseBody []byte, httpStatus int) error {
	return r.settle(key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *IdempotencyRepository) MarkFailed(key string, responseBody []byte, httpStatus int) error {
	return r.settle(key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

func (r *IdempotencyRepository) settle(key string, status domain.IdempotencyStatus, body []byte, httpStatus int) error {
	if key = strings.TrimSpace(key); key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.keys[key]
	if rec == nil {
		return domain.ErrIdempotencyKeyNotFound
	}
	rec.Status = status
	rec.ResponseBody = slices.Clone(body)
	rec.HTTPStatus = httpStatus
	rec.UpdatedAt = r.now()
	return nil
}

func (r *IdempotencyRepository) Release(key string) error {
	if key = strings.TrimSpace(key); key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.keys[key]
	if rec == nil || rec.Status != domain.IdempotencyStatusProcessing {
		return domain.ErrIdempotencyKeyNotFound
	}
	delete(r.keys, key)
	return nil
}

// DeleteExpired удаляет до limit просроченных ключей (limit <= 0 — все), самые старые первыми.
func (r *IdempotencyRepository) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*domain.IdempotencyRecord
	for _, rec := range r.keys {
		if rec.Expired(before) {
			expired = append(expired, rec)
		}
	}
	slices.SortFunc(expired, func(a, b *domain.IdempotencyRecord) int { return a.TTLAt.Compare(b.TTLAt) })
	if limit > 0 {
		expired = expired[:min(limit, len(expired))]
	}
	for _, rec := range expired {
		delete(r.keys, rec.Key)
	}
	return len(expired), nil
}

// Len — число ключей, включая просроченные.
func (r *IdempotencyRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

func copyRecord(rec *domain.IdempotencyRecord) domain.IdempotencyRecord {
	out := *rec
	out.ResponseBody = slices.Clone(rec.ResponseBody)
	return out
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
