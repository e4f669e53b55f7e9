package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

const defaultIdempotencyTTL = 24 * time.Hour

// Ключ с ttl_at <= now считается свободным: ON CONFLICT перезаписывает его,
// живой ключ не трогается и RETURNING ничего не отдаёт.
const claimIdempotencyKey = `
	INSERT INTO idempotency_keys (key, request_hash, status, ttl_at, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $5)
	ON CONFLICT (key) DO UPDATE SET
		request_hash  = EXCLUDED.request_hash,
		response_body = NULL,
		http_status   = NULL,
		status        = EXCLUDED.status,
		ttl_at        = EXCLUDED.ttl_at,
		created_at    = EXCLUDED.created_at,
		updated_at    = EXCLUDED.updated_at
	WHERE idempotency_keys.ttl_at <= EXCLUDED.created_at
	RETURNING created_at`

const selectIdempotencyKey = `
	SELECT key, request_hash, response_body, http_status, status, ttl_at, created_at, updated_at
	FROM idempotency_keys
	WHERE key = $1`

const settleIdempotencyKey = `
	UPDATE idempotency_keys
	SET response_body = $2, http_status = $3, status = $4, updated_at = NOW()
	WHERE key = $1`

const releaseIdempotencyKey = `
	DELETE FROM idempotency_keys
	WHERE key = $1 AND status = 'processing'`

const purgeExpiredKeys = `
	DELETE FROM idempotency_keys
	WHERE ttl_at <= $1`

const purgeExpiredKeysBatch = `
	DELETE FROM idempotency_keys
	WHERE key IN (
		SELECT key FROM idempotency_keys
		WHERE ttl_at <= $1
		ORDER BY ttl_at
		LIMIT $2
	)`

// IdempotencyRepository хранит ключи в idempotency_keys, вне транзакций оформления.
type IdempotencyRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewIdempotencyRepository(store *Store) *IdempotencyRepository {
	return &IdempotencyRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
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
	claimed := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	err := r.db.QueryRowContext(ctx, claimIdempotencyKey,
		key, requestHash, string(claimed.Status), ttlAt, now).Scan(&claimed.CreatedAt)
	switch {
	case err == nil:
		claimed.UpdatedAt = claimed.CreatedAt
		return claimed, nil
	case !errors.Is(err, sql.ErrNoRows):
		return domain.IdempotencyRecord{}, fmt.Errorf("claim idempotency key %s: %w", key, err)
	}

	// Ключ занят живой записью.
	existing, err := r.Get(key)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("%w: %v", domain.ErrIdempotencyKeyAlreadyExists, err)
	}
	if existing.RequestHash != requestHash {
		return existing, domain.ErrIdempotencyHashMismatch
	}
	return existing, domain.ErrIdempotencyKeyAlreadyExists
}

func (r *IdempotencyRepository) Get(key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	record, err := scanIdempotencyRecord(r.db.QueryRowContext(ctx, selectIdempotencyKey, key))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("load idempotency key %s: %w", key, err)
	}
	return record, nil
}

func scanIdempotencyRecord(row *sql.Row) (domain.IdempotencyRecord, error) {
	var (
		rec        domain.IdempotencyRecord
		status     string
		httpStatus sql.NullInt64
	)
	if err := row.Scan(&rec.Key, &rec.RequestHash, &rec.ResponseBody, &httpStatus, &status,
		&rec.TTLAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return domain.IdempotencyRecord{}, err
	}
	rec.Status = domain.IdempotencyStatus(status)
	if !rec.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("unknown status %q", status)
	}
	rec.HTTPStatus = int(httpStatus.Int64)
	return rec, nil
}

func (r *IdempotencyRepository) MarkDone(key string, responseBody []byte, httpStatus int) error {
	return r.settle(key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *IdempotencyRepository) MarkFailed(key string, responseBody []byte, httpStatus int) error {
	return r.settle(key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

func (r *IdempotencyRepository) settle(key string, status domain.IdempotencyStatus, body []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, settleIdempotencyKey, key, body, httpStatus, string(status))
	if err != nil {
		return fmt.Errorf("mark idempotency key %s %s: %w", key, status, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

func (r *IdempotencyRepository) Release(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, releaseIdempotencyKey, key)
	if err != nil {
		return fmt.Errorf("release idempotency key %s: %w", key, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

// DeleteExpired удаляет просроченные ключи, самые старые первыми; limit <= 0 снимает ограничение.
func (r *IdempotencyRepository) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		res sql.Result
		err error
	)
	if limit > 0 {
		res, err = r.db.ExecContext(ctx, purgeExpiredKeysBatch, before, limit)
	} else {
		res, err = r.db.ExecContext(ctx, purgeExpiredKeys, before)
	}
	if err != nil {
		return 0, fmt.Errorf("purge expired idempotency keys: %w", err)
	}
	n, err := rowsAffected(res)
	return int(n), err
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
