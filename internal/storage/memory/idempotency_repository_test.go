package memory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
	"github.com/vladislavdragonenkov/stayawake/internal/storage/memory"
)

func TestIdempotencyRepository_Claim(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(2 * time.Hour)

	created, err := repo.CreateProcessing(" checkout-1 ", "hash-a", ttl)
	require.NoError(t, err)
	assert.Equal(t, "checkout-1", created.Key)
	assert.Equal(t, domain.IdempotencyStatusProcessing, created.Status)
	assert.True(t, created.TTLAt.Equal(ttl))

	tests := []struct {
		name    string
		key     string
		hash    string
		wantErr error
	}{
		{name: "same request", key: "checkout-1", hash: "hash-a", wantErr: domain.ErrIdempotencyKeyAlreadyExists},
		{name: "other body", key: "checkout-1", hash: "hash-b", wantErr: domain.ErrIdempotencyHashMismatch},
		{name: "no key", key: " ", hash: "hash", wantErr: domain.ErrIdempotencyKeyRequired},
		{name: "no hash", key: "k", hash: " ", wantErr: domain.ErrIdempotencyRequestHashRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.CreateProcessing(tt.key, tt.hash, ttl)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Equal(t, 1, repo.Len())
}

func TestIdempotencyRepository_DefaultTTL(t *testing.T) {
	repo := memory.NewIdempotencyRepository()

	rec, err := repo.CreateProcessing("k", "h", time.Time{})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), rec.TTLAt, time.Minute)
}

func TestIdempotencyRepository_ExpiredKeyIsFree(t *testing.T) {
	repo := memory.NewIdempotencyRepository()

	_, err := repo.CreateProcessing("checkout-2", "hash-old", time.Now().UTC().Add(-time.Second))
	require.NoError(t, err)
	require.NoError(t, repo.MarkDone("checkout-2", []byte(`{"orderId":"o-0"}`), 201))

	rec, err := repo.CreateProcessing("checkout-2", "hash-new", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "hash-new", rec.RequestHash)
	assert.Empty(t, rec.ResponseBody)
	assert.Equal(t, domain.IdempotencyStatusProcessing, rec.Status)
}

func TestIdempotencyRepository_SettleStoresCopy(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	_, err := repo.CreateProcessing("k", "h", time.Now().Add(time.Hour))
	require.NoError(t, err)

	body := []byte(`{"orderId":"o-1"}`)
	require.NoError(t, repo.MarkDone("k", body, 201))
	body[2] = 'X'

	got, err := repo.Get("k")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusDone, got.Status)
	assert.Equal(t, 201, got.HTTPStatus)
	assert.JSONEq(t, `{"orderId":"o-1"}`, string(got.ResponseBody))
	assert.True(t, got.Replayable())

	require.NoError(t, repo.MarkFailed("k", []byte(`{"error":"stock_conflict"}`), 409))
	got, err = repo.Get("k")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusFailed, got.Status)

	assert.ErrorIs(t, repo.MarkFailed("missing", nil, 500), domain.ErrIdempotencyKeyNotFound)
	_, err = repo.Get("missing")
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
}

func TestIdempotencyRepository_ReleaseOnlyProcessing(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().Add(time.Hour)

	_, err := repo.CreateProcessing("retry-me", "h", ttl)
	require.NoError(t, err)
	require.NoError(t, repo.Release("retry-me"))
	assert.Zero(t, repo.Len())

	_, err = repo.CreateProcessing("retry-me", "h", ttl)
	require.NoError(t, err, "released key can be claimed again")

	require.NoError(t, repo.MarkDone("retry-me", []byte(`{"orderId":"o-1"}`), 201))
	assert.ErrorIs(t, repo.Release("retry-me"), domain.ErrIdempotencyKeyNotFound)
	assert.Equal(t, 1, repo.Len(), "stored outcome survives")

	assert.ErrorIs(t, repo.Release("missing"), domain.ErrIdempotencyKeyNotFound)
	assert.ErrorIs(t, repo.Release(" "), domain.ErrIdempotencyKeyRequired)
}

func TestIdempotencyRepository_DeleteExpiredOldestFirst(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()

	for i, key := range []string{"old-1", "old-2", "old-3"} {
		_, err := repo.CreateProcessing(key, "hash", now.Add(-time.Duration(3-i)*time.Minute))
		require.NoError(t, err)
	}
	_, err := repo.CreateProcessing("active", "hash", now.Add(time.Hour))
	require.NoError(t, err)

	removed, err := repo.DeleteExpired(now, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = repo.Get("old-1")
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	_, err = repo.Get("old-3")
	assert.NoError(t, err, "newest expired key survives a limited batch")

	removed, err = repo.DeleteExpired(now, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, repo.Len())
}
