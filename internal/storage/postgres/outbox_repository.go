package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

const (
	outboxPending = "pending"
	outboxSent    = "sent"
	outboxFailed  = "failed"

	defaultOutboxPull = 100
)

const insertOutboxMessage = `
	INSERT INTO outbox_messages (id, aggregate_type, aggregate_id, event_type, payload, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
	RETURNING created_at`

// Литерал 'pending' совпадает с предикатом частичного индекса idx_outbox_messages_pending.
const selectPendingOutbox = `
	SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
	FROM outbox_messages
	WHERE status = 'pending'
	ORDER BY created_at, id
	LIMIT $1`

const outboxBacklog = `
	SELECT COUNT(*), MIN(created_at)
	FROM outbox_messages
	WHERE status = 'pending'`

const settleOutboxMessage = `
	UPDATE outbox_messages
	SET status = $2, attempt_count = attempt_count + 1, updated_at = NOW()
	WHERE id = $1`

// outboxRepository — события заказов в outbox_messages. Через querier транзакции
// Enqueue фиксируется вместе с заказом или платежом.
type outboxRepository struct {
	q querier
}

func (r *outboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.q.QueryRowContext(ctx, insertOutboxMessage,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, outboxPending, nullTime(msg.CreatedAt))
	if err := row.Scan(&msg.CreatedAt); err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue %s for %s: %w", msg.EventType, msg.AggregateID, err)
	}
	return msg, nil
}

func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultOutboxPull
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, selectPendingOutbox, limit)
	if err != nil {
		return nil, fmt.Errorf("pull pending outbox: %w", err)
	}
	defer rows.Close()

	var batch []domain.OutboxMessage
	for rows.Next() {
		var m domain.OutboxMessage
		if err := rows.Scan(&m.ID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Payload, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		batch = append(batch, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read pending outbox: %w", err)
	}
	return batch, nil
}

func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	if err := r.q.QueryRowContext(ctx, outboxBacklog).Scan(&stats.PendingCount, &oldest); err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox backlog: %w", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.settle(ctx, id, outboxSent)
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.settle(ctx, id, outboxFailed)
}

// settle переводит сообщение в конечный статус; неизвестный id — ErrOutboxPublish.
func (r *outboxRepository) settle(ctx context.Context, id, status string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, settleOutboxMessage, id, status)
	if err != nil {
		return fmt.Errorf("mark outbox %s %s: %w", id, status, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("outbox message %s: %w", id, domain.ErrOutboxPublish)
	}
	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
