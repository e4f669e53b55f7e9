package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	seq        int64
	status     string
	attemptCnt int
	updatedAt  time.Time
}

type outboxRepository struct {
	view
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его с идентификатором.
func (r *outboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	err := r.s.exec(ctx, r.j, func(st *state, j *journal) error {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		now := r.s.now()
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}

		prevSeq := st.outboxSeq
		j.record(func() { st.outboxSeq = prevSeq })
		st.outboxSeq++

		remember(j, st.outbox, msg.ID)
		st.outbox[msg.ID] = outboxRecord{
			msg:       cloneOutboxMessage(msg),
			seq:       st.outboxSeq,
			status:    outboxStatusPending,
			updatedAt: now,
		}
		return nil
	})
	if err != nil {
		return domain.OutboxMessage{}, err
	}
	return msg, nil
}

// PullPending возвращает до limit самых старых сообщений со статусом `pending`.
func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var pending []outboxRecord
	err := r.s.exec(ctx, r.j, func(st *state, _ *journal) error {
		for _, rec := range st.outbox {
			if rec.status == outboxStatusPending {
				pending = append(pending, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	if len(pending) > limit {
		pending = pending[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, cloneOutboxMessage(rec.msg))
	}
	return result, nil
}

func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	err := r.s.exec(ctx, r.j, func(st *state, _ *journal) error {
		for _, rec := range st.outbox {
			if rec.status != outboxStatusPending {
				continue
			}
			stats.PendingCount++
			if stats.OldestPendingAt.IsZero() || rec.msg.CreatedAt.Before(stats.OldestPendingAt) {
				stats.OldestPendingAt = rec.msg.CreatedAt
			}
		}
		return nil
	})
	return stats, err
}

// MarkSent обновляет статус события после успешной публикации.
func (r *outboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.mark(ctx, id, outboxStatusSent)
}

// MarkFailed фиксирует окончательную ошибку публикации.
func (r *outboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.mark(ctx, id, outboxStatusFailed)
}

func (r *outboxRepository) mark(ctx context.Context, id, status string) error {
	return r.s.exec(ctx, r.j, func(st *state, j *journal) error {
		rec, ok := st.outbox[id]
		if !ok {
			return domain.ErrOutboxPublish
		}
		remember(j, st.outbox, id)
		rec.status = status
		rec.attemptCnt++
		rec.updatedAt = r.s.now()
		st.outbox[id] = rec
		return nil
	})
}

func cloneOutboxMessage(msg domain.OutboxMessage) domain.OutboxMessage {
	msg.Payload = append([]byte(nil), msg.Payload...)
	return msg
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
