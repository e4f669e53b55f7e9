package postgres

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

// timelineRepository — история заказа в timeline_events, только дописывание.
type timelineRepository struct {
	q querier
}

const insertTimelineEvent = `
	INSERT INTO timeline_events (order_id, type, reason, occurred)
	VALUES ($1, $2, $3, COALESCE($4, NOW()))`

const selectOrderTimeline = `
	SELECT order_id, type, reason, occurred
	FROM timeline_events
	WHERE order_id = $1
	ORDER BY occurred, id`

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	if event.OrderID == "" {
		return fmt.Errorf("append %s: %w", event.Type, domain.ErrOrderNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, insertTimelineEvent,
		event.OrderID, string(event.Type), event.Reason, nullTime(event.Occurred))
	if err != nil {
		return fmt.Errorf("append %s for order %s: %w", event.Type, event.OrderID, err)
	}
	return nil
}

func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, selectOrderTimeline, orderID)
	if err != nil {
		return nil, fmt.Errorf("load timeline of order %s: %w", orderID, err)
	}
	defer rows.Close()

	var history []domain.TimelineEvent
	for rows.Next() {
		var (
			e    domain.TimelineEvent
			kind string
		)
		if err := rows.Scan(&e.OrderID, &kind, &e.Reason, &e.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline of order %s: %w", orderID, err)
		}
		e.Type = domain.TimelineKind(kind)
		history = append(history, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read timeline of order %s: %w", orderID, err)
	}
	if history == nil {
		history = []domain.TimelineEvent{}
	}
	return history, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
