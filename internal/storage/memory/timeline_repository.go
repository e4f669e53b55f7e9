package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
)

// timelineRepository хранит события заказов в памяти.
type timelineRepository struct {
	view
}

// Append добавляет событие в хранилище.
func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	if event.Occurred.IsZero() {
		event.Occurred = r.s.now()
	}
	return r.s.exec(ctx, r.j, func(st *state, j *journal) error {
		remember(j, st.timeline, event.OrderID)
		events := append(append([]domain.TimelineEvent(nil), st.timeline[event.OrderID]...), event)
		sort.SliceStable(events, func(a, b int) bool {
			return events[a].Occurred.Before(events[b].Occurred)
		})
		st.timeline[event.OrderID] = events
		return nil
	})
}

// List возвращает события заказа в хронологическом порядке.
func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	var result []domain.TimelineEvent
	err := r.s.exec(ctx, r.j, func(st *state, _ *journal) error {
		result = append([]domain.TimelineEvent{}, st.timeline[orderID]...)
		return nil
	})
	return result, err
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
