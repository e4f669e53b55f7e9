package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
	"github.com/vladislavdragonenkov/stayawake/internal/metrics"
	"github.com/vladislavdragonenkov/stayawake/internal/storage/memory"
)

func placedEvent(orderID string) domain.OutboxMessage {
	return domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   orderID,
		EventType:     domain.EventOrderPlaced,
		Payload:       []byte(`{"order_id":"` + orderID + `","total_price":"300000"}`),
	}
}

// enqueue сохраняет события так же, как checkout: в одной транзакции.
func enqueue(t *testing.T, store *memory.Store, msgs ...domain.OutboxMessage) {
	t.Helper()
	err := store.Do(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		for _, msg := range msgs {
			if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func pendingCount(t *testing.T, store *memory.Store) int {
	t.Helper()
	stats, err := store.Outbox().Stats(context.Background())
	require.NoError(t, err)
	return stats.PendingCount
}

func TestRelay_DrainPublishesCommittedEventsOnce(t *testing.T) {
	store := memory.NewStore()
	enqueue(t, store, placedEvent("o-1"), placedEvent("o-2"))

	rollback := errors.New("stock conflict")
	err := store.Do(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Outbox().Enqueue(ctx, placedEvent("o-3")); err != nil {
			return err
		}
		return rollback
	})
	require.ErrorIs(t, err, rollback)

	broker := &recordingPublisher{}
	reg := prometheus.NewRegistry()
	relay := NewRelay(store.Outbox(), broker, Config{Metrics: metrics.NewOutboxMetricsWithRegisterer(reg)})

	require.Equal(t, 2, relay.Drain(context.Background()))
	require.ElementsMatch(t, []string{"o-1", "o-2"}, broker.orderIDs())
	require.Zero(t, pendingCount(t, store))

	require.Zero(t, relay.Drain(context.Background()), "sent events are not published again")
	require.Len(t, broker.orderIDs(), 2)

	sent, err := testutil.GatherAndCount(reg, "storefront_outbox_publish_attempts_total")
	require.NoError(t, err)
	require.Equal(t, 1, sent)
}

func TestRelay_RetriesUntilBrokerRecovers(t *testing.T) {
	store := memory.NewStore()
	enqueue(t, store, placedEvent("o-1"))

	broker := &recordingPublisher{failures: []error{errors.New("leader not available"), errors.New("leader not available")}}
	relay := NewRelay(store.Outbox(), broker, Config{MaxAttempts: 3, RetryDelay: time.Millisecond})

	require.Equal(t, 1, relay.Drain(context.Background()))
	require.Equal(t, 3, broker.attempts())
	require.Zero(t, pendingCount(t, store))
}

func TestRelay_DeadLettersAfterMaxAttempts(t *testing.T) {
	store := memory.NewStore()
	enqueue(t, store, placedEvent("o-9"))

	failedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	broker := &recordingPublisher{err: errors.New("broker unavailable")}
	dlq := &recordingPublisher{}
	relay := NewRelay(store.Outbox(), broker, Config{
		MaxAttempts: 2,
		DeadLetters: dlq,
		Clock:       func() time.Time { return failedAt },
	})

	require.Zero(t, relay.Drain(context.Background()))
	require.Equal(t, 2, broker.attempts())
	require.Zero(t, pendingCount(t, store), "failed message leaves the pending queue")

	require.Equal(t, 1, dlq.attempts())
	letter := dlq.last()
	require.Equal(t, "o-9", letter.AggregateID)

	var record domain.DeadLetter
	require.NoError(t, json.Unmarshal(letter.Payload, &record))
	require.Equal(t, "o-9", record.AggregateID)
	require.Equal(t, domain.EventOrderPlaced, record.EventType)
	require.JSONEq(t, `{"order_id":"o-9","total_price":"300000"}`, string(record.Event))
	require.Contains(t, record.Error, "broker unavailable")
	require.True(t, failedAt.Equal(record.FailedAt))
}

func TestRelay_DeadLetterQuotesInvalidPayload(t *testing.T) {
	dlq := &recordingPublisher{}
	relay := NewRelay(nil, nil, Config{DeadLetters: dlq})

	msg := placedEvent("o-1")
	msg.Payload = []byte("not json")
	require.NoError(t, relay.deadLetter(msg, errors.New("boom")))

	var record domain.DeadLetter
	require.NoError(t, json.Unmarshal(dlq.last().Payload, &record))
	require.Equal(t, `"not json"`, string(record.Event))
}

func TestRelay_PullErrorSkipsCycle(t *testing.T) {
	broker := &recordingPublisher{}
	relay := NewRelay(failingOutbox{}, broker, Config{})

	require.Zero(t, relay.Drain(context.Background()))
	require.Zero(t, broker.attempts())
}

func TestRelay_Backoff(t *testing.T) {
	relay := NewRelay(nil, nil, Config{RetryDelay: 10 * time.Millisecond})
	require.Equal(t, 10*time.Millisecond, relay.backoff(1))
	require.Equal(t, 20*time.Millisecond, relay.backoff(2))
	require.Equal(t, 40*time.Millisecond, relay.backoff(3))
	require.Equal(t, maxRetryDelay, relay.backoff(40))

	require.Zero(t, NewRelay(nil, nil, Config{}).backoff(3))
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	store := memory.NewStore()
	broker := &recordingPublisher{}
	relay := NewRelay(store.Outbox(), broker, Config{PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		relay.Run(ctx)
	}()

	enqueue(t, store, placedEvent("o-late"))
	require.Eventually(t, func() bool { return broker.attempts() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after cancellation")
	}
}

type recordingPublisher struct {
	mu        sync.Mutex
	err       error
	failures  []error
	published []domain.OutboxMessage
}

func (p *recordingPublisher) Publish(msg domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, msg)
	if len(p.failures) > 0 {
		err := p.failures[0]
		p.failures = p.failures[1:]
		return err
	}
	return p.err
}

func (p *recordingPublisher) attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func (p *recordingPublisher) last() domain.OutboxMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published[len(p.published)-1]
}

func (p *recordingPublisher) orderIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.published))
	for _, msg := range p.published {
		ids = append(ids, msg.AggregateID)
	}
	return ids
}

type failingOutbox struct {
	domain.OutboxRepository
}

func (failingOutbox) PullPending(context.Context, int) ([]domain.OutboxMessage, error) {
	return nil, errors.New("db down")
}
