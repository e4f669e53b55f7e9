package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
	"github.com/vladislavdragonenkov/stayawake/internal/metrics"
)

const (
	defaultSweepInterval  = 10 * time.Minute
	defaultSweepBatchSize = 500
	// maxBatchesPerSweep ограничивает одну уборку; остаток уйдёт на следующий тик.
	maxBatchesPerSweep = 100
)

// JanitorConfig — параметры уборки просроченных ключей оформления заказа.
type JanitorConfig struct {
	Interval  time.Duration
	BatchSize int
	Logger    *log.Entry
	Metrics   *metrics.CleanupMetrics
}

// Janitor освобождает Idempotency-Key, срок хранения которых истёк.
type Janitor struct {
	repo domain.IdempotencyRepository
	cfg  JanitorConfig
	now  func() time.Time
}

func NewJanitor(repo domain.IdempotencyRepository, cfg JanitorConfig) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultSweepInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultSweepBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = log.WithField("component", "idempotency-janitor")
	}
	return &Janitor{
		repo: repo,
		cfg:  cfg,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Run убирает ключи сразу и затем раз в Interval, пока ctx не отменён.
func (j *Janitor) Run(ctx context.Context) {
	if j.repo == nil {
		j.cfg.Logger.Warn("idempotency janitor is disabled: no repository")
		return
	}

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		j.sweepAndReport(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (j *Janitor) sweepAndReport(ctx context.Context) {
	removed, err := j.Sweep(ctx, j.now())
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		j.cfg.Metrics.RecordRun("error", removed)
		j.cfg.Logger.WithError(err).WithField("removed", removed).Warn("idempotency sweep failed")
	default:
		j.cfg.Metrics.RecordRun("ok", removed)
		if removed > 0 {
			j.cfg.Logger.WithField("removed", removed).Info("expired checkout keys released")
		}
	}
}

// Sweep удаляет записи с ttl <= now порциями BatchSize и возвращает их число.
func (j *Janitor) Sweep(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	for batch := 0; batch < maxBatchesPerSweep; batch++ {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		n, err := j.repo.DeleteExpired(now, j.cfg.BatchSize)
		if err != nil {
			return removed, err
		}
		removed += n
		j.cfg.Metrics.RecordDeleted(n)
		if n < j.cfg.BatchSize {
			return removed, nil
		}
	}
	j.cfg.Logger.WithField("removed", removed).Debug("sweep batch limit reached, continuing next tick")
	return removed, nil
}
