package worker

import (
	"context"
	"time"

	"listaPlus/internal/logger"

	"go.uber.org/zap"
)

type Sweepable interface {
	SweepExpiredReminders(ctx context.Context, limit int) (int, error)
}

// ReminderSweeper - фоновая зачистка ручек напоминаний, чей срок уже
// прошёл: таймер давно сработал, а запись в коллекции всё ещё держит
// ручку. Держит инвариант "ручка есть только у непрошедшего срока".
type ReminderSweeper struct {
	store     Sweepable
	interval  time.Duration
	batchSize int
}

func NewReminderSweeper(store Sweepable, interval time.Duration, batchSize int) *ReminderSweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ReminderSweeper{
		store:     store,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (w *ReminderSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logger.Info("Worker: Фоновая зачистка просроченных напоминаний", zap.Time("started_at", time.Now()))
			w.Check(ctx)
		case <-ctx.Done():
			logger.Info("Worker: Фоновая зачистка останавливается")
			return
		}
	}
}

func (w *ReminderSweeper) Check(ctx context.Context) {
	start := time.Now()

	cleared, err := w.store.SweepExpiredReminders(ctx, w.batchSize)
	if err != nil {
		logger.Warn("Worker: Ошибка зачистки напоминаний", zap.Error(err))
		return
	}

	logger.Info("Worker: Завершение зачистки",
		zap.Duration("ms", time.Since(start)),
		zap.Int("cleared", cleared),
	)
}
