package reminder

import (
	"context"
	"errors"
	"time"

	"listaPlus/internal/logger"

	"go.uber.org/zap"
)

var ErrInvalidSchedule = errors.New("срок напоминания не задан")

const defaultMinDelay = time.Second

// Scheduler - планировщик локальных уведомлений: поставить на время,
// снять по ручке. Ручка непрозрачна для вызывающего.
type Scheduler interface {
	Schedule(ctx context.Context, title string, at time.Time) (string, error)
	Cancel(ctx context.Context, handle string) error
}

// Coordinator превращает срок задачи в запланированное напоминание.
// Политика для уже прошедшего срока: не отказывать, а прижать ко
// "почти сразу" - минимальная положительная задержка, как у исходных
// односекундных уведомлений. Повторное снятие одной и той же ручки
// безвредно, за одной задачей следит не больше одного напоминания -
// это дисциплина вызывающего (store снимает старую ручку перед новой).
type Coordinator struct {
	sched    Scheduler
	minDelay time.Duration
}

func NewCoordinator(sched Scheduler, minDelay time.Duration) *Coordinator {
	if minDelay <= 0 {
		minDelay = defaultMinDelay
	}
	return &Coordinator{
		sched:    sched,
		minDelay: minDelay,
	}
}

func (c *Coordinator) Schedule(ctx context.Context, title string, when time.Time) (string, error) {
	if when.IsZero() {
		return "", ErrInvalidSchedule
	}

	now := time.Now()
	if !when.After(now) {
		logger.Warn("Reminder: Срок уже прошёл, напоминание прижато к минимальной задержке",
			zap.Time("when", when),
			zap.Duration("min_delay", c.minDelay))
		when = now.Add(c.minDelay)
	}

	handle, err := c.sched.Schedule(ctx, title, when)
	if err != nil {
		return "", err
	}

	logger.Info("Reminder: Напоминание запланировано",
		zap.String("handle", handle),
		zap.Time("when", when))
	return handle, nil
}

// Cancel снимает напоминание по ручке. Уже сработавшая или уже снятая
// ручка - не ошибка: у её отсутствия нет последствий для данных.
func (c *Coordinator) Cancel(ctx context.Context, handle string) {
	if handle == "" {
		return
	}
	if err := c.sched.Cancel(ctx, handle); err != nil {
		logger.Warn("Reminder: Не удалось снять напоминание",
			zap.String("handle", handle),
			zap.Error(err))
	}
}
