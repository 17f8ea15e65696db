package reminder

import (
	"context"
	"sync"
	"time"

	"listaPlus/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotifyFunc вызывается в момент срабатывания напоминания
type NotifyFunc func(title string)

// LocalScheduler - планировщик внутри процесса на time.AfterFunc.
// Ручка живёт от Schedule до срабатывания или Cancel.
type LocalScheduler struct {
	mtx    sync.Mutex
	timers map[string]*time.Timer
	notify NotifyFunc
}

func NewLocalScheduler(notify NotifyFunc) *LocalScheduler {
	if notify == nil {
		notify = func(title string) {
			logger.Info("Reminder: Напоминание сработало", zap.String("title", title))
		}
	}
	return &LocalScheduler{
		timers: make(map[string]*time.Timer),
		notify: notify,
	}
}

func (s *LocalScheduler) Schedule(ctx context.Context, title string, at time.Time) (string, error) {
	handle := uuid.New().String()

	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.timers[handle] = time.AfterFunc(time.Until(at), func() {
		s.mtx.Lock()
		delete(s.timers, handle)
		s.mtx.Unlock()
		s.notify(title)
	})

	return handle, nil
}

// Cancel идемпотентен: неизвестная ручка означает, что напоминание
// уже сработало или уже было снято
func (s *LocalScheduler) Cancel(ctx context.Context, handle string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	timer, ok := s.timers[handle]
	if !ok {
		return nil
	}
	timer.Stop()
	delete(s.timers, handle)
	return nil
}

// Pending возвращает число активных таймеров (используется в тестах)
func (s *LocalScheduler) Pending() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.timers)
}
