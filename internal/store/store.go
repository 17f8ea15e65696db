package store

import (
	"context"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"listaPlus/internal/codec"
	"listaPlus/internal/logger"
	"listaPlus/internal/models/task"
	"listaPlus/internal/reminder"
	"listaPlus/internal/remote"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store - канонический список задач активного пользователя на клиентской
// стороне. Снапшоты подписки целиком вытесняют локальный список,
// мутации уходят в удалённую коллекцию и подтверждаются следующим
// снапшотом (eventual consistency, а не чтение своей записи).
//
// Дисциплина конкурентности: мутации по одному id строго друг за другом,
// по разным id - независимо. Снапшоты применяет единственная горутина
// подписки в порядке доставки.
type Store struct {
	remote    remote.Adapter
	reminders *reminder.Coordinator

	mtx        sync.RWMutex
	tasks      []*task.Task
	byID       map[uuid.UUID]*task.Task
	activeUser string

	// смены пользователя строго друг за другом: гонка двух SetUser не
	// должна оставить вторую живую подписку
	userMtx   sync.Mutex
	subCancel context.CancelFunc
	subDone   chan struct{}

	locksMtx sync.Mutex
	locks    map[uuid.UUID]*sync.Mutex
}

func New(adapter remote.Adapter, reminders *reminder.Coordinator) *Store {
	return &Store{
		remote:    adapter,
		reminders: reminders,
		byID:      make(map[uuid.UUID]*task.Task),
		locks:     make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.remote.HealthCheck(ctx)
}

func (s *Store) ActiveUser() string {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.activeUser
}

// SetUser переключает store на другого пользователя. Старая подписка
// полностью закрывается до открытия новой: устаревший снапшот прежнего
// пользователя не должен затереть список нового. Пустой userID - выход
// из учётной записи, список остаётся пустым.
func (s *Store) SetUser(ctx context.Context, userID string) error {
	s.userMtx.Lock()
	defer s.userMtx.Unlock()

	s.mtx.Lock()
	if s.activeUser == userID {
		s.mtx.Unlock()
		return nil
	}

	cancel := s.subCancel
	done := s.subDone
	s.subCancel = nil
	s.subDone = nil
	s.activeUser = userID
	s.tasks = nil
	s.byID = make(map[uuid.UUID]*task.Task)
	s.mtx.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	if userID == "" {
		logger.Info("Store: Пользователь вышел, список очищен")
		return nil
	}

	subCtx, subCancel := context.WithCancel(context.Background())
	ch, err := s.remote.Subscribe(subCtx, userID)
	if err != nil {
		subCancel()
		return NewRemoteFailed("subscribe", err)
	}

	done = make(chan struct{})
	s.mtx.Lock()
	s.subCancel = subCancel
	s.subDone = done
	s.mtx.Unlock()

	go func() {
		defer close(done)
		for snap := range ch {
			s.applySnapshot(userID, snap)
		}
	}()

	logger.Info("Store: Открыта подписка", zap.String("user_id", userID))
	return nil
}

// applySnapshot целиком замещает список декодированной пачкой.
// Повреждённые записи выбрасываются с предупреждением, остальная пачка
// обрабатывается дальше: одна битая запись не должна обнулить весь список.
func (s *Store) applySnapshot(owner string, snap remote.Snapshot) {
	decoded := make([]*task.Task, 0, len(snap))
	for _, doc := range snap {
		t, err := codec.Decode(doc.ID, doc.Record)
		if err != nil {
			logger.Warn("Store: Запись выброшена из снапшота",
				zap.String("id", doc.ID.String()),
				zap.Error(err))
			continue
		}
		decoded = append(decoded, t)
	}

	// новые первыми, одинаковое время создания упорядочиваем по id
	sort.Slice(decoded, func(i, j int) bool {
		if !decoded[i].CreatedAt.Equal(decoded[j].CreatedAt) {
			return decoded[i].CreatedAt.After(decoded[j].CreatedAt)
		}
		return decoded[i].ID.String() < decoded[j].ID.String()
	})

	s.mtx.Lock()
	defer s.mtx.Unlock()

	// подписка могла пережить переключение пользователя
	if s.activeUser != owner {
		logger.Warn("Store: Снапшот прежнего пользователя отброшен", zap.String("user_id", owner))
		return
	}

	s.tasks = decoded
	s.byID = make(map[uuid.UUID]*task.Task, len(decoded))
	for _, t := range decoded {
		s.byID[t.ID] = t
	}

	s.pruneLocks()
}

// pruneLocks выбрасывает мьютексы задач, которых больше нет в списке,
// иначе карта растёт по одному мьютексу на каждый когда-либо виденный id.
// Занятый мьютекс не трогаем: его держатель ещё в полёте.
func (s *Store) pruneLocks() {
	s.locksMtx.Lock()
	defer s.locksMtx.Unlock()

	for id, lock := range s.locks {
		if _, ok := s.byID[id]; ok {
			continue
		}
		if lock.TryLock() {
			delete(s.locks, id)
			lock.Unlock()
		}
	}
}

// Visible - ленивая перезапускаемая последовательность неудалённых задач
// в порядке списка, при необходимости суженная до одной категории
func (s *Store) Visible(category *task.Category) iter.Seq[*task.Task] {
	return func(yield func(*task.Task) bool) {
		s.mtx.RLock()
		snapshot := make([]*task.Task, len(s.tasks))
		copy(snapshot, s.tasks)
		s.mtx.RUnlock()

		for _, t := range snapshot {
			if t.Deleted {
				continue
			}
			if category != nil && t.Category != *category {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}
}

// Add создаёт задачу в удалённой коллекции. При заданном сроке сразу
// планируется напоминание и его ручка дописывается в созданную запись.
// Отказ планирования не откатывает создание: задача живёт без напоминания.
func (s *Store) Add(ctx context.Context, title, description string, category task.Category, dueDate *time.Time) (uuid.UUID, error) {
	userID := s.ActiveUser()
	if userID == "" {
		return uuid.Nil, NewNoActiveUser()
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return uuid.Nil, NewInvalidTask("title", "название не может быть пустым")
	}
	if !category.Valid() {
		return uuid.Nil, NewInvalidTask("category", "неизвестная категория")
	}

	now := time.Now()
	newTask := &task.Task{
		Title:       title,
		Description: strings.TrimSpace(description),
		Category:    category,
		Completed:   false,
		Deleted:     false,
		CreatedAt:   now,
	}
	if dueDate != nil {
		due := *dueDate
		newTask.DueDate = &due
	}

	id, err := s.remote.Create(ctx, userID, codec.EncodeTask(newTask))
	if err != nil {
		return uuid.Nil, NewRemoteFailed("create", err)
	}

	logger.Info("Store: Задача создана",
		zap.String("task_id", id.String()),
		zap.String("category", string(category)))

	if newTask.DueDate != nil {
		handle, err := s.reminders.Schedule(ctx, title, *newTask.DueDate)
		if err != nil {
			logger.Warn("Store: Напоминание не запланировано, задача создана без него",
				zap.String("task_id", id.String()),
				zap.Error(err))
			return id, nil
		}

		fields := codec.EncodePatch(task.BuildPatch(task.WithReminder(handle)), time.Now())
		if err := s.remote.Patch(ctx, userID, id, fields); err != nil {
			logger.Warn("Store: Не удалось записать ручку напоминания",
				zap.String("task_id", id.String()),
				zap.Error(err))
			s.reminders.Cancel(ctx, handle)
		}
	}

	return id, nil
}

// Patch применяет частичное изменение. Если меняется срок, сперва
// снимается старое напоминание; при новом сроке планируется новое и его
// ручка уезжает в тот же патч. updated_at обновляется всегда.
func (s *Store) Patch(ctx context.Context, id uuid.UUID, options ...task.PatchOption) error {
	userID := s.ActiveUser()
	if userID == "" {
		return NewNoActiveUser()
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.lookup(id)
	if err != nil {
		return err
	}

	p := task.BuildPatch(options...)

	if p.DueDateSet {
		if current.ReminderID != nil {
			s.reminders.Cancel(ctx, *current.ReminderID)
		}
		p.ReminderID = nil
		p.ReminderIDSet = true

		if p.DueDate != nil {
			title := current.Title
			if p.Title != nil {
				title = *p.Title
			}
			handle, err := s.reminders.Schedule(ctx, title, *p.DueDate)
			if err != nil {
				logger.Warn("Store: Напоминание не запланировано",
					zap.String("task_id", id.String()),
					zap.Error(err))
			} else {
				p.ReminderID = &handle
			}
		}
	}

	fields := codec.EncodePatch(p, time.Now())
	if err := s.remote.Patch(ctx, userID, id, fields); err != nil {
		return NewRemoteFailed("patch", err)
	}

	return nil
}

// SoftDelete помечает задачу надгробием. Напоминание снимается,
// единственный удалённый вызов - soft delete, запись остаётся в коллекции.
func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID) error {
	userID := s.ActiveUser()
	if userID == "" {
		return NewNoActiveUser()
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.lookup(id)
	if err != nil {
		return err
	}

	if current.ReminderID != nil {
		s.reminders.Cancel(ctx, *current.ReminderID)
	}

	if err := s.remote.SoftDelete(ctx, userID, id); err != nil {
		return NewRemoteFailed("soft_delete", err)
	}

	logger.Info("Store: Задача помечена удалённой", zap.String("task_id", id.String()))
	return nil
}

// HardDelete окончательно убирает запись из удалённой коллекции
func (s *Store) HardDelete(ctx context.Context, id uuid.UUID) error {
	userID := s.ActiveUser()
	if userID == "" {
		return NewNoActiveUser()
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.lookup(id)
	if err != nil {
		return err
	}

	if current.ReminderID != nil {
		s.reminders.Cancel(ctx, *current.ReminderID)
	}

	if err := s.remote.HardDelete(ctx, userID, id); err != nil {
		return NewRemoteFailed("hard_delete", err)
	}

	logger.Info("Store: Задача удалена окончательно", zap.String("task_id", id.String()))
	return nil
}

// ToggleCompleted переключает выполненность. Завершение снимает
// напоминание (готовой задаче оно ни к чему), возврат в невыполненные
// напоминание заново не планирует - поведение намеренно несимметрично.
func (s *Store) ToggleCompleted(ctx context.Context, id uuid.UUID) error {
	userID := s.ActiveUser()
	if userID == "" {
		return NewNoActiveUser()
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.lookup(id)
	if err != nil {
		return err
	}

	options := []task.PatchOption{task.WithCompleted(!current.Completed)}
	if !current.Completed && current.ReminderID != nil {
		s.reminders.Cancel(ctx, *current.ReminderID)
		options = append(options, task.WithNoReminder())
	}

	fields := codec.EncodePatch(task.BuildPatch(options...), time.Now())
	if err := s.remote.Patch(ctx, userID, id, fields); err != nil {
		return NewRemoteFailed("toggle_completed", err)
	}

	return nil
}

// SweepExpiredReminders зачищает ручки напоминаний, чей срок уже прошёл:
// таймер давно сработал, а запись всё ещё держит ручку. Возвращает число
// зачищенных задач (вызывается фоновым worker-ом).
func (s *Store) SweepExpiredReminders(ctx context.Context, limit int) (int, error) {
	userID := s.ActiveUser()
	if userID == "" {
		return 0, nil
	}

	now := time.Now()

	s.mtx.RLock()
	expired := []uuid.UUID{}
	for _, t := range s.tasks {
		if len(expired) >= limit {
			break
		}
		if t.ReminderID != nil && t.DueDate != nil && t.DueDate.Before(now) {
			expired = append(expired, t.ID)
		}
	}
	s.mtx.RUnlock()

	cleared := 0
	for _, id := range expired {
		if s.sweepOne(ctx, userID, id) {
			cleared++
		}
	}

	return cleared, nil
}

// sweepOne зачищает ручку одной задачи под её мьютексом мутаций: зачистка
// не должна пересекаться с пользовательской мутацией по тому же id.
// Состояние перепроверяется уже под замком - пока зачистка ждала, снапшот
// мог снять ручку или перенести срок.
func (s *Store) sweepOne(ctx context.Context, userID string, id uuid.UUID) bool {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.lookup(id)
	if err != nil {
		return false
	}
	if current.ReminderID == nil || current.DueDate == nil || !current.DueDate.Before(time.Now()) {
		return false
	}

	fields := codec.EncodePatch(task.BuildPatch(task.WithNoReminder()), time.Now())
	if err := s.remote.Patch(ctx, userID, id, fields); err != nil {
		logger.Warn("Store: Не удалось зачистить ручку напоминания",
			zap.String("task_id", id.String()),
			zap.Error(err))
		return false
	}
	return true
}

func (s *Store) lookup(id uuid.UUID) (*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	t, ok := s.byID[id]
	if !ok {
		return nil, NewNotFound(id.String())
	}
	return t, nil
}

// lockFor выдаёт мьютекс мутаций для id: не больше одной мутации
// в полёте на задачу, мутации разных задач друг другу не мешают
func (s *Store) lockFor(id uuid.UUID) *sync.Mutex {
	s.locksMtx.Lock()
	defer s.locksMtx.Unlock()

	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}
