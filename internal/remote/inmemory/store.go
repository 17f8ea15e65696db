package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"listaPlus/internal/codec"
	"listaPlus/internal/logger"
	"listaPlus/internal/remote"

	"github.com/google/uuid"
)

// Store - удалённая коллекция задач в памяти процесса. Используется в
// тестах и в режиме remote.type=inmemory. Каждая запись ведёт себя как
// документ: Patch сливает только переданные поля, подписчики получают
// полную пачку после каждого изменения коллекции пользователя.
type Store struct {
	mtx  sync.RWMutex
	docs map[string]map[uuid.UUID]codec.RawRecord
	subs map[string][]*subscriber
}

type subscriber struct {
	userID string
	ch     chan remote.Snapshot
}

func NewStore() *Store {
	return &Store{
		docs: make(map[string]map[uuid.UUID]codec.RawRecord),
		subs: make(map[string][]*subscriber),
	}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	logger.Info("Remote: Хранилище в памяти доступно")
	return nil
}

func (s *Store) Subscribe(ctx context.Context, userID string) (<-chan remote.Snapshot, error) {
	sub := &subscriber{
		userID: userID,
		ch:     make(chan remote.Snapshot, 1),
	}

	s.mtx.Lock()
	s.subs[userID] = append(s.subs[userID], sub)
	snap := s.snapshotLocked(userID)
	s.mtx.Unlock()

	// подписчик сразу получает текущее состояние коллекции
	sub.ch <- snap

	go func() {
		<-ctx.Done()
		s.unsubscribe(sub)
	}()

	return sub.ch, nil
}

func (s *Store) unsubscribe(sub *subscriber) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	subs := s.subs[sub.userID]
	for i, candidate := range subs {
		if candidate == sub {
			s.subs[sub.userID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	close(sub.ch)
}

func (s *Store) Create(ctx context.Context, userID string, rec codec.RawRecord) (uuid.UUID, error) {
	s.mtx.Lock()

	if s.docs[userID] == nil {
		s.docs[userID] = make(map[uuid.UUID]codec.RawRecord)
	}

	id := uuid.New()
	s.docs[userID][id] = rec
	s.mtx.Unlock()

	s.notify(userID)
	return id, nil
}

func (s *Store) Patch(ctx context.Context, userID string, id uuid.UUID, fields map[string]any) error {
	s.mtx.Lock()

	rec, ok := s.docs[userID][id]
	if !ok {
		s.mtx.Unlock()
		return remote.NewOpError("patch", id, remote.ErrNotFound)
	}

	applyFields(&rec, fields)
	s.docs[userID][id] = rec
	s.mtx.Unlock()

	s.notify(userID)
	return nil
}

// SoftDelete - тот же Patch с deleted=true, запись остаётся надгробием
func (s *Store) SoftDelete(ctx context.Context, userID string, id uuid.UUID) error {
	s.mtx.Lock()

	rec, ok := s.docs[userID][id]
	if !ok {
		s.mtx.Unlock()
		return remote.NewOpError("soft_delete", id, remote.ErrNotFound)
	}

	applyFields(&rec, map[string]any{
		"deleted":    true,
		"updated_at": time.Now().UnixMilli(),
	})
	s.docs[userID][id] = rec
	s.mtx.Unlock()

	s.notify(userID)
	return nil
}

func (s *Store) HardDelete(ctx context.Context, userID string, id uuid.UUID) error {
	s.mtx.Lock()

	if _, ok := s.docs[userID][id]; !ok {
		s.mtx.Unlock()
		return remote.NewOpError("hard_delete", id, remote.ErrNotFound)
	}
	delete(s.docs[userID], id)
	s.mtx.Unlock()

	s.notify(userID)
	return nil
}

// notify рассылает свежую пачку всем подписчикам пользователя.
// Непрочитанная старая пачка вытесняется: подписчику важна только последняя.
func (s *Store) notify(userID string) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	snap := s.snapshotLocked(userID)

	// отправка не блокирует: буфер на одну пачку, под RLock канал
	// не может быть закрыт конкурентной отпиской
	for _, sub := range s.subs[userID] {
		select {
		case sub.ch <- snap:
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- snap
		}
	}
}

func (s *Store) snapshotLocked(userID string) remote.Snapshot {
	snap := remote.Snapshot{}
	for id, rec := range s.docs[userID] {
		snap = append(snap, remote.Document{ID: id, Record: rec})
	}

	// новые задачи первыми, как в запросе orderBy(createdAt, desc)
	sort.Slice(snap, func(i, j int) bool {
		ci, cj := int64(0), int64(0)
		if snap[i].Record.CreatedAt != nil {
			ci = *snap[i].Record.CreatedAt
		}
		if snap[j].Record.CreatedAt != nil {
			cj = *snap[j].Record.CreatedAt
		}
		if ci != cj {
			return ci > cj
		}
		return snap[i].ID.String() < snap[j].ID.String()
	})

	return snap
}

func applyFields(rec *codec.RawRecord, fields map[string]any) {
	for key, value := range fields {
		switch key {
		case "title":
			if v, ok := value.(string); ok {
				rec.Title = &v
			}
		case "description":
			if v, ok := value.(string); ok {
				rec.Description = &v
			}
		case "category":
			if v, ok := value.(string); ok {
				rec.Category = &v
			}
		case "completed":
			if v, ok := value.(bool); ok {
				rec.Completed = &v
			}
		case "deleted":
			if v, ok := value.(bool); ok {
				rec.Deleted = &v
			}
		case "due_date":
			if value == nil {
				rec.DueDate = nil
			} else if v, ok := value.(int64); ok {
				rec.DueDate = &v
			}
		case "updated_at":
			if v, ok := value.(int64); ok {
				rec.UpdatedAt = &v
			}
		case "reminder_id":
			if value == nil {
				rec.ReminderID = nil
			} else if v, ok := value.(string); ok {
				rec.ReminderID = &v
			}
		}
	}
}
