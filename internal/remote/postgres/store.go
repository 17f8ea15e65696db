package postgres

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"listaPlus/internal/codec"
	"listaPlus/internal/logger"
	"listaPlus/internal/remote"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const defaultPollInterval = 2 * time.Second

// Store - удалённая коллекция задач поверх PostgreSQL. Подписка
// опрашивает коллекцию пользователя по тикеру и дополнительно
// подталкивается сразу после собственных записей этого процесса.
type Store struct {
	pool         *pgxpool.Pool
	pollInterval time.Duration
	kick         chan struct{}
	migrations   string
}

func New(ctx context.Context, connString string, pollInterval time.Duration) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		logger.Error("Remote: Ошибка разбора строки подключения", err)
		return nil, fmt.Errorf("разбор строки подключения: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnIdleTime = time.Minute * 5

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		logger.Error("Remote: Ошибка создания пула", err)
		return nil, fmt.Errorf("создание пула: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		logger.Error("Remote: Неудачная проверка ping", err)
		return nil, fmt.Errorf("проверка соединения ping: %w", err)
	}

	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	logger.Info("Remote: Успешное подключение к PostgreSQL")
	return &Store{
		pool:         pool,
		pollInterval: pollInterval,
		kick:         make(chan struct{}, 1),
		migrations:   "internal/migrations",
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
	logger.Info("Remote: Закрытие всех соединений PostgreSQL")
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		logger.Error("Remote: Неудачная проверка ping", err)
		return fmt.Errorf("проверка соединения ping: %w", err)
	}
	return nil
}

// Subscribe читает полную пачку записей пользователя и доставляет её
// каждый раз, когда содержимое отличается от последней доставленной.
// Порядок доставок совпадает с порядком чтений, канал закрывается по ctx.
func (s *Store) Subscribe(ctx context.Context, userID string) (<-chan remote.Snapshot, error) {
	initial, err := s.load(ctx, userID)
	if err != nil {
		return nil, remote.NewOpError("subscribe", uuid.Nil, err)
	}

	ch := make(chan remote.Snapshot, 1)
	ch <- initial

	go func() {
		defer close(ch)

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		last := initial
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-s.kick:
			}

			snap, err := s.load(ctx, userID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("Remote: Ошибка опроса коллекции", zap.Error(err), zap.String("user_id", userID))
				continue
			}

			if reflect.DeepEqual(snap, last) {
				continue
			}
			last = snap

			select {
			case ch <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// nudge просит все подписки перечитать коллекцию, не дожидаясь тикера
func (s *Store) nudge() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Store) Create(ctx context.Context, userID string, rec codec.RawRecord) (uuid.UUID, error) {
	start := time.Now()
	id := uuid.New()

	query := `INSERT INTO tasks
				(id, user_id, title, description, category, completed, due_date, deleted, created_at, updated_at, reminder_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		id,
		userID,
		deref(rec.Title),
		deref(rec.Description),
		deref(rec.Category),
		rec.Completed != nil && *rec.Completed,
		millisToTime(rec.DueDate),
		rec.Deleted != nil && *rec.Deleted,
		millisToTime(rec.CreatedAt),
		millisToTime(rec.UpdatedAt),
		rec.ReminderID,
	)
	if err != nil {
		logger.Error("Remote: Не удалось добавить запись", err, zap.Duration("ms", time.Since(start)))
		return uuid.Nil, remote.NewOpError("create", id, err)
	}

	if time.Since(start) > time.Millisecond*50 {
		logger.Warn("Remote: Медленный запрос", zap.Duration("ms", time.Since(start)))
	}

	s.nudge()
	return id, nil
}

// Patch сливает только переданные поля, остальные колонки не трогает
func (s *Store) Patch(ctx context.Context, userID string, id uuid.UUID, fields map[string]any) error {
	start := time.Now()

	set := []string{}
	args := []any{}
	argN := 1

	for _, column := range []string{"title", "description", "category", "completed", "due_date", "deleted", "updated_at", "reminder_id"} {
		value, ok := fields[column]
		if !ok {
			continue
		}
		set = append(set, fmt.Sprintf("%s = $%d", column, argN))
		switch column {
		case "due_date", "updated_at":
			if value == nil {
				args = append(args, nil)
			} else {
				args = append(args, millisToTime(ptr(value.(int64))))
			}
		default:
			args = append(args, value)
		}
		argN++
	}

	if len(set) == 0 {
		return nil
	}

	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE user_id = $%d AND id = $%d`,
		strings.Join(set, ", "), argN, argN+1)
	args = append(args, userID, id)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		logger.Error("Remote: Не удалось обновить запись", err, zap.Duration("ms", time.Since(start)))
		return remote.NewOpError("patch", id, err)
	}
	if tag.RowsAffected() == 0 {
		return remote.NewOpError("patch", id, remote.ErrNotFound)
	}

	if time.Since(start) > time.Millisecond*100 {
		logger.Warn("Remote: Медленная операция", zap.Duration("ms", time.Since(start)))
	}

	s.nudge()
	return nil
}

func (s *Store) SoftDelete(ctx context.Context, userID string, id uuid.UUID) error {
	start := time.Now()

	query := `UPDATE tasks
				SET deleted = TRUE,
				updated_at = NOW()
			WHERE user_id = $1 AND id = $2`

	tag, err := s.pool.Exec(ctx, query, userID, id)
	if err != nil {
		logger.Error("Remote: Мягкое удаление записи", err, zap.Duration("ms", time.Since(start)))
		return remote.NewOpError("soft_delete", id, err)
	}
	if tag.RowsAffected() == 0 {
		return remote.NewOpError("soft_delete", id, remote.ErrNotFound)
	}

	if time.Since(start) > time.Millisecond*100 {
		logger.Warn("Remote: Медленная операция", zap.Duration("ms", time.Since(start)))
	}

	s.nudge()
	return nil
}

func (s *Store) HardDelete(ctx context.Context, userID string, id uuid.UUID) error {
	start := time.Now()

	query := `DELETE FROM tasks WHERE user_id = $1 AND id = $2`

	tag, err := s.pool.Exec(ctx, query, userID, id)
	if err != nil {
		logger.Error("Remote: Полное удаление записи", err, zap.Duration("ms", time.Since(start)))
		return remote.NewOpError("hard_delete", id, err)
	}
	if tag.RowsAffected() == 0 {
		return remote.NewOpError("hard_delete", id, remote.ErrNotFound)
	}

	if time.Since(start) > time.Millisecond*100 {
		logger.Warn("Remote: Медленная операция", zap.Duration("ms", time.Since(start)))
	}

	s.nudge()
	return nil
}

func (s *Store) load(ctx context.Context, userID string) (remote.Snapshot, error) {
	start := time.Now()

	query := `SELECT
				id,
				title,
				description,
				category,
				completed,
				due_date,
				deleted,
				created_at,
				updated_at,
				reminder_id
				FROM tasks
				WHERE user_id = $1
				ORDER BY created_at DESC, id ASC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("чтение коллекции: %w", err)
	}
	defer rows.Close()

	snap := remote.Snapshot{}
	for rows.Next() {
		var (
			doc        remote.Document
			title      string
			descr      string
			category   string
			completed  bool
			deleted    bool
			dueDate    *time.Time
			createdAt  time.Time
			updatedAt  *time.Time
			reminderID *string
		)

		err := rows.Scan(
			&doc.ID,
			&title,
			&descr,
			&category,
			&completed,
			&dueDate,
			&deleted,
			&createdAt,
			&updatedAt,
			&reminderID,
		)
		if err != nil {
			logger.Warn("Remote: Ошибка сканирования записи", zap.Error(err))
			continue
		}

		doc.Record = codec.RawRecord{
			Title:       &title,
			Description: &descr,
			Category:    &category,
			Completed:   &completed,
			Deleted:     &deleted,
			DueDate:     timeToMillis(dueDate),
			CreatedAt:   timeToMillis(&createdAt),
			UpdatedAt:   timeToMillis(updatedAt),
			ReminderID:  reminderID,
		}
		snap = append(snap, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}

	if time.Since(start) > time.Millisecond*100 {
		logger.Warn("Remote: Медленный запрос", zap.Duration("ms", time.Since(start)))
	}

	return snap, nil
}

// SetMigrationsDir переопределяет каталог с sql-файлами (нужно тестам)
func (s *Store) SetMigrationsDir(dir string) {
	s.migrations = dir
}

func (s *Store) Migrate(ctx context.Context) error {
	logger.Info("Remote: Применение миграций")

	for _, name := range []string{"001_init.up.sql", "002_indexes.up.sql"} {
		sql, err := os.ReadFile(filepath.Join(s.migrations, name))
		if err != nil {
			logger.Error("Remote: Не удалось прочитать миграцию", err, zap.String("file", name))
			return fmt.Errorf("чтение миграции %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			logger.Error("Remote: Не удалось применить миграцию", err, zap.String("file", name))
			return fmt.Errorf("применение миграции %s: %w", name, err)
		}
	}

	logger.Info("Remote: Миграции применены")
	return nil
}

func (s *Store) Down(ctx context.Context) error {
	logger.Info("Remote: Откат миграций")

	for _, name := range []string{"002_indexes.down.sql", "001_init.down.sql"} {
		sql, err := os.ReadFile(filepath.Join(s.migrations, name))
		if err != nil {
			logger.Error("Remote: Не удалось прочитать миграцию", err, zap.String("file", name))
			return fmt.Errorf("чтение миграции %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			logger.Error("Remote: Не удалось откатить миграцию", err, zap.String("file", name))
			return fmt.Errorf("откат миграции %s: %w", name, err)
		}
	}

	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptr[T any](v T) *T {
	return &v
}

func millisToTime(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}

func timeToMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}
