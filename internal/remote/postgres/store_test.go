package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"listaPlus/internal/codec"
	"listaPlus/internal/remote"
	"listaPlus/internal/remote/postgres"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var _ remote.Adapter = (*postgres.Store)(nil)

// PostgresTestSuite для интеграционных тестов с PostgreSQL
type PostgresTestSuite struct {
	suite.Suite
	container  testcontainers.Container
	store      *postgres.Store
	ctx        context.Context
	connString string
}

// SetupSuite запускается один раз перед всеми тестами
func (s *PostgresTestSuite) SetupSuite() {
	s.ctx = context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T(), err)
	s.container = container

	host, err := container.Host(s.ctx)
	require.NoError(s.T(), err)

	port, err := container.MappedPort(s.ctx, "5432")
	require.NoError(s.T(), err)

	s.connString = fmt.Sprintf("postgres://test:test@%s:%s/testdb", host, port.Port())

	// короткий интервал опроса, чтобы подписки в тестах не ждали
	s.store, err = postgres.New(s.ctx, s.connString, 100*time.Millisecond)
	require.NoError(s.T(), err)

	s.store.SetMigrationsDir("../../migrations")
	require.NoError(s.T(), s.store.Migrate(s.ctx))
}

// TearDownSuite очищает после всех тестов
func (s *PostgresTestSuite) TearDownSuite() {
	if s.store != nil {
		s.store.Close()
	}
	if s.container != nil {
		s.container.Terminate(s.ctx)
	}
}

// SetupTest очищает таблицу перед каждым тестом
func (s *PostgresTestSuite) SetupTest() {
	conn, err := pgx.Connect(s.ctx, s.connString)
	require.NoError(s.T(), err)
	defer conn.Close(s.ctx)

	_, err = conn.Exec(s.ctx, "DELETE FROM tasks")
	require.NoError(s.T(), err)
}

// TestPostgresTestSuite запускает suite
func TestPostgresTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционные тесты в коротком режиме")
	}
	suite.Run(t, new(PostgresTestSuite))
}

func pt[T any](v T) *T {
	return &v
}

func testRecord(title string, createdAt time.Time) codec.RawRecord {
	return codec.RawRecord{
		Title:     pt(title),
		Category:  pt("work"),
		Completed: pt(false),
		Deleted:   pt(false),
		CreatedAt: pt(createdAt.UnixMilli()),
	}
}

// loadSnapshot читает текущее состояние коллекции через свежую подписку
func (s *PostgresTestSuite) loadSnapshot(userID string) remote.Snapshot {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	ch, err := s.store.Subscribe(ctx, userID)
	require.NoError(s.T(), err)

	select {
	case snap := <-ch:
		return snap
	case <-time.After(time.Second):
		s.T().Fatal("начальная пачка не пришла")
		return nil
	}
}

// TestStore_Create тестирует создание записи
func (s *PostgresTestSuite) TestStore_Create() {
	ctx := context.Background()

	rec := testRecord("Новая запись", time.Now())
	rec.Description = pt("описание")
	rec.DueDate = pt(time.Now().Add(24 * time.Hour).Truncate(time.Millisecond).UnixMilli())

	id, err := s.store.Create(ctx, "user-1", rec)
	require.NoError(s.T(), err)
	assert.NotEqual(s.T(), uuid.Nil, id)

	snap := s.loadSnapshot("user-1")
	require.Len(s.T(), snap, 1)
	assert.Equal(s.T(), id, snap[0].ID)
	assert.Equal(s.T(), "Новая запись", *snap[0].Record.Title)
	assert.Equal(s.T(), "описание", *snap[0].Record.Description)
	require.NotNil(s.T(), snap[0].Record.DueDate)
	assert.Equal(s.T(), *rec.DueDate, *snap[0].Record.DueDate)
	assert.Nil(s.T(), snap[0].Record.ReminderID)
}

// TestStore_Ordering тестирует порядок: новые первыми
func (s *PostgresTestSuite) TestStore_Ordering() {
	ctx := context.Background()
	base := time.Now().Truncate(time.Millisecond)

	_, err := s.store.Create(ctx, "user-1", testRecord("старая", base.Add(-2*time.Hour)))
	require.NoError(s.T(), err)
	_, err = s.store.Create(ctx, "user-1", testRecord("новая", base))
	require.NoError(s.T(), err)
	_, err = s.store.Create(ctx, "user-1", testRecord("средняя", base.Add(-time.Hour)))
	require.NoError(s.T(), err)

	snap := s.loadSnapshot("user-1")
	require.Len(s.T(), snap, 3)
	assert.Equal(s.T(), "новая", *snap[0].Record.Title)
	assert.Equal(s.T(), "средняя", *snap[1].Record.Title)
	assert.Equal(s.T(), "старая", *snap[2].Record.Title)
}

// TestStore_UserIsolation: коллекции пользователей не пересекаются
func (s *PostgresTestSuite) TestStore_UserIsolation() {
	ctx := context.Background()

	_, err := s.store.Create(ctx, "user-1", testRecord("моя", time.Now()))
	require.NoError(s.T(), err)
	_, err = s.store.Create(ctx, "user-2", testRecord("чужая", time.Now()))
	require.NoError(s.T(), err)

	snap := s.loadSnapshot("user-1")
	require.Len(s.T(), snap, 1)
	assert.Equal(s.T(), "моя", *snap[0].Record.Title)
}

// TestStore_Patch тестирует слияние переданных полей
func (s *PostgresTestSuite) TestStore_Patch() {
	ctx := context.Background()

	rec := testRecord("исходная", time.Now())
	rec.Description = pt("не трогаем")
	id, err := s.store.Create(ctx, "user-1", rec)
	require.NoError(s.T(), err)

	err = s.store.Patch(ctx, "user-1", id, map[string]any{
		"title":       "обновлённая",
		"completed":   true,
		"reminder_id": "handle-1",
		"updated_at":  time.Now().Truncate(time.Millisecond).UnixMilli(),
	})
	require.NoError(s.T(), err)

	snap := s.loadSnapshot("user-1")
	require.Len(s.T(), snap, 1)
	assert.Equal(s.T(), "обновлённая", *snap[0].Record.Title)
	assert.Equal(s.T(), "не трогаем", *snap[0].Record.Description)
	assert.True(s.T(), *snap[0].Record.Completed)
	require.NotNil(s.T(), snap[0].Record.ReminderID)
	assert.Equal(s.T(), "handle-1", *snap[0].Record.ReminderID)
	assert.NotNil(s.T(), snap[0].Record.UpdatedAt)
}

// TestStore_Patch_ExplicitNull: явный null сбрасывает срок и ручку
func (s *PostgresTestSuite) TestStore_Patch_ExplicitNull() {
	ctx := context.Background()

	rec := testRecord("со сроком", time.Now())
	rec.DueDate = pt(time.Now().Add(time.Hour).UnixMilli())
	rec.ReminderID = pt("handle-1")
	id, err := s.store.Create(ctx, "user-1", rec)
	require.NoError(s.T(), err)

	err = s.store.Patch(ctx, "user-1", id, map[string]any{
		"due_date":    nil,
		"reminder_id": nil,
	})
	require.NoError(s.T(), err)

	snap := s.loadSnapshot("user-1")
	require.Len(s.T(), snap, 1)
	assert.Nil(s.T(), snap[0].Record.DueDate)
	assert.Nil(s.T(), snap[0].Record.ReminderID)
}

// TestStore_Patch_NotFound тестирует обновление несуществующей записи
func (s *PostgresTestSuite) TestStore_Patch_NotFound() {
	ctx := context.Background()

	err := s.store.Patch(ctx, "user-1", uuid.New(), map[string]any{"title": "нет"})

	require.Error(s.T(), err)
	assert.ErrorIs(s.T(), err, remote.ErrNotFound)
}

// TestStore_SoftDelete: запись остаётся надгробием
func (s *PostgresTestSuite) TestStore_SoftDelete() {
	ctx := context.Background()

	id, err := s.store.Create(ctx, "user-1", testRecord("удаляем", time.Now()))
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.store.SoftDelete(ctx, "user-1", id))

	snap := s.loadSnapshot("user-1")
	require.Len(s.T(), snap, 1)
	require.NotNil(s.T(), snap[0].Record.Deleted)
	assert.True(s.T(), *snap[0].Record.Deleted)
	assert.NotNil(s.T(), snap[0].Record.UpdatedAt)

	assert.ErrorIs(s.T(), s.store.SoftDelete(ctx, "user-1", uuid.New()), remote.ErrNotFound)
}

// TestStore_HardDelete тестирует окончательное удаление
func (s *PostgresTestSuite) TestStore_HardDelete() {
	ctx := context.Background()

	id, err := s.store.Create(ctx, "user-1", testRecord("насовсем", time.Now()))
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.store.HardDelete(ctx, "user-1", id))

	snap := s.loadSnapshot("user-1")
	assert.Empty(s.T(), snap)

	assert.ErrorIs(s.T(), s.store.HardDelete(ctx, "user-1", id), remote.ErrNotFound)
}

// TestStore_Subscribe_PushesChanges: запись подталкивает подписку,
// не дожидаясь тикера
func (s *PostgresTestSuite) TestStore_Subscribe_PushesChanges() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	ch, err := s.store.Subscribe(ctx, "user-1")
	require.NoError(s.T(), err)

	initial := <-ch
	assert.Empty(s.T(), initial)

	id, err := s.store.Create(ctx, "user-1", testRecord("появилась", time.Now()))
	require.NoError(s.T(), err)

	select {
	case snap := <-ch:
		require.Len(s.T(), snap, 1)
		assert.Equal(s.T(), id, snap[0].ID)
	case <-time.After(2 * time.Second):
		s.T().Fatal("пачка после записи не пришла")
	}
}

// TestStore_Subscribe_ClosesOnCancel: отмена контекста закрывает канал
func (s *PostgresTestSuite) TestStore_Subscribe_ClosesOnCancel() {
	ctx, cancel := context.WithCancel(s.ctx)

	ch, err := s.store.Subscribe(ctx, "user-1")
	require.NoError(s.T(), err)
	<-ch

	cancel()

	require.Eventually(s.T(), func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

// TestStore_HealthCheck тестирует проверку соединения
func (s *PostgresTestSuite) TestStore_HealthCheck() {
	require.NoError(s.T(), s.store.HealthCheck(context.Background()))
}

// Unit тесты (без базы данных)
func TestStore_New(t *testing.T) {
	tests := []struct {
		name        string
		connString  string
		expectError bool
	}{
		{
			name:        "invalid connection string",
			connString:  "invalid",
			expectError: true,
		},
		{
			name:        "empty connection string",
			connString:  "",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			_, err := postgres.New(ctx, tt.connString, 0)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
