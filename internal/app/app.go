package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"listaPlus/internal/config"
	"listaPlus/internal/handlers"
	"listaPlus/internal/logger"
	"listaPlus/internal/middleware"
	"listaPlus/internal/reminder"
	"listaPlus/internal/remote"
	"listaPlus/internal/remote/inmemory"
	"listaPlus/internal/remote/postgres"
	"listaPlus/internal/store"
	"listaPlus/internal/worker"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

var _ handlers.Service = (*store.Store)(nil)

type App struct {
	config    *config.Config
	server    *http.Server
	router    *chi.Mux
	adapter   remote.Adapter
	store     *store.Store
	sweeper   *worker.ReminderSweeper
	shutdowns []func() // функции для graceful shutdown
}

func New(cfg *config.Config) *App {
	return &App{
		config:    cfg,
		shutdowns: make([]func(), 0),
	}
}

func (a *App) Init(ctx context.Context) error {
	if err := logger.Init(a.config.Logging.Development); err != nil {
		return fmt.Errorf("инициализация логгера: %w", err)
	}
	a.shutdowns = append(a.shutdowns, func() {
		logger.Info("Завершение работы логгирования...")
		logger.Sync()
	})

	switch a.config.Remote.Type {
	case "postgres":
		pg, err := postgres.New(ctx, a.config.Remote.URL, a.config.Remote.PollInterval)
		if err != nil {
			return fmt.Errorf("подключение к postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("миграции: %w", err)
		}
		a.shutdowns = append(a.shutdowns, pg.Close)
		a.adapter = pg
	case "inmemory", "":
		a.adapter = inmemory.NewStore()
	default:
		return fmt.Errorf("неизвестный тип remote: %s", a.config.Remote.Type)
	}

	scheduler := reminder.NewLocalScheduler(nil)
	coordinator := reminder.NewCoordinator(scheduler, a.config.Reminder.MinDelay)

	a.store = store.New(a.adapter, coordinator)
	a.sweeper = worker.NewReminderSweeper(a.store, a.config.Worker.Interval, a.config.Worker.BatchSize)

	a.router = a.buildRouter()
	a.server = &http.Server{
		Addr:    a.config.GetServerAddr(),
		Handler: a.router,
	}

	return nil
}

func (a *App) buildRouter() *chi.Mux {
	taskHandler := handlers.NewTaskHandler(a.store)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.RateLimit(100))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
	}))

	r.Post("/session", taskHandler.SetSession)

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", taskHandler.GetVisibleTasks) // GET /tasks?category=
		r.Post("/", taskHandler.PostTask)       // POST /tasks

		r.Route("/{id}", func(r chi.Router) {
			r.Patch("/", taskHandler.PatchTask)         // PATCH /tasks/{id}
			r.Delete("/", taskHandler.DeleteTask)       // DELETE /tasks/{id} (мягкое)
			r.Post("/toggle", taskHandler.ToggleTask)   // POST /tasks/{id}/toggle
			r.Delete("/purge", taskHandler.PurgeTask)   // DELETE /tasks/{id}/purge
		})
	})

	r.Get("/health", taskHandler.HealthCheck)

	return r
}

// Run поднимает сервер и фонового worker-а и живёт до отмены ctx
func (a *App) Run(ctx context.Context) error {
	workerCtx, stopWorker := context.WithCancel(ctx)
	go a.sweeper.Start(workerCtx)
	a.shutdowns = append(a.shutdowns, stopWorker)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Сервер запущен: " + a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("сервер: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Ошибка остановки сервера", err)
	}

	a.Shutdown()
	return nil
}

func (a *App) Shutdown() {
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		a.shutdowns[i]()
	}
	a.shutdowns = a.shutdowns[:0]
}
