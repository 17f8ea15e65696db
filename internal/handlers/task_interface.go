package handlers

import (
	"context"
	"iter"
	"time"

	"listaPlus/internal/models/task"

	"github.com/google/uuid"
)

type Service interface {
	HealthCheck(ctx context.Context) error
	SetUser(ctx context.Context, userID string) error
	ActiveUser() string
	Visible(category *task.Category) iter.Seq[*task.Task]
	Add(ctx context.Context, title, description string, category task.Category, dueDate *time.Time) (uuid.UUID, error)
	Patch(ctx context.Context, id uuid.UUID, options ...task.PatchOption) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	HardDelete(ctx context.Context, id uuid.UUID) error
	ToggleCompleted(ctx context.Context, id uuid.UUID) error
}
