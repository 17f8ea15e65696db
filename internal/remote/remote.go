package remote

import (
	"context"
	"errors"
	"fmt"

	"listaPlus/internal/codec"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("запись не найдена")

// Document - сырая запись задачи вместе с ключом документа
type Document struct {
	ID     uuid.UUID
	Record codec.RawRecord
}

// Snapshot - полная замещающая пачка записей пользователя.
// Каждая доставка полностью вытесняет предыдущий список, это не diff.
type Snapshot []Document

// Adapter - мост к удалённой коллекции задач, по одной коллекции на
// пользователя. Subscribe держит живую подписку до отмены ctx и
// закрывает канал при её завершении; остальные операции одноразовые.
// Повторов внутри адаптера нет, политика повторов - дело вызывающего.
type Adapter interface {
	Subscribe(ctx context.Context, userID string) (<-chan Snapshot, error)
	Create(ctx context.Context, userID string, rec codec.RawRecord) (uuid.UUID, error)
	Patch(ctx context.Context, userID string, id uuid.UUID, fields map[string]any) error
	SoftDelete(ctx context.Context, userID string, id uuid.UUID) error
	HardDelete(ctx context.Context, userID string, id uuid.UUID) error
	HealthCheck(ctx context.Context) error
}

// OpError - отказ удалённой операции с её именем и id записи
type OpError struct {
	Op  string
	ID  uuid.UUID
	Err error
}

func (e *OpError) Error() string {
	if e.ID == uuid.Nil {
		return fmt.Sprintf("удалённая операция %s: %s", e.Op, e.Err)
	}
	return fmt.Sprintf("удалённая операция %s (id=%s): %s", e.Op, e.ID, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func NewOpError(op string, id uuid.UUID, err error) *OpError {
	return &OpError{Op: op, ID: id, Err: err}
}
