package codec

import (
	"fmt"
	"time"

	"listaPlus/internal/models/task"

	"github.com/google/uuid"
)

// ErrMalformedRecord - запись из удалённой коллекции не поддаётся декодированию.
// Такая запись выбрасывается из снапшота, остальная пачка обрабатывается дальше.
var ErrMalformedRecord = fmt.Errorf("повреждённая запись")

// RawRecord - представление документа задачи "на проводе".
// Метки времени хранятся как unix-миллисекунды, отсутствующее поле - nil.
type RawRecord struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
	DueDate     *int64  `json:"due_date"`
	Deleted     *bool   `json:"deleted,omitempty"`
	CreatedAt   *int64  `json:"created_at,omitempty"`
	UpdatedAt   *int64  `json:"updated_at"`
	ReminderID  *string `json:"reminder_id"`
}

// Decode собирает задачу из сырой записи. Обязательные поля: title,
// category, created_at. Категория без значения отклоняется, а не
// подменяется на "other": намерение записи без категории неоднозначно.
func Decode(id uuid.UUID, rec RawRecord) (*task.Task, error) {
	if rec.Title == nil || *rec.Title == "" {
		return nil, fmt.Errorf("%w: отсутствует title (id=%s)", ErrMalformedRecord, id)
	}
	if rec.Category == nil || *rec.Category == "" {
		return nil, fmt.Errorf("%w: отсутствует category (id=%s)", ErrMalformedRecord, id)
	}
	category := task.Category(*rec.Category)
	if !category.Valid() {
		return nil, fmt.Errorf("%w: неизвестная category %q (id=%s)", ErrMalformedRecord, *rec.Category, id)
	}
	if rec.CreatedAt == nil {
		return nil, fmt.Errorf("%w: отсутствует created_at (id=%s)", ErrMalformedRecord, id)
	}

	t := &task.Task{
		ID:        id,
		Title:     *rec.Title,
		Category:  category,
		CreatedAt: fromMillis(*rec.CreatedAt),
	}

	if rec.Description != nil {
		t.Description = *rec.Description
	}
	if rec.Completed != nil {
		t.Completed = *rec.Completed
	}
	if rec.Deleted != nil {
		t.Deleted = *rec.Deleted
	}
	if rec.DueDate != nil {
		due := fromMillis(*rec.DueDate)
		t.DueDate = &due
	}
	if rec.UpdatedAt != nil {
		updated := fromMillis(*rec.UpdatedAt)
		t.UpdatedAt = &updated
	}
	if rec.ReminderID != nil {
		reminderID := *rec.ReminderID
		t.ReminderID = &reminderID
	}

	return t, nil
}

// EncodeTask - полная запись для создания документа
func EncodeTask(t *task.Task) RawRecord {
	rec := RawRecord{
		Title:       ptr(t.Title),
		Description: ptr(t.Description),
		Category:    ptr(string(t.Category)),
		Completed:   ptr(t.Completed),
		Deleted:     ptr(t.Deleted),
		CreatedAt:   ptr(toMillis(t.CreatedAt)),
	}
	if t.DueDate != nil {
		rec.DueDate = ptr(toMillis(*t.DueDate))
	}
	if t.UpdatedAt != nil {
		rec.UpdatedAt = ptr(toMillis(*t.UpdatedAt))
	}
	if t.ReminderID != nil {
		rec.ReminderID = ptr(*t.ReminderID)
	}
	return rec
}

// EncodePatch - частичная запись для слияния с существующим документом.
// Отсутствующее в Patch поле не попадает в результат вовсе;
// снятый срок кодируется явным null. updated_at обновляется всегда.
func EncodePatch(p task.Patch, now time.Time) map[string]any {
	fields := map[string]any{
		"updated_at": toMillis(now),
	}
	if p.Title != nil {
		fields["title"] = *p.Title
	}
	if p.Description != nil {
		fields["description"] = *p.Description
	}
	if p.Category != nil {
		fields["category"] = string(*p.Category)
	}
	if p.Completed != nil {
		fields["completed"] = *p.Completed
	}
	if p.DueDateSet {
		if p.DueDate != nil {
			fields["due_date"] = toMillis(*p.DueDate)
		} else {
			fields["due_date"] = nil
		}
	}
	if p.ReminderIDSet {
		if p.ReminderID != nil {
			fields["reminder_id"] = *p.ReminderID
		} else {
			fields["reminder_id"] = nil
		}
	}
	return fields
}

// точность провода - миллисекунды, всё что ниже отбрасывается
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func ptr[T any](v T) *T {
	return &v
}
