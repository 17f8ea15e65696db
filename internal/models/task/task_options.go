package task

import (
	"time"
)

// Patch - частичное изменение задачи. Заполнены только те поля,
// которые действительно меняются: для срока важна разница между
// "не трогать" (DueDateSet=false) и "очистить" (DueDateSet=true, DueDate=nil).
type Patch struct {
	Title       *string
	Description *string
	Category    *Category
	Completed   *bool
	DueDate     *time.Time
	DueDateSet  bool

	// напоминание выставляет только сам store, снаружи эти поля не трогают
	ReminderID    *string
	ReminderIDSet bool
}

type PatchOption func(*Patch)

func WithTitle(title string) PatchOption {
	return func(p *Patch) {
		p.Title = &title
	}
}

func WithDescription(description string) PatchOption {
	return func(p *Patch) {
		p.Description = &description
	}
}

func WithCategory(category Category) PatchOption {
	return func(p *Patch) {
		p.Category = &category
	}
}

func WithCompleted(completed bool) PatchOption {
	return func(p *Patch) {
		p.Completed = &completed
	}
}

func WithDueDate(dueDate time.Time) PatchOption {
	return func(p *Patch) {
		p.DueDate = &dueDate
		p.DueDateSet = true
	}
}

// WithNoDueDate явно снимает срок с задачи
func WithNoDueDate() PatchOption {
	return func(p *Patch) {
		p.DueDate = nil
		p.DueDateSet = true
	}
}

func WithReminder(handle string) PatchOption {
	return func(p *Patch) {
		p.ReminderID = &handle
		p.ReminderIDSet = true
	}
}

func WithNoReminder() PatchOption {
	return func(p *Patch) {
		p.ReminderID = nil
		p.ReminderIDSet = true
	}
}

func BuildPatch(options ...PatchOption) Patch {
	p := Patch{}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&p)
	}
	return p
}
