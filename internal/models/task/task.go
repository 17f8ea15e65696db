package task

import (
	"time"

	"github.com/google/uuid"
)

type Task struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    Category   `json:"category"`
	Completed   bool       `json:"completed"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Deleted     bool       `json:"deleted"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	ReminderID  *string    `json:"reminder_id,omitempty"`
}

type Category string

const CategoryWork Category = "work"
const CategoryPersonal Category = "personal"
const CategoryStudy Category = "study"
const CategoryWishlist Category = "wishlist"
const CategoryOther Category = "other"

// закрытый перечень категорий, пустой категории у сохранённой задачи не бывает
func (c Category) Valid() bool {
	switch c {
	case CategoryWork, CategoryPersonal, CategoryStudy, CategoryWishlist, CategoryOther:
		return true
	}
	return false
}
