package store

import "fmt"

type BusinessError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (b *BusinessError) Error() string {
	if b.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", b.Code, b.Message, b.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", b.Code, b.Message)
}

func (b *BusinessError) Unwrap() error {
	return b.Err
}

func NewInvalidTask(field, reason string) *BusinessError {
	return &BusinessError{
		Code:    "INVALID_TASK",
		Message: fmt.Sprintf("Неверное значение поля '%s': %s", field, reason),
		Details: map[string]any{
			"field":  field,
			"reason": reason,
		},
	}
}

func NewNotFound(id string) *BusinessError {
	return &BusinessError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("Задача %s не найдена", id),
		Details: map[string]any{
			"id": id,
		},
	}
}

func NewNoActiveUser() *BusinessError {
	return &BusinessError{
		Code:    "NO_ACTIVE_USER",
		Message: "Нет активного пользователя",
		Details: map[string]any{},
	}
}

func NewRemoteFailed(op string, err error) *BusinessError {
	return &BusinessError{
		Code:    "REMOTE_FAILED",
		Message: fmt.Sprintf("Удалённая операция %s не удалась", op),
		Details: map[string]any{
			"operation": op,
		},
		Err: err,
	}
}
