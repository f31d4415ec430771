package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError - некорректный ввод; Reason показывается пользователю как есть.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ConflictError - интервал занят или провайдер отсутствует в этот день.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

func validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// Reason возвращает текст для пользователя, если err - ValidationError или ConflictError.
func Reason(err error) (string, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Reason, true
	}
	var c *ConflictError
	if errors.As(err, &c) {
		return c.Reason, true
	}
	return "", false
}
