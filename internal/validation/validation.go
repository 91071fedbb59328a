// Package validation содержит функции валидации входных данных и сформированных запросов.
package validation

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid возвращается, если структура не прошла проверку.
var ErrInvalid = errors.New("validation failed")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct проверяет структуру по тегам validate.
func Struct(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// IsEmail проверяет корректность адреса электронной почты.
func IsEmail(s string) bool {
	return s != "" && validate.Var(s, "email") == nil
}
