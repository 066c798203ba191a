// Package apperr описывает таксономию ошибок приложения.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrWriteRejected    = errors.New("write rejected")
	ErrNetwork          = errors.New("network failure")
	ErrInvalidInput     = errors.New("invalid input")
	ErrNoIdentity       = errors.New("no identity")
	ErrEmptyComment     = errors.New("comment is empty")
	ErrUploadInProgress = errors.New("upload already in progress")
)

// AuthCode - причина ошибки аутентификации
type AuthCode string

const (
	InvalidCredentials AuthCode = "invalid_credentials"
	AccountExists      AuthCode = "account_exists"
	NetworkUnavailable AuthCode = "network_unavailable"
	PopupClosed        AuthCode = "popup_closed"
	WeakPassword       AuthCode = "weak_password"
	Unauthenticated    AuthCode = "unauthenticated"
)

// AuthError - ошибка провайдера аутентификации
type AuthError struct {
	Code AuthCode
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Code, e.Err)
	}
	return "auth: " + string(e.Code)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Auth создаёт AuthError с кодом
func Auth(code AuthCode, err error) *AuthError {
	return &AuthError{Code: code, Err: err}
}

// IsAuth проверяет, что err - AuthError с указанным кодом
func IsAuth(err error, code AuthCode) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Code == code
}

// NotFound оборачивает ErrNotFound с именем сущности
func NotFound(what, id string) error {
	return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
}

// Rejected оборачивает ErrWriteRejected с причиной
func Rejected(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrWriteRejected)
}

// Network оборачивает ошибку транспорта бэкенда
func Network(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrNetwork, err)
}

// Invalid оборачивает ErrInvalidInput с описанием
func Invalid(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrInvalidInput)
}
