package web

import (
	"errors"
	"net/http"

	"github.com/MosinFAM/blog-posts/internal/apperr"
	"github.com/MosinFAM/blog-posts/internal/richtext"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// statusOf сопоставляет ошибку приложения HTTP-статусу и коду для клиента
func statusOf(err error) (int, string) {
	var ae *apperr.AuthError
	if errors.As(err, &ae) {
		switch ae.Code {
		case apperr.InvalidCredentials, apperr.Unauthenticated:
			return http.StatusUnauthorized, string(ae.Code)
		case apperr.AccountExists:
			return http.StatusConflict, string(ae.Code)
		case apperr.WeakPassword, apperr.PopupClosed:
			return http.StatusBadRequest, string(ae.Code)
		case apperr.NetworkUnavailable:
			return http.StatusServiceUnavailable, string(ae.Code)
		}
		return http.StatusUnauthorized, string(ae.Code)
	}

	var verr validator.ValidationErrors
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperr.ErrWriteRejected):
		return http.StatusForbidden, "write_rejected"
	case errors.Is(err, apperr.ErrNoIdentity):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, apperr.ErrUploadInProgress):
		return http.StatusConflict, "upload_in_progress"
	case errors.Is(err, apperr.ErrEmptyComment),
		errors.Is(err, apperr.ErrInvalidInput),
		errors.Is(err, richtext.ErrInvalidURL),
		errors.Is(err, richtext.ErrEmptyImageURL),
		errors.As(err, &verr):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, apperr.ErrNetwork):
		return http.StatusServiceUnavailable, "network_failure"
	}
	return http.StatusInternalServerError, "internal"
}

// writeError отвечает JSON-ошибкой. Внутренние ошибки клиенту не раскрываются.
func writeError(c *gin.Context, err error) {
	status, code := statusOf(err)
	_ = c.Error(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: msg, Code: code})
}

// userMessage - текст ошибки для страницы
func userMessage(err error) string {
	status, code := statusOf(err)
	switch {
	case code == string(apperr.InvalidCredentials):
		return "Wrong email or password."
	case code == string(apperr.AccountExists):
		return "An account with this email already exists."
	case code == string(apperr.WeakPassword):
		return "Password must be at least 6 characters."
	case code == string(apperr.PopupClosed):
		return "Sign-in was cancelled."
	case status == http.StatusUnauthorized:
		return "Please log in to continue."
	case status == http.StatusNotFound:
		return "Not found."
	case status == http.StatusForbidden:
		return "You are not allowed to do that."
	case status == http.StatusBadRequest:
		return err.Error()
	case status == http.StatusServiceUnavailable:
		return "The service is unreachable right now. Please try again."
	}
	return "Something went wrong."
}

// loginErrorText - сообщение для кода ошибки, переданного на /login
func loginErrorText(code string) string {
	return userMessage(apperr.Auth(apperr.AuthCode(code), nil))
}
