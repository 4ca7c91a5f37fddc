package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrArticleNotFound   = errors.New("article not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrSourceUnavailable = errors.New("article source unavailable")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// ArticleDoesNotExist builds the user-visible error returned when the root
// article of a query cannot be found.
func ArticleDoesNotExist(title string) *AppError {
	return Newf(ErrArticleNotFound, http.StatusNotFound, "Article '%s' does not exist on Wikipedia.", title)
}

// InvalidInput builds a 400 error with the given message.
func InvalidInput(format string, args ...any) *AppError {
	return Newf(ErrInvalidInput, http.StatusBadRequest, format, args...)
}

// RateLimited builds the 429 returned to clients that exhausted their
// request budget.
func RateLimited() *AppError {
	return New(ErrRateLimited, http.StatusTooManyRequests, "rate limit exceeded")
}

// Message returns the user-facing message of err, falling back to the
// error text for errors that are not AppErrors.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrArticleNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrSourceUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
