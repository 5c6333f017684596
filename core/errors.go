package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorNetwork         = "SUBMISSIONS_NETWORK_ERROR"
	ErrorAuth            = "SUBMISSIONS_AUTH_ERROR"
	ErrorSessionExpired  = "SUBMISSIONS_SESSION_EXPIRED"
	ErrorHTTP            = "SUBMISSIONS_HTTP_ERROR"
	ErrorValidation      = "SUBMISSIONS_VALIDATION_ERROR"
	ErrorBlockedPending  = "SUBMISSION_BLOCKED_PENDING"
	ErrorBlockedApproved = "SUBMISSION_BLOCKED_APPROVED"
	ErrorSessionChanged  = "SUBMISSIONS_SESSION_CHANGED"
	ErrorNoSession       = "SUBMISSIONS_NO_SESSION"
	ErrorInternal        = "SUBMISSIONS_INTERNAL_ERROR"
	ErrorNotFound        = "SUBMISSIONS_NOT_FOUND"
	ErrorConflict        = "SUBMISSIONS_CONFLICT"
	ErrorRateLimited     = "SUBMISSIONS_RATE_LIMITED"
)

var (
	ErrNoSession      = errors.New("core: no active session")
	ErrSessionChanged = errors.New("core: session changed while request was in flight")
)

// NetworkError reports a transport failure where no HTTP response was received.
func NetworkError(source error, metadata map[string]any) *goerrors.Error {
	message := "network request failed"
	if source != nil {
		message = "network request failed: " + source.Error()
	}
	err := goerrors.New(message, goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(ErrorNetwork)
	err.Source = source
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// AuthError reports a credential failure that could not be recovered by refresh.
func AuthError(message string, textCode string, metadata map[string]any) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = "authentication required"
	}
	if strings.TrimSpace(textCode) == "" {
		textCode = ErrorAuth
	}
	err := goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// HTTPError reports a non-2xx response. The message is the server supplied one
// when available, otherwise a status derived message.
func HTTPError(status int, message string, metadata map[string]any) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = http.StatusText(status)
		if message == "" {
			message = "request failed"
		}
	}
	err := goerrors.New(message, httpStatusCategory(status)).
		WithCode(status).
		WithTextCode(ErrorHTTP)
	meta := map[string]any{"status": status}
	for key, value := range metadata {
		meta[key] = value
	}
	return err.WithMetadata(meta)
}

func ValidationError(message string, textCode string, fields ...goerrors.FieldError) *goerrors.Error {
	err := goerrors.NewValidation(message, fields...)
	err.Code = http.StatusBadRequest
	if strings.TrimSpace(textCode) == "" {
		textCode = ErrorValidation
	}
	err.TextCode = textCode
	return err
}

// SessionChangedError reports a result dropped because the session it was
// issued for has ended.
func SessionChangedError(operation string) *goerrors.Error {
	return goerrors.Wrap(ErrSessionChanged, goerrors.CategoryConflict, operation+": response discarded").
		WithCode(http.StatusConflict).
		WithTextCode(ErrorSessionChanged)
}

func noSessionError(operation string) *goerrors.Error {
	return AuthError(operation+": no active session", ErrorNoSession, nil)
}

func IsNetworkError(err error) bool {
	return hasTextCode(err, ErrorNetwork)
}

func IsAuthError(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.Category == goerrors.CategoryAuth
}

func IsValidationError(err error) bool {
	return goerrors.IsValidation(err)
}

func IsSessionChanged(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSessionChanged) {
		return true
	}
	return hasTextCode(err, ErrorSessionChanged)
}

// HTTPStatus returns the status carried by an HttpError, or zero.
func HTTPStatus(err error) int {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != ErrorHTTP {
		return 0
	}
	return rich.Code
}

func hasTextCode(err error, textCode string) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == textCode
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrSessionChanged):
		return SessionChangedError("core")
	case errors.Is(err, ErrNoSession):
		return noSessionError("core")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return NetworkError(err, nil)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ErrorValidation)
	case strings.Contains(msg, "rate limit"):
		return newServiceError(err.Error(), goerrors.CategoryRateLimit, ErrorRateLimited)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = categoryHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorValidation
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorAuth
	case goerrors.CategoryConflict:
		return ErrorConflict
	case goerrors.CategoryRateLimit:
		return ErrorRateLimited
	case goerrors.CategoryExternal:
		return ErrorNetwork
	default:
		return ErrorInternal
	}
}

func categoryHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func httpStatusCategory(status int) goerrors.Category {
	switch {
	case status == http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case status == http.StatusForbidden:
		return goerrors.CategoryAuthz
	case status == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case status == http.StatusConflict:
		return goerrors.CategoryConflict
	case status == http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return goerrors.CategoryBadInput
	case status >= 500:
		return goerrors.CategoryExternal
	default:
		return goerrors.CategoryOperation
	}
}
