package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput          = "AUTH_CLIENT_BAD_INPUT"
	ServiceErrorUnauthenticated   = "AUTH_CLIENT_UNAUTHENTICATED"
	ServiceErrorRefreshFailed     = "AUTH_CLIENT_REFRESH_FAILED"
	ServiceErrorSessionNotFound   = "AUTH_CLIENT_SESSION_NOT_FOUND"
	ServiceErrorForbidden         = "AUTH_CLIENT_FORBIDDEN"
	ServiceErrorRateLimited       = "AUTH_CLIENT_RATE_LIMITED"
	ServiceErrorConflict          = "AUTH_CLIENT_CONFLICT"
	ServiceErrorTransportFailed   = "AUTH_CLIENT_TRANSPORT_FAILED"
	ServiceErrorOperationFailed   = "AUTH_CLIENT_OPERATION_FAILED"
	ServiceErrorInternal          = "AUTH_CLIENT_INTERNAL_ERROR"
	RefreshFailureReasonRejected  = "rejected"
	RefreshFailureReasonTimeout   = "timeout"
	RefreshFailureReasonNoSession = "no_session"
)

var (
	ErrSessionNotFound = errors.New("core: session not found")
	ErrNoSession       = errors.New("core: no credential stored")
)

// NewAuthenticationFailure reports a 401 that the pipeline did not (or could
// no longer) recover from.
func NewAuthenticationFailure(url string, statusCode int) *goerrors.Error {
	if statusCode == 0 {
		statusCode = http.StatusUnauthorized
	}
	return goerrors.New("core: request was not authenticated", goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(ServiceErrorUnauthenticated).
		WithMetadata(map[string]any{
			"url":         strings.TrimSpace(url),
			"status_code": statusCode,
		})
}

// NewRefreshFailure wraps the cause of a failed refresh. The session it was
// raised for is over.
func NewRefreshFailure(source error, reason string) *goerrors.Error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = RefreshFailureReasonRejected
	}
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New("core: credential refresh failed", goerrors.CategoryAuth)
	} else {
		err = goerrors.Wrap(source, goerrors.CategoryAuth, "core: credential refresh failed")
	}
	return err.
		WithCode(http.StatusUnauthorized).
		WithTextCode(ServiceErrorRefreshFailed).
		WithMetadata(map[string]any{"reason": reason})
}

func IsAuthenticationFailure(err error) bool {
	return hasTextCode(err, ServiceErrorUnauthenticated)
}

func IsRefreshFailure(err error) bool {
	return hasTextCode(err, ServiceErrorRefreshFailed)
}

func IsTransportFailure(err error) bool {
	return hasTextCode(err, ServiceErrorTransportFailed)
}

func hasTextCode(err error, textCode string) bool {
	richErr := asRichError(err)
	if richErr == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(richErr.TextCode), textCode)
}

func asRichError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return nil
	}
	return richErr
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrNoSession) {
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorSessionNotFound)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "unauthenticated"):
		return newServiceError(err.Error(), goerrors.CategoryAuth, ServiceErrorUnauthenticated)
	case strings.Contains(msg, "refresh") && strings.Contains(msg, "failed"):
		return newServiceError(err.Error(), goerrors.CategoryAuth, ServiceErrorRefreshFailed)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newServiceError(err.Error(), goerrors.CategoryRateLimit, ServiceErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return ServiceErrorSessionNotFound
	case goerrors.CategoryAuth:
		return ServiceErrorUnauthenticated
	case goerrors.CategoryAuthz:
		return ServiceErrorForbidden
	case goerrors.CategoryConflict:
		return ServiceErrorConflict
	case goerrors.CategoryRateLimit:
		return ServiceErrorRateLimited
	case goerrors.CategoryExternal:
		return ServiceErrorTransportFailed
	case goerrors.CategoryOperation:
		return ServiceErrorOperationFailed
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
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
