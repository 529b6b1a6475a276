package transport

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-authclient/core"
)

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	return decorate(goerrors.New(message, category), category, code, metadata, nil)
}

// transportWrapError tags timeouts and cancellations found in source.
func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	return decorate(goerrors.Wrap(source, category, message), category, code, metadata, source)
}

func decorate(
	err *goerrors.Error,
	category goerrors.Category,
	code int,
	metadata map[string]any,
	source error,
) error {
	err = err.WithCode(code).WithTextCode(transportTextCode(category))
	fields := make(map[string]any, len(metadata)+2)
	for key, value := range metadata {
		fields[key] = value
	}
	if _, ok := fields["adapter"]; !ok {
		fields["adapter"] = KindREST
	}
	switch {
	case errors.Is(source, context.DeadlineExceeded):
		fields["timeout"] = true
	case errors.Is(source, context.Canceled):
		fields["canceled"] = true
	}
	return err.WithMetadata(core.RedactSensitiveMap(fields))
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ServiceErrorBadInput
	case goerrors.CategoryAuth:
		return core.ServiceErrorUnauthenticated
	case goerrors.CategoryAuthz:
		return core.ServiceErrorForbidden
	case goerrors.CategoryRateLimit:
		return core.ServiceErrorRateLimited
	case goerrors.CategoryOperation:
		return core.ServiceErrorOperationFailed
	case goerrors.CategoryExternal:
		return core.ServiceErrorTransportFailed
	default:
		return core.ServiceErrorInternal
	}
}
