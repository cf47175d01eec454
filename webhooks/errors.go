package webhooks

import (
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/knightjoel/zpark/core"
)

func signatureRequiredError() error {
	return goerrors.New("webhooks: signature header is required", goerrors.CategoryAuth).
		WithCode(http.StatusForbidden).
		WithTextCode(core.BotErrorUnauthenticated)
}

func signatureMismatchError() error {
	return goerrors.New("webhooks: signature verification failed", goerrors.CategoryAuth).
		WithCode(http.StatusForbidden).
		WithTextCode(core.BotErrorUnauthenticated)
}

func tokenUnsetError() error {
	return goerrors.New("webhooks: alert api token is not configured", goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(core.BotErrorUnauthenticated)
}

func tokenRequiredError() error {
	return goerrors.New("webhooks: alert token header is required", goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(core.BotErrorUnauthenticated)
}

func tokenMismatchError() error {
	return goerrors.New("webhooks: alert token mismatch", goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(core.BotErrorUnauthenticated)
}

func decodeError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "webhooks: decode envelope failed").
		WithCode(http.StatusBadRequest).
		WithTextCode(core.BotErrorMalformedInput)
}

func unsupportedEventError(resource, event string) error {
	return goerrors.New(
		fmt.Sprintf("webhooks: unsupported resource/event %q/%q", resource, event),
		goerrors.CategoryBadInput,
	).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.BotErrorMalformedInput).
		WithMetadata(map[string]any{"resource": resource, "event": event})
}

func deliveryIDRequiredError() error {
	return goerrors.New("webhooks: delivery id is required", goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.BotErrorMalformedInput)
}

func deliveryNotFoundError(deliveryID string) error {
	return goerrors.New(
		fmt.Sprintf("webhooks: delivery %q not found", deliveryID),
		goerrors.CategoryNotFound,
	).
		WithCode(http.StatusNotFound).
		WithTextCode(core.BotErrorInfrastructure)
}

func processorDependencyError(message string) error {
	return goerrors.New("webhooks: "+message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.BotErrorInfrastructure)
}

func intakeBackendError(err error, stage string) error {
	mapped := core.BotErrorMapper(err)
	if mapped == nil {
		return nil
	}
	return mapped.WithMetadata(map[string]any{"stage": stage})
}
