package transport

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/knightjoel/zpark/core"
)

func wiringError(message string) error {
	return goerrors.New("transport: "+message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.BotErrorInfrastructure)
}

func alertDecodeError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "transport: decode alert request failed").
		WithCode(http.StatusBadRequest).
		WithTextCode(core.BotErrorMalformedInput)
}

func alertFieldsError() error {
	return goerrors.NewValidation(
		"transport: alert request is invalid",
		goerrors.FieldError{Field: "to", Message: "is required"},
		goerrors.FieldError{Field: "subject", Message: "is required"},
	).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.BotErrorMalformedInput)
}

func bodyReadError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "transport: read request body failed").
		WithCode(http.StatusBadRequest).
		WithTextCode(core.BotErrorMalformedInput)
}

func bodyTooLargeError() error {
	return goerrors.New("transport: request body exceeds limit", goerrors.CategoryBadInput).
		WithCode(http.StatusRequestEntityTooLarge).
		WithTextCode(core.BotErrorMalformedInput)
}
