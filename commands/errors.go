package commands

import (
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/knightjoel/zpark/core"
)

func commandDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.BotErrorInfrastructure)
}

func commandValidationError(field string, message string) error {
	return goerrors.NewValidation("commands: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.BotErrorMalformedInput).
		WithSeverity(goerrors.SeverityError)
}

func unknownCommandError(normalized string) error {
	return goerrors.New(
		fmt.Sprintf("commands: no registration for %q", normalized),
		goerrors.CategoryNotFound,
	).
		WithTextCode(core.BotErrorUnknownCommand).
		WithMetadata(map[string]any{"command": normalized})
}

func duplicateRegistrationError(name string) error {
	return goerrors.New(
		fmt.Sprintf("commands: %q is already registered", name),
		goerrors.CategoryConflict,
	).
		WithCode(http.StatusConflict).
		WithTextCode(core.BotErrorInfrastructure)
}

func submissionError(err error, name string) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, "commands: task submission failed").
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.BotErrorInfrastructure).
		WithMetadata(map[string]any{"command": name})
}

// IsUnknownCommand reports whether dispatch failed only because the
// text matched no registration.
func IsUnknownCommand(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == core.BotErrorUnknownCommand
	}
	return false
}
