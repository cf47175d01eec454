package tasks

import (
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/knightjoel/zpark/core"
)

func executorStateError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.BotErrorInfrastructure)
}

func submissionInvalidError(message string) error {
	return goerrors.New("tasks: "+message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.BotErrorMalformedInput)
}

func queueFullError(name string) error {
	return goerrors.New(
		fmt.Sprintf("tasks: submission queue is full, dropping %q", name),
		goerrors.CategoryInternal,
	).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.BotErrorInfrastructure).
		WithMetadata(map[string]any{"task": name})
}

func submissionBackendError(name string, err error) error {
	return goerrors.Wrap(
		err,
		goerrors.CategoryInternal,
		fmt.Sprintf("tasks: could not enqueue %q", name),
	).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.BotErrorInfrastructure).
		WithMetadata(map[string]any{"task": name})
}

func notifierDependencyError() error {
	return goerrors.New("tasks: failure notifier requires a messenger", goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.BotErrorInfrastructure)
}
