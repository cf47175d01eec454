package core

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	BotErrorMalformedInput   = "BOT_MALFORMED_INPUT"
	BotErrorUnauthenticated  = "BOT_UNAUTHENTICATED"
	BotErrorUntrustedSender  = "BOT_UNTRUSTED_SENDER"
	BotErrorUnknownCommand   = "BOT_UNKNOWN_COMMAND"
	BotErrorTransientBackend = "BOT_TRANSIENT_BACKEND"
	BotErrorPermanentBackend = "BOT_PERMANENT_BACKEND"
	BotErrorInfrastructure   = "BOT_INFRASTRUCTURE"
)

// BotErrorMapper normalizes any error into the bot's goerrors envelope
// so the transport layer can map it onto an HTTP status without
// inspecting package-specific error types.
func BotErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureBotErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"):
		return newEnvelopedError(err.Error(), goerrors.CategoryAuth, BotErrorUnauthenticated)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newEnvelopedError(err.Error(), goerrors.CategoryRateLimit, BotErrorTransientBackend)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "missing"):
		return newEnvelopedError(err.Error(), goerrors.CategoryBadInput, BotErrorMalformedInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureBotErrorEnvelope(mapped)
}

func newEnvelopedError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureBotErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureBotErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = botHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultBotTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultBotTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return BotErrorMalformedInput
	case goerrors.CategoryAuth:
		return BotErrorUnauthenticated
	case goerrors.CategoryAuthz:
		return BotErrorUntrustedSender
	case goerrors.CategoryNotFound:
		return BotErrorUnknownCommand
	case goerrors.CategoryRateLimit:
		return BotErrorTransientBackend
	case goerrors.CategoryExternal, goerrors.CategoryOperation:
		return BotErrorPermanentBackend
	default:
		return BotErrorInfrastructure
	}
}

func botHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusForbidden
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// IsTransientBackend reports whether an error carries the bot's
// transient classification: retry is expected to help.
func IsTransientBackend(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if strings.TrimSpace(richErr.TextCode) == BotErrorTransientBackend {
			return true
		}
		return richErr.Category == goerrors.CategoryRateLimit
	}
	return false
}

func newBotError(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(BotErrorMalformedInput)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func envelopeFieldError(field string) error {
	return goerrors.New(
		fmt.Sprintf("core: webhook envelope field %q is required", field),
		goerrors.CategoryBadInput,
	).
		WithCode(http.StatusBadRequest).
		WithTextCode(BotErrorMalformedInput).
		WithMetadata(map[string]any{"field": field})
}
