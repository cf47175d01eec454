package spark

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/knightjoel/zpark/core"
)

func configError(message string) error {
	return goerrors.New("spark: "+message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.BotErrorInfrastructure)
}

func requestError(message string) error {
	return goerrors.New("spark: "+message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.BotErrorMalformedInput)
}

// transportError wraps network-level failures; they are retryable.
func transportError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, "spark: request failed").
		WithTextCode(core.BotErrorTransientBackend)
}

// apiError classifies a non-2xx platform response. 429 and 5xx are
// transient; the rest are permanent for the command sequence.
func apiError(statusCode int, retryAfterHeader string, body []byte) error {
	message := apiMessage(body)
	metadata := map[string]any{"status_code": statusCode}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		metadata["retry_after"] = retryAfter.String()
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return goerrors.New(
			fmt.Sprintf("spark: rate limited (429): %s", message),
			goerrors.CategoryRateLimit,
		).
			WithCode(http.StatusTooManyRequests).
			WithTextCode(core.BotErrorTransientBackend).
			WithMetadata(metadata)
	case statusCode >= http.StatusInternalServerError:
		return goerrors.New(
			fmt.Sprintf("spark: server error (%d): %s", statusCode, message),
			goerrors.CategoryExternal,
		).
			WithCode(statusCode).
			WithTextCode(core.BotErrorTransientBackend).
			WithMetadata(metadata)
	default:
		return goerrors.New(
			fmt.Sprintf("spark: request rejected (%d): %s", statusCode, message),
			goerrors.CategoryExternal,
		).
			WithCode(statusCode).
			WithTextCode(core.BotErrorPermanentBackend).
			WithMetadata(metadata)
	}
}

func apiMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && strings.TrimSpace(payload.Message) != "" {
		return strings.TrimSpace(payload.Message)
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "no detail"
	}
	if len(trimmed) > 200 {
		trimmed = trimmed[:200]
	}
	return trimmed
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
