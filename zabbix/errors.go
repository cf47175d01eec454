package zabbix

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/knightjoel/zpark/core"
)

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

func (e *rpcError) detail() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Data) != "" {
		return strings.TrimSpace(e.Message) + ": " + strings.TrimSpace(e.Data)
	}
	return strings.TrimSpace(e.Message)
}

func configError(message string) error {
	return goerrors.New("zabbix: "+message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.BotErrorInfrastructure)
}

func transportError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, "zabbix: request failed").
		WithTextCode(core.BotErrorTransientBackend)
}

func httpStatusError(statusCode int) error {
	textCode := core.BotErrorPermanentBackend
	if statusCode >= http.StatusInternalServerError || statusCode == http.StatusTooManyRequests {
		textCode = core.BotErrorTransientBackend
	}
	return goerrors.New(
		fmt.Sprintf("zabbix: endpoint returned status %d", statusCode),
		goerrors.CategoryExternal,
	).
		WithCode(statusCode).
		WithTextCode(textCode)
}

// apiError classifies a JSON-RPC error object. A busy or briefly
// unavailable backend is transient; everything else, bad credentials
// included, is permanent for the sequence.
func apiError(method string, e *rpcError) error {
	detail := e.detail()
	lowered := strings.ToLower(detail)
	transient := strings.Contains(lowered, "busy") ||
		strings.Contains(lowered, "timeout") ||
		strings.Contains(lowered, "temporarily") ||
		strings.Contains(lowered, "unavailable")

	textCode := core.BotErrorPermanentBackend
	if transient {
		textCode = core.BotErrorTransientBackend
	}
	return goerrors.New(
		fmt.Sprintf("zabbix: %s failed (%d): %s", method, e.Code, detail),
		goerrors.CategoryExternal,
	).
		WithTextCode(textCode).
		WithMetadata(map[string]any{"method": method, "rpc_code": e.Code})
}

func rpcUnexpectedError(message string) error {
	return goerrors.New("zabbix: "+message, goerrors.CategoryExternal).
		WithTextCode(core.BotErrorPermanentBackend)
}

// isAuthExpired recognizes the backend's stale-session complaint so
// the client can log in again and replay the call once.
func isAuthExpired(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	message := strings.ToLower(richErr.Message)
	return strings.Contains(message, "not authorised") ||
		strings.Contains(message, "not authorized") ||
		strings.Contains(message, "session terminated") ||
		strings.Contains(message, "re-login")
}
