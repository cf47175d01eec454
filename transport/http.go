// Package transport is the REST edge: webhook intake, the alert API,
// and the ping probe.
package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/knightjoel/zpark/core"
	"github.com/knightjoel/zpark/webhooks"
)

// APIVersion is reported by the ping endpoint.
const APIVersion = "v1"

const maxRequestBodyBytes int64 = 1 << 20 // 1 MiB

// AlertRequest is the alert API body. A "to" containing "@" addresses
// a person by email, anything else addresses a room by id.
type AlertRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type alertResponse struct {
	TaskID string `json:"taskid"`
}

type webhookResponse struct {
	TaskID  string `json:"taskid,omitempty"`
	Status  string `json:"status,omitempty"`
	Deduped bool   `json:"deduped,omitempty"`
}

type pingResponse struct {
	Hello      string `json:"hello"`
	APIVersion string `json:"apiversion"`
	UTCTime    string `json:"utctime"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code     int    `json:"code"`
	TextCode string `json:"text_code,omitempty"`
	Message  string `json:"message"`
}

// API serves the three inbound surfaces. The processor owns webhook
// semantics; the API only moves bytes and writes envelopes.
type API struct {
	Processor     *webhooks.Processor
	AlertVerifier webhooks.TokenVerifier
	Messenger     core.ChatMessenger
	Tasks         core.TaskSubmitter
	Version       string

	Logger  core.Logger
	Metrics core.MetricsRecorder

	// Now is injectable for the ping timestamp.
	Now func() time.Time
}

func (a *API) logger() core.Logger {
	if a == nil || a.Logger == nil {
		return glog.Nop()
	}
	return a.Logger
}

func (a *API) metrics() core.MetricsRecorder {
	if a == nil || a.Metrics == nil {
		return core.NopMetricsRecorder{}
	}
	return a.Metrics
}

func (a *API) now() time.Time {
	if a == nil || a.Now == nil {
		return time.Now().UTC()
	}
	return a.Now()
}

// Handler builds the route table.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/webhook", a.handleWebhook)
	mux.HandleFunc("POST /api/v1/alert", a.handleAlert)
	mux.HandleFunc("GET /api/v1/ping", a.handlePing)
	return mux
}

func (a *API) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if a.Processor == nil {
		writeError(w, wiringError("webhook processor is not configured"))
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := a.Processor.Process(r.Context(), body, r.Header.Get(webhooks.HeaderSignature))
	if err != nil && result.StatusCode >= http.StatusBadRequest {
		writeErrorWithStatus(w, err, result.StatusCode)
		return
	}

	response := webhookResponse{TaskID: result.TaskID, Deduped: result.Deduped}
	switch {
	case result.TaskID != "":
		response.Status = "dispatched"
	case result.Deduped:
		response.Status = "duplicate"
	default:
		response.Status = "ignored"
	}
	writeJSON(w, result.StatusCode, response)
}

func (a *API) handleAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	metrics := a.metrics()
	metrics.IncCounter(ctx, "alerts.received", 1, nil)

	if err := a.AlertVerifier.Verify(r.Header.Get(webhooks.HeaderToken)); err != nil {
		metrics.IncCounter(ctx, "alerts.rejected", 1, map[string]string{"reason": "token"})
		writeError(w, err)
		return
	}
	if a.Messenger == nil || a.Tasks == nil {
		writeError(w, wiringError("alert delivery is not configured"))
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var request AlertRequest
	if err := json.Unmarshal(body, &request); err != nil {
		writeError(w, alertDecodeError(err))
		return
	}

	outbound, err := alertMessage(request)
	if err != nil {
		writeError(w, err)
		return
	}

	messenger := a.Messenger
	taskID, err := a.Tasks.Submit(ctx, core.TaskRequest{
		Name:        "alert",
		Class:       core.TaskClassMessage,
		Room:        core.Room{ID: outbound.RoomID},
		IssuerEmail: outbound.PersonEmail,
		Run: func(runCtx context.Context) error {
			_, sendErr := messenger.Send(runCtx, outbound)
			return sendErr
		},
	})
	if err != nil {
		metrics.IncCounter(ctx, "alerts.rejected", 1, map[string]string{"reason": "submit"})
		writeError(w, err)
		return
	}

	metrics.IncCounter(ctx, "alerts.accepted", 1, nil)
	a.logger().Info("alert accepted", "task_id", taskID, "to", request.To)
	writeJSON(w, http.StatusOK, alertResponse{TaskID: taskID})
}

func (a *API) handlePing(w http.ResponseWriter, r *http.Request) {
	if err := a.AlertVerifier.Verify(r.Header.Get(webhooks.HeaderToken)); err != nil {
		writeError(w, err)
		return
	}

	version := strings.TrimSpace(a.Version)
	if version == "" {
		version = "dev"
	}
	writeJSON(w, http.StatusOK, pingResponse{
		Hello:      "Hello! I'm Zpark v" + version,
		APIVersion: APIVersion,
		UTCTime:    a.now().UTC().Format(time.RFC3339),
	})
}

// alertMessage validates the request and shapes the outbound message.
func alertMessage(request AlertRequest) (core.OutboundMessage, error) {
	to := strings.TrimSpace(request.To)
	subject := strings.TrimSpace(request.Subject)
	if to == "" || subject == "" {
		return core.OutboundMessage{}, alertFieldsError()
	}

	text := subject
	if message := strings.TrimSpace(request.Message); message != "" {
		text = subject + "\n\n" + message
	}

	outbound := core.OutboundMessage{Text: text}
	if strings.Contains(to, "@") {
		outbound.PersonEmail = to
	} else {
		outbound.RoomID = to
	}
	return outbound, nil
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes+1))
	if err != nil {
		return nil, bodyReadError(err)
	}
	if int64(len(body)) > maxRequestBodyBytes {
		return nil, bodyTooLargeError()
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status <= 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeErrorWithStatus(w, err, 0)
}

func writeErrorWithStatus(w http.ResponseWriter, err error, status int) {
	mapped := core.BotErrorMapper(err)
	if mapped == nil {
		writeJSON(w, http.StatusOK, webhookResponse{Status: "ignored"})
		return
	}
	code := status
	if code <= 0 {
		code = mapped.Code
	}
	if code <= 0 {
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, errorResponse{Error: errorBody{
		Code:     code,
		TextCode: mapped.TextCode,
		Message:  mapped.Message,
	}})
}
