package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/knightjoel/zpark/commands"
	"github.com/knightjoel/zpark/core"
)

// IntakeResult is what the transport layer turns into an HTTP reply.
// Soft outcomes (untrusted sender, unknown command, duplicate) are
// 200s so the platform stops redelivering.
type IntakeResult struct {
	StatusCode int
	TaskID     string
	Deduped    bool
	Ignored    bool
	Detail     string
}

// Processor walks one webhook delivery through the intake pipeline:
// signature, envelope shape, trust, dedupe claim, message fetch,
// extraction, dispatch.
type Processor struct {
	Verifier   SignatureVerifier
	Ledger     DeliveryLedger
	Messages   core.MessageSource
	Rooms      core.RoomSource
	People     core.PersonResolver
	Trust      core.TrustPolicy
	Extractor  *commands.Extractor
	Dispatcher *commands.Dispatcher

	// BotPersonID filters the bot's own messages out of the loop the
	// platform would otherwise feed back to us.
	BotPersonID string

	Logger  core.Logger
	Metrics core.MetricsRecorder
}

func (p *Processor) logger() core.Logger {
	if p == nil || p.Logger == nil {
		return glog.Nop()
	}
	return p.Logger
}

func (p *Processor) metrics() core.MetricsRecorder {
	if p == nil || p.Metrics == nil {
		return core.NopMetricsRecorder{}
	}
	return p.Metrics
}

// Process handles one delivery. The error return is non-nil for 4xx
// and 5xx outcomes and already carries the bot error envelope.
func (p *Processor) Process(ctx context.Context, body []byte, signatureHeader string) (IntakeResult, error) {
	if p == nil || p.Ledger == nil || p.Messages == nil || p.Rooms == nil ||
		p.Trust == nil || p.Extractor == nil || p.Dispatcher == nil {
		err := processorDependencyError("processor is not fully wired")
		return IntakeResult{StatusCode: http.StatusInternalServerError}, err
	}
	log := p.logger()
	metrics := p.metrics()
	metrics.IncCounter(ctx, "webhooks.received", 1, nil)

	if err := p.Verifier.Verify(body, signatureHeader); err != nil {
		metrics.IncCounter(ctx, "webhooks.rejected", 1, map[string]string{"reason": "signature"})
		log.Warn("webhook signature rejected", "error", err)
		return IntakeResult{StatusCode: http.StatusForbidden}, err
	}

	var envelope core.WebhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return IntakeResult{StatusCode: http.StatusBadRequest}, decodeError(err)
	}
	if err := envelope.Validate(); err != nil {
		return IntakeResult{StatusCode: http.StatusBadRequest}, err
	}
	if !envelope.IsMessageCreated() {
		err := unsupportedEventError(envelope.Resource, envelope.Event)
		return IntakeResult{StatusCode: http.StatusBadRequest}, err
	}

	if p.BotPersonID != "" && envelope.Data.PersonID == p.BotPersonID {
		// our own reply came back around; never answer ourselves
		return IntakeResult{StatusCode: http.StatusOK, Ignored: true, Detail: "own message"}, nil
	}

	senderEmail := strings.TrimSpace(envelope.Data.PersonEmail)
	allowed, err := p.Trust.Allows(senderEmail)
	if err != nil {
		return IntakeResult{StatusCode: http.StatusBadRequest}, err
	}
	if !allowed {
		metrics.IncCounter(ctx, "webhooks.rejected", 1, map[string]string{"reason": "untrusted"})
		log.Info("ignoring message from untrusted sender", "sender", senderEmail)
		return IntakeResult{StatusCode: http.StatusOK, Ignored: true, Detail: "untrusted sender"}, nil
	}

	_, duplicate, err := p.Ledger.Claim(ctx, envelope.ID, body)
	if err != nil {
		return IntakeResult{StatusCode: http.StatusInternalServerError},
			intakeBackendError(err, "claim")
	}
	if duplicate {
		metrics.IncCounter(ctx, "webhooks.deduped", 1, nil)
		log.Debug("duplicate delivery ignored", "delivery_id", envelope.ID)
		return IntakeResult{StatusCode: http.StatusOK, Deduped: true}, nil
	}

	message, err := p.Messages.GetMessage(ctx, envelope.Data.ID)
	if err != nil {
		p.release(ctx, envelope.ID)
		return p.backendFailure(err, "fetch_message")
	}
	room, err := p.Rooms.GetRoom(ctx, envelope.Data.RoomID)
	if err != nil {
		p.release(ctx, envelope.ID)
		return p.backendFailure(err, "fetch_room")
	}

	if message.PersonEmail == "" {
		message.PersonEmail = senderEmail
	}
	if p.People != nil && message.PersonEmail == "" {
		if person, resolveErr := p.People.ResolvePerson(ctx, envelope.Data.PersonID); resolveErr == nil {
			message.PersonEmail = person.Email()
		} else {
			log.Debug("sender profile resolution failed", "person_id", envelope.Data.PersonID, "error", resolveErr)
		}
	}

	cmd, ok := p.Extractor.Extract(message, room)
	if !ok {
		p.markProcessed(ctx, envelope.ID)
		return IntakeResult{StatusCode: http.StatusOK, Ignored: true, Detail: "not a command"}, nil
	}

	taskID, err := p.Dispatcher.Dispatch(ctx, cmd)
	if err != nil {
		if commands.IsUnknownCommand(err) {
			p.markProcessed(ctx, envelope.ID)
			metrics.IncCounter(ctx, "webhooks.unknown_command", 1, nil)
			return IntakeResult{StatusCode: http.StatusOK, Ignored: true, Detail: "unknown command"}, nil
		}
		p.release(ctx, envelope.ID)
		return IntakeResult{StatusCode: http.StatusInternalServerError},
			intakeBackendError(err, "dispatch")
	}

	p.markProcessed(ctx, envelope.ID)
	metrics.IncCounter(ctx, "webhooks.dispatched", 1, map[string]string{"command": cmd.Normalized})
	log.Info("webhook dispatched", "delivery_id", envelope.ID, "command", cmd.Normalized, "task_id", taskID)
	return IntakeResult{StatusCode: http.StatusOK, TaskID: taskID}, nil
}

func (p *Processor) backendFailure(err error, stage string) (IntakeResult, error) {
	mapped := intakeBackendError(err, stage)
	status := http.StatusInternalServerError
	var richErr *goerrors.Error
	if goerrors.As(mapped, &richErr) && richErr.Code >= http.StatusInternalServerError {
		status = richErr.Code
	}
	return IntakeResult{StatusCode: status}, mapped
}

// release drops the claim after a post-claim failure. Without it the
// platform's redelivery would dedupe against a command that never ran.
func (p *Processor) release(ctx context.Context, deliveryID string) {
	if err := p.Ledger.Release(ctx, deliveryID); err != nil {
		p.logger().Warn("could not release delivery claim", "delivery_id", deliveryID, "error", err)
	}
}

func (p *Processor) markProcessed(ctx context.Context, deliveryID string) {
	if err := p.Ledger.MarkProcessed(ctx, deliveryID); err != nil {
		p.logger().Warn("could not mark delivery processed", "delivery_id", deliveryID, "error", err)
	}
}
