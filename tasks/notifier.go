package tasks

import (
	"context"
	"fmt"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/knightjoel/zpark/core"
)

// ChatFailureNotifier tells the originating conversation that a
// command hit a problem and is being retried. It speaks up exactly
// once per failure episode: only when the first execution fails.
// Later attempts, the give-up included, stay quiet.
type ChatFailureNotifier struct {
	messenger core.ChatMessenger
	logger    core.Logger
}

func NewChatFailureNotifier(messenger core.ChatMessenger, logger core.Logger) *ChatFailureNotifier {
	return &ChatFailureNotifier{messenger: messenger, logger: glog.Ensure(logger)}
}

func (n *ChatFailureNotifier) NotifyFailure(ctx context.Context, req core.TaskRequest, attempt Attempt) error {
	if n == nil || n.messenger == nil {
		return notifierDependencyError()
	}
	if attempt.Number != 0 {
		return nil
	}

	out := core.OutboundMessage{
		Text: fmt.Sprintf("I ran into a problem handling %q. I'll retry it shortly.", req.Name),
	}
	switch {
	case req.Room.ID != "":
		out.RoomID = req.Room.ID
	case req.IssuerEmail != "":
		out.PersonEmail = req.IssuerEmail
	default:
		n.logger.Warn("failure notification has no addressee", "task", req.Name)
		return nil
	}

	_, err := n.messenger.Send(ctx, out)
	return err
}

var _ Notifier = (*ChatFailureNotifier)(nil)
