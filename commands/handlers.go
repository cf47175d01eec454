package commands

import (
	"context"
	"fmt"
	"strings"

	gocmd "github.com/goliatone/go-command"

	"github.com/knightjoel/zpark/core"
)

// HelloCommand replies with the bot's identity. It is the smoke-test
// command operators run first.
type HelloCommand struct {
	messenger   core.ChatMessenger
	version     string
	contactInfo string
}

func NewHelloCommand(messenger core.ChatMessenger, version, contactInfo string) *HelloCommand {
	return &HelloCommand{messenger: messenger, version: version, contactInfo: contactInfo}
}

func (c *HelloCommand) Execute(ctx context.Context, msg HelloMessage) error {
	if c == nil || c.messenger == nil {
		return commandDependencyError("commands: hello messenger is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	text := fmt.Sprintf("Hello! I'm Zpark v%s, your Zabbix bot.", c.version)
	if contact := strings.TrimSpace(c.contactInfo); contact != "" {
		text += fmt.Sprintf(" Contact %s with any questions.", contact)
	}

	receipt, err := c.messenger.Send(ctx, core.OutboundMessage{
		RoomID: msg.Command.Room.ID,
		Text:   text,
	})
	if err != nil {
		return err
	}
	storeResult(ctx, receipt)
	return nil
}

// ShowIssuesCommand renders the monitoring backend's active problem
// list into the originating room.
type ShowIssuesCommand struct {
	messenger core.ChatMessenger
	monitor   core.MonitorReader
}

func NewShowIssuesCommand(messenger core.ChatMessenger, monitor core.MonitorReader) *ShowIssuesCommand {
	return &ShowIssuesCommand{messenger: messenger, monitor: monitor}
}

func (c *ShowIssuesCommand) Execute(ctx context.Context, msg ShowIssuesMessage) error {
	if c == nil || c.messenger == nil || c.monitor == nil {
		return commandDependencyError("commands: show issues dependencies are required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	issues, err := c.monitor.ActiveIssues(ctx)
	if err != nil {
		return err
	}

	receipt, err := c.messenger.Send(ctx, core.OutboundMessage{
		RoomID:   msg.Command.Room.ID,
		Text:     renderIssuesText(issues),
		Markdown: renderIssuesMarkdown(issues),
	})
	if err != nil {
		return err
	}
	storeResult(ctx, receipt)
	return nil
}

// ShowStatusCommand reports whether the monitoring backend is
// reachable and which version it runs.
type ShowStatusCommand struct {
	messenger core.ChatMessenger
	monitor   core.MonitorReader
}

func NewShowStatusCommand(messenger core.ChatMessenger, monitor core.MonitorReader) *ShowStatusCommand {
	return &ShowStatusCommand{messenger: messenger, monitor: monitor}
}

func (c *ShowStatusCommand) Execute(ctx context.Context, msg ShowStatusMessage) error {
	if c == nil || c.messenger == nil || c.monitor == nil {
		return commandDependencyError("commands: show status dependencies are required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	status, err := c.monitor.Status(ctx)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("Zabbix server %s is up (version %s).", reachabilityWord(status), status.Version)
	if !status.Reachable {
		text = "Zabbix server is unreachable."
		if detail := strings.TrimSpace(status.Detail); detail != "" {
			text = fmt.Sprintf("Zabbix server is unreachable: %s", detail)
		}
	}

	receipt, err := c.messenger.Send(ctx, core.OutboundMessage{
		RoomID: msg.Command.Room.ID,
		Text:   text,
	})
	if err != nil {
		return err
	}
	storeResult(ctx, receipt)
	return nil
}

func reachabilityWord(status core.MonitorStatus) string {
	if status.Reachable {
		return "reachable"
	}
	return "unreachable"
}

func renderIssuesText(issues []core.Issue) string {
	if len(issues) == 0 {
		return "No active issues. All quiet."
	}
	lines := make([]string, 0, len(issues)+1)
	lines = append(lines, fmt.Sprintf("%d active issue(s):", len(issues)))
	for _, issue := range issues {
		lines = append(lines, fmt.Sprintf("- %s: %s", issue.Host, issue.Description))
	}
	return strings.Join(lines, "\n")
}

func renderIssuesMarkdown(issues []core.Issue) string {
	if len(issues) == 0 {
		return "No active issues. All quiet."
	}
	lines := make([]string, 0, len(issues)+1)
	lines = append(lines, fmt.Sprintf("**%d active issue(s):**", len(issues)))
	for _, issue := range issues {
		lines = append(lines, fmt.Sprintf("1. **%s**: %s", issue.Host, issue.Description))
	}
	return strings.Join(lines, "\n")
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
