package commands

import (
	"context"
	"sort"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/knightjoel/zpark/core"
)

// Registration binds one command phrase to a handler invocation and
// the retry class its execution runs under.
type Registration struct {
	Name    string
	Class   string
	Handler func(ctx context.Context, cmd core.Command) error
}

// Table is the static command set. Keys are exact lower-case phrases;
// there is no prefix or fuzzy matching.
type Table struct {
	entries map[string]Registration
}

func NewTable() *Table {
	return &Table{entries: map[string]Registration{}}
}

func (t *Table) Register(reg Registration) error {
	name := strings.ToLower(strings.TrimSpace(reg.Name))
	if name == "" {
		return commandValidationError("name", "registration name is required")
	}
	if reg.Handler == nil {
		return commandValidationError("handler", "registration handler is required")
	}
	if _, exists := t.entries[name]; exists {
		return duplicateRegistrationError(name)
	}
	if strings.TrimSpace(reg.Class) == "" {
		reg.Class = core.TaskClassReport
	}
	reg.Name = name
	t.entries[name] = reg
	return nil
}

func (t *Table) Lookup(normalized string) (Registration, bool) {
	if t == nil {
		return Registration{}, false
	}
	reg, ok := t.entries[strings.ToLower(strings.TrimSpace(normalized))]
	return reg, ok
}

// Names returns the registered phrases in sorted order.
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewDefaultTable wires the fixed command set against the chat and
// monitoring backends.
func NewDefaultTable(messenger core.ChatMessenger, monitor core.MonitorReader, version, contactInfo string) (*Table, error) {
	table := NewTable()

	hello := NewHelloCommand(messenger, version, contactInfo)
	showIssues := NewShowIssuesCommand(messenger, monitor)
	showStatus := NewShowStatusCommand(messenger, monitor)

	registrations := []Registration{
		{
			Name:  "hello",
			Class: core.TaskClassReport,
			Handler: func(ctx context.Context, cmd core.Command) error {
				return hello.Execute(ctx, HelloMessage{Command: cmd})
			},
		},
		{
			Name:  "show issues",
			Class: core.TaskClassReport,
			Handler: func(ctx context.Context, cmd core.Command) error {
				return showIssues.Execute(ctx, ShowIssuesMessage{Command: cmd})
			},
		},
		{
			Name:  "show status",
			Class: core.TaskClassReport,
			Handler: func(ctx context.Context, cmd core.Command) error {
				return showStatus.Execute(ctx, ShowStatusMessage{Command: cmd})
			},
		},
	}
	for _, reg := range registrations {
		if err := table.Register(reg); err != nil {
			return nil, err
		}
	}
	return table, nil
}

// Dispatcher resolves an extracted command against the table and
// submits the matching handler to the task executor.
type Dispatcher struct {
	table    *Table
	executor core.TaskSubmitter
	logger   core.Logger
}

func NewDispatcher(table *Table, executor core.TaskSubmitter, logger core.Logger) *Dispatcher {
	return &Dispatcher{
		table:    table,
		executor: executor,
		logger:   glog.Ensure(logger),
	}
}

// Dispatch returns the tracking id of the submitted task. An unknown
// phrase comes back as an unknown-command error the caller soaks up
// without replying; a submission failure is an infrastructure error.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd core.Command) (string, error) {
	if d == nil || d.table == nil || d.executor == nil {
		return "", commandDependencyError("commands: dispatcher is not wired")
	}

	reg, ok := d.table.Lookup(cmd.Normalized)
	if !ok {
		d.logger.Info("ignoring unknown command",
			"command", cmd.Normalized, "room_id", cmd.Room.ID)
		return "", unknownCommandError(cmd.Normalized)
	}

	handler := reg.Handler
	command := cmd
	taskID, err := d.executor.Submit(ctx, core.TaskRequest{
		Name:        reg.Name,
		Class:       reg.Class,
		Room:        cmd.Room,
		IssuerEmail: cmd.IssuerEmail,
		Run: func(ctx context.Context) error {
			return handler(ctx, command)
		},
	})
	if err != nil {
		return "", submissionError(err, reg.Name)
	}

	d.logger.Debug("command dispatched",
		"command", reg.Name, "task_id", taskID, "room_id", cmd.Room.ID)
	return taskID, nil
}
