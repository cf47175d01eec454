package commands

import (
	"strings"

	"github.com/knightjoel/zpark/core"
)

const (
	TypeHello      = "zpark.command.hello"
	TypeShowIssues = "zpark.command.show_issues"
	TypeShowStatus = "zpark.command.show_status"
)

type HelloMessage struct {
	Command core.Command
}

func (HelloMessage) Type() string { return TypeHello }

func (m HelloMessage) Validate() error {
	return validateCommand(m.Command)
}

type ShowIssuesMessage struct {
	Command core.Command
}

func (ShowIssuesMessage) Type() string { return TypeShowIssues }

func (m ShowIssuesMessage) Validate() error {
	return validateCommand(m.Command)
}

type ShowStatusMessage struct {
	Command core.Command
}

func (ShowStatusMessage) Type() string { return TypeShowStatus }

func (m ShowStatusMessage) Validate() error {
	return validateCommand(m.Command)
}

func validateCommand(cmd core.Command) error {
	if strings.TrimSpace(cmd.Room.ID) == "" {
		return commandValidationError("room.id", "room id is required")
	}
	if strings.TrimSpace(cmd.Normalized) == "" {
		return commandValidationError("normalized", "command text is required")
	}
	return nil
}
