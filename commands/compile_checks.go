package commands

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[HelloMessage]      = (*HelloCommand)(nil)
	_ gocmd.Commander[ShowIssuesMessage] = (*ShowIssuesCommand)(nil)
	_ gocmd.Commander[ShowStatusMessage] = (*ShowStatusCommand)(nil)
)
