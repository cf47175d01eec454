// Package commands turns chat messages into bot commands and executes
// them. Extraction is deliberately conservative: anything that does
// not look exactly like a command is dropped without a reply.
package commands

import (
	"regexp"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/knightjoel/zpark/core"
)

const maxCommandLength = 79

var (
	commandPattern = regexp.MustCompile(`^[A-Za-z0-9 ]+$`)
	mentionPattern = regexp.MustCompile(`(?is)^(?:\s*<p>)?\s*<spark-mention\b[^>]*>(.*?)</spark-mention>`)
)

// Extractor derives a Command from a fetched chat message. In a group
// room the message must open with a mention of the bot; in a direct
// room the whole text is the candidate command.
type Extractor struct {
	logger core.Logger
}

func NewExtractor(logger core.Logger) *Extractor {
	return &Extractor{logger: glog.Ensure(logger)}
}

// Extract returns the parsed command and whether the message yielded
// one. A false return is a silent ignore: the message was not meant
// for the bot, exceeded limits, or broke the allowed character set.
func (e *Extractor) Extract(msg core.ChatMessage, room core.Room) (core.Command, bool) {
	if e == nil {
		return core.Command{}, false
	}

	candidate := strings.TrimSpace(msg.Text)
	if room.IsDirect() {
		return e.finish(msg, room, candidate)
	}

	match := mentionPattern.FindStringSubmatch(msg.HTML)
	if match == nil {
		// group messages reach the bot only via a mention; a missing
		// span means the platform sent something we did not ask for
		e.logger.Debug("group message without a leading mention span",
			"message_id", msg.ID, "room_id", room.ID)
		return core.Command{}, false
	}
	mentionName := strings.TrimSpace(stripTags(match[1]))

	candidate = stripMentionPrefix(candidate, mentionName)
	return e.finish(msg, room, candidate)
}

func (e *Extractor) finish(msg core.ChatMessage, room core.Room, candidate string) (core.Command, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return core.Command{}, false
	}
	if len(candidate) > maxCommandLength {
		e.logger.Debug("dropping over-long command candidate",
			"message_id", msg.ID, "length", len(candidate))
		return core.Command{}, false
	}
	if !commandPattern.MatchString(candidate) {
		e.logger.Debug("dropping command candidate with disallowed characters",
			"message_id", msg.ID)
		return core.Command{}, false
	}

	return core.Command{
		Raw:         candidate,
		Normalized:  strings.ToLower(candidate),
		IssuerEmail: strings.TrimSpace(msg.PersonEmail),
		Room:        room,
	}, true
}

// stripMentionPrefix removes the bot's display name from the front of
// the plain text plus any delimiter run that follows it. The platform
// renders a mention as the display name in the text body.
func stripMentionPrefix(text, mentionName string) string {
	if mentionName == "" {
		return text
	}
	if len(text) >= len(mentionName) && strings.EqualFold(text[:len(mentionName)], mentionName) {
		text = text[len(mentionName):]
	}
	return strings.TrimLeft(text, ",;: \t\r\n")
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string {
	return tagPattern.ReplaceAllString(s, "")
}
