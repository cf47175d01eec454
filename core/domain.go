package core

import (
	"strings"
)

const (
	// ResourceMessages and EventCreated gate the webhook pipeline: any
	// other resource/event combination is rejected before authorization.
	ResourceMessages = "messages"
	EventCreated     = "created"
)

const (
	RoomTypeDirect = "direct"
	RoomTypeGroup  = "group"
)

// WebhookEnvelope is the event payload the chat platform pushes when a
// message is created. Field names match the platform's wire format
// exactly; the envelope is immutable once decoded and discarded after
// dispatch.
type WebhookEnvelope struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Resource string      `json:"resource"`
	Event    string      `json:"event"`
	ActorID  string      `json:"actorId"`
	Data     WebhookData `json:"data"`
}

type WebhookData struct {
	ID          string `json:"id"`
	RoomID      string `json:"roomId"`
	PersonID    string `json:"personId"`
	PersonEmail string `json:"personEmail"`
	Created     string `json:"created"`
}

// Validate checks the structural fields the pipeline depends on.
// PersonEmail is deliberately not checked here: its absence is a
// distinct malformed-input signal raised by the trust check.
func (e WebhookEnvelope) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return envelopeFieldError("id")
	}
	if strings.TrimSpace(e.Resource) == "" {
		return envelopeFieldError("resource")
	}
	if strings.TrimSpace(e.Event) == "" {
		return envelopeFieldError("event")
	}
	if strings.TrimSpace(e.Data.ID) == "" {
		return envelopeFieldError("data.id")
	}
	if strings.TrimSpace(e.Data.RoomID) == "" {
		return envelopeFieldError("data.roomId")
	}
	if strings.TrimSpace(e.Data.PersonID) == "" {
		return envelopeFieldError("data.personId")
	}
	return nil
}

// IsMessageCreated reports whether the envelope describes a new chat
// message, the only combination the bot processes.
func (e WebhookEnvelope) IsMessageCreated() bool {
	return strings.TrimSpace(e.Resource) == ResourceMessages &&
		strings.TrimSpace(e.Event) == EventCreated
}

type Room struct {
	ID    string
	Title string
	Type  string
}

func (r Room) IsDirect() bool {
	return strings.TrimSpace(r.Type) == RoomTypeDirect
}

type Person struct {
	ID          string
	Emails      []string
	DisplayName string
}

// Email returns the person's primary address.
func (p Person) Email() string {
	for _, email := range p.Emails {
		if trimmed := strings.TrimSpace(email); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// Command is the value derived from a chat message. Normalized is
// case-folded and whitespace-trimmed; it is the dispatch-table key.
type Command struct {
	Raw         string
	Normalized  string
	IssuerEmail string
	Room        Room
}

// ChatMessage is a message body fetched back from the chat API; the
// webhook envelope only carries the message id.
type ChatMessage struct {
	ID          string `json:"id"`
	RoomID      string `json:"roomId"`
	PersonID    string `json:"personId"`
	PersonEmail string `json:"personEmail"`
	Text        string `json:"text"`
	HTML        string `json:"html"`
	Created     string `json:"created"`
}

// OutboundMessage addresses either a room or a person, never both.
type OutboundMessage struct {
	RoomID      string
	PersonEmail string
	Text        string
	Markdown    string
}

func (m OutboundMessage) Validate() error {
	room := strings.TrimSpace(m.RoomID)
	email := strings.TrimSpace(m.PersonEmail)
	if room == "" && email == "" {
		return newBotError("core: outbound message requires a room id or person email", nil)
	}
	if room != "" && email != "" {
		return newBotError("core: outbound message cannot address both a room and a person", nil)
	}
	if strings.TrimSpace(m.Text) == "" && strings.TrimSpace(m.Markdown) == "" {
		return newBotError("core: outbound message body is required", nil)
	}
	return nil
}

type MessageReceipt struct {
	ID      string
	RoomID  string
	Created string
}

// Issue is one active problem reported by the monitoring backend.
type Issue struct {
	TriggerID   string
	Description string
	Host        string
	Priority    int
	LastChange  string
	Acked       bool
}

type MonitorStatus struct {
	Version   string
	Reachable bool
	Detail    string
}
