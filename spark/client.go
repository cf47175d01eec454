// Package spark is a minimal client for the chat platform's REST API:
// messages, rooms, people, and webhook management. Only the surface
// the bot needs is covered.
package spark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/knightjoel/zpark/core"
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxResponseBytes      = 1 << 20 // 1 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Webhook is the platform-side registration that points chat events
// at the bot.
type Webhook struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	TargetURL string `json:"targetUrl"`
	Resource  string `json:"resource"`
	Event     string `json:"event"`
	Secret    string `json:"secret,omitempty"`
}

type Config struct {
	APIURL         string
	AccessToken    string
	HTTPClient     HTTPDoer
	RequestTimeout time.Duration
	Logger         core.Logger
}

type Client struct {
	apiURL         string
	accessToken    string
	httpClient     HTTPDoer
	requestTimeout time.Duration
	logger         core.Logger
}

func NewClient(cfg Config) (*Client, error) {
	apiURL := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if apiURL == "" {
		return nil, configError("api url is required")
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, configError("access token is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &Client{
		apiURL:         apiURL,
		accessToken:    strings.TrimSpace(cfg.AccessToken),
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
		logger:         glog.Ensure(cfg.Logger),
	}, nil
}

// Send posts a message to a room or a person.
func (c *Client) Send(ctx context.Context, msg core.OutboundMessage) (core.MessageReceipt, error) {
	if err := msg.Validate(); err != nil {
		return core.MessageReceipt{}, err
	}

	payload := map[string]any{}
	if msg.RoomID != "" {
		payload["roomId"] = msg.RoomID
	}
	if msg.PersonEmail != "" {
		payload["toPersonEmail"] = msg.PersonEmail
	}
	if msg.Text != "" {
		payload["text"] = msg.Text
	}
	if msg.Markdown != "" {
		payload["markdown"] = msg.Markdown
	}

	var out struct {
		ID      string `json:"id"`
		RoomID  string `json:"roomId"`
		Created string `json:"created"`
	}
	if err := c.do(ctx, http.MethodPost, "/messages", payload, &out); err != nil {
		return core.MessageReceipt{}, err
	}
	return core.MessageReceipt{ID: out.ID, RoomID: out.RoomID, Created: out.Created}, nil
}

func (c *Client) GetMessage(ctx context.Context, messageID string) (core.ChatMessage, error) {
	if strings.TrimSpace(messageID) == "" {
		return core.ChatMessage{}, requestError("message id is required")
	}
	var out core.ChatMessage
	if err := c.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(messageID), nil, &out); err != nil {
		return core.ChatMessage{}, err
	}
	return out, nil
}

func (c *Client) GetRoom(ctx context.Context, roomID string) (core.Room, error) {
	if strings.TrimSpace(roomID) == "" {
		return core.Room{}, requestError("room id is required")
	}
	var out struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Type  string `json:"type"`
	}
	if err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID), nil, &out); err != nil {
		return core.Room{}, err
	}
	return core.Room{ID: out.ID, Title: out.Title, Type: out.Type}, nil
}

func (c *Client) ListRooms(ctx context.Context) ([]core.Room, error) {
	var out struct {
		Items []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
			Type  string `json:"type"`
		} `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/rooms", nil, &out); err != nil {
		return nil, err
	}
	rooms := make([]core.Room, 0, len(out.Items))
	for _, item := range out.Items {
		rooms = append(rooms, core.Room{ID: item.ID, Title: item.Title, Type: item.Type})
	}
	return rooms, nil
}

// Me resolves the bot's own identity, used at startup for logging and
// webhook naming.
func (c *Client) Me(ctx context.Context) (core.Person, error) {
	return c.getPerson(ctx, "/people/me")
}

func (c *Client) ResolvePerson(ctx context.Context, personID string) (core.Person, error) {
	if strings.TrimSpace(personID) == "" {
		return core.Person{}, requestError("person id is required")
	}
	return c.getPerson(ctx, "/people/"+url.PathEscape(personID))
}

func (c *Client) getPerson(ctx context.Context, path string) (core.Person, error) {
	var out struct {
		ID          string   `json:"id"`
		Emails      []string `json:"emails"`
		DisplayName string   `json:"displayName"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return core.Person{}, err
	}
	return core.Person{ID: out.ID, Emails: out.Emails, DisplayName: out.DisplayName}, nil
}

func (c *Client) CreateWebhook(ctx context.Context, hook Webhook) (Webhook, error) {
	if strings.TrimSpace(hook.Name) == "" || strings.TrimSpace(hook.TargetURL) == "" {
		return Webhook{}, requestError("webhook name and target url are required")
	}
	if hook.Resource == "" {
		hook.Resource = core.ResourceMessages
	}
	if hook.Event == "" {
		hook.Event = core.EventCreated
	}
	var out Webhook
	if err := c.do(ctx, http.MethodPost, "/webhooks", hook, &out); err != nil {
		return Webhook{}, err
	}
	return out, nil
}

func (c *Client) DeleteWebhook(ctx context.Context, webhookID string) error {
	if strings.TrimSpace(webhookID) == "" {
		return requestError("webhook id is required")
	}
	return c.do(ctx, http.MethodDelete, "/webhooks/"+url.PathEscape(webhookID), nil, nil)
}

func (c *Client) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	var out struct {
		Items []Webhook `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/webhooks", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	if c == nil {
		return configError("client is nil")
	}
	requestCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("spark: encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(requestCtx, method, c.apiURL+path, body)
	if err != nil {
		return fmt.Errorf("spark: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer res.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes+1))
	if readErr != nil {
		return fmt.Errorf("spark: read response: %w", readErr)
	}
	if int64(len(raw)) > maxResponseBytes {
		return fmt.Errorf("spark: response exceeds %d bytes", maxResponseBytes)
	}

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return apiError(res.StatusCode, res.Header.Get("Retry-After"), raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("spark: decode response: %w", err)
	}
	return nil
}

var (
	_ core.ChatMessenger  = (*Client)(nil)
	_ core.MessageSource  = (*Client)(nil)
	_ core.RoomSource     = (*Client)(nil)
	_ core.PersonResolver = (*Client)(nil)
)
