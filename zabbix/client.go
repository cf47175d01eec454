// Package zabbix is a JSON-RPC 2.0 client for the monitoring backend.
// It covers the read surface the chat commands need plus the login
// handshake that guards it.
package zabbix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/knightjoel/zpark/core"
)

const (
	defaultRequestTimeout = 15 * time.Second
	maxResponseBytes      = 4 << 20 // 4 MiB, trigger lists can be large
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	ServerURL      string
	Username       string
	Password       string
	HTTPClient     HTTPDoer
	RequestTimeout time.Duration
	Logger         core.Logger
}

type Client struct {
	endpoint       string
	username       string
	password       string
	httpClient     HTTPDoer
	requestTimeout time.Duration
	logger         core.Logger

	mu        sync.Mutex
	authToken string
	requestID int
}

func NewClient(cfg Config) (*Client, error) {
	serverURL := strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/")
	if serverURL == "" {
		return nil, configError("server url is required")
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
		endpoint:       serverURL + "/api_jsonrpc.php",
		username:       strings.TrimSpace(cfg.Username),
		password:       cfg.Password,
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
		logger:         glog.Ensure(cfg.Logger),
	}, nil
}

// Version asks the backend for its API version. No authentication.
func (c *Client) Version(ctx context.Context) (string, error) {
	var version string
	if err := c.call(ctx, "apiinfo.version", map[string]any{}, false, &version); err != nil {
		return "", err
	}
	return version, nil
}

// ActiveIssues lists unresolved, unacknowledged triggers sorted by
// priority, most severe first.
func (c *Client) ActiveIssues(ctx context.Context) ([]core.Issue, error) {
	params := map[string]any{
		"output":                      []string{"triggerid", "description", "priority", "lastchange"},
		"selectHosts":                 []string{"host"},
		"filter":                      map[string]any{"value": 1},
		"monitored":                   true,
		"active":                      true,
		"only_true":                   true,
		"skipDependent":               true,
		"withLastEventUnacknowledged": true,
		"expandDescription":           true,
		"sortfield":                   "priority",
		"sortorder":                   "DESC",
	}

	var rows []triggerRow
	if err := c.call(ctx, "trigger.get", params, true, &rows); err != nil {
		return nil, err
	}

	issues := make([]core.Issue, 0, len(rows))
	for _, row := range rows {
		issues = append(issues, row.toIssue())
	}
	return issues, nil
}

// Status reports reachability and version in one struct; a failed
// version call degrades to unreachable instead of an error so the
// "show status" command always has something to say.
func (c *Client) Status(ctx context.Context) (core.MonitorStatus, error) {
	version, err := c.Version(ctx)
	if err != nil {
		if core.IsTransientBackend(err) {
			// let the executor retry instead of reporting a blip as down
			return core.MonitorStatus{}, err
		}
		return core.MonitorStatus{Reachable: false, Detail: err.Error()}, nil
	}
	return core.MonitorStatus{Version: version, Reachable: true}, nil
}

type triggerRow struct {
	TriggerID   string `json:"triggerid"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	LastChange  string `json:"lastchange"`
	Hosts       []struct {
		Host string `json:"host"`
	} `json:"hosts"`
}

func (r triggerRow) toIssue() core.Issue {
	priority, _ := strconv.Atoi(r.Priority)
	host := ""
	if len(r.Hosts) > 0 {
		host = r.Hosts[0].Host
	}
	return core.Issue{
		TriggerID:   r.TriggerID,
		Description: r.Description,
		Host:        host,
		Priority:    priority,
		LastChange:  r.LastChange,
	}
}

func (c *Client) login(ctx context.Context) (string, error) {
	if c.username == "" {
		return "", configError("username is required for authenticated calls")
	}
	var token string
	params := map[string]any{"username": c.username, "password": c.password}
	if err := c.call(ctx, "user.login", params, false, &token); err != nil {
		return "", err
	}
	if strings.TrimSpace(token) == "" {
		return "", rpcUnexpectedError("user.login returned an empty token")
	}
	return token, nil
}

func (c *Client) authFor(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.authToken
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}

	token, err := c.login(ctx)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.authToken = token
	c.mu.Unlock()
	return token, nil
}

func (c *Client) invalidateAuth() {
	c.mu.Lock()
	c.authToken = ""
	c.mu.Unlock()
}

func (c *Client) call(ctx context.Context, method string, params any, authenticated bool, out any) error {
	if c == nil {
		return configError("client is nil")
	}

	var auth string
	if authenticated {
		token, err := c.authFor(ctx)
		if err != nil {
			return err
		}
		auth = token
	}

	err := c.rpc(ctx, method, params, auth, out)
	if authenticated && isAuthExpired(err) {
		// session token aged out; log in again and replay once
		c.invalidateAuth()
		token, loginErr := c.authFor(ctx)
		if loginErr != nil {
			return loginErr
		}
		return c.rpc(ctx, method, params, token, out)
	}
	return err
}

func (c *Client) rpc(ctx context.Context, method string, params any, auth string, out any) error {
	c.mu.Lock()
	c.requestID++
	id := c.requestID
	c.mu.Unlock()

	envelope := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      id,
	}
	if auth != "" {
		envelope["auth"] = auth
	}

	encoded, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("zabbix: encode request: %w", err)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, c.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("zabbix: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json-rpc")
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer res.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes+1))
	if readErr != nil {
		return fmt.Errorf("zabbix: read response: %w", readErr)
	}
	if int64(len(raw)) > maxResponseBytes {
		return fmt.Errorf("zabbix: response exceeds %d bytes", maxResponseBytes)
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return httpStatusError(res.StatusCode)
	}

	var reply struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return fmt.Errorf("zabbix: decode response: %w", err)
	}
	if reply.Error != nil {
		return apiError(method, reply.Error)
	}
	if out == nil || len(reply.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(reply.Result, out); err != nil {
		return fmt.Errorf("zabbix: decode %s result: %w", method, err)
	}
	return nil
}

var _ core.MonitorReader = (*Client)(nil)
