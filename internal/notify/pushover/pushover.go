// Package pushover delivers notifications through the Pushover messages API.
package pushover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultEndpoint is the Pushover messages API.
const DefaultEndpoint = "https://api.pushover.net/1/messages.json"

// ErrMissingCredentials is returned when the user key or API token is empty.
var ErrMissingCredentials = errors.New("missing Pushover credentials")

// Config holds the Pushover application settings.
type Config struct {
	Endpoint string
	UserKey  string
	APIToken string
	Timeout  time.Duration
}

// Client sends Pushover messages.
type Client struct {
	cfg  Config
	http *http.Client
}

type message struct {
	Token   string `json:"token"`
	User    string `json:"user"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

type response struct {
	Status  int      `json:"status"`
	Request string   `json:"request"`
	Errors  []string `json:"errors"`
}

// New validates cfg and builds a Client. A nil httpClient uses one bounded by cfg.Timeout.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.UserKey) == "" || strings.TrimSpace(cfg.APIToken) == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}, nil
}

// Notify implements stock.Notifier.
func (c *Client) Notify(ctx context.Context, title, body string) error {
	payload, err := json.Marshal(message{
		Token:   c.cfg.APIToken,
		User:    c.cfg.UserKey,
		Title:   title,
		Message: body,
	})
	if err != nil {
		return fmt.Errorf("marshal pushover message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build pushover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send pushover request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // body fully read below

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read pushover response: %w", err)
	}
	var decoded response
	_ = json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || decoded.Status != 1 {
		detail := strings.Join(decoded.Errors, "; ")
		if detail == "" {
			detail = strings.TrimSpace(string(raw))
		}
		return fmt.Errorf("pushover rejected message (status %d): %s", resp.StatusCode, detail)
	}
	return nil
}
