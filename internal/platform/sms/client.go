package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tolkdesk/api/internal/platform/config"
)

// Logger defines the logging contract for SMS delivery operations.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Client delivers text messages through a form-encoded SMS gateway.
type Client struct {
	endpoint string
	sender   string
	apiToken string
	client   *http.Client
	logger   Logger
}

// NewClient constructs an SMS client from gateway configuration.
func NewClient(cfg config.SMSConfig, logger Logger) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("sms: endpoint is required")
	}
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, errors.New("sms: api token is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Client{
		endpoint: endpoint,
		sender:   strings.TrimSpace(cfg.Sender),
		apiToken: strings.TrimSpace(cfg.APIToken),
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}, nil
}

type sendResponse struct {
	ID string `json:"id"`
}

// Send delivers one text message and returns the gateway's receipt identifier.
func (c *Client) Send(ctx context.Context, to, message string) (string, error) {
	if c == nil || c.client == nil {
		return "", errors.New("sms: client not initialised")
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return "", errors.New("sms: recipient number is required")
	}
	if strings.TrimSpace(message) == "" {
		return "", errors.New("sms: message body is required")
	}

	form := url.Values{}
	form.Set("to", to)
	form.Set("message", message)
	if c.sender != "" {
		form.Set("from", c.sender)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("sms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sms: send message: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("sms: gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded sendResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("sms: decode gateway response: %w", err)
	}

	c.logger(ctx, "sms.sent", map[string]any{"receipt_id": decoded.ID})
	return decoded.ID, nil
}
