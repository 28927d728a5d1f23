package mail

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

	"github.com/tolkdesk/api/internal/platform/config"
	"github.com/tolkdesk/api/internal/services"
)

// Logger defines the logging contract for mail delivery operations.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Client delivers templated transactional mail through a JSON mail gateway.
type Client struct {
	endpoint    string
	apiKey      string
	fromAddress string
	fromName    string
	client      *http.Client
	logger      Logger
}

// NewClient constructs a mail client from gateway configuration.
func NewClient(cfg config.MailConfig, logger Logger) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("mail: endpoint is required")
	}
	fromAddress := strings.TrimSpace(cfg.FromAddress)
	if fromAddress == "" {
		return nil, errors.New("mail: from address is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Client{
		endpoint:    endpoint,
		apiKey:      strings.TrimSpace(cfg.APIKey),
		fromAddress: fromAddress,
		fromName:    strings.TrimSpace(cfg.FromName),
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}, nil
}

type deliveryRequest struct {
	FromAddress string         `json:"fromAddress"`
	FromName    string         `json:"fromName,omitempty"`
	To          string         `json:"to"`
	ToName      string         `json:"toName,omitempty"`
	Subject     string         `json:"subject"`
	Template    string         `json:"template"`
	Data        map[string]any `json:"data,omitempty"`
}

// Send renders the named template at the gateway and delivers it.
func (c *Client) Send(ctx context.Context, msg services.MailMessage) error {
	if c == nil || c.client == nil {
		return errors.New("mail: client not initialised")
	}
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return errors.New("mail: recipient address is required")
	}
	if strings.TrimSpace(msg.Template) == "" {
		return errors.New("mail: template name is required")
	}

	body, err := json.Marshal(deliveryRequest{
		FromAddress: c.fromAddress,
		FromName:    c.fromName,
		To:          to,
		ToName:      msg.Name,
		Subject:     msg.Subject,
		Template:    msg.Template,
		Data:        msg.Data,
	})
	if err != nil {
		return fmt.Errorf("mail: marshal delivery: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mail: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("mail: deliver message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return fmt.Errorf("mail: gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	c.logger(ctx, "mail.sent", map[string]any{
		"template": msg.Template,
	})
	return nil
}
