package push

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

// sendAfterLayout is the delivery schedule format the push provider expects.
const sendAfterLayout = "2006-01-02 15:04:05 MST"

// Logger defines the logging contract for push delivery operations.
type Logger func(ctx context.Context, event string, fields map[string]any)

// OneSignalClient delivers push envelopes through the OneSignal REST API.
// Recipients are addressed by an email tag on their registered devices.
type OneSignalClient struct {
	endpoint string
	appID    string
	apiKey   string
	client   *http.Client
	logger   Logger
}

// NewOneSignalClient constructs a push client from gateway configuration.
func NewOneSignalClient(cfg config.PushConfig, logger Logger) (*OneSignalClient, error) {
	appID := strings.TrimSpace(cfg.AppID)
	apiKey := strings.TrimSpace(cfg.APIKey)
	if appID == "" || apiKey == "" {
		return nil, errors.New("push: app id and api key are required")
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("push: endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &OneSignalClient{
		endpoint: endpoint,
		appID:    appID,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}, nil
}

type notificationRequest struct {
	AppID            string            `json:"app_id"`
	Headings         map[string]string `json:"headings,omitempty"`
	Contents         map[string]string `json:"contents,omitempty"`
	Data             map[string]any    `json:"data,omitempty"`
	Tags             []map[string]any  `json:"tags,omitempty"`
	AndroidSound     string            `json:"android_sound,omitempty"`
	IOSSound         string            `json:"ios_sound,omitempty"`
	SendAfter        string            `json:"send_after,omitempty"`
	AndroidChannelID string            `json:"android_channel_id,omitempty"`
}

type notificationResponse struct {
	ID     string `json:"id"`
	Errors any    `json:"errors"`
}

// Send delivers the envelope to every recipient's registered devices.
func (c *OneSignalClient) Send(ctx context.Context, env services.PushEnvelope) error {
	if c == nil || c.client == nil {
		return errors.New("push: client not initialised")
	}
	if len(env.Recipients) == 0 {
		return nil
	}

	payload := notificationRequest{
		AppID:        c.appID,
		Headings:     map[string]string{"en": env.Heading},
		Contents:     map[string]string{"en": env.Content},
		Data:         env.Data,
		Tags:         recipientTags(env.Recipients),
		AndroidSound: env.AndroidSound,
		IOSSound:     env.IOSSound,
	}
	if env.SendAfter != nil {
		payload.SendAfter = env.SendAfter.UTC().Format(sendAfterLayout)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("push: marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("push: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Basic "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("push: send notification: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push: provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded notificationResponse
	if err := json.Unmarshal(raw, &decoded); err == nil && decoded.Errors != nil {
		return fmt.Errorf("push: provider rejected notification: %v", decoded.Errors)
	}

	c.logger(ctx, "push.sent", map[string]any{
		"notification_id": decoded.ID,
		"recipients":      len(env.Recipients),
		"deferred":        env.SendAfter != nil,
	})
	return nil
}

// recipientTags builds the provider's tag filter expression: one email
// equality clause per recipient, joined with OR operators.
func recipientTags(recipients []string) []map[string]any {
	tags := make([]map[string]any, 0, len(recipients)*2)
	for _, recipient := range recipients {
		email := strings.ToLower(strings.TrimSpace(recipient))
		if email == "" {
			continue
		}
		if len(tags) > 0 {
			tags = append(tags, map[string]any{"operator": "OR"})
		}
		tags = append(tags, map[string]any{
			"key":      "email",
			"relation": "=",
			"value":    email,
		})
	}
	return tags
}
