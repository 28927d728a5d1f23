package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/tolkdesk/api/internal/services"
)

// PubSubBookingPublisher publishes booking lifecycle events to a Pub/Sub topic.
type PubSubBookingPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubBookingPublisher constructs a Pub/Sub backed booking event publisher.
func NewPubSubBookingPublisher(topic *pubsub.Topic) (*PubSubBookingPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub booking publisher: topic is required")
	}
	return &PubSubBookingPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

type bookingEventMessage struct {
	Type           string         `json:"type"`
	JobID          string         `json:"jobId"`
	JobNumber      string         `json:"jobNumber,omitempty"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// PublishBookingEvent enqueues a booking event message on the configured topic.
func (p *PubSubBookingPublisher) PublishBookingEvent(ctx context.Context, event services.BookingEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub booking publisher: not initialised")
	}

	payload := bookingEventMessage{
		Type:           string(event.Type),
		JobID:          event.JobID,
		JobNumber:      event.JobNumber,
		PreviousStatus: string(event.PreviousStatus),
		CurrentStatus:  string(event.CurrentStatus),
		ActorID:        event.ActorID,
		OccurredAt:     event.OccurredAt.UTC(),
		Metadata:       event.Metadata,
	}
	data, err := p.marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal booking event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", string(event.Type))
	setAttr(attrs, "jobId", event.JobID)
	setAttr(attrs, "jobNumber", event.JobNumber)
	setAttr(attrs, "currentStatus", string(event.CurrentStatus))

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish booking event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
