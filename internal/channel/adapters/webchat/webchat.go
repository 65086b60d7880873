// Package webchat implements the channel.Adapter for the embeddable web
// chat widget. The widget delivers traffic through the gateway's own
// endpoints, so the adapter makes no external calls.
package webchat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/converso/gateway/internal/channel"
)

// Type is the web chat channel type.
const Type = channel.TypeWebchat

// Adapter serves the configuration-only web chat channel.
type Adapter struct {
	logger *slog.Logger
}

// New creates a webchat adapter with the given logger.
func New(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{logger: log.With(slog.String("adapter", "webchat"))}
}

// Type returns the web chat channel type.
func (a *Adapter) Type() channel.Type {
	return Type
}

// TestConnection always succeeds: web chat has no external dependency.
func (a *Adapter) TestConnection(ctx context.Context, cfg channel.Config) (channel.TestOutcome, error) {
	return channel.TestOutcome{
		Success: true,
		Message: "Web chat channel is ready",
	}, nil
}

// Send records the delivery for the widget to poll; there is no
// provider round trip.
func (a *Adapter) Send(ctx context.Context, cfg channel.Config, msg channel.Message) (channel.SendReceipt, error) {
	if a.logger != nil {
		a.logger.Debug("webchat outbound recorded",
			slog.String("channel_id", cfg.ID),
			slog.String("recipient", msg.Recipient.ID))
	}
	return channel.SendReceipt{}, nil
}

// widgetEvent is the payload POSTed by the embedded widget.
type widgetEvent struct {
	Type      string `json:"type"`
	VisitorID string `json:"visitor_id"`
	Visitor   struct {
		Name string `json:"name"`
	} `json:"visitor"`
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
	SentAt    int64  `json:"sent_at"`
}

// ClassifyEvent labels widget payloads by their declared type.
func (a *Adapter) ClassifyEvent(payload []byte) string {
	var event widgetEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return channel.EventClassUnknown
	}
	if event.Type == "message" {
		return channel.EventClassMessages
	}
	if event.Type != "" {
		return event.Type
	}
	return channel.EventClassUnknown
}

// ExtractMessages converts a widget message payload into one canonical
// inbound message.
func (a *Adapter) ExtractMessages(cfg channel.Config, payload []byte) ([]channel.Message, error) {
	var event widgetEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode webchat payload: %w", err)
	}
	if event.Type != "message" || event.VisitorID == "" {
		return nil, nil
	}
	var ts time.Time
	if event.SentAt > 0 {
		ts = time.Unix(event.SentAt, 0).UTC()
	}
	content := channel.Content{
		Type: channel.ContentText,
		Data: map[string]any{"text": event.Text},
	}
	msg := channel.NewInboundMessage(cfg, content,
		channel.Party{ID: event.VisitorID, Name: event.Visitor.Name},
		channel.Party{ID: cfg.ID},
		event.MessageID, ts)
	return []channel.Message{msg}, nil
}
