package channel

import (
	"context"
	"time"
)

// TestOutcome is the normalized result of an adapter connection test.
type TestOutcome struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// SendReceipt carries provider-side identifiers for a delivered message.
type SendReceipt struct {
	ExternalID string `json:"external_id,omitempty"`
}

// Event classification values shared across adapters. Adapters may return
// provider-specific classifications beyond these.
const (
	EventClassMessages = "messages"
	EventClassStatus   = "status"
	EventClassUnknown  = "unknown"
)

// Adapter translates between the canonical message model and one
// provider's wire format. Implementations must not panic on malformed
// provider payloads; they return errors that callers convert to
// structured results.
type Adapter interface {
	Type() Type

	// TestConnection verifies the configuration against the provider.
	// Missing required fields must be reported before any network call.
	TestConnection(ctx context.Context, cfg Config) (TestOutcome, error)

	// Send delivers one outbound message. The caller owns timeout and
	// cancellation via ctx; adapters make a single blocking call.
	Send(ctx context.Context, cfg Config, msg Message) (SendReceipt, error)

	// ClassifyEvent inspects a raw webhook payload and labels it
	// (for example "messages" vs "status").
	ClassifyEvent(payload []byte) string

	// ExtractMessages converts a raw webhook payload into zero or more
	// canonical inbound messages. Self-sent echo events (sender equal to
	// the channel's own identity) are filtered out here.
	ExtractMessages(cfg Config, payload []byte) ([]Message, error)
}

// Verifier is an adapter whose provider performs a GET verification
// handshake against the public webhook URL (WhatsApp-style).
type Verifier interface {
	// VerifyToken returns the token the provider must present, read from
	// the channel configuration.
	VerifyToken(cfg Config) string
}

// StatusUpdate is one delivery receipt extracted from a provider status
// callback. ExternalID is the provider's id for the affected message.
type StatusUpdate struct {
	ExternalID string
	Status     MessageStatus
	Error      string
}

// StatusReporter is an adapter whose provider posts delivery receipts
// (sent, delivered, read, failed) for previously sent messages.
type StatusReporter interface {
	// ExtractStatuses converts a raw status webhook payload into zero or
	// more status updates.
	ExtractStatuses(payload []byte) ([]StatusUpdate, error)
}

// NewInboundMessage builds a canonical inbound message envelope for a
// channel, leaving provider-specific fields to the adapter.
func NewInboundMessage(cfg Config, content Content, sender, recipient Party, externalID string, ts time.Time) Message {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return Message{
		ChannelID:   cfg.ID,
		ChannelType: cfg.Type,
		Direction:   DirectionInbound,
		Content:     content,
		Sender:      sender,
		Recipient:   recipient,
		ExternalID:  externalID,
		Timestamp:   ts,
		Status:      StatusDelivered,
	}
}
