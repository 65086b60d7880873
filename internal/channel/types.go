// Package channel defines the canonical message model shared by all
// provider adapters, the adapter registry, and the tenant channel store.
package channel

import (
	"strings"
	"time"
)

// Type identifies a messaging provider integration.
type Type string

const (
	TypeWhatsApp Type = "whatsapp"
	TypeSlack    Type = "slack"
	TypeWebchat  Type = "webchat"
	TypeAPI      Type = "api"
	TypeWebhook  Type = "webhook"
)

// String returns the channel type as a plain string.
func (t Type) String() string {
	return string(t)
}

// ParseType normalizes a raw string into a Type. It does not check
// registration; use Registry.ParseType for that.
func ParseType(raw string) Type {
	return Type(strings.ToLower(strings.TrimSpace(raw)))
}

// TestStatus is the outcome of the most recent connection test.
type TestStatus string

const (
	TestStatusPending TestStatus = "pending"
	TestStatusSuccess TestStatus = "success"
	TestStatusError   TestStatus = "error"
)

// TestResult records the outcome of a connection test.
type TestResult struct {
	Status    TestStatus     `json:"status"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Config is a tenant-owned channel configuration. Configuration and
// Authentication are opaque to the gateway core; only the matching
// adapter interprets them. Authentication holds secrets and is never
// echoed back through list/read APIs.
type Config struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenant_id"`
	Type           Type           `json:"type"`
	Name           string         `json:"name"`
	Enabled        bool           `json:"enabled"`
	Configuration  map[string]any `json:"configuration"`
	Authentication map[string]any `json:"-"`
	LastTestResult *TestResult    `json:"last_test_result,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ConfigSetting returns the trimmed string value for a configuration key.
func (c Config) ConfigSetting(key string) string {
	return readString(c.Configuration, key)
}

// AuthSetting returns the trimmed string value for an authentication key.
func (c Config) AuthSetting(key string) string {
	return readString(c.Authentication, key)
}

func readString(raw map[string]any, key string) string {
	if raw == nil {
		return ""
	}
	value, ok := raw[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

// Direction marks a message as received from or sent to a provider.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ContentType classifies message content.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentAudio ContentType = "audio"
	ContentVideo ContentType = "video"
	ContentFile  ContentType = "file"
)

// Content is the provider-independent message body.
type Content struct {
	Type     ContentType    `json:"type"`
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Text returns the plain text carried in Data, empty when absent.
func (c Content) Text() string {
	return readString(c.Data, "text")
}

// Party identifies a message sender or recipient on a channel.
type Party struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// MessageStatus tracks delivery state. Transitions are monotonic:
// pending -> sent -> delivered -> read, or any -> failed.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// Message is the canonical envelope for one physical message, inbound or
// outbound. Rows are immutable once written except for Status and Error.
type Message struct {
	ID             string        `json:"id"`
	ChannelID      string        `json:"channel_id"`
	ChannelType    Type          `json:"channel_type"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Direction      Direction     `json:"direction"`
	Content        Content       `json:"content"`
	Sender         Party         `json:"sender"`
	Recipient      Party         `json:"recipient"`
	// ExternalID is the provider message id, used for dedup where available.
	ExternalID string        `json:"external_id,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	Status     MessageStatus `json:"status"`
	Error      string        `json:"error,omitempty"`
}

// Draft is the caller-supplied part of an outbound message.
type Draft struct {
	Content   Content `json:"content"`
	Sender    Party   `json:"sender"`
	Recipient Party   `json:"recipient"`
}

// SaveRequest is the input for creating or updating a channel configuration.
type SaveRequest struct {
	ID             string         `json:"id,omitempty"`
	Type           string         `json:"type" validate:"required"`
	Name           string         `json:"name" validate:"required"`
	Enabled        *bool          `json:"enabled,omitempty"`
	Configuration  map[string]any `json:"configuration"`
	Authentication map[string]any `json:"authentication"`
}
