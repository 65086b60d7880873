package channel

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// canonicalInbound is the payload shape accepted from generic REST and
// webhook counterparts: either a single message object or a batch under
// "messages". Fields mirror the canonical envelope.
type canonicalInbound struct {
	Messages []canonicalInboundMessage `json:"messages"`
	canonicalInboundMessage
}

type canonicalInboundMessage struct {
	Content    Content   `json:"content"`
	Sender     Party     `json:"sender"`
	Recipient  Party     `json:"recipient"`
	ExternalID string    `json:"external_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// DecodeCanonicalInbound parses a canonical-shaped inbound payload into
// messages for the given channel. Payloads without a sender id are
// skipped rather than rejected: generic counterparts also post
// non-message signals through the same URL.
func DecodeCanonicalInbound(cfg Config, payload []byte) ([]Message, error) {
	var decoded canonicalInbound
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode inbound payload: %w", err)
	}
	batch := decoded.Messages
	if len(batch) == 0 {
		batch = []canonicalInboundMessage{decoded.canonicalInboundMessage}
	}
	messages := make([]Message, 0, len(batch))
	for _, item := range batch {
		if strings.TrimSpace(item.Sender.ID) == "" {
			continue
		}
		content := item.Content
		if content.Type == "" {
			content.Type = ContentText
		}
		messages = append(messages, NewInboundMessage(cfg, content, item.Sender, item.Recipient, item.ExternalID, item.Timestamp))
	}
	return messages, nil
}
