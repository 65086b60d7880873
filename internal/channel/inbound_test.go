package channel

import (
	"testing"
	"time"
)

func TestDecodeCanonicalInboundSingle(t *testing.T) {
	t.Parallel()

	cfg := Config{ID: "ch-1", Type: TypeAPI}
	payload := []byte(`{
		"content": {"type": "text", "data": {"text": "hello"}},
		"sender": {"id": "cust-1", "name": "Ada"},
		"external_id": "ext-9",
		"timestamp": "2026-08-01T10:00:00Z"
	}`)

	messages, err := DecodeCanonicalInbound(cfg, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}
	msg := messages[0]
	if msg.ChannelID != "ch-1" || msg.ChannelType != TypeAPI {
		t.Fatalf("channel binding = %s/%s", msg.ChannelID, msg.ChannelType)
	}
	if msg.Direction != DirectionInbound {
		t.Fatalf("direction = %s", msg.Direction)
	}
	if msg.Content.Text() != "hello" {
		t.Fatalf("text = %q", msg.Content.Text())
	}
	if msg.ExternalID != "ext-9" {
		t.Fatalf("external id = %q", msg.ExternalID)
	}
	want := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	if !msg.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %s", msg.Timestamp)
	}
}

func TestDecodeCanonicalInboundBatchSkipsSenderless(t *testing.T) {
	t.Parallel()

	cfg := Config{ID: "ch-1", Type: TypeWebhook}
	payload := []byte(`{"messages": [
		{"content": {"data": {"text": "one"}}, "sender": {"id": "a"}},
		{"content": {"data": {"text": "no sender"}}},
		{"content": {"data": {"text": "two"}}, "sender": {"id": "b"}}
	]}`)

	messages, err := DecodeCanonicalInbound(cfg, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	// Content type defaults to text when the counterpart omits it.
	if messages[0].Content.Type != ContentText {
		t.Fatalf("content type = %s", messages[0].Content.Type)
	}
}

func TestDecodeCanonicalInboundRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := DecodeCanonicalInbound(Config{}, []byte("not json")); err == nil {
		t.Fatal("expected decode error")
	}
}
