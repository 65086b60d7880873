package whatsapp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/converso/gateway/internal/channel"
)

func testConfig() channel.Config {
	return channel.Config{
		ID:       "ch-wa",
		TenantID: "t-1",
		Type:     Type,
		Configuration: map[string]any{
			"phoneNumberId":     "123456",
			"businessAccountId": "789",
			"verifyToken":       "verify-me",
		},
		Authentication: map[string]any{
			"accessToken": "token-abc",
		},
	}
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*Adapter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	adapter := New(nil)
	adapter.baseURL = srv.URL
	adapter.client = srv.Client()
	return adapter, srv
}

func TestTestConnectionMissingFieldsSkipsNetwork(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	cfg := testConfig()
	cfg.Authentication = nil
	_, err := adapter.TestConnection(t.Context(), cfg)
	if err == nil {
		t.Fatal("expected configuration error")
	}
	if kind := channel.KindOf(err); kind != channel.ErrKindConfiguration {
		t.Fatalf("error kind = %s", kind)
	}
	if calls.Load() != 0 {
		t.Fatalf("provider called %d times before validation", calls.Load())
	}
}

func TestTestConnectionSuccess(t *testing.T) {
	t.Parallel()

	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token-abc" {
			t.Errorf("authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"display_phone_number": "+1 555 0100",
			"verified_name":        "Acme Support",
		})
	})

	outcome, err := adapter.TestConnection(t.Context(), testConfig())
	if err != nil {
		t.Fatalf("test connection: %v", err)
	}
	if !outcome.Success {
		t.Fatal("expected success")
	}
	if outcome.Message != "Connected to WhatsApp number +1 555 0100" {
		t.Fatalf("message = %q", outcome.Message)
	}
}

func TestTestConnectionRejectedCredentials(t *testing.T) {
	t.Parallel()

	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "invalid token"}}`))
	})

	_, err := adapter.TestConnection(t.Context(), testConfig())
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := channel.KindOf(err); kind != channel.ErrKindAuthentication {
		t.Fatalf("error kind = %s", kind)
	}
}

func TestSendWrapsTextContent(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/123456/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"messages": [{"id": "wamid.1"}]}`))
	})

	msg := channel.Message{
		Recipient: channel.Party{ID: "15550042"},
		Content:   channel.Content{Type: channel.ContentText, Data: map[string]any{"text": "hi there"}},
	}
	receipt, err := adapter.Send(t.Context(), testConfig(), msg)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if receipt.ExternalID != "wamid.1" {
		t.Fatalf("external id = %q", receipt.ExternalID)
	}
	if captured["to"] != "15550042" || captured["type"] != "text" {
		t.Fatalf("payload = %v", captured)
	}
	text, _ := captured["text"].(map[string]any)
	if text["body"] != "hi there" {
		t.Fatalf("text payload = %v", text)
	}
}

func TestSendRejectsUnknownContentType(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	msg := channel.Message{
		Recipient: channel.Party{ID: "15550042"},
		Content:   channel.Content{Type: "sticker"},
	}
	if _, err := adapter.Send(t.Context(), testConfig(), msg); err == nil {
		t.Fatal("expected error for unsupported content type")
	}
	if calls.Load() != 0 {
		t.Fatal("provider should not be called")
	}
}

const inboundPayload = `{
	"entry": [{"changes": [{"field": "messages", "value": {
		"metadata": {"display_phone_number": "+1 (555) 0100", "phone_number_id": "123456"},
		"contacts": [{"wa_id": "15550042", "profile": {"name": "Grace"}}],
		"messages": [
			{"from": "15550042", "id": "wamid.in1", "timestamp": "1754042400", "type": "text", "text": {"body": "hello"}},
			{"from": "+1 555 0100", "id": "wamid.echo", "timestamp": "1754042401", "type": "text", "text": {"body": "echo"}},
			{"from": "15550042", "id": "wamid.react", "timestamp": "1754042402", "type": "reaction"}
		]
	}}]}]
}`

func TestClassifyEvent(t *testing.T) {
	t.Parallel()

	adapter := New(nil)
	if got := adapter.ClassifyEvent([]byte(inboundPayload)); got != channel.EventClassMessages {
		t.Fatalf("classify = %q", got)
	}
	statusPayload := `{"entry": [{"changes": [{"value": {"statuses": [{"id": "wamid.1", "status": "delivered"}]}}]}]}`
	if got := adapter.ClassifyEvent([]byte(statusPayload)); got != channel.EventClassStatus {
		t.Fatalf("classify status = %q", got)
	}
	if got := adapter.ClassifyEvent([]byte(`{"object": "whatsapp_business_account"}`)); got != channel.EventClassUnknown {
		t.Fatalf("classify unknown = %q", got)
	}
	if got := adapter.ClassifyEvent([]byte("garbage")); got != channel.EventClassUnknown {
		t.Fatalf("classify garbage = %q", got)
	}
}

func TestExtractMessagesFiltersEchoAndUnsupported(t *testing.T) {
	t.Parallel()

	adapter := New(nil)
	messages, err := adapter.ExtractMessages(testConfig(), []byte(inboundPayload))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}
	msg := messages[0]
	if msg.Sender.ID != "15550042" || msg.Sender.Name != "Grace" {
		t.Fatalf("sender = %+v", msg.Sender)
	}
	if msg.ExternalID != "wamid.in1" {
		t.Fatalf("external id = %q", msg.ExternalID)
	}
	if msg.Content.Text() != "hello" {
		t.Fatalf("text = %q", msg.Content.Text())
	}
	want := time.Unix(1754042400, 0).UTC()
	if !msg.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %s", msg.Timestamp)
	}
}

func TestVerifyToken(t *testing.T) {
	t.Parallel()

	adapter := New(nil)
	if got := adapter.VerifyToken(testConfig()); got != "verify-me" {
		t.Fatalf("verify token = %q", got)
	}
}

const receiptPayload = `{
	"entry": [{"changes": [{"value": {"statuses": [
		{"id": "wamid.out1", "status": "delivered", "timestamp": "1754042400", "recipient_id": "15550042"},
		{"id": "wamid.out2", "status": "failed", "errors": [{"code": 131026, "title": "recipient unreachable"}]},
		{"id": "wamid.out3", "status": "warmed_up"},
		{"id": "", "status": "read"}
	]}}]}]
}`

func TestExtractStatuses(t *testing.T) {
	t.Parallel()

	adapter := New(nil)
	updates, err := adapter.ExtractStatuses([]byte(receiptPayload))
	if err != nil {
		t.Fatalf("extract statuses: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("got %d updates, want 2", len(updates))
	}
	if updates[0].ExternalID != "wamid.out1" || updates[0].Status != channel.StatusDelivered {
		t.Fatalf("first update = %+v", updates[0])
	}
	if updates[0].Error != "" {
		t.Fatalf("delivered update carries error %q", updates[0].Error)
	}
	if updates[1].ExternalID != "wamid.out2" || updates[1].Status != channel.StatusFailed {
		t.Fatalf("second update = %+v", updates[1])
	}
	if updates[1].Error != "recipient unreachable" {
		t.Fatalf("failure reason = %q", updates[1].Error)
	}

	if _, err := adapter.ExtractStatuses([]byte("garbage")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
