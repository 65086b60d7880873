package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/converso/gateway/internal/channel"
)

func configFor(url string) channel.Config {
	return channel.Config{
		ID:            "ch-hook",
		TenantID:      "t-1",
		Type:          Type,
		Configuration: map[string]any{"url": url},
	}
}

func TestTestConnectionPostsTaggedPayload(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	adapter := New(nil)
	adapter.client = srv.Client()
	outcome, err := adapter.TestConnection(t.Context(), configFor(srv.URL))
	if err != nil {
		t.Fatalf("test connection: %v", err)
	}
	if !outcome.Success {
		t.Fatal("expected success")
	}
	if captured["type"] != "connection_test" {
		t.Fatalf("payload = %v", captured)
	}
}

func TestTestConnectionMissingURL(t *testing.T) {
	t.Parallel()

	adapter := New(nil)
	_, err := adapter.TestConnection(t.Context(), channel.Config{Type: Type})
	if channel.KindOf(err) != channel.ErrKindConfiguration {
		t.Fatalf("error = %v", err)
	}
}

func TestSendSignsBodyWithSecret(t *testing.T) {
	t.Parallel()

	var signature string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get("X-Gateway-Signature")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	adapter := New(nil)
	adapter.client = srv.Client()
	cfg := configFor(srv.URL)
	cfg.Configuration["headers"] = map[string]any{"X-Env": "prod"}
	cfg.Authentication = map[string]any{"secret": "s3cret"}

	msg := channel.Message{
		Direction: channel.DirectionOutbound,
		Recipient: channel.Party{ID: "cust-1"},
		Content:   channel.Content{Type: channel.ContentText, Data: map[string]any{"text": "hi"}},
	}
	if _, err := adapter.Send(t.Context(), cfg, msg); err != nil {
		t.Fatalf("send: %v", err)
	}

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if signature != want {
		t.Fatalf("signature = %q, want %q", signature, want)
	}
}

func TestSendAddsConfiguredHeaders(t *testing.T) {
	t.Parallel()

	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Env")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	adapter := New(nil)
	adapter.client = srv.Client()
	cfg := configFor(srv.URL)
	cfg.Configuration["headers"] = map[string]any{"X-Env": "prod"}

	if _, err := adapter.Send(t.Context(), cfg, channel.Message{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if header != "prod" {
		t.Fatalf("X-Env = %q", header)
	}
}
