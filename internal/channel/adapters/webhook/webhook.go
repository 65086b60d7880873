// Package webhook implements the channel.Adapter for generic webhook
// endpoints: the gateway pushes envelopes to a configured URL and
// accepts canonical-shaped payloads back.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/converso/gateway/internal/channel"
	"github.com/converso/gateway/internal/channel/adapters/common"
)

// Type is the generic webhook channel type.
const Type = channel.TypeWebhook

// Config keys interpreted by this adapter.
const (
	keyURL     = "url"
	keyHeaders = "headers"
	keySecret  = "secret"
)

const signatureHeader = "X-Gateway-Signature"

// Adapter delivers envelopes to a counterpart webhook URL.
type Adapter struct {
	logger *slog.Logger
	client *http.Client
}

// New creates a webhook adapter with the given logger.
func New(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger: log.With(slog.String("adapter", "webhook")),
		client: http.DefaultClient,
	}
}

// Type returns the generic webhook channel type.
func (a *Adapter) Type() channel.Type {
	return Type
}

func (a *Adapter) targetURL(cfg channel.Config) (string, error) {
	url := cfg.ConfigSetting(keyURL)
	if url == "" {
		return "", channel.NewConfigurationError("webhook configuration.url is required")
	}
	return url, nil
}

func (a *Adapter) buildHeaders(cfg channel.Config, body any) map[string]string {
	headers := map[string]string{}
	if raw, ok := cfg.Configuration[keyHeaders].(map[string]any); ok {
		for key, value := range raw {
			if str, ok := value.(string); ok {
				headers[key] = str
			}
		}
	}
	secret := cfg.AuthSetting(keySecret)
	if secret == "" {
		return headers
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return headers
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	headers[signatureHeader] = "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return headers
}

// TestConnection POSTs a tagged test payload; any 2xx response passes.
func (a *Adapter) TestConnection(ctx context.Context, cfg channel.Config) (channel.TestOutcome, error) {
	url, err := a.targetURL(cfg)
	if err != nil {
		return channel.TestOutcome{}, err
	}
	payload := map[string]any{
		"type":      "connection_test",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	status, body, err := common.JSONRequest(ctx, a.client, http.MethodPost, url, a.buildHeaders(cfg, payload), payload)
	if err != nil {
		return channel.TestOutcome{}, err
	}
	if status < 200 || status >= 300 {
		return channel.TestOutcome{}, fmt.Errorf("webhook test failed (%d): %s", status, common.ProviderMessage(body))
	}
	return channel.TestOutcome{
		Success: true,
		Message: fmt.Sprintf("Webhook endpoint %s accepted the test payload", url),
	}, nil
}

// Send posts the full canonical envelope with configured headers and an
// HMAC signature when a secret is set.
func (a *Adapter) Send(ctx context.Context, cfg channel.Config, msg channel.Message) (channel.SendReceipt, error) {
	url, err := a.targetURL(cfg)
	if err != nil {
		return channel.SendReceipt{}, err
	}
	status, body, err := common.JSONRequest(ctx, a.client, http.MethodPost, url, a.buildHeaders(cfg, msg), msg)
	if err != nil {
		return channel.SendReceipt{}, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return channel.SendReceipt{}, channel.NewAuthenticationError("webhook endpoint rejected request: %s", common.ProviderMessage(body))
	}
	if status < 200 || status >= 300 {
		return channel.SendReceipt{}, fmt.Errorf("webhook send failed (%d): %s", status, common.ProviderMessage(body))
	}
	return channel.SendReceipt{}, nil
}

// ClassifyEvent labels inbound webhook callbacks as messages.
func (a *Adapter) ClassifyEvent(payload []byte) string {
	return channel.EventClassMessages
}

// ExtractMessages decodes a canonical-shaped inbound payload.
func (a *Adapter) ExtractMessages(cfg channel.Config, payload []byte) ([]channel.Message, error) {
	return channel.DecodeCanonicalInbound(cfg, payload)
}
