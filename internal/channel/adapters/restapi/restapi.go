// Package restapi implements the channel.Adapter for generic REST
// endpoints. The counterpart service receives the canonical envelope as
// JSON and is expected to expose a conventional health path.
package restapi

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/converso/gateway/internal/channel"
	"github.com/converso/gateway/internal/channel/adapters/common"
)

// Type is the generic REST channel type.
const Type = channel.TypeAPI

// Config keys interpreted by this adapter.
const (
	keyBaseURL    = "baseUrl"
	keySendPath   = "sendPath"
	keyAuthType   = "type"
	keyToken      = "token"
	keyUsername   = "username"
	keyPassword   = "password"
	keyAPIKey     = "apiKey"
	keyHeaderName = "headerName"
)

const (
	defaultHealthPath = "/health"
	defaultSendPath   = "/messages"
)

// Adapter posts canonical envelopes to a configured REST endpoint.
type Adapter struct {
	logger *slog.Logger
	client *http.Client
}

// New creates a REST adapter with the given logger.
func New(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger: log.With(slog.String("adapter", "restapi")),
		client: http.DefaultClient,
	}
}

// Type returns the generic REST channel type.
func (a *Adapter) Type() channel.Type {
	return Type
}

func (a *Adapter) baseURL(cfg channel.Config) (string, error) {
	base := strings.TrimRight(cfg.ConfigSetting(keyBaseURL), "/")
	if base == "" {
		return "", channel.NewConfigurationError("api configuration.baseUrl is required")
	}
	return base, nil
}

// AuthHeaders builds request headers from authentication.type. Unknown
// auth types are a configuration error; an absent type sends no auth.
func AuthHeaders(cfg channel.Config) (map[string]string, error) {
	headers := map[string]string{}
	authType := strings.ToLower(cfg.AuthSetting(keyAuthType))
	switch authType {
	case "":
	case "bearer":
		token := cfg.AuthSetting(keyToken)
		if token == "" {
			return nil, channel.NewConfigurationError("api authentication.token is required for bearer auth")
		}
		headers["Authorization"] = "Bearer " + token
	case "basic":
		username := cfg.AuthSetting(keyUsername)
		password := cfg.AuthSetting(keyPassword)
		if username == "" {
			return nil, channel.NewConfigurationError("api authentication.username is required for basic auth")
		}
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers["Authorization"] = "Basic " + credentials
	case "apikey":
		apiKey := cfg.AuthSetting(keyAPIKey)
		if apiKey == "" {
			return nil, channel.NewConfigurationError("api authentication.apiKey is required for apikey auth")
		}
		headerName := cfg.AuthSetting(keyHeaderName)
		if headerName == "" {
			headerName = "X-API-Key"
		}
		headers[headerName] = apiKey
	default:
		return nil, channel.NewConfigurationError("api authentication.type %q is not supported", authType)
	}
	return headers, nil
}

// TestConnection probes the conventional health path with the configured
// auth headers.
func (a *Adapter) TestConnection(ctx context.Context, cfg channel.Config) (channel.TestOutcome, error) {
	base, err := a.baseURL(cfg)
	if err != nil {
		return channel.TestOutcome{}, err
	}
	headers, err := AuthHeaders(cfg)
	if err != nil {
		return channel.TestOutcome{}, err
	}
	status, body, err := common.JSONRequest(ctx, a.client, http.MethodGet, base+defaultHealthPath, headers, nil)
	if err != nil {
		return channel.TestOutcome{}, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return channel.TestOutcome{}, channel.NewAuthenticationError("api endpoint rejected credentials: %s", common.ProviderMessage(body))
	}
	if status < 200 || status >= 300 {
		return channel.TestOutcome{}, fmt.Errorf("api health probe failed (%d)", status)
	}
	return channel.TestOutcome{
		Success: true,
		Message: fmt.Sprintf("API endpoint %s is reachable", base),
	}, nil
}

// Send posts the full canonical envelope as JSON.
func (a *Adapter) Send(ctx context.Context, cfg channel.Config, msg channel.Message) (channel.SendReceipt, error) {
	base, err := a.baseURL(cfg)
	if err != nil {
		return channel.SendReceipt{}, err
	}
	headers, err := AuthHeaders(cfg)
	if err != nil {
		return channel.SendReceipt{}, err
	}
	sendPath := cfg.ConfigSetting(keySendPath)
	if sendPath == "" {
		sendPath = defaultSendPath
	}
	status, body, err := common.JSONRequest(ctx, a.client, http.MethodPost, base+sendPath, headers, msg)
	if err != nil {
		return channel.SendReceipt{}, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return channel.SendReceipt{}, channel.NewAuthenticationError("api endpoint rejected credentials: %s", common.ProviderMessage(body))
	}
	if status < 200 || status >= 300 {
		return channel.SendReceipt{}, fmt.Errorf("api send failed (%d): %s", status, common.ProviderMessage(body))
	}
	return channel.SendReceipt{}, nil
}

// ClassifyEvent labels generic REST callbacks as messages; the payload
// is already canonical-shaped.
func (a *Adapter) ClassifyEvent(payload []byte) string {
	return channel.EventClassMessages
}

// ExtractMessages decodes a canonical-shaped inbound payload.
func (a *Adapter) ExtractMessages(cfg channel.Config, payload []byte) ([]channel.Message, error) {
	return channel.DecodeCanonicalInbound(cfg, payload)
}
