// Package slack implements the channel.Adapter for the Slack Web API
// and Events API.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/converso/gateway/internal/channel"
	"github.com/converso/gateway/internal/channel/adapters/common"
)

// Type is the Slack channel type.
const Type = channel.TypeSlack

const defaultAPIBaseURL = "https://slack.com/api"

const keyBotToken = "botToken"

// Adapter talks to the Slack Web API over plain HTTP.
type Adapter struct {
	logger  *slog.Logger
	client  *http.Client
	baseURL string
}

// New creates a Slack adapter with the given logger.
func New(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger:  log.With(slog.String("adapter", "slack")),
		client:  http.DefaultClient,
		baseURL: defaultAPIBaseURL,
	}
}

// Type returns the Slack channel type.
func (a *Adapter) Type() channel.Type {
	return Type
}

func (a *Adapter) requireToken(cfg channel.Config) (string, error) {
	token := cfg.AuthSetting(keyBotToken)
	if token == "" {
		return "", channel.NewConfigurationError("slack authentication.botToken is required")
	}
	return token, nil
}

// TestConnection calls auth.test and reports the resolved workspace name.
func (a *Adapter) TestConnection(ctx context.Context, cfg channel.Config) (channel.TestOutcome, error) {
	token, err := a.requireToken(cfg)
	if err != nil {
		return channel.TestOutcome{}, err
	}
	status, body, err := common.JSONRequest(ctx, a.client, http.MethodPost, a.baseURL+"/auth.test",
		map[string]string{"Authorization": "Bearer " + token}, map[string]any{})
	if err != nil {
		return channel.TestOutcome{}, err
	}
	if status < 200 || status >= 300 {
		return channel.TestOutcome{}, fmt.Errorf("slack auth.test failed (%d): %s", status, common.ProviderMessage(body))
	}
	var resp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
		Team  string `json:"team"`
		User  string `json:"user"`
		BotID string `json:"bot_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return channel.TestOutcome{}, fmt.Errorf("decode slack auth.test response: %w", err)
	}
	if !resp.OK {
		// Slack reports auth failures inside a 200 body.
		return channel.TestOutcome{}, channel.NewAuthenticationError("slack rejected token: %s", resp.Error)
	}
	return channel.TestOutcome{
		Success: true,
		Message: fmt.Sprintf("Connected to Slack workspace %s", resp.Team),
		Details: map[string]any{"team": resp.Team, "user": resp.User, "bot_id": resp.BotID},
	}, nil
}

// Send posts content.data.text to the recipient channel or user id via
// chat.postMessage.
func (a *Adapter) Send(ctx context.Context, cfg channel.Config, msg channel.Message) (channel.SendReceipt, error) {
	token, err := a.requireToken(cfg)
	if err != nil {
		return channel.SendReceipt{}, err
	}
	target := strings.TrimSpace(msg.Recipient.ID)
	if target == "" {
		return channel.SendReceipt{}, channel.NewConfigurationError("slack recipient id is required")
	}
	status, body, err := common.JSONRequest(ctx, a.client, http.MethodPost, a.baseURL+"/chat.postMessage",
		map[string]string{"Authorization": "Bearer " + token},
		map[string]any{"channel": target, "text": msg.Content.Text()})
	if err != nil {
		return channel.SendReceipt{}, err
	}
	if status < 200 || status >= 300 {
		return channel.SendReceipt{}, fmt.Errorf("slack chat.postMessage failed (%d): %s", status, common.ProviderMessage(body))
	}
	var resp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
		TS    string `json:"ts"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return channel.SendReceipt{}, fmt.Errorf("decode slack post response: %w", err)
	}
	if !resp.OK {
		if resp.Error == "invalid_auth" || resp.Error == "not_authed" || resp.Error == "token_revoked" {
			return channel.SendReceipt{}, channel.NewAuthenticationError("slack rejected token: %s", resp.Error)
		}
		return channel.SendReceipt{}, fmt.Errorf("slack chat.postMessage failed: %s", resp.Error)
	}
	return channel.SendReceipt{ExternalID: resp.TS}, nil
}

// eventEnvelope mirrors the Events API callback shape.
type eventEnvelope struct {
	Type  string `json:"type"`
	Event struct {
		Type    string `json:"type"`
		Subtype string `json:"subtype"`
		User    string `json:"user"`
		BotID   string `json:"bot_id"`
		Channel string `json:"channel"`
		Text    string `json:"text"`
		TS      string `json:"ts"`
	} `json:"event"`
}

// ClassifyEvent labels the payload by the Slack event type.
func (a *Adapter) ClassifyEvent(payload []byte) string {
	var envelope eventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return channel.EventClassUnknown
	}
	if envelope.Event.Type == "message" {
		return channel.EventClassMessages
	}
	if envelope.Event.Type != "" {
		return envelope.Event.Type
	}
	if envelope.Type != "" {
		return envelope.Type
	}
	return channel.EventClassUnknown
}

// ExtractMessages converts a message event into one canonical inbound
// message. Bot-authored events (bot_id set) are echoes of the channel's
// own output and are dropped.
func (a *Adapter) ExtractMessages(cfg channel.Config, payload []byte) ([]channel.Message, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode slack event payload: %w", err)
	}
	event := envelope.Event
	if event.Type != "message" || event.Subtype != "" {
		return nil, nil
	}
	if strings.TrimSpace(event.BotID) != "" || strings.TrimSpace(event.User) == "" {
		return nil, nil
	}
	content := channel.Content{
		Type: channel.ContentText,
		Data: map[string]any{"text": event.Text},
	}
	msg := channel.NewInboundMessage(cfg, content,
		channel.Party{ID: event.User},
		channel.Party{ID: event.Channel},
		event.TS, parseSlackTS(event.TS))
	return []channel.Message{msg}, nil
}

func parseSlackTS(ts string) time.Time {
	seconds, _, _ := strings.Cut(strings.TrimSpace(ts), ".")
	value, err := strconv.ParseInt(seconds, 10, 64)
	if err != nil || value <= 0 {
		return time.Time{}
	}
	return time.Unix(value, 0).UTC()
}
