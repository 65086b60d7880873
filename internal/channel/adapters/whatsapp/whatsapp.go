// Package whatsapp implements the channel.Adapter for the WhatsApp
// Business Cloud API.
package whatsapp

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

// Type is the WhatsApp channel type.
const Type = channel.TypeWhatsApp

const defaultGraphBaseURL = "https://graph.facebook.com/v19.0"

// Config keys interpreted by this adapter.
const (
	keyPhoneNumberID     = "phoneNumberId"
	keyBusinessAccountID = "businessAccountId"
	keyVerifyToken       = "verifyToken"
	keyAccessToken       = "accessToken"
)

// Adapter talks to the WhatsApp Business Cloud API over plain HTTP.
type Adapter struct {
	logger  *slog.Logger
	client  *http.Client
	baseURL string
}

// New creates a WhatsApp adapter with the given logger.
func New(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger:  log.With(slog.String("adapter", "whatsapp")),
		client:  http.DefaultClient,
		baseURL: defaultGraphBaseURL,
	}
}

// Type returns the WhatsApp channel type.
func (a *Adapter) Type() channel.Type {
	return Type
}

// VerifyToken returns the token the provider presents during the GET
// verification handshake.
func (a *Adapter) VerifyToken(cfg channel.Config) string {
	return cfg.ConfigSetting(keyVerifyToken)
}

func (a *Adapter) requireCredentials(cfg channel.Config) (phoneNumberID, accessToken string, err error) {
	phoneNumberID = cfg.ConfigSetting(keyPhoneNumberID)
	if phoneNumberID == "" {
		return "", "", channel.NewConfigurationError("whatsapp configuration.phoneNumberId is required")
	}
	if cfg.ConfigSetting(keyBusinessAccountID) == "" {
		return "", "", channel.NewConfigurationError("whatsapp configuration.businessAccountId is required")
	}
	accessToken = cfg.AuthSetting(keyAccessToken)
	if accessToken == "" {
		return "", "", channel.NewConfigurationError("whatsapp authentication.accessToken is required")
	}
	return phoneNumberID, accessToken, nil
}

// TestConnection reads the phone-number resource with the configured
// credentials. The success message carries the provider-confirmed
// display number.
func (a *Adapter) TestConnection(ctx context.Context, cfg channel.Config) (channel.TestOutcome, error) {
	phoneNumberID, accessToken, err := a.requireCredentials(cfg)
	if err != nil {
		return channel.TestOutcome{}, err
	}
	url := fmt.Sprintf("%s/%s?fields=display_phone_number,verified_name", a.baseURL, phoneNumberID)
	status, body, err := common.JSONRequest(ctx, a.client, http.MethodGet, url, bearerHeaders(accessToken), nil)
	if err != nil {
		return channel.TestOutcome{}, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return channel.TestOutcome{}, channel.NewAuthenticationError("whatsapp rejected credentials: %s", common.ProviderMessage(body))
	}
	if status < 200 || status >= 300 {
		return channel.TestOutcome{}, fmt.Errorf("whatsapp phone number lookup failed (%d): %s", status, common.ProviderMessage(body))
	}
	var resp struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		VerifiedName       string `json:"verified_name"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return channel.TestOutcome{}, fmt.Errorf("decode whatsapp response: %w", err)
	}
	return channel.TestOutcome{
		Success: true,
		Message: fmt.Sprintf("Connected to WhatsApp number %s", resp.DisplayPhoneNumber),
		Details: map[string]any{
			"display_phone_number": resp.DisplayPhoneNumber,
			"verified_name":        resp.VerifiedName,
		},
	}, nil
}

// Send delivers one outbound message through the messages endpoint,
// wrapping the canonical content by its declared type.
func (a *Adapter) Send(ctx context.Context, cfg channel.Config, msg channel.Message) (channel.SendReceipt, error) {
	phoneNumberID, accessToken, err := a.requireCredentials(cfg)
	if err != nil {
		return channel.SendReceipt{}, err
	}
	to := strings.TrimSpace(msg.Recipient.ID)
	if to == "" {
		return channel.SendReceipt{}, channel.NewConfigurationError("whatsapp recipient id is required")
	}
	payload, err := buildSendPayload(to, msg.Content)
	if err != nil {
		return channel.SendReceipt{}, err
	}
	url := fmt.Sprintf("%s/%s/messages", a.baseURL, phoneNumberID)
	status, body, err := common.JSONRequest(ctx, a.client, http.MethodPost, url, bearerHeaders(accessToken), payload)
	if err != nil {
		return channel.SendReceipt{}, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return channel.SendReceipt{}, channel.NewAuthenticationError("whatsapp rejected credentials: %s", common.ProviderMessage(body))
	}
	if status < 200 || status >= 300 {
		return channel.SendReceipt{}, fmt.Errorf("whatsapp send failed (%d): %s", status, common.ProviderMessage(body))
	}
	var resp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return channel.SendReceipt{}, fmt.Errorf("decode whatsapp send response: %w", err)
	}
	receipt := channel.SendReceipt{}
	if len(resp.Messages) > 0 {
		receipt.ExternalID = resp.Messages[0].ID
	}
	return receipt, nil
}

func readData(content channel.Content, key string) string {
	value, _ := content.Data[key].(string)
	return strings.TrimSpace(value)
}

func buildSendPayload(to string, content channel.Content) (map[string]any, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
	}
	switch content.Type {
	case channel.ContentText, "":
		payload["type"] = "text"
		payload["text"] = map[string]any{"body": content.Text()}
	case channel.ContentImage, channel.ContentAudio, channel.ContentVideo:
		media := map[string]any{"link": readData(content, "url")}
		if caption := readData(content, "caption"); caption != "" && content.Type != channel.ContentAudio {
			media["caption"] = caption
		}
		payload["type"] = string(content.Type)
		payload[string(content.Type)] = media
	case channel.ContentFile:
		payload["type"] = "document"
		payload["document"] = map[string]any{
			"link":     readData(content, "url"),
			"filename": readData(content, "filename"),
		}
	default:
		return nil, channel.NewConfigurationError("whatsapp does not support content type %s", content.Type)
	}
	return payload, nil
}

// webhookEnvelope mirrors the relevant slice of the Cloud API event shape.
type webhookEnvelope struct {
	Entry []struct {
		Changes []struct {
			Field string       `json:"field"`
			Value webhookValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookValue struct {
	Metadata struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []inboundMessage `json:"messages"`
	Statuses []inboundStatus  `json:"statuses"`
}

type inboundMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	MsgType   string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    mediaRef `json:"image"`
	Audio    mediaRef `json:"audio"`
	Video    mediaRef `json:"video"`
	Document mediaRef `json:"document"`
}

type inboundStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
	Errors      []struct {
		Code    int    `json:"code"`
		Title   string `json:"title"`
		Message string `json:"message"`
	} `json:"errors"`
}

type mediaRef struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
}

// ClassifyEvent labels a webhook payload as "messages" when it carries
// inbound messages, "status" for delivery receipts, "unknown" otherwise.
func (a *Adapter) ClassifyEvent(payload []byte) string {
	var envelope webhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return channel.EventClassUnknown
	}
	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			if len(change.Value.Messages) > 0 {
				return channel.EventClassMessages
			}
			if len(change.Value.Statuses) > 0 {
				return channel.EventClassStatus
			}
		}
	}
	return channel.EventClassUnknown
}

// ExtractMessages converts a webhook payload into canonical inbound
// messages. Events originating from the channel's own number are
// dropped.
func (a *Adapter) ExtractMessages(cfg channel.Config, payload []byte) ([]channel.Message, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode whatsapp webhook payload: %w", err)
	}
	ownPhoneNumberID := cfg.ConfigSetting(keyPhoneNumberID)
	messages := make([]channel.Message, 0)
	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			names := map[string]string{}
			for _, contact := range value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}
			for _, raw := range value.Messages {
				if isSelf(raw.From, value.Metadata.DisplayPhoneNumber) {
					continue
				}
				content, ok := extractContent(raw)
				if !ok {
					if a.logger != nil {
						a.logger.Debug("skip unsupported whatsapp message", slog.String("type", raw.MsgType))
					}
					continue
				}
				recipient := channel.Party{ID: value.Metadata.PhoneNumberID}
				if recipient.ID == "" {
					recipient.ID = ownPhoneNumberID
				}
				msg := channel.NewInboundMessage(cfg, content,
					channel.Party{ID: raw.From, Name: names[raw.From]},
					recipient, raw.ID, parseUnixSeconds(raw.Timestamp))
				messages = append(messages, msg)
			}
		}
	}
	return messages, nil
}

// ExtractStatuses converts a status webhook payload into delivery
// receipts for previously sent messages.
func (a *Adapter) ExtractStatuses(payload []byte) ([]channel.StatusUpdate, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode whatsapp webhook payload: %w", err)
	}
	updates := make([]channel.StatusUpdate, 0)
	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			for _, raw := range change.Value.Statuses {
				status, ok := parseStatus(raw.Status)
				if !ok {
					if a.logger != nil {
						a.logger.Debug("skip unknown whatsapp status", slog.String("status", raw.Status))
					}
					continue
				}
				update := channel.StatusUpdate{ExternalID: raw.ID, Status: status}
				if status == channel.StatusFailed && len(raw.Errors) > 0 {
					update.Error = raw.Errors[0].Title
					if update.Error == "" {
						update.Error = raw.Errors[0].Message
					}
				}
				if update.ExternalID != "" {
					updates = append(updates, update)
				}
			}
		}
	}
	return updates, nil
}

func parseStatus(raw string) (channel.MessageStatus, bool) {
	switch raw {
	case "sent":
		return channel.StatusSent, true
	case "delivered":
		return channel.StatusDelivered, true
	case "read":
		return channel.StatusRead, true
	case "failed":
		return channel.StatusFailed, true
	default:
		return "", false
	}
}

func extractContent(raw inboundMessage) (channel.Content, bool) {
	switch raw.MsgType {
	case "text":
		return channel.Content{Type: channel.ContentText, Data: map[string]any{"text": raw.Text.Body}}, true
	case "image":
		return mediaContent(channel.ContentImage, raw.Image), true
	case "audio":
		return mediaContent(channel.ContentAudio, raw.Audio), true
	case "video":
		return mediaContent(channel.ContentVideo, raw.Video), true
	case "document":
		content := mediaContent(channel.ContentFile, raw.Document)
		content.Data["filename"] = raw.Document.Filename
		return content, true
	default:
		return channel.Content{}, false
	}
}

func mediaContent(contentType channel.ContentType, ref mediaRef) channel.Content {
	return channel.Content{
		Type: contentType,
		Data: map[string]any{
			"media_id": ref.ID,
			"mime":     ref.MimeType,
			"caption":  ref.Caption,
		},
	}
}

func isSelf(from, ownDisplayNumber string) bool {
	from = digitsOnly(from)
	own := digitsOnly(ownDisplayNumber)
	return from != "" && own != "" && from == own
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func parseUnixSeconds(raw string) time.Time {
	seconds, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || seconds <= 0 {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}

func bearerHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
