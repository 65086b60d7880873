package webhook

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"

	"github.com/converso/gateway/internal/auth"
	"github.com/converso/gateway/internal/channel"
	"github.com/converso/gateway/internal/conversation"
)

// configSource resolves channel configurations by id.
type configSource interface {
	Get(ctx context.Context, id string) (channel.Config, error)
}

// eventLog is the slice of EventStore the router writes through.
type eventLog interface {
	Create(ctx context.Context, channelID, channelType, eventType string, payload []byte) (Event, error)
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, processingErr string) error
}

// messageSink persists canonical inbound messages and applies provider
// delivery receipts to previously sent ones.
type messageSink interface {
	Create(ctx context.Context, msg channel.Message) (channel.Message, error)
	UpdateStatus(ctx context.Context, channelID, externalID string, status channel.MessageStatus, errMessage string) error
}

// inboundThreader resolves the conversation an inbound message belongs to.
type inboundThreader interface {
	ThreadInbound(ctx context.Context, cfg channel.Config, msg channel.Message) (conversation.Conversation, error)
}

// Router resolves public webhook calls to their owning channel and runs
// the inbound pipeline. The routing token is the only trust anchor: an
// undecodable or mismatched token is rejected before anything is
// written.
type Router struct {
	codec    *auth.RoutingCodec
	registry *channel.Registry
	channels configSource
	events   eventLog
	messages messageSink
	threader inboundThreader
	logger   *slog.Logger
}

// NewRouter creates a webhook router.
func NewRouter(log *slog.Logger, codec *auth.RoutingCodec, registry *channel.Registry, channels configSource, events eventLog, messages messageSink, threader inboundThreader) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		codec:    codec,
		registry: registry,
		channels: channels,
		events:   events,
		messages: messages,
		threader: threader,
		logger:   log.With(slog.String("component", "webhook_router")),
	}
}

// resolve decodes the routing token and loads the channel it names.
// The channel must exist, belong to the token's tenant, and match the
// public path's channel type.
func (r *Router) resolve(ctx context.Context, channelType channel.Type, token string) (channel.Config, error) {
	tenantID, credentialID, err := r.codec.Decode(token)
	if err != nil {
		return channel.Config{}, channel.NewRoutingError(err, "undecodable routing token")
	}
	cfg, err := r.channels.Get(ctx, credentialID)
	if err != nil {
		return channel.Config{}, channel.NewRoutingError(err, "unknown webhook route")
	}
	if cfg.TenantID != tenantID || cfg.Type != channelType {
		return channel.Config{}, channel.NewRoutingError(nil, "webhook route mismatch")
	}
	return cfg, nil
}

// Verify handles the provider's GET verification handshake. It returns
// the raw challenge to echo back, and never writes anything.
func (r *Router) Verify(ctx context.Context, channelType channel.Type, token, verifyToken, challenge string) (string, error) {
	cfg, err := r.resolve(ctx, channelType, token)
	if err != nil {
		return "", err
	}
	verifier, ok := r.registry.GetVerifier(channelType)
	if !ok {
		return "", channel.NewRoutingError(nil, "channel type %s has no verification handshake", channelType)
	}
	expected := verifier.VerifyToken(cfg)
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(verifyToken)) != 1 {
		return "", channel.NewRoutingError(nil, "verify token mismatch")
	}
	r.logger.Info("webhook verification succeeded",
		slog.String("channel_id", cfg.ID),
		slog.String("channel_type", channelType.String()))
	return challenge, nil
}

// Receive handles a provider POST. The event is logged durably before
// anything else; an error return means nothing was written and the
// caller must reject the request. Once the event row exists the caller
// acks the provider no matter how processing went: failures are
// recorded on the event for replay.
func (r *Router) Receive(ctx context.Context, channelType channel.Type, token string, payload []byte) (Event, error) {
	cfg, err := r.resolve(ctx, channelType, token)
	if err != nil {
		return Event{}, err
	}
	adapter, ok := r.registry.Get(cfg.Type)
	if !ok {
		return Event{}, channel.NewUnsupportedError(cfg.Type.String())
	}

	eventType := adapter.ClassifyEvent(payload)
	event, err := r.events.Create(ctx, cfg.ID, cfg.Type.String(), eventType, payload)
	if err != nil {
		return Event{}, fmt.Errorf("log webhook event: %w", err)
	}

	if err := r.process(ctx, cfg, adapter, event, payload); err != nil {
		r.logger.Error("webhook processing failed",
			slog.String("event_id", event.ID),
			slog.String("channel_id", cfg.ID),
			slog.String("error", err.Error()))
		if markErr := r.events.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
			r.logger.Error("record webhook processing error",
				slog.String("event_id", event.ID),
				slog.String("error", markErr.Error()))
		}
		event.ProcessingError = err.Error()
		return event, nil
	}

	if err := r.events.MarkProcessed(ctx, event.ID); err != nil {
		r.logger.Error("mark webhook event processed",
			slog.String("event_id", event.ID),
			slog.String("error", err.Error()))
		return event, nil
	}
	event.Processed = true
	return event, nil
}

// process runs the inbound pipeline for one logged event.
func (r *Router) process(ctx context.Context, cfg channel.Config, adapter channel.Adapter, event Event, payload []byte) error {
	if event.EventType == channel.EventClassStatus {
		return r.applyStatuses(ctx, cfg, payload)
	}
	if event.EventType != channel.EventClassMessages {
		// Unknown events are kept in the log only.
		return nil
	}
	messages, err := adapter.ExtractMessages(cfg, payload)
	if err != nil {
		return fmt.Errorf("extract messages: %w", err)
	}
	for _, msg := range messages {
		conv, err := r.threader.ThreadInbound(ctx, cfg, msg)
		if err != nil {
			return err
		}
		msg.ConversationID = conv.ID
		if _, err := r.messages.Create(ctx, msg); err != nil {
			return fmt.Errorf("persist inbound message: %w", err)
		}
	}
	if len(messages) > 0 {
		r.logger.Info("inbound messages threaded",
			slog.String("channel_id", cfg.ID),
			slog.String("channel_type", cfg.Type.String()),
			slog.Int("count", len(messages)))
	}
	return nil
}

// applyStatuses advances message delivery statuses from a provider
// status callback. Providers without delivery receipts keep the event
// in the log only.
func (r *Router) applyStatuses(ctx context.Context, cfg channel.Config, payload []byte) error {
	reporter, ok := r.registry.GetStatusReporter(cfg.Type)
	if !ok {
		return nil
	}
	updates, err := reporter.ExtractStatuses(payload)
	if err != nil {
		return fmt.Errorf("extract statuses: %w", err)
	}
	for _, update := range updates {
		if err := r.messages.UpdateStatus(ctx, cfg.ID, update.ExternalID, update.Status, update.Error); err != nil {
			return fmt.Errorf("apply message status %s: %w", update.Status, err)
		}
	}
	if len(updates) > 0 {
		r.logger.Info("delivery receipts applied",
			slog.String("channel_id", cfg.ID),
			slog.String("channel_type", cfg.Type.String()),
			slog.Int("count", len(updates)))
	}
	return nil
}
