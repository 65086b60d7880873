package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/converso/gateway/internal/channel"
)

// configSource resolves tenant-scoped channel configurations.
type configSource interface {
	GetForTenant(ctx context.Context, tenantID, id string) (channel.Config, error)
}

// messageSink persists canonical message rows.
type messageSink interface {
	Create(ctx context.Context, msg channel.Message) (channel.Message, error)
	AssignConversation(ctx context.Context, id, conversationID string) error
}

// outboundThreader attaches an outbound message to the customer's
// active conversation.
type outboundThreader interface {
	ThreadOutbound(ctx context.Context, cfg channel.Config, msg channel.Message) (string, error)
}

// Dispatcher sends outbound messages through the channel adapters and
// records every attempt, including failed ones.
type Dispatcher struct {
	registry *channel.Registry
	channels configSource
	messages messageSink
	threader outboundThreader
	logger   *slog.Logger
}

// NewDispatcher creates an outbound dispatcher. threader may be nil
// when outbound messages should not join conversations.
func NewDispatcher(log *slog.Logger, registry *channel.Registry, channels configSource, messages messageSink, threader outboundThreader) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		channels: channels,
		messages: messages,
		threader: threader,
		logger:   log.With(slog.String("component", "dispatcher")),
	}
}

// Dispatch sends one outbound message on a tenant's channel. A missing
// or disabled channel is a silent no-op: nothing is sent and nothing is
// written. Otherwise the message is persisted exactly once, with the
// send outcome reflected in its status.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID, channelID string, draft channel.Draft) (*channel.Message, error) {
	cfg, err := d.channels.GetForTenant(ctx, tenantID, channelID)
	if err != nil {
		if errors.Is(err, channel.ErrChannelNotFound) {
			d.logger.Debug("dispatch to unknown channel skipped",
				slog.String("channel_id", channelID))
			return nil, nil
		}
		return nil, fmt.Errorf("resolve channel: %w", err)
	}
	if !cfg.Enabled {
		d.logger.Debug("dispatch to disabled channel skipped",
			slog.String("channel_id", cfg.ID),
			slog.String("channel_type", cfg.Type.String()))
		return nil, nil
	}

	adapter, ok := d.registry.Get(cfg.Type)
	if !ok {
		return nil, channel.NewUnsupportedError(cfg.Type.String())
	}

	msg := channel.Message{
		ChannelID:   cfg.ID,
		ChannelType: cfg.Type,
		Direction:   channel.DirectionOutbound,
		Content:     draft.Content,
		Sender:      draft.Sender,
		Recipient:   draft.Recipient,
		Timestamp:   time.Now().UTC(),
		Status:      channel.StatusPending,
	}

	receipt, sendErr := adapter.Send(ctx, cfg, msg)
	if sendErr != nil {
		msg.Status = channel.StatusFailed
		msg.Error = sendErr.Error()
		d.logger.Warn("outbound send failed",
			slog.String("channel_id", cfg.ID),
			slog.String("channel_type", cfg.Type.String()),
			slog.String("error_kind", string(channel.KindOf(sendErr))),
			slog.String("error", sendErr.Error()))
	} else {
		msg.Status = channel.StatusSent
		msg.ExternalID = receipt.ExternalID
	}

	persisted, err := d.messages.Create(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("persist outbound message: %w", err)
	}

	if d.threader != nil && persisted.Status == channel.StatusSent && persisted.Recipient.ID != "" {
		d.thread(ctx, cfg, &persisted)
	}
	return &persisted, nil
}

// thread best-effort attaches the sent message to a conversation; a
// threading failure never fails the dispatch.
func (d *Dispatcher) thread(ctx context.Context, cfg channel.Config, msg *channel.Message) {
	conversationID, err := d.threader.ThreadOutbound(ctx, cfg, *msg)
	if err != nil {
		d.logger.Error("thread outbound message",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()))
		return
	}
	if conversationID == "" {
		return
	}
	if err := d.messages.AssignConversation(ctx, msg.ID, conversationID); err != nil {
		d.logger.Error("assign outbound conversation",
			slog.String("message_id", msg.ID),
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()))
		return
	}
	msg.ConversationID = conversationID
}
