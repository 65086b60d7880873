package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/converso/gateway/internal/channel"
)

// threadStore is the slice of Store the threader needs.
type threadStore interface {
	FindOrCreate(ctx context.Context, agentID, tenantID, customerID, channelName string) (Conversation, error)
	UpdateStatus(ctx context.Context, id string, status Status) (Conversation, error)
}

// Threader assigns messages to conversations. The customer identity is
// the remote party: the sender for inbound messages, the recipient for
// outbound ones. The owning channel configuration stands in for the
// agent.
type Threader struct {
	store  threadStore
	logger *slog.Logger
}

// NewThreader creates a conversation threader.
func NewThreader(log *slog.Logger, store threadStore) *Threader {
	if log == nil {
		log = slog.Default()
	}
	return &Threader{
		store:  store,
		logger: log.With(slog.String("component", "threader")),
	}
}

// ThreadInbound resolves the active conversation for an inbound
// message, creating one when the customer has none on this channel.
func (t *Threader) ThreadInbound(ctx context.Context, cfg channel.Config, msg channel.Message) (Conversation, error) {
	if msg.Sender.ID == "" {
		return Conversation{}, fmt.Errorf("inbound message has no sender id")
	}
	conv, err := t.store.FindOrCreate(ctx, cfg.ID, cfg.TenantID, msg.Sender.ID, cfg.Type.String())
	if err != nil {
		return Conversation{}, fmt.Errorf("thread inbound message: %w", err)
	}
	return conv, nil
}

// ThreadOutbound resolves the active conversation for an outbound
// message and returns its id.
func (t *Threader) ThreadOutbound(ctx context.Context, cfg channel.Config, msg channel.Message) (string, error) {
	if msg.Recipient.ID == "" {
		return "", fmt.Errorf("outbound message has no recipient id")
	}
	conv, err := t.store.FindOrCreate(ctx, cfg.ID, cfg.TenantID, msg.Recipient.ID, cfg.Type.String())
	if err != nil {
		return "", fmt.Errorf("thread outbound message: %w", err)
	}
	return conv.ID, nil
}

// Escalate hands a conversation off to a human operator.
func (t *Threader) Escalate(ctx context.Context, id string) (Conversation, error) {
	conv, err := t.store.UpdateStatus(ctx, id, StatusEscalated)
	if err != nil {
		return Conversation{}, err
	}
	t.logger.Info("conversation escalated", slog.String("conversation_id", id))
	return conv, nil
}

// Close ends a conversation. A later message from the same customer
// starts a fresh active conversation.
func (t *Threader) Close(ctx context.Context, id string) (Conversation, error) {
	conv, err := t.store.UpdateStatus(ctx, id, StatusClosed)
	if err != nil {
		return Conversation{}, err
	}
	t.logger.Info("conversation closed", slog.String("conversation_id", id))
	return conv, nil
}
