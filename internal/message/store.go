// Package message persists canonical channel messages.
package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/converso/gateway/internal/channel"
	dbpkg "github.com/converso/gateway/internal/db"
)

// ErrMessageNotFound indicates no message row exists for the given id.
var ErrMessageNotFound = errors.New("channel message not found")

// statusOrder defines the monotonic status progression. A row never
// moves backwards; failed is terminal.
var statusOrder = []string{
	string(channel.StatusPending),
	string(channel.StatusSent),
	string(channel.StatusDelivered),
	string(channel.StatusRead),
	string(channel.StatusFailed),
}

// Store persists channel messages. Rows are immutable except for status
// and error, and are deduplicated on (channel, provider message id).
type Store struct {
	q      dbpkg.Querier
	logger *slog.Logger
}

// NewStore creates a message store backed by the given querier.
func NewStore(log *slog.Logger, q dbpkg.Querier) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		q:      q,
		logger: log.With(slog.String("component", "message_store")),
	}
}

const messageColumns = `id, channel_id, channel_type, conversation_id, direction,
	content_type, content, sender_id, sender_name, recipient_id, recipient_name,
	external_message_id, status, error, created_at`

// Create inserts one message row. When the message carries a provider
// message id and a row for it already exists, the existing row is
// returned unchanged instead of creating a duplicate.
func (s *Store) Create(ctx context.Context, msg channel.Message) (channel.Message, error) {
	if s.q == nil {
		return channel.Message{}, fmt.Errorf("message store not configured")
	}
	channelUUID, err := dbpkg.ParseUUID(msg.ChannelID)
	if err != nil {
		return channel.Message{}, fmt.Errorf("invalid channel id: %w", err)
	}
	conversationID := pgtype.UUID{}
	if strings.TrimSpace(msg.ConversationID) != "" {
		conversationID, err = dbpkg.ParseUUID(msg.ConversationID)
		if err != nil {
			return channel.Message{}, fmt.Errorf("invalid conversation id: %w", err)
		}
	}
	contentPayload, err := json.Marshal(msg.Content)
	if err != nil {
		return channel.Message{}, fmt.Errorf("marshal message content: %w", err)
	}
	status := msg.Status
	if status == "" {
		status = channel.StatusPending
	}
	row := s.q.QueryRow(ctx, `
		INSERT INTO channel_messages (channel_id, channel_type, conversation_id, direction,
			content_type, content, sender_id, sender_name, recipient_id, recipient_name,
			external_message_id, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, COALESCE($14, now()))
		ON CONFLICT (channel_id, external_message_id) WHERE external_message_id IS NOT NULL
		DO NOTHING
		RETURNING `+messageColumns,
		channelUUID, msg.ChannelType.String(), conversationID, string(msg.Direction),
		string(msg.Content.Type), contentPayload,
		msg.Sender.ID, msg.Sender.Name, msg.Recipient.ID, msg.Recipient.Name,
		dbpkg.ToPgText(msg.ExternalID), string(status), msg.Error, dbpkg.ToPgTime(msg.Timestamp))
	created, err := scanMessage(row)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return channel.Message{}, err
	}
	// Conflict with an existing provider message id: return that row.
	existing := s.q.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM channel_messages
		WHERE channel_id = $1 AND external_message_id = $2`,
		channelUUID, dbpkg.ToPgText(msg.ExternalID))
	deduped, err := scanMessage(existing)
	if err != nil {
		return channel.Message{}, fmt.Errorf("dedup lookup: %w", err)
	}
	if s.logger != nil {
		s.logger.Debug("duplicate provider message ignored",
			slog.String("channel_id", msg.ChannelID),
			slog.String("external_id", msg.ExternalID))
	}
	return deduped, nil
}

// UpdateStatus advances the delivery status of the message a provider
// receipt names by its external message id. Transitions are monotonic;
// attempts to move backwards and receipts for unknown messages are
// ignored.
func (s *Store) UpdateStatus(ctx context.Context, channelID, externalID string, status channel.MessageStatus, errMessage string) error {
	if s.q == nil {
		return fmt.Errorf("message store not configured")
	}
	channelUUID, err := dbpkg.ParseUUID(channelID)
	if err != nil {
		return fmt.Errorf("invalid channel id: %w", err)
	}
	if strings.TrimSpace(externalID) == "" {
		return fmt.Errorf("external message id is required")
	}
	_, err = s.q.Exec(ctx, `
		UPDATE channel_messages
		SET status = $3, error = $4
		WHERE channel_id = $1 AND external_message_id = $2
		  AND array_position($5::text[], status) < array_position($5::text[], $3::text)`,
		channelUUID, externalID, string(status), errMessage, statusOrder)
	return err
}

// AssignConversation attaches a persisted message to a conversation.
func (s *Store) AssignConversation(ctx context.Context, id, conversationID string) error {
	if s.q == nil {
		return fmt.Errorf("message store not configured")
	}
	idUUID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return fmt.Errorf("invalid message id: %w", err)
	}
	conversationUUID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return fmt.Errorf("invalid conversation id: %w", err)
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE channel_messages SET conversation_id = $2 WHERE id = $1`,
		idUUID, conversationUUID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// ListByConversation returns a conversation's messages in arrival order.
func (s *Store) ListByConversation(ctx context.Context, conversationID string) ([]channel.Message, error) {
	if s.q == nil {
		return nil, fmt.Errorf("message store not configured")
	}
	conversationUUID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id: %w", err)
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+messageColumns+` FROM channel_messages
		WHERE conversation_id = $1 ORDER BY created_at`, conversationUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]channel.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, msg)
	}
	return items, rows.Err()
}

func scanMessage(row pgx.Row) (channel.Message, error) {
	var (
		id, channelUUID pgtype.UUID
		conversationID  pgtype.UUID
		channelType     string
		direction       string
		contentType     string
		contentPayload  []byte
		senderID        string
		senderName      string
		recipientID     string
		recipientName   string
		externalID      pgtype.Text
		status          string
		errMessage      string
		createdAt       pgtype.Timestamptz
	)
	if err := row.Scan(&id, &channelUUID, &channelType, &conversationID, &direction,
		&contentType, &contentPayload, &senderID, &senderName, &recipientID, &recipientName,
		&externalID, &status, &errMessage, &createdAt); err != nil {
		return channel.Message{}, err
	}
	var content channel.Content
	if len(contentPayload) > 0 {
		if err := json.Unmarshal(contentPayload, &content); err != nil {
			return channel.Message{}, fmt.Errorf("decode message content: %w", err)
		}
	}
	if content.Type == "" {
		content.Type = channel.ContentType(contentType)
	}
	msg := channel.Message{
		ID:          id.String(),
		ChannelID:   channelUUID.String(),
		ChannelType: channel.Type(channelType),
		Direction:   channel.Direction(direction),
		Content:     content,
		Sender:      channel.Party{ID: senderID, Name: senderName},
		Recipient:   channel.Party{ID: recipientID, Name: recipientName},
		Timestamp:   dbpkg.TimeFromPg(createdAt),
		Status:      channel.MessageStatus(status),
		Error:       errMessage,
	}
	if conversationID.Valid {
		msg.ConversationID = conversationID.String()
	}
	if externalID.Valid {
		msg.ExternalID = externalID.String
	}
	return msg, nil
}
