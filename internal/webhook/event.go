// Package webhook receives provider callbacks on the public webhook
// endpoints and routes them to the owning channel.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/converso/gateway/internal/db"
)

// ErrEventNotFound indicates no webhook event exists for the given id.
var ErrEventNotFound = errors.New("webhook event not found")

// Event is one received provider callback. Events are written before
// any processing and never deleted, so a failed delivery can be
// replayed from the stored payload.
type Event struct {
	ID              string          `json:"id"`
	ChannelID       string          `json:"channel_id"`
	ChannelType     string          `json:"channel_type"`
	EventType       string          `json:"event_type"`
	Payload         json.RawMessage `json:"payload"`
	ReceivedAt      time.Time       `json:"received_at"`
	Processed       bool            `json:"processed"`
	ProcessingError string          `json:"processing_error,omitempty"`
}

// EventStore persists webhook events.
type EventStore struct {
	q      dbpkg.Querier
	logger *slog.Logger
}

// NewEventStore creates a webhook event store backed by the given querier.
func NewEventStore(log *slog.Logger, q dbpkg.Querier) *EventStore {
	if log == nil {
		log = slog.Default()
	}
	return &EventStore{
		q:      q,
		logger: log.With(slog.String("component", "webhook_event_store")),
	}
}

const eventColumns = `id, channel_id, channel_type, event_type, payload, received_at, processed, processing_error`

// Create writes one unprocessed event row. This must succeed before the
// provider is acknowledged.
func (s *EventStore) Create(ctx context.Context, channelID, channelType, eventType string, payload []byte) (Event, error) {
	if s.q == nil {
		return Event{}, fmt.Errorf("webhook event store not configured")
	}
	channelUUID, err := dbpkg.ParseUUID(channelID)
	if err != nil {
		return Event{}, fmt.Errorf("invalid channel id: %w", err)
	}
	if len(payload) == 0 || !json.Valid(payload) {
		// Store non-JSON bodies wrapped so the column stays JSONB.
		wrapped, merr := json.Marshal(map[string]string{"raw": string(payload)})
		if merr != nil {
			return Event{}, fmt.Errorf("wrap payload: %w", merr)
		}
		payload = wrapped
	}
	row := s.q.QueryRow(ctx, `
		INSERT INTO webhook_events (channel_id, channel_type, event_type, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING `+eventColumns,
		channelUUID, channelType, eventType, payload)
	return scanEvent(row)
}

// MarkProcessed flags an event as fully handled.
func (s *EventStore) MarkProcessed(ctx context.Context, id string) error {
	return s.setOutcome(ctx, id, true, "")
}

// MarkFailed records a processing error. The event stays unprocessed so
// it can be replayed.
func (s *EventStore) MarkFailed(ctx context.Context, id string, processingErr string) error {
	return s.setOutcome(ctx, id, false, processingErr)
}

func (s *EventStore) setOutcome(ctx context.Context, id string, processed bool, processingErr string) error {
	if s.q == nil {
		return fmt.Errorf("webhook event store not configured")
	}
	idUUID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return fmt.Errorf("invalid event id: %w", err)
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE webhook_events SET processed = $2, processing_error = $3 WHERE id = $1`,
		idUUID, processed, processingErr)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// ListByChannel returns a channel's events, newest first, capped at limit.
func (s *EventStore) ListByChannel(ctx context.Context, channelID string, limit int) ([]Event, error) {
	if s.q == nil {
		return nil, fmt.Errorf("webhook event store not configured")
	}
	channelUUID, err := dbpkg.ParseUUID(channelID)
	if err != nil {
		return nil, fmt.Errorf("invalid channel id: %w", err)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+eventColumns+` FROM webhook_events
		WHERE channel_id = $1 ORDER BY received_at DESC LIMIT $2`,
		channelUUID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, event)
	}
	return items, rows.Err()
}

func scanEvent(row pgx.Row) (Event, error) {
	var (
		id, channelUUID pgtype.UUID
		channelType     string
		eventType       string
		payload         []byte
		receivedAt      pgtype.Timestamptz
		processed       bool
		processingErr   string
	)
	if err := row.Scan(&id, &channelUUID, &channelType, &eventType,
		&payload, &receivedAt, &processed, &processingErr); err != nil {
		return Event{}, err
	}
	return Event{
		ID:              id.String(),
		ChannelID:       channelUUID.String(),
		ChannelType:     channelType,
		EventType:       eventType,
		Payload:         json.RawMessage(payload),
		ReceivedAt:      dbpkg.TimeFromPg(receivedAt),
		Processed:       processed,
		ProcessingError: processingErr,
	}, nil
}
