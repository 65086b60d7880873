package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/converso/gateway/internal/db"
)

// ErrConversationNotFound indicates no conversation exists for the given id.
var ErrConversationNotFound = errors.New("conversation not found")

// Store persists conversations.
type Store struct {
	q      dbpkg.Querier
	logger *slog.Logger
}

// NewStore creates a conversation store backed by the given querier.
func NewStore(log *slog.Logger, q dbpkg.Querier) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		q:      q,
		logger: log.With(slog.String("component", "conversation_store")),
	}
}

const conversationColumns = `id, agent_id, tenant_id, customer_id, channel, status, metadata, created_at, updated_at`

// FindOrCreate returns the active conversation for (agent, customer,
// channel), creating it when none exists. The lookup and the insert are
// one statement, so concurrent callers converge on a single row.
func (s *Store) FindOrCreate(ctx context.Context, agentID, tenantID, customerID, channelName string) (Conversation, error) {
	if s.q == nil {
		return Conversation{}, fmt.Errorf("conversation store not configured")
	}
	agentUUID, err := dbpkg.ParseUUID(agentID)
	if err != nil {
		return Conversation{}, fmt.Errorf("invalid agent id: %w", err)
	}
	tenantUUID, err := dbpkg.ParseUUID(tenantID)
	if err != nil {
		return Conversation{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	if customerID == "" {
		return Conversation{}, fmt.Errorf("customer id required")
	}
	row := s.q.QueryRow(ctx, `
		INSERT INTO conversations (agent_id, tenant_id, customer_id, channel, status)
		VALUES ($1, $2, $3, $4, 'active')
		ON CONFLICT (agent_id, customer_id, channel) WHERE status = 'active'
		DO UPDATE SET updated_at = now()
		RETURNING `+conversationColumns,
		agentUUID, tenantUUID, customerID, channelName)
	return scanConversation(row)
}

// Get looks up one conversation by id.
func (s *Store) Get(ctx context.Context, id string) (Conversation, error) {
	if s.q == nil {
		return Conversation{}, fmt.Errorf("conversation store not configured")
	}
	idUUID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Conversation{}, ErrConversationNotFound
	}
	row := s.q.QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, idUUID)
	conv, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// ListByTenant returns a tenant's conversations, most recently touched
// first.
func (s *Store) ListByTenant(ctx context.Context, tenantID string) ([]Conversation, error) {
	if s.q == nil {
		return nil, fmt.Errorf("conversation store not configured")
	}
	tenantUUID, err := dbpkg.ParseUUID(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE tenant_id = $1 ORDER BY updated_at DESC`, tenantUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, conv)
	}
	return items, rows.Err()
}

// UpdateStatus moves a conversation to the given lifecycle state.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status) (Conversation, error) {
	if s.q == nil {
		return Conversation{}, fmt.Errorf("conversation store not configured")
	}
	idUUID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Conversation{}, ErrConversationNotFound
	}
	row := s.q.QueryRow(ctx, `
		UPDATE conversations SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+conversationColumns, idUUID, string(status))
	conv, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var (
		id, agentID, tenantID pgtype.UUID
		customerID            string
		channelName           string
		status                string
		metadataPayload       []byte
		createdAt, updatedAt  pgtype.Timestamptz
	)
	if err := row.Scan(&id, &agentID, &tenantID, &customerID, &channelName,
		&status, &metadataPayload, &createdAt, &updatedAt); err != nil {
		return Conversation{}, err
	}
	metadata := map[string]any{}
	if len(metadataPayload) > 0 {
		if err := json.Unmarshal(metadataPayload, &metadata); err != nil {
			return Conversation{}, fmt.Errorf("decode conversation metadata: %w", err)
		}
	}
	return Conversation{
		ID:         id.String(),
		AgentID:    agentID.String(),
		TenantID:   tenantID.String(),
		CustomerID: customerID,
		Channel:    channelName,
		Status:     Status(status),
		Metadata:   metadata,
		CreatedAt:  dbpkg.TimeFromPg(createdAt),
		UpdatedAt:  dbpkg.TimeFromPg(updatedAt),
	}, nil
}
