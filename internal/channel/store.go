package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/converso/gateway/internal/db"
)

// ErrChannelNotFound indicates no channel config exists for the given id.
var ErrChannelNotFound = errors.New("channel config not found")

const configCacheSize = 512

// Store provides CRUD and cached lookup for tenant channel configurations.
// The cache is a best-effort read optimization; the database remains the
// single source of truth, and entries are invalidated on every write.
type Store struct {
	q        dbpkg.Querier
	registry *Registry
	cache    *lru.Cache[string, Config]
	logger   *slog.Logger
}

// NewStore creates a Store backed by the given querier and adapter registry.
func NewStore(log *slog.Logger, q dbpkg.Querier, registry *Registry) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	cache, err := lru.New[string, Config](configCacheSize)
	if err != nil {
		return nil, fmt.Errorf("init config cache: %w", err)
	}
	return &Store{
		q:        q,
		registry: registry,
		cache:    cache,
		logger:   log.With(slog.String("component", "channel_store")),
	}, nil
}

const configColumns = `id, tenant_id, channel_type, name, enabled,
	configuration, authentication, last_test_status, last_test_message,
	last_test_at, created_at, updated_at`

// Save creates or updates a channel configuration. A request carrying an
// id updates that row; without an id a new row is inserted with a
// generated id. The cache entry for the id is invalidated either way.
func (s *Store) Save(ctx context.Context, tenantID string, req SaveRequest) (Config, error) {
	if s.q == nil {
		return Config{}, fmt.Errorf("channel store not configured")
	}
	channelType, err := s.registry.ParseType(req.Type)
	if err != nil {
		return Config{}, err
	}
	tenantUUID, err := dbpkg.ParseUUID(tenantID)
	if err != nil {
		return Config{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	configPayload, err := json.Marshal(nonNilMap(req.Configuration))
	if err != nil {
		return Config{}, fmt.Errorf("marshal configuration: %w", err)
	}
	authPayload, err := json.Marshal(nonNilMap(req.Authentication))
	if err != nil {
		return Config{}, fmt.Errorf("marshal authentication: %w", err)
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	if strings.TrimSpace(req.ID) == "" {
		row := s.q.QueryRow(ctx, `
			INSERT INTO channel_configs (tenant_id, channel_type, name, enabled, configuration, authentication)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+configColumns,
			tenantUUID, channelType.String(), strings.TrimSpace(req.Name), enabled, configPayload, authPayload)
		return s.scanAndCacheInvalidate(row)
	}

	idUUID, err := dbpkg.ParseUUID(req.ID)
	if err != nil {
		return Config{}, fmt.Errorf("invalid channel id: %w", err)
	}
	row := s.q.QueryRow(ctx, `
		UPDATE channel_configs
		SET channel_type = $3, name = $4, enabled = $5, configuration = $6,
		    authentication = $7, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+configColumns,
		idUUID, tenantUUID, channelType.String(), strings.TrimSpace(req.Name), enabled, configPayload, authPayload)
	cfg, err := s.scanAndCacheInvalidate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Config{}, ErrChannelNotFound
		}
		return Config{}, err
	}
	return cfg, nil
}

// Get returns the config for the given id, consulting the in-process
// cache first and falling back to the store.
func (s *Store) Get(ctx context.Context, id string) (Config, error) {
	if cfg, ok := s.cache.Get(id); ok {
		return cfg, nil
	}
	if s.q == nil {
		return Config{}, fmt.Errorf("channel store not configured")
	}
	idUUID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return Config{}, ErrChannelNotFound
	}
	row := s.q.QueryRow(ctx, `SELECT `+configColumns+` FROM channel_configs WHERE id = $1`, idUUID)
	cfg, err := scanConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Config{}, ErrChannelNotFound
		}
		return Config{}, err
	}
	s.cache.Add(cfg.ID, cfg)
	return cfg, nil
}

// GetForTenant returns the config only when it belongs to the tenant.
// Lookups across tenant boundaries report ErrChannelNotFound rather than
// revealing existence.
func (s *Store) GetForTenant(ctx context.Context, tenantID, id string) (Config, error) {
	cfg, err := s.Get(ctx, id)
	if err != nil {
		return Config{}, err
	}
	if cfg.TenantID != strings.TrimSpace(tenantID) {
		return Config{}, ErrChannelNotFound
	}
	return cfg, nil
}

// ListByTenant returns all channel configurations owned by the tenant.
func (s *Store) ListByTenant(ctx context.Context, tenantID string) ([]Config, error) {
	if s.q == nil {
		return nil, fmt.Errorf("channel store not configured")
	}
	tenantUUID, err := dbpkg.ParseUUID(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+configColumns+` FROM channel_configs
		WHERE tenant_id = $1 ORDER BY created_at`, tenantUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]Config, 0)
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, cfg)
	}
	return items, rows.Err()
}

// Delete removes a channel configuration scoped to (tenant, id). Deleting
// another tenant's config returns false with no error. Historical
// messages and webhook events are untouched.
func (s *Store) Delete(ctx context.Context, tenantID, id string) (bool, error) {
	if s.q == nil {
		return false, fmt.Errorf("channel store not configured")
	}
	tenantUUID, err := dbpkg.ParseUUID(tenantID)
	if err != nil {
		return false, fmt.Errorf("invalid tenant id: %w", err)
	}
	idUUID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return false, nil
	}
	tag, err := s.q.Exec(ctx, `DELETE FROM channel_configs WHERE id = $1 AND tenant_id = $2`, idUUID, tenantUUID)
	if err != nil {
		return false, err
	}
	s.cache.Remove(id)
	return tag.RowsAffected() > 0, nil
}

// UpdateTestResult records the outcome of the most recent connection test.
func (s *Store) UpdateTestResult(ctx context.Context, id string, result TestResult) error {
	if s.q == nil {
		return fmt.Errorf("channel store not configured")
	}
	idUUID, err := dbpkg.ParseUUID(id)
	if err != nil {
		return fmt.Errorf("invalid channel id: %w", err)
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE channel_configs
		SET last_test_status = $2, last_test_message = $3, last_test_at = $4, updated_at = now()
		WHERE id = $1`,
		idUUID, string(result.Status), result.Message, dbpkg.ToPgTime(result.Timestamp))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrChannelNotFound
	}
	s.cache.Remove(id)
	return nil
}

func (s *Store) scanAndCacheInvalidate(row pgx.Row) (Config, error) {
	cfg, err := scanConfig(row)
	if err != nil {
		return Config{}, err
	}
	s.cache.Remove(cfg.ID)
	return cfg, nil
}

func scanConfig(row pgx.Row) (Config, error) {
	var (
		id, tenantID    pgtype.UUID
		channelType     string
		name            string
		enabled         bool
		configPayload   []byte
		authPayload     []byte
		testStatus      string
		testMessage     string
		testAt          pgtype.Timestamptz
		createdAt       pgtype.Timestamptz
		updatedAt       pgtype.Timestamptz
	)
	if err := row.Scan(&id, &tenantID, &channelType, &name, &enabled,
		&configPayload, &authPayload, &testStatus, &testMessage,
		&testAt, &createdAt, &updatedAt); err != nil {
		return Config{}, err
	}
	configuration, err := decodeConfigMap(configPayload)
	if err != nil {
		return Config{}, err
	}
	authentication, err := decodeConfigMap(authPayload)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		ID:             id.String(),
		TenantID:       tenantID.String(),
		Type:           Type(channelType),
		Name:           name,
		Enabled:        enabled,
		Configuration:  configuration,
		Authentication: authentication,
		CreatedAt:      dbpkg.TimeFromPg(createdAt),
		UpdatedAt:      dbpkg.TimeFromPg(updatedAt),
	}
	if testStatus != "" && testStatus != string(TestStatusPending) || testAt.Valid {
		cfg.LastTestResult = &TestResult{
			Status:    TestStatus(testStatus),
			Message:   testMessage,
			Timestamp: dbpkg.TimeFromPg(testAt),
		}
	}
	return cfg, nil
}

func decodeConfigMap(payload []byte) (map[string]any, error) {
	if len(payload) == 0 {
		return map[string]any{}, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode config payload: %w", err)
	}
	if decoded == nil {
		decoded = map[string]any{}
	}
	return decoded, nil
}

func nonNilMap(raw map[string]any) map[string]any {
	if raw == nil {
		return map[string]any{}
	}
	return raw
}
