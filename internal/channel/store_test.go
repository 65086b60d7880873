package channel

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/converso/gateway/internal/db"
)

const (
	storeChannelID = "0b7f5f1e-8f0a-4f4e-9a5e-2d4b9a6c3f21"
	storeTenantID  = "c6b1d2e3-4f5a-4b6c-8d9e-0f1a2b3c4d5e"
	otherTenantID  = "9e8d7c6b-5a4f-4e3d-8c2b-1a0f9e8d7c6b"
)

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

// fakeQuerier serves a single canned config row and counts reads so
// cache behavior is observable.
type fakeQuerier struct {
	row     fakeRow
	selects int
	writes  []string
	execTag pgconn.CommandTag
}

func (q *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.writes = append(q.writes, sql)
	return q.execTag, nil
}

func (q *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if strings.HasPrefix(strings.TrimSpace(sql), "SELECT") {
		q.selects++
	} else {
		q.writes = append(q.writes, sql)
	}
	return q.row
}

func configRow(t *testing.T) fakeRow {
	t.Helper()
	idUUID, err := dbpkg.ParseUUID(storeChannelID)
	if err != nil {
		t.Fatalf("parse channel id: %v", err)
	}
	tenantUUID, err := dbpkg.ParseUUID(storeTenantID)
	if err != nil {
		t.Fatalf("parse tenant id: %v", err)
	}
	return fakeRow{scan: func(dest ...any) error {
		*(dest[0].(*pgtype.UUID)) = idUUID
		*(dest[1].(*pgtype.UUID)) = tenantUUID
		*(dest[2].(*string)) = "slack"
		*(dest[3].(*string)) = "Support"
		*(dest[4].(*bool)) = true
		*(dest[5].(*[]byte)) = []byte(`{}`)
		*(dest[6].(*[]byte)) = []byte(`{"botToken":"xoxb-1"}`)
		return nil
	}}
}

func newStoreFixture(t *testing.T) (*Store, *fakeQuerier) {
	t.Helper()
	registry := NewRegistry()
	registry.MustRegister(&stubAdapter{channelType: TypeSlack})
	querier := &fakeQuerier{row: configRow(t)}
	store, err := NewStore(nil, querier, registry)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, querier
}

func TestGetServesSecondLookupFromCache(t *testing.T) {
	t.Parallel()

	store, querier := newStoreFixture(t)
	first, err := store.Get(context.Background(), storeChannelID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	second, err := store.Get(context.Background(), storeChannelID)
	if err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if querier.selects != 1 {
		t.Fatalf("hit the store %d times, want 1", querier.selects)
	}
	if first.ID != storeChannelID || second.ID != first.ID || second.AuthSetting("botToken") != "xoxb-1" {
		t.Fatalf("cached config = %+v", second)
	}
}

func TestSaveInvalidatesCachedEntry(t *testing.T) {
	t.Parallel()

	store, querier := newStoreFixture(t)
	if _, err := store.Get(context.Background(), storeChannelID); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	req := SaveRequest{ID: storeChannelID, Type: "slack", Name: "Support"}
	if _, err := store.Save(context.Background(), storeTenantID, req); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := store.Get(context.Background(), storeChannelID); err != nil {
		t.Fatalf("get after save: %v", err)
	}
	if querier.selects != 2 {
		t.Fatalf("hit the store %d times, want 2 (save must evict)", querier.selects)
	}
}

func TestDeleteIsTenantScoped(t *testing.T) {
	t.Parallel()

	store, querier := newStoreFixture(t)

	querier.execTag = pgconn.NewCommandTag("DELETE 0")
	deleted, err := store.Delete(context.Background(), otherTenantID, storeChannelID)
	if err != nil {
		t.Fatalf("cross-tenant delete must not error: %v", err)
	}
	if deleted {
		t.Fatal("cross-tenant delete reported success")
	}

	querier.execTag = pgconn.NewCommandTag("DELETE 1")
	deleted, err = store.Delete(context.Background(), storeTenantID, storeChannelID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !deleted {
		t.Fatal("owned delete reported failure")
	}
}

func TestDeleteWithMalformedIDIsSilent(t *testing.T) {
	t.Parallel()

	store, querier := newStoreFixture(t)
	deleted, err := store.Delete(context.Background(), storeTenantID, "not-a-uuid")
	if err != nil || deleted {
		t.Fatalf("deleted=%v err=%v", deleted, err)
	}
	if len(querier.writes) != 0 {
		t.Fatal("malformed id must not reach the store")
	}
}

func TestDeleteEvictsCache(t *testing.T) {
	t.Parallel()

	store, querier := newStoreFixture(t)
	if _, err := store.Get(context.Background(), storeChannelID); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	querier.execTag = pgconn.NewCommandTag("DELETE 1")
	if _, err := store.Delete(context.Background(), storeTenantID, storeChannelID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := store.Get(context.Background(), storeChannelID); err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if querier.selects != 2 {
		t.Fatalf("hit the store %d times, want 2 (delete must evict)", querier.selects)
	}
}

func TestUpdateTestResultEvictsCache(t *testing.T) {
	t.Parallel()

	store, querier := newStoreFixture(t)
	if _, err := store.Get(context.Background(), storeChannelID); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	querier.execTag = pgconn.NewCommandTag("UPDATE 1")
	result := TestResult{Status: TestStatusSuccess, Message: "ok", Timestamp: time.Now().UTC()}
	if err := store.UpdateTestResult(context.Background(), storeChannelID, result); err != nil {
		t.Fatalf("update test result: %v", err)
	}

	if _, err := store.Get(context.Background(), storeChannelID); err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if querier.selects != 2 {
		t.Fatalf("hit the store %d times, want 2 (test result must evict)", querier.selects)
	}
}
