package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

const testUser = "google.tenant.abc123"

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "caseflow-test-*")
	require.NoError(t, err)

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NotNil(t, store)

	cleanup := func() {
		assert.NoError(t, store.Close())
		assert.NoError(t, os.RemoveAll(tempDir))
	}

	return store, cleanup
}

func TestNewStore_ErrorHandling(t *testing.T) {
	// A file where the data directory should be.
	file := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0600))

	_, err := NewStore(filepath.Join(file, "data"))
	assert.Error(t, err)
}

func TestNewStore_DefaultDirectory(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	store, err := NewStore("")
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, filepath.Join(home, ".caseflow", "data", "caseflow.db"), store.Path())
	assert.FileExists(t, store.Path())
}

func TestNewStore_Migrations(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	var count int
	err := store.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	tables := []string{
		"sessions",
		"session_locks",
		"documents",
		"delivery_failures",
		"timeline_entries",
		"violations",
		"scheduled_tasks",
		"task_results",
	}
	for _, table := range tables {
		var tableExists int
		err := store.db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&tableExists)
		require.NoError(t, err)
		assert.Equal(t, 1, tableExists, "table %s should exist", table)
	}
}

func TestNewStore_ReopenSkipsAppliedMigrations(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.DocumentStore().Save(context.Background(), testDocument("d1", domain.StageQueued)))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	rec, err := reopened.DocumentStore().Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageQueued, rec.Stage)
}

func TestStore_Close(t *testing.T) {
	store, _ := setupTestStore(t)

	err := store.Close()
	assert.NoError(t, err)

	err = store.db.Ping()
	assert.Error(t, err)
}

func TestStore_InterfaceGetters(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	assert.NotNil(t, store.SessionStore())
	assert.NotNil(t, store.DocumentStore())
	assert.NotNil(t, store.FailureStore())
	assert.NotNil(t, store.TimelineStore())
	assert.NotNil(t, store.ViolationStore())
	assert.NotNil(t, store.SchedulerStore())
}

// ==================== SessionStore Tests ====================

func TestSessionStore_SaveGetReplace(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	sessions := store.SessionStore()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sess := &domain.Session{
		UserID:            testUser,
		Provider:          "google",
		AccessCiphertext:  []byte{1, 2, 3},
		RefreshCiphertext: []byte{4, 5, 6},
		Expiry:            created.Add(time.Hour),
		CreatedAt:         created,
		UpdatedAt:         created,
	}
	require.NoError(t, sessions.Save(ctx, sess))

	got, err := sessions.Get(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, sess.AccessCiphertext, got.AccessCiphertext)
	assert.Equal(t, sess.RefreshCiphertext, got.RefreshCiphertext)
	assert.True(t, sess.Expiry.Equal(got.Expiry))
	assert.True(t, created.Equal(got.CreatedAt))

	replaced := *sess
	replaced.AccessCiphertext = []byte{9}
	replaced.UpdatedAt = created.Add(time.Minute)
	replaced.CreatedAt = created.Add(time.Minute)
	require.NoError(t, sessions.Save(ctx, &replaced))

	got, err = sessions.Get(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, got.AccessCiphertext)
	assert.True(t, created.Equal(got.CreatedAt), "created_at is kept on replace")
	assert.True(t, replaced.UpdatedAt.Equal(got.UpdatedAt))
}

func TestSessionStore_GetMissingAndDelete(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	sessions := store.SessionStore()

	_, err := sessions.Get(ctx, testUser)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, sessions.Save(ctx, &domain.Session{UserID: testUser, Provider: "google", AccessCiphertext: []byte{1}}))
	require.NoError(t, sessions.Delete(ctx, testUser))
	require.NoError(t, sessions.Delete(ctx, testUser))

	_, err = sessions.Get(ctx, testUser)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionStore_ListExpiring(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	sessions := store.SessionStore()

	now := time.Now().UTC()
	for id, expiry := range map[string]time.Time{
		"google.tenant.soon":  now.Add(5 * time.Minute),
		"google.tenant.later": now.Add(3 * time.Hour),
		"google.tenant.never": {},
	} {
		require.NoError(t, sessions.Save(ctx, &domain.Session{
			UserID: id, Provider: "google", AccessCiphertext: []byte{1}, Expiry: expiry,
		}))
	}

	expiring, err := sessions.ListExpiring(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, "google.tenant.soon", expiring[0].UserID)
}

func TestSessionStore_LockSession(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	locker, ok := store.SessionStore().(driven.SessionLocker)
	require.True(t, ok)

	unlock, err := locker.LockSession(ctx, testUser, time.Minute)
	require.NoError(t, err)

	// A second holder waits while the lease is live.
	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = locker.LockSession(waitCtx, testUser, time.Minute)
	assert.Error(t, err)

	// Other users are independent.
	unlockOther, err := locker.LockSession(ctx, "google.tenant.other", time.Minute)
	require.NoError(t, err)
	unlockOther()

	unlock()
	unlock, err = locker.LockSession(ctx, testUser, time.Minute)
	require.NoError(t, err)
	unlock()
}

func TestSessionStore_LockSessionTakesOverLapsedLease(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	locker := store.SessionStore().(driven.SessionLocker)

	stale, err := locker.LockSession(ctx, testUser, time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	unlock, err := locker.LockSession(ctx, testUser, time.Minute)
	require.NoError(t, err)

	// The lapsed holder's release must not free the new lease.
	stale()
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = locker.LockSession(waitCtx, testUser, time.Minute)
	assert.Error(t, err)
	unlock()
}

// ==================== DocumentStore Tests ====================

func testDocument(id string, stage domain.Stage) *domain.DocumentRecord {
	now := time.Now().UTC()
	return &domain.DocumentRecord{
		ID:         id,
		OwnerID:    testUser,
		Name:       id + ".txt",
		MIMEType:   "text/plain",
		Stage:      stage,
		StorageRef: testUser + "/" + id,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestDocumentStore_SaveAndGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docs := store.DocumentStore()

	rec := testDocument("d1", domain.StageRegistered)
	rec.Fields = map[string]any{"excerpt": "Residential lease", "amounts": []any{"1200.00"}}
	rec.Classification = &domain.Classification{Category: domain.CategoryLease, Confidence: 0.8, Signals: []string{"lease"}}
	rec.RetryCount = 2
	rec.ExtractionPath = domain.ExtractionLocal
	rec.ProviderFileID = "drive-1"
	require.NoError(t, docs.Save(ctx, rec))

	got, err := docs.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageRegistered, got.Stage)
	assert.Equal(t, "Residential lease", got.Fields["excerpt"])
	assert.Equal(t, []any{"1200.00"}, got.Fields["amounts"])
	require.NotNil(t, got.Classification)
	assert.Equal(t, *rec.Classification, *got.Classification)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, domain.ExtractionLocal, got.ExtractionPath)
	assert.Equal(t, "drive-1", got.ProviderFileID)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
}

func TestDocumentStore_NilFieldsRoundTrip(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.DocumentStore().Save(ctx, testDocument("d1", domain.StageUploaded)))

	got, err := store.DocumentStore().Get(ctx, "d1")
	require.NoError(t, err)
	assert.Nil(t, got.Fields)
	assert.Nil(t, got.Classification)
}

func TestDocumentStore_UpdateStage(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docs := store.DocumentStore()

	rec := testDocument("d1", domain.StageExtracting)
	require.NoError(t, docs.Save(ctx, rec))

	rec.Stage = domain.StagePausedAuth
	rec.PausedReason = "AuthenticationError: invalid_grant"
	require.NoError(t, docs.Save(ctx, rec))

	got, err := docs.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.StagePausedAuth, got.Stage)
	assert.Equal(t, rec.PausedReason, got.PausedReason)
}

func TestDocumentStore_ListAndListByStage(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docs := store.DocumentStore()

	require.NoError(t, docs.Save(ctx, testDocument("a", domain.StageQueued)))
	require.NoError(t, docs.Save(ctx, testDocument("b", domain.StageExtracting)))
	require.NoError(t, docs.Save(ctx, testDocument("c", domain.StageRegistered)))
	other := testDocument("d", domain.StageQueued)
	other.OwnerID = "google.tenant.other"
	require.NoError(t, docs.Save(ctx, other))

	mine, err := docs.List(ctx, testUser)
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	all, err := docs.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	active, err := docs.ListByStage(ctx, domain.StageQueued, domain.StageExtracting)
	require.NoError(t, err)
	ids := make([]string, 0, len(active))
	for _, r := range active {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"a", "b", "d"}, ids)

	none, err := docs.ListByStage(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDocumentStore_DeleteAndMissing(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docs := store.DocumentStore()

	require.NoError(t, docs.Save(ctx, testDocument("d1", domain.StageQueued)))
	require.NoError(t, docs.Delete(ctx, "d1"))

	_, err := docs.Get(ctx, "d1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, docs.Save(ctx, &domain.DocumentRecord{}), domain.ErrInvalidInput)
}

// ==================== DeliveryFailureStore Tests ====================

func TestFailureStore_RecordListDelete(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	failures := store.FailureStore()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"f1", "f2", "f3"} {
		require.NoError(t, failures.Record(ctx, &domain.DeliveryFailure{
			ID:         id,
			EventType:  domain.EventDocumentAdded,
			Subscriber: "timeline",
			PackID:     "p-" + id,
			Envelope:   []byte(`{"specversion":"1.0"}`),
			Error:      "boom",
			FailedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	list, err := failures.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "f3", list[0].ID)
	assert.Equal(t, "f2", list[1].ID)

	got, err := failures.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, domain.EventDocumentAdded, got.EventType)
	assert.Equal(t, []byte(`{"specversion":"1.0"}`), got.Envelope)
	assert.True(t, base.Equal(got.FailedAt))

	require.NoError(t, failures.Delete(ctx, "f1"))
	_, err = failures.Get(ctx, "f1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ==================== Case Store Tests ====================

func TestTimelineStore_AddListDelete(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	timeline := store.TimelineStore()

	d1 := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, timeline.Add(ctx, []domain.TimelineEntry{
		{ID: "e1", UserID: testUser, DocumentID: "doc1", Date: d1, Description: "Lease ends"},
		{ID: "e2", UserID: testUser, DocumentID: "doc2", Date: d2, Description: "Notice served"},
		{ID: "e3", UserID: "google.tenant.other", DocumentID: "doc3", Date: d2, Description: "Other"},
	}))
	require.NoError(t, timeline.Add(ctx, nil))

	entries, err := timeline.List(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e2", entries[0].ID, "ordered by date")
	assert.True(t, d1.Equal(entries[1].Date))

	// Re-adding an entry replaces it.
	require.NoError(t, timeline.Add(ctx, []domain.TimelineEntry{
		{ID: "e1", UserID: testUser, DocumentID: "doc1", Date: d1, Description: "Lease term ends"},
	}))
	require.NoError(t, timeline.DeleteByDocument(ctx, "doc2"))

	entries, err = timeline.List(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Lease term ends", entries[0].Description)
}

func TestViolationStore_AddListDelete(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	violations := store.ViolationStore()

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, violations.Add(ctx, []domain.Violation{
		{ID: "v1", UserID: testUser, DocumentID: "doc1", Rule: "deposit_cap", Severity: domain.SeverityHigh, FoundAt: base},
		{ID: "v2", UserID: testUser, DocumentID: "doc1", Rule: "notice_period", Severity: domain.SeverityMedium, FoundAt: base.Add(time.Hour)},
	}))

	list, err := violations.List(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "v2", list[0].ID, "newest first")

	require.NoError(t, violations.DeleteByDocument(ctx, "doc1"))
	list, err = violations.List(ctx, testUser)
	require.NoError(t, err)
	assert.Empty(t, list)
}
