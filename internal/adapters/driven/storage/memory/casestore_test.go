package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/caseflow/internal/core/domain"
)

func TestTimelineStore(t *testing.T) {
	store := NewTimelineStore()
	ctx := context.Background()
	early := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	late := early.AddDate(0, 2, 0)

	require.NoError(t, store.Add(ctx, []domain.TimelineEntry{
		{ID: "late", UserID: testUser, DocumentID: "d1", Date: late},
		{ID: "early", UserID: testUser, DocumentID: "d2", Date: early},
		{ID: "other", UserID: "google.tenant.other", DocumentID: "d3", Date: early},
	}))

	entries, err := store.List(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "early", entries[0].ID)

	require.NoError(t, store.DeleteByDocument(ctx, "d2"))
	entries, err = store.List(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "late", entries[0].ID)
}

func TestViolationStore(t *testing.T) {
	store := NewViolationStore()
	ctx := context.Background()
	found := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Add(ctx, []domain.Violation{
		{ID: "v1", UserID: testUser, DocumentID: "d1", Rule: "deposit_cap", FoundAt: found},
		{ID: "v2", UserID: testUser, DocumentID: "d2", Rule: "notice_period", FoundAt: found.Add(time.Hour)},
	}))

	list, err := store.List(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "v2", list[0].ID)

	require.NoError(t, store.DeleteByDocument(ctx, "d1"))
	list, err = store.List(ctx, testUser)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestFailureStore(t *testing.T) {
	store := NewFailureStore()
	ctx := context.Background()
	at := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"f1", "f2", "f3"} {
		require.NoError(t, store.Record(ctx, &domain.DeliveryFailure{
			ID: id, EventType: domain.EventDocumentAdded, Subscriber: "timeline",
			FailedAt: at.Add(time.Duration(i) * time.Second),
		}))
	}

	list, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "f3", list[0].ID)

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, store.Delete(ctx, "f3"))
	_, err = store.Get(ctx, "f3")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
