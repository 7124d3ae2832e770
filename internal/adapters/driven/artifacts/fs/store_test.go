package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/caseflow/internal/core/domain"
)

const testUser = "google.tenant.abc123"

func TestStore_PutGetDelete(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := store.Put(ctx, testUser, "lease.pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)

	path := filepath.Join(store.Root(), filepath.FromSlash(ref))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), data)

	require.NoError(t, store.Delete(ctx, ref))
	require.NoError(t, store.Delete(ctx, ref))
	_, err = store.Get(ctx, ref)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoDirExists(t, filepath.Dir(path))
}

func TestStore_SameNameDoesNotCollide(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	a, err := store.Put(ctx, testUser, "notice.txt", []byte("a"))
	require.NoError(t, err)
	b, err := store.Put(ctx, testUser, "notice.txt", []byte("b"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	got, err := store.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)
}

func TestStore_RejectsEscapingRefs(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.ErrorIs(t, store.Delete(context.Background(), "/etc/passwd"), domain.ErrInvalidInput)
}

func TestNew_DefaultDirectory(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	store, err := New("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".caseflow", "artifacts"), store.Root())
	assert.DirExists(t, store.Root())
}
