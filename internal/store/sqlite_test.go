package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftlabs/forma/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

func TestFormulationCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Create
	f := &models.Formulation{
		InputRef: "img-1",
		Category: "skincare",
		Prompt:   "a ceramide moisturizer",
		Body:     "water 70%, glycerin 5%, ceramide np 1% ...",
	}
	require.NoError(t, s.CreateFormulation(ctx, f))
	assert.NotEmpty(t, f.ID, "create assigns a ULID")
	assert.False(t, f.CreatedAt.IsZero())

	// Get
	got, err := s.GetFormulation(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.Body, got.Body)
	assert.Equal(t, "skincare", got.Category)

	// Delete
	require.NoError(t, s.DeleteFormulation(ctx, f.ID))
	_, err = s.GetFormulation(ctx, f.ID)
	assert.Error(t, err)
}

func TestGetFormulation_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetFormulation(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDeleteFormulation_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.DeleteFormulation(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestListFormulations_FilterAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, category := range []string{"skincare", "skincare", "haircare"} {
		f := &models.Formulation{
			InputRef: "img",
			Category: category,
			Body:     "body",
		}
		require.NoError(t, s.CreateFormulation(ctx, f), "create %d", i)
	}

	all, err := s.ListFormulations(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	skincare, err := s.ListFormulations(ctx, "skincare", 0)
	require.NoError(t, err)
	assert.Len(t, skincare, 2)

	limited, err := s.ListFormulations(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
