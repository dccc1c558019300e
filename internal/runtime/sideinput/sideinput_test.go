package sideinput

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/procflow/internal/runtime/engine"
	errspkg "github.com/drblury/procflow/internal/runtime/errors"
)

var (
	_ engine.SideInputReader = (*MapStore)(nil)
	_ engine.SideInputReader = (*SQLStore)(nil)
)

func TestMapStore(t *testing.T) {
	seed := map[string]any{"stopwords": []string{"the", "a"}}
	store := NewMapStore(seed)
	seed["late"] = true

	v, err := store.Lookup(context.Background(), "stopwords")
	require.NoError(t, err)
	assert.Equal(t, []string{"the", "a"}, v)

	_, err = store.Lookup(context.Background(), "late")
	assert.ErrorIs(t, err, errspkg.ErrSideInputNotFound)

	store.Put("limit", 3)
	assert.Equal(t, []string{"limit", "stopwords"}, store.Tags())
	store.Delete("limit")
	assert.Equal(t, []string{"stopwords"}, store.Tags())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Lookup(ctx, "stopwords")
	assert.ErrorIs(t, err, context.Canceled)
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLStore(openSQLite(t), SQLConfig{})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))

	require.NoError(t, store.Put(ctx, "limits", map[string]int{"min": 2}))
	v, err := store.Lookup(ctx, "limits")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"min": float64(2)}, v)

	require.NoError(t, store.Put(ctx, "limits", map[string]int{"min": 5}))
	v, err = store.Lookup(ctx, "limits")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"min": float64(5)}, v)

	require.NoError(t, store.Delete(ctx, "limits"))
	_, err = store.Lookup(ctx, "limits")
	assert.ErrorIs(t, err, errspkg.ErrSideInputNotFound)
}

func TestSQLStoreTypedDecoder(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLStore(openSQLite(t), SQLConfig{
		Table:   "stopword_sets",
		Decoder: JSONDecoder[[]string](),
	})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))

	require.NoError(t, store.Put(ctx, "stopwords", []string{"the", "a"}))
	v, err := store.Lookup(ctx, "stopwords")
	require.NoError(t, err)
	assert.Equal(t, []string{"the", "a"}, v)
}

func TestNewSQLStoreValidation(t *testing.T) {
	_, err := NewSQLStore(nil, SQLConfig{})
	assert.Error(t, err)

	_, err = NewSQLStore(openSQLite(t), SQLConfig{Table: "side; DROP TABLE x"})
	assert.ErrorContains(t, err, "invalid side input table name")

	store, err := NewSQLStore(openSQLite(t), SQLConfig{Table: "public.side_inputs", DollarPlaceholders: true})
	require.NoError(t, err)
	assert.Equal(t, "$2", store.bind(2))
}
