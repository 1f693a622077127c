// Package storetest exercises the store.Store contract against any
// backend, so memory, sqlite3 and postgres all prove the same
// behavior instead of each carrying its own bespoke test file.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakunlabs/flowbot/internal/store"
)

// Run exercises every store.Store method against s. All subtests share
// the single instance s; the caller owns and closes it.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("KV", func(t *testing.T) { testKV(ctx, t, s) })
	t.Run("KVExpiry", func(t *testing.T) { testKVExpiry(ctx, t, s) })
	t.Run("KVGlob", func(t *testing.T) { testKVGlob(ctx, t, s) })
	t.Run("Tables", func(t *testing.T) { testTables(ctx, t, s) })
	t.Run("TableConstraints", func(t *testing.T) { testTableConstraints(ctx, t, s) })
	t.Run("TableQuery", func(t *testing.T) { testTableQuery(ctx, t, s) })
	t.Run("TableAutoPrimaryKey", func(t *testing.T) { testTableAutoPrimaryKey(ctx, t, s) })
}

func testKV(ctx context.Context, t *testing.T, s store.Store) {
	require.NoError(t, s.Clear(ctx))

	ok, err := s.Has(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, s.Set(ctx, "greeting", store.StoredValue{Value: "hello", Type: store.TypeString}))

	got, err := s.Get(ctx, "greeting")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello", got.Value)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())

	require.NoError(t, s.Set(ctx, "greeting", store.StoredValue{Value: "bonjour", Type: store.TypeString}))
	got2, err := s.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "bonjour", got2.Value)
	assert.Equal(t, got.CreatedAt.Unix(), got2.CreatedAt.Unix())

	deleted, err := s.Delete(ctx, "greeting")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.Delete(ctx, "greeting")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func testKVExpiry(ctx context.Context, t *testing.T, s store.Store) {
	require.NoError(t, s.Clear(ctx))

	past := time.Now().Add(-time.Minute)
	require.NoError(t, s.Set(ctx, "stale", store.StoredValue{
		Value: "gone", Type: store.TypeString, ExpiresAt: &past,
	}))

	v, err := s.Get(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, v)

	ok, err := s.Has(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, ok)

	future := time.Now().Add(time.Hour)
	require.NoError(t, s.Set(ctx, "fresh", store.StoredValue{
		Value: "still here", Type: store.TypeString, ExpiresAt: &future,
	}))
	v, err = s.Get(ctx, "fresh")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "still here", v.Value)
}

func testKVGlob(ctx context.Context, t *testing.T, s store.Store) {
	require.NoError(t, s.Clear(ctx))

	for _, k := range []string{"user:1:name", "user:2:name", "guild:1:name"} {
		require.NoError(t, s.Set(ctx, k, store.StoredValue{Value: k, Type: store.TypeString}))
	}

	keys, err := s.Keys(ctx, "user:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user:1:name", "user:2:name"}, keys)

	keys, err = s.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	keys, err = s.Keys(ctx, "user:?:name")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func testTableDef() store.TableDef {
	return store.TableDef{
		Name: "reminders",
		Columns: []store.ColumnDef{
			{Name: "id", Type: store.ColString, Primary: true},
			{Name: "user_id", Type: store.ColString, Index: true},
			{Name: "message", Type: store.ColString},
			{Name: "remind_count", Type: store.ColNumber},
			{Name: "active", Type: store.ColBoolean},
			{Name: "metadata", Type: store.ColJSON},
			{Name: "created_at", Type: store.ColTimestamp},
		},
		CompositeIndexes: [][]string{{"user_id", "active"}},
	}
}

func testTables(ctx context.Context, t *testing.T, s store.Store) {
	def := testTableDef()
	require.NoError(t, s.CreateTable(ctx, def))
	require.NoError(t, s.CreateTable(ctx, def)) // idempotent

	now := time.Now().Truncate(time.Second)
	require.NoError(t, s.Insert(ctx, "reminders", map[string]any{
		"id": "r1", "user_id": "u1", "message": "stretch", "remind_count": float64(0),
		"active": true, "metadata": map[string]any{"tag": "health"}, "created_at": now,
	}))

	rows, err := s.Query(ctx, "reminders", store.Query{Where: map[string]any{"id": "r1"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "stretch", rows[0]["message"])
	assert.Equal(t, true, rows[0]["active"])
	assert.Equal(t, map[string]any{"tag": "health"}, rows[0]["metadata"])

	n, err := s.Update(ctx, "reminders", map[string]any{"id": "r1"}, map[string]any{"remind_count": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err = s.Query(ctx, "reminders", store.Query{Where: map[string]any{"id": "r1"}})
	require.NoError(t, err)
	assert.Equal(t, float64(3), rows[0]["remind_count"])

	n, err = s.DeleteRows(ctx, "reminders", map[string]any{"id": "r1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err = s.Query(ctx, "reminders", store.Query{})
	require.NoError(t, err)
	assert.Len(t, rows, 0)
}

func testTableConstraints(ctx context.Context, t *testing.T, s store.Store) {
	def := testTableDef()
	require.NoError(t, s.CreateTable(ctx, def))

	row := map[string]any{
		"id": "dupe", "user_id": "u2", "message": "x", "remind_count": float64(0),
		"active": false, "metadata": nil, "created_at": time.Now(),
	}
	require.NoError(t, s.Insert(ctx, "reminders", row))
	err := s.Insert(ctx, "reminders", row)
	assert.Error(t, err)

	_, _ = s.DeleteRows(ctx, "reminders", map[string]any{"id": "dupe"})
}

// testTableAutoPrimaryKey confirms a row that omits its string primary
// column gets one filled in rather than inserting an empty key.
func testTableAutoPrimaryKey(ctx context.Context, t *testing.T, s store.Store) {
	def := testTableDef()
	require.NoError(t, s.CreateTable(ctx, def))
	_, _ = s.DeleteRows(ctx, "reminders", map[string]any{})

	require.NoError(t, s.Insert(ctx, "reminders", map[string]any{
		"user_id": "u3", "message": "auto", "remind_count": float64(0),
		"active": true, "metadata": nil, "created_at": time.Now(),
	}))

	rows, err := s.Query(ctx, "reminders", store.Query{Where: map[string]any{"user_id": "u3"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	id, _ := rows[0]["id"].(string)
	assert.NotEmpty(t, id)

	_, _ = s.DeleteRows(ctx, "reminders", map[string]any{"user_id": "u3"})
}

func testTableQuery(ctx context.Context, t *testing.T, s store.Store) {
	def := testTableDef()
	require.NoError(t, s.CreateTable(ctx, def))
	_, _ = s.DeleteRows(ctx, "reminders", map[string]any{})

	for i, uid := range []string{"u1", "u1", "u2"} {
		require.NoError(t, s.Insert(ctx, "reminders", map[string]any{
			"id": idFor(i), "user_id": uid, "message": "m", "remind_count": float64(i),
			"active": true, "metadata": nil, "created_at": time.Now(),
		}))
	}

	rows, err := s.Query(ctx, "reminders", store.Query{
		Where:   map[string]any{"user_id": "u1"},
		OrderBy: "remind_count DESC",
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, float64(1), rows[0]["remind_count"])

	rows, err = s.Query(ctx, "reminders", store.Query{Limit: 1, Offset: 1, OrderBy: "remind_count"})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	_, _ = s.DeleteRows(ctx, "reminders", map[string]any{})
}

func idFor(i int) string {
	return []string{"q0", "q1", "q2"}[i]
}
