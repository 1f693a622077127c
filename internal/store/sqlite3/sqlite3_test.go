package sqlite3_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rakunlabs/flowbot/internal/store/sqlite3"
	"github.com/rakunlabs/flowbot/internal/store/storetest"
)

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "flowbot.db")

	s, err := sqlite3.New(ctx, dsn, "flowbot_")
	require.NoError(t, err)
	defer s.Close()

	storetest.Run(t, s)
}
