package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rakunlabs/flowbot/internal/store/postgres"
	"github.com/rakunlabs/flowbot/internal/store/storetest"
)

// TestPostgresStore only runs when FLOWBOT_TEST_POSTGRES_DSN points at a
// reachable database; postgres is a networked backend the test suite
// cannot spin up on its own.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("FLOWBOT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FLOWBOT_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	s, err := postgres.New(ctx, postgres.Config{Datasource: dsn, TablePrefix: "flowbot_test_"})
	require.NoError(t, err)
	defer s.Close()

	storetest.Run(t, s)
}
