package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"marketfeed/pkg/storage/postgres"

	"github.com/stretchr/testify/require"
)

// testClient connects to FEED_TEST_POSTGRES_DSN or skips the test.
func testClient(t *testing.T) *postgres.PostgresClient {
	t.Helper()
	dsn := os.Getenv("FEED_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FEED_TEST_POSTGRES_DSN not set")
	}
	client, err := postgres.NewClient(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.AutoMigrateCandleRecord())
	return client
}

// go test -v --run ^TestPostgresInvalidDSN$
func TestPostgresInvalidDSN(t *testing.T) {
	_, err := postgres.NewClient("host=invalid.invalid port=5432 user=fail password=fail dbname=fail sslmode=disable connect_timeout=1")
	require.Error(t, err)
}

// go test -v --run ^TestPostgresHealthy$
func TestPostgresHealthy(t *testing.T) {
	client := testClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.True(t, client.IsHealthy(ctx))
}
