package postgres_test

import (
	"os"
	"testing"

	"marketfeed/config"
	"marketfeed/pkg/storage/postgres"

	"github.com/stretchr/testify/require"
)

// go test -v --run TestCreateDatabase
func TestCreateDatabase(t *testing.T) {
	if os.Getenv("FEED_TEST_POSTGRES_DSN") == "" {
		t.Skip("FEED_TEST_POSTGRES_DSN not set")
	}
	cfg := config.PostgresConfig{
		Host:     getenv("FEED_TEST_POSTGRES_HOST", "localhost"),
		Port:     5432,
		User:     getenv("FEED_TEST_POSTGRES_USER", "postgres"),
		Password: os.Getenv("FEED_TEST_POSTGRES_PASSWORD"),
		DBName:   "test_candle_db",
		SSLMode:  "disable",
	}

	require.NoError(t, postgres.CreateDatabase(cfg, "dev"))
	// second call finds it
	require.NoError(t, postgres.CreateDatabase(cfg, "dev"))
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
