// Package test runs the storage contract suite against every backend
// driver. The driver under test is selected with ENGRAM_TEST_DRIVER; the
// in-process memory driver is the default so the suite always runs.
package test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/engram/internal/profile"
	"github.com/hrygo/engram/plugin/embed"
	"github.com/hrygo/engram/store"
	"github.com/hrygo/engram/store/db"
)

func getDriverFromEnv() string {
	driver := os.Getenv("ENGRAM_TEST_DRIVER")
	if driver == "" {
		driver = "memory"
	}
	return driver
}

// NewTestingStore creates a fully initialized store on the driver named in
// ENGRAM_TEST_DRIVER. Postgres tests need POSTGRES_TEST_DSN pointing at a
// disposable database with the pgvector extension and are skipped otherwise.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	testProfile := &profile.Profile{
		Mode:      "dev",
		Driver:    getDriverFromEnv(),
		ChunkSize: 500,
	}
	switch testProfile.Driver {
	case "sqlite":
		testProfile.DSN = filepath.Join(t.TempDir(), "engram_test.db")
	case "postgres":
		dsn := os.Getenv("POSTGRES_TEST_DSN")
		if dsn == "" {
			t.Skip("set POSTGRES_TEST_DSN to a disposable database to run postgres store tests")
		}
		testProfile.DSN = dsn
	}

	embedder, err := embed.NewProvider(testProfile)
	require.NoError(t, err)

	driver, err := db.NewDBDriver(testProfile, embedder)
	require.NoError(t, err)

	ts := store.New(driver, testProfile)
	require.NoError(t, ts.Init(ctx))
	t.Cleanup(func() {
		if err := ts.Close(); err != nil {
			t.Logf("failed to close testing store: %v", err)
		}
	})

	if testProfile.Driver == "postgres" {
		// The postgres database is shared across tests, unlike the
		// per-test sqlite file. Start every test from empty tables.
		wipeStore(ctx, t, ts)
	}
	return ts
}

func wipeStore(ctx context.Context, t *testing.T, ts *store.Store) {
	for {
		result, err := ts.SearchMemoryChunks(ctx, &store.FindMemoryChunk{Limit: 100})
		require.NoError(t, err)
		if len(result.Chunks) == 0 {
			return
		}
		for _, chunk := range result.Chunks {
			require.NoError(t, ts.DeleteMemoryChunk(ctx, &store.DeleteMemoryChunk{ID: chunk.ID}))
		}
	}
}
