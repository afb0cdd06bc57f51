package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/engram/internal/profile"
	"github.com/hrygo/engram/plugin/embed"
	"github.com/hrygo/engram/store"
	"github.com/hrygo/engram/store/db/memdb"
	"github.com/hrygo/engram/store/db/postgres"
	"github.com/hrygo/engram/store/db/sqlite"
)

// NewDBDriver creates a new storage driver based on profile.
//
// memory:   in-process map, gone on exit. Default; good for tests and demos.
// sqlite:   single-file relational store with an FTS5 text index.
// postgres: relational store with pgvector embeddings for relevance ranking.
func NewDBDriver(profile *profile.Profile, embedder embed.Provider) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "memory":
		driver = memdb.NewDB(profile)
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile, embedder)
	default:
		return nil, errors.Errorf("unknown storage driver %q: only 'memory', 'sqlite' and 'postgres' are supported", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
