// Package storage opens the document store backend selected by the configuration.
package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/core/docstore"
	"github.com/trezcool/minierp/storage/database"
	"github.com/trezcool/minierp/storage/database/dummy"
	"github.com/trezcool/minierp/storage/database/mongodb"
	"github.com/trezcool/minierp/storage/database/sqlx"
)

// Document store backends.
const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

// OpenStore connects to the configured backend. The postgres schema is created and migrated first.
func OpenStore(ctx context.Context, conf *core.Config, logger core.Logger) (docstore.Store, error) {
	switch conf.DocStore.Backend {
	case BackendMemory, "":
		return dummydb.Open()
	case BackendMongo:
		ctx, cancel := context.WithTimeout(ctx, conf.DocStore.Timeout)
		defer cancel()
		db, err := mongodb.Open(ctx, conf)
		if err != nil {
			return nil, err
		}
		return db, nil
	case BackendPostgres:
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}
		db, err := sqlxdb.Open(ctx, conf, logger)
		if err != nil {
			return nil, err
		}
		if err = db.Migrate(); err != nil {
			_ = db.Close(ctx)
			return nil, err
		}
		return db, nil
	}
	return nil, errors.Errorf("unknown document store backend %q", conf.DocStore.Backend)
}
