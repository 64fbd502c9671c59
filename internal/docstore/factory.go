package docstore

import (
	"context"
	"database/sql"
	"fmt"

	"smartchef/internal/config"

	"github.com/sirupsen/logrus"
)

// New opens the backend selected by DOCSTORE_BACKEND. It returns a nil Store
// for the "none" backend.
func New(ctx context.Context, cfg *config.Config, db *sql.DB, log logrus.FieldLogger) (Store, error) {
	switch cfg.DocStoreBackend {
	case config.DocStoreFirestore:
		store, err := NewFirestoreStore(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DocStoreRedis:
		store, err := NewRedisStore(ctx, cfg.RedisURL, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DocStoreSQLite:
		if db == nil {
			return nil, fmt.Errorf("sqlite backend needs a database")
		}
		return NewSQLiteStore(db, log), nil
	case config.DocStoreNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown document store backend %q", cfg.DocStoreBackend)
	}
}
