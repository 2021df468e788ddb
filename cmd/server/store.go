package main

import (
	"context"
	"database/sql"
	"time"

	sagadb "orchard/internal/db/saga"
	"orchard/internal/saga"

	"go.uber.org/zap"
)

var openSagaDB = func(driver, dsn string) (*sql.DB, error) {
	return sql.Open(driver, dsn)
}

// buildInstanceStore wires the saga store from config. An empty DSN or
// a failed Postgres init falls back to the in-memory store, which keeps
// single-node runs and local development working without a database.
func buildInstanceStore(ctx context.Context, dsn string, logger *zap.Logger) (saga.Store, func()) {
	cleanup := func() {}

	if dsn == "" {
		logger.Info("using in-memory instance store")
		return saga.NewMemoryStore(), cleanup
	}

	db, err := openSagaDB("pgx", dsn)
	if err != nil {
		logger.Warn("postgres open failed, falling back to in-memory instances", zap.Error(err))
		return saga.NewMemoryStore(), cleanup
	}

	setupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	store, err := sagadb.NewInstanceStoreWithSchema(setupCtx, db)
	if err != nil {
		logger.Warn("postgres init failed, falling back to in-memory instances", zap.Error(err))
		_ = db.Close()
		return saga.NewMemoryStore(), cleanup
	}

	logger.Info("postgres instance store enabled")
	cleanup = func() {
		if err := db.Close(); err != nil {
			logger.Warn("close postgres", zap.Error(err))
		}
	}
	return store, cleanup
}
