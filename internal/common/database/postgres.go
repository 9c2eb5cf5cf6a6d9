// Package database opens the Postgres, Redis and Elasticsearch connections
// shared by the dispatch manager and the notification worker.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mission-dispatch/internal/common/config"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// PostgresClient owns the pool behind the dispatch and notification stores.
type PostgresClient struct {
	DB    *sql.DB
	stats prometheus.Collector
}

// OpenPostgres opens the pool and verifies it with a ping. Pool statistics are
// exported as go_sql_* metrics labelled with the database name.
func OpenPostgres(ctx context.Context, cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres %s: %w", cfg.Database, err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(config.GetDuration(cfg.ConnLifetime))
	db.SetConnMaxIdleTime(config.GetDuration(cfg.ConnLifetime))

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres %s: %w", cfg.Database, err)
	}

	c := &PostgresClient{DB: db, stats: collectors.NewDBStatsCollector(db, cfg.Database)}
	if err := prometheus.Register(c.stats); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			db.Close()
			return nil, fmt.Errorf("register pool metrics: %w", err)
		}
		c.stats = nil
	}
	return c, nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *PostgresClient) Close() error {
	if c.stats != nil {
		prometheus.Unregister(c.stats)
	}
	return c.DB.Close()
}

// InTx runs fn inside a transaction, committing on nil and rolling back otherwise.
func InTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
