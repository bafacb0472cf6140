// Package store persists collected records in PostgreSQL. Writes go
// through per-stream transactions so a failed stream rolls back to
// nothing rather than a partial batch.
package store

import (
	"context"
	"embed"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	qlerrors "github.com/querylens/querylens/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DBTX is the querying surface shared by the pool and a transaction.
// Repository methods accept it so the orchestrator chooses the
// transaction boundary.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store owns the connection pool and the schema lifecycle.
type Store struct {
	pool   *pgxpool.Pool
	dsn    string
	logger *zap.Logger
}

// New connects a pool against dsn and verifies it with a ping.
func New(ctx context.Context, dsn string, maxConns int32, logger *zap.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, qlerrors.Wrap(err, qlerrors.ErrorTypeConfig, "parsing database DSN")
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, qlerrors.Wrap(err, qlerrors.ErrorTypeConnection, "creating connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, qlerrors.Wrap(err, qlerrors.ErrorTypeConnection, "pinging database")
	}

	return &Store{
		pool:   pool,
		dsn:    dsn,
		logger: logger.With(zap.String("component", "store")),
	}, nil
}

// Pool exposes the underlying pool for read paths and tests.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return qlerrors.Wrap(err, qlerrors.ErrorTypeConnection, "pinging database")
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate applies all pending schema migrations.
func (s *Store) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return qlerrors.Wrap(err, qlerrors.ErrorTypeInternal, "loading embedded migrations")
	}

	url := s.dsn
	if strings.HasPrefix(url, "postgres://") {
		url = "pgx5://" + strings.TrimPrefix(url, "postgres://")
	} else if strings.HasPrefix(url, "postgresql://") {
		url = "pgx5://" + strings.TrimPrefix(url, "postgresql://")
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return qlerrors.Wrap(err, qlerrors.ErrorTypeConfig, "initializing migrations")
	}
	defer m.Close() //nolint:errcheck

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return qlerrors.Wrap(err, qlerrors.ErrorTypeInternal, "applying migrations")
	}
	s.logger.Info("schema migrations applied")
	return nil
}

// WithTx runs fn inside a transaction. Any error from fn rolls the
// transaction back; the batch either lands whole or not at all.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return qlerrors.Wrap(err, qlerrors.ErrorTypeConnection, "beginning transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return qlerrors.Wrap(err, qlerrors.ErrorTypeConnection, "committing transaction")
	}
	return nil
}
