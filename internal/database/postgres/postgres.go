// Package postgres implements the storage interfaces on top of a
// PostgreSQL database with the pgvector extension.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// Config carries the connection settings for a single database.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Pool owns the two connection pools the repositories share: a
// database/sql pool for the row-oriented tables and a pgx pool for
// the vector columns. Both point at the same database.
type Pool struct {
	db  *sql.DB
	pgx *pgxpool.Pool
}

// NewPool opens both pools, verifies connectivity and applies pending
// migrations. The returned Pool is ready for use or the error explains
// why the database is unusable.
func NewPool(ctx context.Context, cfg Config) (*Pool, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not ping database: %w", err)
	}

	pgxCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not parse database url: %w", err)
	}
	pgxCfg.MaxConns = int32(maxOpen)
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pgxPool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not create pgx pool: %w", err)
	}

	p := &Pool{db: db, pgx: pgxPool}
	if err := p.migrate(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}

	return p, nil
}

// Close releases both underlying pools.
func (p *Pool) Close() {
	p.pgx.Close()
	_ = p.db.Close()
}
