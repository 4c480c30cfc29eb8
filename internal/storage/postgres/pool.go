// Package postgres implements the order and product stores on PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"sync"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/golden-feast/db"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, db.Schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Connector lazily opens one shared pool. Concurrent first callers wait on
// the same connection attempt; a failed attempt is retried on the next call.
type Connector struct {
	url     string
	migrate bool

	group singleflight.Group
	mu    sync.Mutex
	pool  *pgxpool.Pool
}

// NewConnector returns a Connector for databaseURL. When migrate is set the
// schema is applied right after the pool is opened.
func NewConnector(databaseURL string, migrate bool) *Connector {
	return &Connector{url: databaseURL, migrate: migrate}
}

// Pool returns the shared pool, opening it on first use.
func (c *Connector) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	c.mu.Lock()
	pool := c.pool
	c.mu.Unlock()
	if pool != nil {
		return pool, nil
	}

	v, err, _ := c.group.Do("pool", func() (any, error) {
		c.mu.Lock()
		if c.pool != nil {
			defer c.mu.Unlock()
			return c.pool, nil
		}
		c.mu.Unlock()

		p, err := NewPool(ctx, c.url)
		if err != nil {
			return nil, err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return nil, fmt.Errorf("pinging database: %w", err)
		}
		if c.migrate {
			if err := RunMigrations(ctx, p); err != nil {
				p.Close()
				return nil, err
			}
		}

		c.mu.Lock()
		c.pool = p
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*pgxpool.Pool), nil
}

// Close closes the pool if it was opened.
func (c *Connector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
}
