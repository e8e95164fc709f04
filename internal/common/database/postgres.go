package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"comm-dispatch/internal/common/config"
)

const connLifetime = 5 * time.Minute

// PostgresClient holds the shop database pool shared by the repositories.
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres opens the pool. No connection is made until first use.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres %s/%s: %w", cfg.Host, cfg.Database, err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(connLifetime)
	db.SetConnMaxIdleTime(connLifetime)

	return &PostgresClient{DB: db}, nil
}

// ConnectPostgres opens the pool and pings it. A pool that fails the ping is
// closed before returning.
func ConnectPostgres(ctx context.Context, cfg config.PostgresConfig) (*PostgresClient, error) {
	c, err := NewPostgres(cfg)
	if err != nil {
		return nil, err
	}
	if err := c.Ping(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("ping postgres %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return c, nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// RegisterPoolMetrics exports sql.DBStats as go_sql_* metrics labelled with dbName.
func (c *PostgresClient) RegisterPoolMetrics(reg prometheus.Registerer, dbName string) error {
	return reg.Register(collectors.NewDBStatsCollector(c.DB, dbName))
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
