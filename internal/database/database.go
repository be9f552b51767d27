// Package database provides connection management and a dialect-aware
// query layer for the master and slave endpoints of tablesync.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "modernc.org/sqlite"             // SQLite driver

	"github.com/dbsmedya/tablesync/internal/config"
)

// connectAttempts bounds connectWithRetry.
const connectAttempts = 3

// Manager handles the master (source) and slave (target) connections.
type Manager struct {
	Master *DB
	Slave  *DB
	config *config.Config

	// open is replaceable in tests.
	open func(driver, dsn string) (*sql.DB, error)
	// backoff is the first retry delay; it doubles per attempt.
	backoff time.Duration
}

// NewManager creates a new database manager from configuration.
// The configuration must already be resolved and validated.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		config:  cfg,
		open:    sql.Open,
		backoff: time.Second,
	}
}

// Connect establishes connections to both endpoints.
func (m *Manager) Connect(ctx context.Context) error {
	var err error

	m.Master, err = m.connectWithRetry(ctx, "master", &m.config.Master)
	if err != nil {
		return fmt.Errorf("failed to connect to master database: %w", err)
	}

	m.Slave, err = m.connectWithRetry(ctx, "slave", &m.config.Slave)
	if err != nil {
		_ = m.Master.Conn().Close()
		m.Master = nil
		return fmt.Errorf("failed to connect to slave database: %w", err)
	}

	return nil
}

// connectWithRetry attempts to connect with exponential backoff.
func (m *Manager) connectWithRetry(ctx context.Context, name string, cfg *config.DatabaseConfig) (*DB, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	backoff := m.backoff
	for i := 0; i < connectAttempts; i++ {
		var conn *sql.DB
		conn, err = m.connect(dialect, cfg)
		if err == nil {
			pingErr := conn.PingContext(ctx)
			if pingErr == nil {
				return New(conn, dialect), nil
			}
			_ = conn.Close()
			err = pingErr
		}

		if i < connectAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", connectAttempts, err)
}

// connect opens a pool for one endpoint.
func (m *Manager) connect(dialect Dialect, cfg *config.DatabaseConfig) (*sql.DB, error) {
	dsn, err := dialect.BuildDSN(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := m.open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, err
	}

	if dialect.Name() == config.DriverSQLite {
		// One writer per file; a second pooled connection would only wait
		// on SQLITE_BUSY.
		conn.SetMaxOpenConns(1)
	} else {
		if cfg.MaxConnections > 0 {
			conn.SetMaxOpenConns(cfg.MaxConnections)
		}
		if cfg.MaxIdleConnections > 0 {
			conn.SetMaxIdleConns(cfg.MaxIdleConnections)
		}
	}
	conn.SetConnMaxLifetime(10 * time.Minute)

	return conn, nil
}

// Close closes all database connections gracefully.
func (m *Manager) Close() error {
	var errs []error

	if m.Slave != nil {
		if err := m.Slave.Conn().Close(); err != nil {
			errs = append(errs, fmt.Errorf("slave close: %w", err))
		}
	}

	if m.Master != nil {
		if err := m.Master.Conn().Close(); err != nil {
			errs = append(errs, fmt.Errorf("master close: %w", err))
		}
	}

	return errors.Join(errs...)
}

// ping verifies both connections are alive.
func (m *Manager) ping(ctx context.Context) error {
	if m.Master != nil {
		if err := m.Master.Conn().PingContext(ctx); err != nil {
			return fmt.Errorf("master ping failed: %w", err)
		}
	}

	if m.Slave != nil {
		if err := m.Slave.Conn().PingContext(ctx); err != nil {
			return fmt.Errorf("slave ping failed: %w", err)
		}
	}

	return nil
}
