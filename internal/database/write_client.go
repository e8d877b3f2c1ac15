package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const defaultQueryTimeout = 30 * time.Second

// WriteClient provides bounded-time access to the database for the email pipeline.
// Every call gets its own timeout on top of the caller's context.
type WriteClient struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewWriteClient connects to databaseURL and wraps the pool
func NewWriteClient(databaseURL string) (*WriteClient, error) {
	db, err := New(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database with write access: %w", err)
	}
	return WrapDB(db), nil
}

// WrapDB wraps an existing pool (tests hand in sqlmock-backed pools here)
func WrapDB(db *sqlx.DB) *WriteClient {
	return &WriteClient{db: db, timeout: defaultQueryTimeout}
}

// GetDB returns the underlying database connection
func (wc *WriteClient) GetDB() *sqlx.DB {
	return wc.db
}

// ExecContext executes a write query and returns the result
func (wc *WriteClient) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, wc.timeout)
	defer cancel()

	return wc.db.ExecContext(ctx, query, args...)
}

// SelectContext executes a query and scans all rows into dest
func (wc *WriteClient) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, wc.timeout)
	defer cancel()

	return wc.db.SelectContext(ctx, dest, query, args...)
}

// GetContext executes a query and scans a single row into dest
func (wc *WriteClient) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, wc.timeout)
	defer cancel()

	return wc.db.GetContext(ctx, dest, query, args...)
}

// Close closes the database connection
func (wc *WriteClient) Close() error {
	return wc.db.Close()
}
