package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Scope is a pooled connection held for the lifetime of one inbound operation.
// Repositories read it from the context so that every store call made while
// handling a request goes through the same connection.
type Scope struct {
	Conn *pgxpool.Conn
}

// Close releases the connection back to the pool. Safe to call on a nil Conn.
func (s *Scope) Close() {
	if s == nil || s.Conn == nil {
		return
	}
	s.Conn.Release()
	s.Conn = nil
}

// Acquire takes a connection from the pool for one operation.
// The returned Scope MUST be closed with defer scope.Close().
func (db *DB) Acquire(ctx context.Context) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Scope{Conn: conn}, nil
}
