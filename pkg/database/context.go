package database

import "context"

type contextKey string

const (
	// ScopeKey is the context key for storing the request-scoped database connection.
	ScopeKey contextKey = "dbScope"
)

// GetScope retrieves the request-scoped database connection from context.
// Returns nil and false if not present or already released.
func GetScope(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(ScopeKey).(*Scope)
	if !ok || scope == nil || scope.Conn == nil {
		return nil, false
	}
	return scope, true
}

// SetScope stores the request-scoped database connection in context.
func SetScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}

// ScopeFunc acquires a scoped connection outside of HTTP handling
// (startup seeding, tests). The cleanup function must be called.
type ScopeFunc func(ctx context.Context) (context.Context, func(), error)

// NewScopeFunc creates a ScopeFunc bound to the given database.
func NewScopeFunc(db *DB) ScopeFunc {
	return func(ctx context.Context) (context.Context, func(), error) {
		scope, err := db.Acquire(ctx)
		if err != nil {
			return nil, nil, err
		}
		return SetScope(ctx, scope), scope.Close, nil
	}
}
