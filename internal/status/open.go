package status

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ClosableStore is a Store backed by an external resource.
type ClosableStore interface {
	Store
	Close() error
}

// Open selects a backend from location: a postgres:// URL opens the shared
// fleet table, anything else is a SQLite file path.
func Open(ctx context.Context, location, agentID string) (ClosableStore, error) {
	if isPostgresURL(location) {
		pool, err := pgxpool.New(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("connect status database: %w", err)
		}
		store, err := NewPostgresStore(ctx, pool, agentID)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	}
	return OpenSQLite(ctx, location)
}

// AgentID names this agent in shared stores: source@hostname.
func AgentID(source string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown-host"
	}
	return source + "@" + host
}

func isPostgresURL(location string) bool {
	return strings.HasPrefix(location, "postgres://") || strings.HasPrefix(location, "postgresql://")
}
