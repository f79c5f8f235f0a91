package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CHZarles/WorkflowMonitor-sub000/internal/domain"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS agent_delivery_status (
	agent_id   TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore publishes one row per agent to a shared database so a fleet
// dashboard can read every agent's diagnostics.
type PostgresStore struct {
	pool    *pgxpool.Pool
	agentID string
}

// NewPostgresStore constructs a PostgresStore and ensures its table exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, agentID string) (*PostgresStore, error) {
	if agentID == "" {
		return nil, errors.New("status: agent id required")
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("status schema: %w", err)
	}
	return &PostgresStore{pool: pool, agentID: agentID}, nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, status domain.DeliveryStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return err
	}
	const query = `INSERT INTO agent_delivery_status (agent_id, payload, updated_at)
        VALUES ($1, $2, now())
        ON CONFLICT (agent_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`
	_, err = s.pool.Exec(ctx, query, s.agentID, payload)
	return err
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context) (domain.DeliveryStatus, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM agent_delivery_status WHERE agent_id=$1`, s.agentID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DeliveryStatus{}, nil
	}
	if err != nil {
		return domain.DeliveryStatus{}, err
	}
	var status domain.DeliveryStatus
	if err := json.Unmarshal(payload, &status); err != nil {
		return domain.DeliveryStatus{}, fmt.Errorf("decode status: %w", err)
	}
	return status, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
