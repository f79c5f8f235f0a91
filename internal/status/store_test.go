package status

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CHZarles/WorkflowMonitor-sub000/internal/domain"
)

func sampleStatus() domain.DeliveryStatus {
	at := time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)
	tag := "http_502"
	ev := domain.NewStateEvent("desktop_agent", domain.AttributionState{Activity: domain.ActivityFocus, Entity: "a.com"}, domain.ReasonChange, at)
	return domain.DeliveryStatus{
		LastAttemptAt:     &at,
		ConsecutiveErrors: 2,
		LastError:         &tag,
		LastSentEvent:     &ev,
	}
}

func TestMemoryStoreCopiesOnSave(t *testing.T) {
	store := NewMemoryStore()
	status := sampleStatus()
	require.NoError(t, store.Save(context.Background(), status))
	*status.LastError = "mutated"

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "http_502", *loaded.LastError)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "status.db")

	store, err := OpenSQLite(ctx, path)
	require.NoError(t, err)

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.DeliveryStatus{}, empty)

	require.NoError(t, store.Save(ctx, sampleStatus()))
	cleared := sampleStatus()
	cleared.ConsecutiveErrors = 0
	cleared.LastError = nil
	require.NoError(t, store.Save(ctx, cleared))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, loaded.ConsecutiveErrors)
	require.Nil(t, loaded.LastError)
	require.NotNil(t, loaded.LastSentEvent)
	require.Equal(t, "a.com", loaded.LastSentEvent.Entity)
	require.True(t, loaded.LastAttemptAt.Equal(*sampleStatus().LastAttemptAt))
}

func TestOpenDispatchesOnLocation(t *testing.T) {
	require.True(t, isPostgresURL("postgres://agent@db/agents"))
	require.True(t, isPostgresURL("postgresql://agent@db/agents"))
	require.False(t, isPostgresURL(filepath.Join(t.TempDir(), "status.db")))

	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "status.db"), AgentID("test"))
	require.NoError(t, err)
	require.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())
}

func TestAgentID(t *testing.T) {
	id := AgentID("desktop_agent")
	require.Regexp(t, `^desktop_agent@.+$`, id)
}
