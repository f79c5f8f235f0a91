package keeper

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestKeeper(wake chan struct{}) *Keeper {
	return New(wake,
		WithInitialDelay(5*time.Millisecond),
		WithPeriod(10*time.Millisecond),
		WithLogger(zap.NewNop()),
	)
}

func TestKeeperSendsInitialAndPeriodicWakes(t *testing.T) {
	wake := make(chan struct{}, 1)
	k := newTestKeeper(wake)
	k.Start(context.Background())
	defer k.Stop()

	for i := 0; i < 3; i++ {
		select {
		case <-wake:
		case <-time.After(2 * time.Second):
			t.Fatalf("wake %d not received", i)
		}
	}
}

func TestKeeperDropsWhenWorkerBusy(t *testing.T) {
	wake := make(chan struct{})
	k := newTestKeeper(wake)
	before := testutil.ToFloat64(wakeCounter.WithLabelValues("dropped"))

	k.Start(context.Background())
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(wakeCounter.WithLabelValues("dropped")) > before
	}, 2*time.Second, time.Millisecond)
	k.Stop()
}

func TestKeeperStartIsIdempotentAndReprovisionRestarts(t *testing.T) {
	wake := make(chan struct{}, 1)
	k := newTestKeeper(wake)

	require.False(t, k.Running())
	k.Start(context.Background())
	k.Start(context.Background())
	require.True(t, k.Running())

	k.Reprovision(context.Background())
	require.True(t, k.Running())

	k.Stop()
	k.Stop()
	require.False(t, k.Running())

	k.Reprovision(context.Background())
	require.True(t, k.Running())
	k.Stop()
}

func TestKeeperStopsWithParentContext(t *testing.T) {
	wake := make(chan struct{}, 1)
	k := newTestKeeper(wake)
	ctx, cancel := context.WithCancel(context.Background())
	k.Start(ctx)
	cancel()
	k.Stop()
}
