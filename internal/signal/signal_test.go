package signal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEntityFromURL(t *testing.T) {
	cases := []struct {
		raw    string
		entity string
		ok     bool
	}{
		{"https://Mail.Example.com/inbox?x=1", "mail.example.com", true},
		{"http://localhost:8080/", "localhost", true},
		{"chrome://extensions", "", false},
		{"file:///home/me/a.pdf", "", false},
		{"about:blank", "", false},
		{"not a url", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		entity, ok := EntityFromURL(tc.raw)
		require.Equal(t, tc.ok, ok, tc.raw)
		require.Equal(t, tc.entity, entity, tc.raw)
	}
}

func TestEntityFromExecutable(t *testing.T) {
	entity, ok := EntityFromExecutable(`C:\Program Files\Mozilla\Firefox.EXE`)
	require.True(t, ok)
	require.Equal(t, "firefox", entity)

	entity, ok = EntityFromExecutable("com.spotify.music")
	require.True(t, ok)
	require.Equal(t, "com.spotify.music", entity)

	_, ok = EntityFromExecutable("  ")
	require.False(t, ok)
	_, ok = EntityFromExecutable("unknown")
	require.False(t, ok)
}

func TestCandidateWithoutIdentity(t *testing.T) {
	_, ok := Candidate{Title: "orphan"}.Entity()
	require.False(t, ok)
}

func writeSnapshot(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestFileReaderParsesSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signal.yaml")
	writeSnapshot(t, path, `
focused: false
active:
  url: https://a.com/inbox
  title: Inbox
  window: "1"
  tab: "12"
audible:
  - url: https://music.example/
    window: "2"
    tab: "3"
    last_accessed: 2026-03-01T09:58:00Z
  - app: C:\Apps\Spotify.exe
`)
	reader := NewFileReader(path, WithFileLogger(zap.NewNop()))

	focus := reader.CurrentFocus(context.Background())
	require.True(t, focus.Available)
	require.False(t, focus.HostFocused)
	require.NotNil(t, focus.Active)
	require.Equal(t, "12", focus.Active.Context.TabID)

	audible := reader.AudibleEntities(context.Background())
	require.True(t, audible.Available)
	require.Len(t, audible.Entities, 2)
	entity, ok := audible.Entities[1].Entity()
	require.True(t, ok)
	require.Equal(t, "spotify", entity)
	require.Equal(t, time.Date(2026, time.March, 1, 9, 58, 0, 0, time.UTC), audible.Entities[0].LastAccessed.UTC())
}

func TestFileReaderMissingOrMalformedIsUnavailable(t *testing.T) {
	dir := t.TempDir()
	reader := NewFileReader(filepath.Join(dir, "absent.yaml"), WithFileLogger(zap.NewNop()))
	require.False(t, reader.CurrentFocus(context.Background()).Available)
	require.False(t, reader.AudibleEntities(context.Background()).Available)

	bad := filepath.Join(dir, "bad.yaml")
	writeSnapshot(t, bad, "focused: [unterminated")
	reader = NewFileReader(bad, WithFileLogger(zap.NewNop()))
	require.False(t, reader.CurrentFocus(context.Background()).Available)
}

func TestFileReaderStaleSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signal.yaml")
	writeSnapshot(t, path, "focused: true\nupdated_at: 2026-03-01T09:00:00Z\n")

	reader := NewFileReader(path, WithStaleAfter(time.Minute), WithFileLogger(zap.NewNop()))
	reader.now = func() time.Time { return time.Date(2026, time.March, 1, 9, 0, 30, 0, time.UTC) }
	require.True(t, reader.CurrentFocus(context.Background()).Available)

	reader.now = func() time.Time { return time.Date(2026, time.March, 1, 9, 5, 0, 0, time.UTC) }
	require.False(t, reader.CurrentFocus(context.Background()).Available)
}

func TestWatcherNotifiesOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signal.yaml")
	writeSnapshot(t, path, "focused: true\n")

	w, err := NewWatcher(path, zap.NewNop())
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Close()

	writeSnapshot(t, path, "focused: false\n")

	select {
	case <-w.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("expected change notification")
	}
}

func TestWatchedExposesNotifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signal.yaml")
	writeSnapshot(t, path, "focused: true\nactive:\n  url: https://a.com\n")

	w, err := NewWatcher(path, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	r := Watched(NewFileReader(path, WithFileLogger(zap.NewNop())), w)
	n, ok := r.(Notifier)
	require.True(t, ok)
	require.NotNil(t, n.Changes())
	require.True(t, r.CurrentFocus(context.Background()).HostFocused)
}

// splitReader answers the individual queries from a newer state than its
// snapshot, as a reader racing a helper write would.
type splitReader struct {
	snapshots int
}

func (r *splitReader) CurrentFocus(context.Context) Focus {
	return Focus{Available: true, HostFocused: true, Active: &Candidate{URL: "https://newer.example"}}
}

func (r *splitReader) AudibleEntities(context.Context) Audible {
	return Audible{Available: true}
}

func (r *splitReader) Snapshot(context.Context) (Focus, Audible) {
	r.snapshots++
	return Focus{Available: true}, Audible{Available: true, Entities: []Candidate{{URL: "https://older.example"}}}
}

func TestReadSnapshotUsesSingleRead(t *testing.T) {
	ctx := context.Background()
	inner := &splitReader{}

	focus, audible := ReadSnapshot(ctx, inner)
	require.False(t, focus.HostFocused)
	require.Len(t, audible.Entities, 1)
	require.Equal(t, 1, inner.snapshots)

	w := make(chanNotifier)
	focus, audible = ReadSnapshot(ctx, Watched(inner, w))
	require.False(t, focus.HostFocused, "wrapped readers keep the single read")
	require.Len(t, audible.Entities, 1)
	require.Equal(t, 2, inner.snapshots)
}

type chanNotifier chan struct{}

func (n chanNotifier) Changes() <-chan struct{} { return n }

func TestFileReaderSnapshotReturnsBothAnswers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signal.yaml")
	writeSnapshot(t, path, `
focused: false
audible:
  - url: https://music.example/
`)
	reader := NewFileReader(path, WithFileLogger(zap.NewNop()))

	focus, audible := ReadSnapshot(context.Background(), reader)
	require.True(t, focus.Available)
	require.False(t, focus.HostFocused)
	require.Nil(t, focus.Active)
	require.True(t, audible.Available)
	require.Len(t, audible.Entities, 1)

	require.NoError(t, os.Remove(path))
	focus, audible = reader.Snapshot(context.Background())
	require.False(t, focus.Available)
	require.False(t, audible.Available)
}
