// Package signal abstracts the platform focus and audio signals the agent polls.
package signal

import (
	"context"
	"time"

	"github.com/CHZarles/WorkflowMonitor-sub000/internal/domain"
)

// Candidate is one platform object (tab, window, app) that may be attributed.
// Exactly one of URL or App is normally set; identity is extracted lazily so
// that an unidentifiable candidate resolves to nothing instead of a stale entity.
type Candidate struct {
	URL          string
	App          string
	Title        string
	Context      domain.ContextIDs
	LastAccessed time.Time
}

// Entity returns the candidate's identity and whether one could be extracted.
func (c Candidate) Entity() (string, bool) {
	if c.URL != "" {
		return EntityFromURL(c.URL)
	}
	if c.App != "" {
		return EntityFromExecutable(c.App)
	}
	return "", false
}

// Focus is the answer to "is the host focused and on what".
type Focus struct {
	// Available is false when the platform could not be queried this cycle.
	Available   bool
	HostFocused bool
	Active      *Candidate
}

// Audible lists candidates currently producing sound.
type Audible struct {
	Available bool
	Entities  []Candidate
}

// Reader queries current platform state. Implementations must not fail:
// transient platform errors are reported through Available=false.
type Reader interface {
	CurrentFocus(ctx context.Context) Focus
	AudibleEntities(ctx context.Context) Audible
}

// Snapshotter is implemented by readers that can answer both queries from a
// single platform read.
type Snapshotter interface {
	Snapshot(ctx context.Context) (Focus, Audible)
}

// ReadSnapshot returns focus and audible state together. Readers that do not
// implement Snapshotter are queried one after the other.
func ReadSnapshot(ctx context.Context, r Reader) (Focus, Audible) {
	if s, ok := r.(Snapshotter); ok {
		return s.Snapshot(ctx)
	}
	return r.CurrentFocus(ctx), r.AudibleEntities(ctx)
}

// Notifier is implemented by readers that can push change notifications.
type Notifier interface {
	Changes() <-chan struct{}
}

// Watched pairs a polling reader with a notifier so that the agent reacts to
// pushed changes as well as timers.
func Watched(r Reader, n Notifier) Reader {
	return watched{Reader: r, Notifier: n}
}

type watched struct {
	Reader
	Notifier
}

func (w watched) Snapshot(ctx context.Context) (Focus, Audible) {
	return ReadSnapshot(ctx, w.Reader)
}
