package signal

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/CHZarles/WorkflowMonitor-sub000/internal/domain"
)

// snapshotFile is the YAML document a platform helper writes, for example:
//
//	focused: true
//	updated_at: 2026-03-01T10:00:00Z
//	active: {url: "https://a.com/inbox", title: "Inbox", window: "1", tab: "12"}
//	audible:
//	  - {url: "https://music.example/", window: "2", tab: "3", last_accessed: 2026-03-01T09:58:00Z}
type snapshotFile struct {
	Focused   bool             `yaml:"focused"`
	UpdatedAt time.Time        `yaml:"updated_at"`
	Active    *candidateEntry  `yaml:"active"`
	Audible   []candidateEntry `yaml:"audible"`
}

type candidateEntry struct {
	URL          string    `yaml:"url"`
	App          string    `yaml:"app"`
	Title        string    `yaml:"title"`
	Window       string    `yaml:"window"`
	Tab          string    `yaml:"tab"`
	LastAccessed time.Time `yaml:"last_accessed"`
}

func (e candidateEntry) candidate() Candidate {
	return Candidate{
		URL:          e.URL,
		App:          e.App,
		Title:        e.Title,
		Context:      domain.ContextIDs{WindowID: e.Window, TabID: e.Tab},
		LastAccessed: e.LastAccessed,
	}
}

// FileOption configures a FileReader.
type FileOption func(*FileReader)

// WithStaleAfter treats snapshots whose updated_at is older than d as
// unavailable. Zero disables the check.
func WithStaleAfter(d time.Duration) FileOption {
	return func(r *FileReader) {
		r.staleAfter = d
	}
}

// WithFileLogger overrides the reader's logger.
func WithFileLogger(logger *zap.Logger) FileOption {
	return func(r *FileReader) {
		r.logger = logger
	}
}

// FileReader reads platform state from a YAML snapshot maintained by a
// platform helper process.
type FileReader struct {
	path       string
	staleAfter time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewFileReader constructs a FileReader for path.
func NewFileReader(path string, opts ...FileOption) *FileReader {
	r := &FileReader{
		path:   path,
		now:    time.Now,
		logger: zap.L().Named("signal"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the snapshot location.
func (r *FileReader) Path() string { return r.path }

// CurrentFocus implements Reader.
func (r *FileReader) CurrentFocus(ctx context.Context) Focus {
	focus, _ := r.Snapshot(ctx)
	return focus
}

// AudibleEntities implements Reader.
func (r *FileReader) AudibleEntities(ctx context.Context) Audible {
	_, audible := r.Snapshot(ctx)
	return audible
}

// Snapshot implements Snapshotter. Both answers come from one read of the
// file, so they always describe the same helper write.
func (r *FileReader) Snapshot(context.Context) (Focus, Audible) {
	snap, ok := r.load()
	if !ok {
		return Focus{}, Audible{}
	}
	focus := Focus{Available: true, HostFocused: snap.Focused}
	if snap.Active != nil {
		c := snap.Active.candidate()
		focus.Active = &c
	}
	audible := Audible{Available: true, Entities: make([]Candidate, 0, len(snap.Audible))}
	for _, entry := range snap.Audible {
		audible.Entities = append(audible.Entities, entry.candidate())
	}
	return focus, audible
}

func (r *FileReader) load() (snapshotFile, bool) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		r.logger.Debug("signal snapshot unreadable", zap.String("path", r.path), zap.Error(err))
		return snapshotFile{}, false
	}
	var snap snapshotFile
	if err := yaml.Unmarshal(data, &snap); err != nil {
		r.logger.Debug("signal snapshot malformed", zap.String("path", r.path), zap.Error(err))
		return snapshotFile{}, false
	}
	if r.staleAfter > 0 && !snap.UpdatedAt.IsZero() && r.now().Sub(snap.UpdatedAt) > r.staleAfter {
		r.logger.Debug("signal snapshot stale", zap.Time("updated_at", snap.UpdatedAt))
		return snapshotFile{}, false
	}
	return snap, true
}
