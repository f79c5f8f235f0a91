package attribution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CHZarles/WorkflowMonitor-sub000/internal/domain"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/signal"
)

var base = time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

func focused(url string) signal.Focus {
	return signal.Focus{Available: true, HostFocused: true, Active: &signal.Candidate{URL: url, Title: "Title of " + url}}
}

func unfocused() signal.Focus {
	return signal.Focus{Available: true}
}

func audible(entries ...signal.Candidate) signal.Audible {
	return signal.Audible{Available: true, Entities: entries}
}

func audioState(entity string) domain.AttributionState {
	return domain.AttributionState{Activity: domain.ActivityBackgroundAudio, Entity: entity}
}

func TestFocusTakesPrecedenceOverAudio(t *testing.T) {
	r := NewResolver(Policy{TrackBackgroundAudio: true})
	res := r.Resolve(Input{
		Focus:   focused("https://a.com/x"),
		Audible: audible(signal.Candidate{URL: "https://music.example/"}),
	})
	require.True(t, res.Resolved)
	require.Equal(t, domain.ActivityFocus, res.State.Activity)
	require.Equal(t, "a.com", res.State.Entity)
	require.Nil(t, res.AudioStop)
}

func TestAudioIgnoredWhenTrackingDisabled(t *testing.T) {
	r := NewResolver(Policy{TrackBackgroundAudio: false})
	res := r.Resolve(Input{
		Focus:   unfocused(),
		Audible: audible(signal.Candidate{URL: "https://music.example/"}),
	})
	require.True(t, res.Resolved)
	require.Equal(t, domain.NoneState(), res.State)
}

func TestAudioPrefersRecencyThenStability(t *testing.T) {
	r := NewResolver(Policy{TrackBackgroundAudio: true})
	entries := audible(
		signal.Candidate{URL: "https://old.example/", LastAccessed: base},
		signal.Candidate{URL: "https://new.example/", LastAccessed: base.Add(time.Minute)},
	)

	res := r.Resolve(Input{Focus: unfocused(), Audible: entries})
	require.Equal(t, "new.example", res.State.Entity)

	res = r.Resolve(Input{Focus: unfocused(), Audible: entries, LastResolved: audioState("old.example")})
	require.Equal(t, "old.example", res.State.Entity, "still-audible previous entity must win")
}

func TestAudioKeepsPreviouslyFocusedEntity(t *testing.T) {
	r := NewResolver(Policy{TrackBackgroundAudio: true})
	last := domain.AttributionState{Activity: domain.ActivityFocus, Entity: "a.example"}
	res := r.Resolve(Input{
		Focus: unfocused(),
		Audible: audible(
			signal.Candidate{URL: "https://a.example/", LastAccessed: base},
			signal.Candidate{URL: "https://b.example/", LastAccessed: base.Add(time.Minute)},
		),
		Committed:    last,
		LastResolved: last,
	})
	require.True(t, res.Resolved)
	require.Equal(t, domain.ActivityBackgroundAudio, res.State.Activity)
	require.Equal(t, "a.example", res.State.Entity)
	require.Nil(t, res.AudioStop)
}

func TestAudioSkipsUnidentifiableCandidates(t *testing.T) {
	r := NewResolver(Policy{TrackBackgroundAudio: true})
	res := r.Resolve(Input{
		Focus: unfocused(),
		Audible: audible(
			signal.Candidate{URL: "chrome://media", LastAccessed: base.Add(time.Hour)},
			signal.Candidate{URL: "https://radio.example/", LastAccessed: base},
		),
	})
	require.Equal(t, "radio.example", res.State.Entity)
}

func TestUnidentifiableFocusResolvesToNone(t *testing.T) {
	r := NewResolver(Policy{TrackBackgroundAudio: true})
	res := r.Resolve(Input{
		Focus:     focused("chrome://settings"),
		Committed: domain.AttributionState{Activity: domain.ActivityFocus, Entity: "a.com"},
	})
	require.True(t, res.Resolved)
	require.Equal(t, domain.ActivityNone, res.State.Activity)
	require.Empty(t, res.State.Entity)
}

func TestUnavailableSignalIsUnresolved(t *testing.T) {
	r := NewResolver(Policy{TrackBackgroundAudio: true})
	require.False(t, r.Resolve(Input{Focus: signal.Focus{}}).Resolved)
	require.False(t, r.Resolve(Input{Focus: unfocused(), Audible: signal.Audible{}}).Resolved)

	r.SetPolicy(Policy{TrackBackgroundAudio: false})
	require.True(t, r.Resolve(Input{Focus: unfocused(), Audible: signal.Audible{}}).Resolved)
}

func TestAudioStopOnTransitionAway(t *testing.T) {
	r := NewResolver(Policy{TrackBackgroundAudio: true})
	prev := audioState("music.example")
	prev.Context = domain.ContextIDs{WindowID: "2", TabID: "3"}

	res := r.Resolve(Input{Focus: focused("https://a.com/"), Committed: prev})
	require.NotNil(t, res.AudioStop)
	require.Equal(t, "music.example", res.AudioStop.Entity)
	require.Equal(t, "3", res.AudioStop.Context.TabID)
	require.Equal(t, "a.com", res.State.Entity)

	res = r.Resolve(Input{Focus: unfocused(), Audible: audible(), Committed: prev})
	require.NotNil(t, res.AudioStop)
	require.Equal(t, domain.ActivityNone, res.State.Activity)

	res = r.Resolve(Input{Focus: unfocused(), Audible: audible(signal.Candidate{URL: "https://other.example/"}), Committed: prev})
	require.NotNil(t, res.AudioStop, "switching audio entity closes the previous window")
}

func TestNoAudioStopWhileSameEntityPlays(t *testing.T) {
	r := NewResolver(Policy{TrackBackgroundAudio: true})
	res := r.Resolve(Input{
		Focus:     unfocused(),
		Audible:   audible(signal.Candidate{URL: "https://music.example/track/2"}),
		Committed: audioState("music.example"),
	})
	require.Nil(t, res.AudioStop)
	require.Equal(t, domain.ActivityBackgroundAudio, res.State.Activity)
}

func TestTitlePolicy(t *testing.T) {
	r := NewResolver(Policy{})
	require.Empty(t, r.Resolve(Input{Focus: focused("https://a.com/")}).State.Title)

	r.SetPolicy(Policy{SendTitle: true})
	require.Equal(t, "Title of https://a.com/", r.Resolve(Input{Focus: focused("https://a.com/")}).State.Title)
}

func TestResolvedStatesSatisfyInvariant(t *testing.T) {
	r := NewResolver(Policy{TrackBackgroundAudio: true, SendTitle: true})
	inputs := []Input{
		{Focus: focused("https://a.com/")},
		{Focus: focused("about:blank")},
		{Focus: signal.Focus{Available: true, HostFocused: true}},
		{Focus: unfocused(), Audible: audible()},
		{Focus: unfocused(), Audible: audible(signal.Candidate{App: "vlc.exe"})},
	}
	for _, in := range inputs {
		res := r.Resolve(in)
		require.True(t, res.Resolved)
		require.NoError(t, res.State.Validate())
	}
}
