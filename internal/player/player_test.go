package player

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateIdle, "IDLE"},
		{StatePlaying, "PLAYING"},
		{StatePaused, "PAUSED"},
		{StateSwitching, "SWITCHING"},
		{StateError, "ERROR"},
		{State(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("State.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestModeStrings(t *testing.T) {
	if ShuffleOn.String() != "on" || ShuffleOff.String() != "off" {
		t.Error("unexpected shuffle mode strings")
	}
	if RepeatOne.String() != "one" || RepeatAll.String() != "all" || RepeatOff.String() != "off" {
		t.Error("unexpected repeat mode strings")
	}
}

func TestSampleProgress(t *testing.T) {
	tests := []struct {
		name     string
		sample   Sample
		expected float64
	}{
		{"half way", Sample{Position: 50, Duration: 100}, 0.5},
		{"unknown duration", Sample{Position: 50}, 0},
		{"past the end", Sample{Position: 120, Duration: 100}, 1},
		{"negative position", Sample{Position: -1, Duration: 100}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sample.Progress(); got != tt.expected {
				t.Errorf("Progress() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestNowPlayingSample(t *testing.T) {
	np := NowPlaying{TrackID: "t1", DurationMs: 200000, PositionSec: 100, Playing: true}
	s := np.Sample()
	if s.TrackID != "t1" || s.Duration != 200 || s.Position != 100 || !s.Playing {
		t.Errorf("Sample() = %+v", s)
	}
}

type fakeSource struct {
	mu      sync.Mutex
	results []NowPlaying
	gates   []chan struct{}
	calls   int
	playing bool
	err     error
}

func (f *fakeSource) NowPlaying(_ context.Context) (NowPlaying, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	var gate chan struct{}
	if i < len(f.gates) {
		gate = f.gates[i]
	}
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if f.err != nil {
		return NowPlaying{}, f.err
	}
	return f.results[i], nil
}

func (f *fakeSource) IsPlaying(_ context.Context) (bool, error) {
	return f.playing, nil
}

func TestTrackerRefresh(t *testing.T) {
	src := &fakeSource{results: []NowPlaying{{TrackID: "a", Name: "A"}}, playing: true}
	tr := NewTracker(src, 0)

	var got []NowPlaying
	tr.OnChange(func(np NowPlaying) { got = append(got, np) })

	if err := tr.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if tr.Current().TrackID != "a" || !tr.Current().Playing {
		t.Errorf("Current() = %+v", tr.Current())
	}
	if tr.State() != StatePlaying {
		t.Errorf("State() = %v, want PLAYING", tr.State())
	}
	if len(got) != 1 {
		t.Errorf("listener called %d times, want 1", len(got))
	}
}

func TestTrackerDropsStaleResponse(t *testing.T) {
	slow := make(chan struct{})
	src := &fakeSource{
		results: []NowPlaying{{TrackID: "old", Name: "Old"}, {TrackID: "new", Name: "New"}},
		gates:   []chan struct{}{slow, nil},
	}
	tr := NewTracker(src, 0)

	done := make(chan struct{})
	go func() {
		_ = tr.Refresh(context.Background())
		close(done)
	}()

	// wait until the first fetch is in flight
	deadline := time.Now().Add(time.Second)
	for {
		src.mu.Lock()
		calls := src.calls
		src.mu.Unlock()
		if calls >= 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := tr.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	close(slow)
	<-done

	if got := tr.Current().TrackID; got != "new" {
		t.Errorf("Current().TrackID = %q, want %q", got, "new")
	}
}

func TestTrackerRefreshError(t *testing.T) {
	boom := errors.New("boom")
	tr := NewTracker(&fakeSource{err: boom}, 0)

	if err := tr.Refresh(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Refresh() error = %v, want boom", err)
	}
	if tr.State() != StateError {
		t.Errorf("State() = %v, want ERROR", tr.State())
	}
}

func TestTrackerThrottlesTimeUpdates(t *testing.T) {
	src := &fakeSource{results: []NowPlaying{{TrackID: "a", Name: "A", DurationMs: 100000}}}
	tr := NewTracker(src, 50*time.Millisecond)
	if err := tr.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	var calls int32
	tr.OnChange(func(NowPlaying) { atomic.AddInt32(&calls, 1) })

	if !tr.HandleTimeUpdate(TimeUpdate{Position: 1, Duration: 100, Playing: true}) {
		t.Fatal("first update should be accepted")
	}
	if tr.HandleTimeUpdate(TimeUpdate{Position: 1.05, Duration: 100, Playing: true}) {
		t.Error("update inside the throttle window should be dropped")
	}

	time.Sleep(60 * time.Millisecond)
	if !tr.HandleTimeUpdate(TimeUpdate{Position: 2, Duration: 100, Playing: false}) {
		t.Error("update after the throttle window should be accepted")
	}

	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("listener called %d times, want 2", calls)
	}
	if cur := tr.Current(); cur.PositionSec != 2 || cur.Playing {
		t.Errorf("Current() = %+v", cur)
	}
	if tr.State() != StatePaused {
		t.Errorf("State() = %v, want PAUSED", tr.State())
	}
}

func TestTrackerSwitchingState(t *testing.T) {
	tr := NewTracker(&fakeSource{}, 0)
	if tr.State() != StateIdle {
		t.Errorf("State() = %v, want IDLE", tr.State())
	}
	tr.SetSwitching(true)
	if tr.State() != StateSwitching {
		t.Errorf("State() = %v, want SWITCHING", tr.State())
	}
	tr.SetSwitching(false)
	if tr.State() != StateIdle {
		t.Errorf("State() = %v, want IDLE", tr.State())
	}
}

func TestTrackerPolling(t *testing.T) {
	results := make([]NowPlaying, 100)
	for i := range results {
		results[i] = NowPlaying{TrackID: "a", Name: "A"}
	}
	src := &fakeSource{results: results}
	tr := NewTracker(src, 0)

	tr.StartPolling(10 * time.Millisecond)
	time.Sleep(55 * time.Millisecond)
	tr.StopPolling()

	src.mu.Lock()
	calls := src.calls
	src.mu.Unlock()
	if calls < 2 {
		t.Errorf("expected at least 2 polls, got %d", calls)
	}

	time.Sleep(30 * time.Millisecond)
	src.mu.Lock()
	after := src.calls
	src.mu.Unlock()
	if after > calls+1 {
		t.Errorf("polling continued after StopPolling: %d -> %d", calls, after)
	}
}
