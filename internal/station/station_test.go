package station

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glebovdev/cider-cli/internal/player"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu         sync.Mutex
	calls      []string
	nowPlaying []string // scripted track ids, "" means no info; last one repeats
	npCalls    int
	playErr    error
	npFailures int // the first npFailures NowPlaying calls return an error
	onNP       func(call int)
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeEngine) Stop(context.Context) error { f.record("stop"); return nil }

func (f *fakeEngine) PlayItem(_ context.Context, id, kind string) error {
	f.record("play-item " + kind + " " + id)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playErr
}

func (f *fakeEngine) Next(context.Context) error     { f.record("next"); return nil }
func (f *fakeEngine) Previous(context.Context) error { f.record("previous"); return nil }

func (f *fakeEngine) NowPlaying(context.Context) (player.NowPlaying, error) {
	f.mu.Lock()
	i := f.npCalls
	f.npCalls++
	var id string
	if len(f.nowPlaying) > 0 {
		if i < len(f.nowPlaying) {
			id = f.nowPlaying[i]
		} else {
			id = f.nowPlaying[len(f.nowPlaying)-1]
		}
	}
	hook := f.onNP
	fail := i < f.npFailures
	f.mu.Unlock()

	if hook != nil {
		hook(i)
	}
	if fail {
		return player.NowPlaying{}, errors.New("engine unreachable")
	}
	if id == "" {
		return player.NowPlaying{}, nil
	}
	return player.NowPlaying{TrackID: id, Name: id}, nil
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) NowPlayingCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.npCalls
}

type fakeStatus struct {
	mu      sync.Mutex
	message string
	flashes []string
}

func (s *fakeStatus) Set(msg string) {
	s.mu.Lock()
	s.message = msg
	s.mu.Unlock()
}

func (s *fakeStatus) Flash(msg string) {
	s.mu.Lock()
	s.message = msg
	s.flashes = append(s.flashes, msg)
	s.mu.Unlock()
}

func (s *fakeStatus) ClearIf(msg string) {
	s.mu.Lock()
	if s.message == msg {
		s.message = ""
	}
	s.mu.Unlock()
}

func (s *fakeStatus) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

func (s *fakeStatus) hasFlash(msg string) func() bool {
	return func() bool {
		for _, f := range s.Flashes() {
			if f == msg {
				return true
			}
		}
		return false
	}
}

func (s *fakeStatus) Flashes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.flashes...)
}

type fakeIndicator struct {
	mu      sync.Mutex
	adopted []string
}

func (i *fakeIndicator) Adopted() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.adopted...)
}

func (i *fakeIndicator) Adopt(id string) {
	i.mu.Lock()
	i.adopted = append(i.adopted, id)
	i.mu.Unlock()
}

const (
	testPoll    = 10 * time.Millisecond
	testTimeout = 300 * time.Millisecond
)

func newTestController(engine *fakeEngine) (*Controller, *fakeStatus, *fakeIndicator) {
	status := &fakeStatus{}
	ind := &fakeIndicator{}
	c := NewController(engine, status, ind, Options{PollInterval: testPoll, Timeout: testTimeout})
	return c, status, ind
}

func waitUnlocked(t *testing.T, c *Controller) {
	t.Helper()
	require.Eventually(t, func() bool { return !c.Locked() }, 2*time.Second, 2*time.Millisecond)
}

func TestEnterStationStopsThenPlays(t *testing.T) {
	engine := &fakeEngine{nowPlaying: []string{"t1"}}
	c, _, ind := newTestController(engine)
	defer c.Close()

	require.NoError(t, c.Play("ra.1"))
	assert.True(t, c.Locked())
	assert.Equal(t, PhaseEntering, c.Session().Phase)

	waitUnlocked(t, c)

	assert.Equal(t, []string{"stop", "play-item stations ra.1"}, engine.Calls())
	s := c.Session()
	assert.Equal(t, "t1", s.ConfirmedTrackID)
	assert.Equal(t, "ra.1", s.StationID)
	assert.Equal(t, PhaseUnlocked, s.Phase)
	assert.True(t, c.InStation())
	assert.Eventually(t, func() bool { return len(ind.Adopted()) == 1 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, []string{"t1"}, ind.Adopted())
}

func TestLockedRejectsWithoutEngineCall(t *testing.T) {
	engine := &fakeEngine{} // never reports a track
	c, status, _ := newTestController(engine)
	defer c.Close()

	require.NoError(t, c.Play("X"))
	callsBefore := len(engine.Calls())

	err := c.Play("Y")
	assert.ErrorIs(t, err, ErrLocked)
	assert.ErrorIs(t, c.Next(), ErrLocked)
	assert.ErrorIs(t, c.Previous(), ErrLocked)

	// the rejected calls must not have reached the engine
	time.Sleep(5 * time.Millisecond)
	for _, call := range engine.Calls()[callsBefore:] {
		assert.NotContains(t, call, "Y")
		assert.NotEqual(t, "next", call)
		assert.NotEqual(t, "previous", call)
	}
	assert.Contains(t, status.Flashes(), MsgSwitching)
	assert.Equal(t, "X", c.Session().StationID)
}

func TestSwitchAllowedAfterUnlock(t *testing.T) {
	engine := &fakeEngine{nowPlaying: []string{"x1"}}
	c, _, _ := newTestController(engine)
	defer c.Close()

	require.NoError(t, c.Play("X"))
	assert.ErrorIs(t, c.Play("Y"), ErrLocked)
	waitUnlocked(t, c)

	engine.mu.Lock()
	engine.nowPlaying = []string{"y1"}
	engine.npCalls = 0
	engine.mu.Unlock()

	require.NoError(t, c.Play("Y"))
	assert.Equal(t, PhaseSwitching, c.Session().Phase)
	waitUnlocked(t, c)

	assert.Equal(t, "Y", c.Session().StationID)
	assert.Equal(t, "y1", c.Session().ConfirmedTrackID)
	assert.Equal(t, []string{"stop", "play-item stations X", "stop", "play-item stations Y"}, engine.Calls())
}

func TestConfirmationWaitsForChangedTrack(t *testing.T) {
	engine := &fakeEngine{nowPlaying: []string{"T0"}}
	c, status, _ := newTestController(engine)
	defer c.Close()

	require.NoError(t, c.Play("S"))
	waitUnlocked(t, c)

	// baseline read returns T0, then the polls see [none, none, T1]
	var mu sync.Mutex
	var lockedAt []bool
	engine.mu.Lock()
	engine.nowPlaying = []string{"T0", "", "", "T1"}
	engine.npCalls = 0
	engine.onNP = func(call int) {
		if call == 0 {
			return
		}
		mu.Lock()
		lockedAt = append(lockedAt, c.Locked())
		mu.Unlock()
	}
	engine.mu.Unlock()

	require.NoError(t, c.Next())
	waitUnlocked(t, c)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, true, true}, lockedAt)
	assert.Equal(t, "T1", c.Session().ConfirmedTrackID)
	assert.Equal(t, 4, engine.NowPlayingCalls())
	assert.Eventually(t, func() bool { return status.Message() == "" }, time.Second, 2*time.Millisecond)
}

func TestNavigateIgnoresUnchangedTrack(t *testing.T) {
	engine := &fakeEngine{nowPlaying: []string{"T0", "T0", "T0", "T2"}}
	c, _, _ := newTestController(engine)
	defer c.Close()

	c.mu.Lock()
	c.session.StationID = "S"
	c.mu.Unlock()

	require.NoError(t, c.Previous())
	waitUnlocked(t, c)

	assert.Equal(t, "T2", c.Session().ConfirmedTrackID)
	assert.Equal(t, []string{"previous"}, engine.Calls())
}

func TestFailedBaselineReadFallsBackToConfirmedTrack(t *testing.T) {
	engine := &fakeEngine{nowPlaying: []string{"T0"}}
	c, _, ind := newTestController(engine)
	defer c.Close()

	require.NoError(t, c.Play("ra.x"))
	waitUnlocked(t, c)
	require.Equal(t, "T0", c.Session().ConfirmedTrackID)

	// baseline read errors, then the engine keeps reporting T0 before T1
	engine.mu.Lock()
	engine.nowPlaying = []string{"", "T0", "T0", "T0", "T0", "T0", "T0", "T0", "T0", "T0", "T0", "T1"}
	engine.npCalls = 0
	engine.npFailures = 1
	engine.mu.Unlock()

	require.NoError(t, c.Next())
	time.Sleep(3 * testPoll)
	assert.True(t, c.Locked(), "unchanged track must not confirm")

	waitUnlocked(t, c)
	assert.Equal(t, "T1", c.Session().ConfirmedTrackID)
	assert.Eventually(t, func() bool {
		adopted := ind.Adopted()
		return len(adopted) == 2 && adopted[1] == "T1"
	}, time.Second, 2*time.Millisecond)
}

func TestFollowAdoptsEngineAdvance(t *testing.T) {
	engine := &fakeEngine{nowPlaying: []string{"T1"}}
	c, _, ind := newTestController(engine)
	defer c.Close()

	assert.False(t, c.Follow("T5"), "outside station mode")

	require.NoError(t, c.Play("ra.x"))
	assert.False(t, c.Follow("T5"), "while locked")
	waitUnlocked(t, c)
	require.Eventually(t, func() bool { return len(ind.Adopted()) == 1 }, time.Second, 2*time.Millisecond)

	assert.True(t, c.Follow("T2"))
	assert.Equal(t, "T2", c.Session().ConfirmedTrackID)
	assert.Equal(t, "T2", ind.Adopted()[len(ind.Adopted())-1])
	assert.False(t, c.Follow(""))
}

func TestSameStationReentryUsesBaseline(t *testing.T) {
	engine := &fakeEngine{nowPlaying: []string{"a"}}
	c, _, _ := newTestController(engine)
	defer c.Close()

	require.NoError(t, c.Play("S"))
	waitUnlocked(t, c)

	engine.mu.Lock()
	engine.nowPlaying = []string{"a", "a", "b"}
	engine.npCalls = 0
	engine.calls = nil
	engine.mu.Unlock()

	require.NoError(t, c.Play("S"))
	assert.Equal(t, PhaseNavigating, c.Session().Phase)
	waitUnlocked(t, c)

	assert.Equal(t, []string{"play-item stations S"}, engine.Calls())
	assert.Equal(t, "b", c.Session().ConfirmedTrackID)
}

func TestTimeoutUnlocks(t *testing.T) {
	engine := &fakeEngine{}
	c, status, _ := newTestController(engine)
	defer c.Close()

	require.NoError(t, c.Play("S"))
	waitUnlocked(t, c)

	assert.Eventually(t, status.hasFlash(MsgTimeout), time.Second, 2*time.Millisecond)
	assert.Equal(t, "", c.Session().ConfirmedTrackID)
	assert.Equal(t, PhaseUnlocked, c.Session().Phase)
}

func TestCommandFailureUnlocks(t *testing.T) {
	engine := &fakeEngine{playErr: errors.New("engine down"), nowPlaying: []string{"t"}}
	c, status, _ := newTestController(engine)
	defer c.Close()

	require.NoError(t, c.Play("S"))
	waitUnlocked(t, c)

	assert.Eventually(t, status.hasFlash(MsgFailed), time.Second, 2*time.Millisecond)
	assert.Equal(t, []string{MsgFailed}, status.Flashes())
	assert.Equal(t, 0, engine.NowPlayingCalls())
}

func TestNextOutsideStation(t *testing.T) {
	c, _, _ := newTestController(&fakeEngine{})
	defer c.Close()

	assert.Error(t, c.Next())
	assert.Empty(t, c.engine.(*fakeEngine).Calls())
}

func TestLeaveResetsSession(t *testing.T) {
	engine := &fakeEngine{}
	c, _, ind := newTestController(engine)
	defer c.Close()

	require.NoError(t, c.Play("S"))
	c.Leave()

	assert.Equal(t, Session{}, c.Session())
	assert.False(t, c.InStation())

	// the abandoned poll must not update state later
	engine.mu.Lock()
	engine.nowPlaying = []string{"late"}
	engine.mu.Unlock()
	time.Sleep(5 * testPoll)

	assert.Equal(t, Session{}, c.Session())
	assert.Empty(t, ind.Adopted())
}

func TestCloseRejectsLaterOperations(t *testing.T) {
	c, _, _ := newTestController(&fakeEngine{})
	require.NoError(t, c.Play("S"))
	c.Close()

	assert.Error(t, c.Play("S"))
	assert.False(t, c.Locked())
}

func TestOnConfirmed(t *testing.T) {
	engine := &fakeEngine{nowPlaying: []string{"t1"}}
	c, _, _ := newTestController(engine)
	defer c.Close()

	got := make(chan Session, 1)
	c.OnConfirmed(func(s Session) { got <- s })

	require.NoError(t, c.Play("S"))
	select {
	case s := <-got:
		assert.Equal(t, "t1", s.ConfirmedTrackID)
		assert.False(t, s.Locked)
	case <-time.After(time.Second):
		t.Fatal("OnConfirmed not called")
	}
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase    Phase
		expected string
	}{
		{PhaseIdle, "IDLE"},
		{PhaseEntering, "ENTERING"},
		{PhaseSwitching, "SWITCHING"},
		{PhaseNavigating, "NAVIGATING"},
		{PhaseUnlocked, "UNLOCKED"},
		{Phase(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.phase.String())
	}
}
