package player

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultThrottle     = 100 * time.Millisecond
	DefaultPollInterval = time.Second
	fetchTimeout        = 5 * time.Second
)

// Source reads playback state from the engine.
type Source interface {
	NowPlaying(ctx context.Context) (NowPlaying, error)
	IsPlaying(ctx context.Context) (bool, error)
}

// TimeUpdate is the payload of a pushed playback-time event, in seconds.
type TimeUpdate struct {
	Position float64
	Duration float64
	Playing  bool
}

// Tracker keeps the latest NowPlaying, fed by pushed time updates and by
// fetches from the engine. Fetches are sequenced and only the most recently
// started one may update the mirror.
type Tracker struct {
	source   Source
	throttle time.Duration

	mu        sync.RWMutex
	current   NowPlaying
	failed    bool
	switching bool
	lastPush  time.Time
	seq       uint64
	cancel    context.CancelFunc
	listeners []func(NowPlaying)

	pollTicker *time.Ticker
	stopPoll   chan struct{}
}

func NewTracker(source Source, throttle time.Duration) *Tracker {
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	return &Tracker{
		source:   source,
		throttle: throttle,
	}
}

// OnChange registers fn to receive every accepted update.
func (t *Tracker) OnChange(fn func(NowPlaying)) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

func (t *Tracker) Current() NowPlaying {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	switch {
	case t.switching:
		return StateSwitching
	case t.failed:
		return StateError
	case t.current.Empty():
		return StateIdle
	case t.current.Playing:
		return StatePlaying
	default:
		return StatePaused
	}
}

// SetSwitching marks a pending track change.
func (t *Tracker) SetSwitching(switching bool) {
	t.mu.Lock()
	t.switching = switching
	t.mu.Unlock()
}

// HandleTimeUpdate applies a pushed time update. Updates arriving closer
// together than the throttle interval are dropped. It returns false when the
// update was dropped or there is no track to apply it to yet.
func (t *Tracker) HandleTimeUpdate(u TimeUpdate) bool {
	t.mu.Lock()
	now := time.Now()
	if now.Sub(t.lastPush) < t.throttle {
		t.mu.Unlock()
		return false
	}
	if t.current.Empty() {
		t.mu.Unlock()
		go t.refreshInBackground()
		return false
	}

	t.lastPush = now
	t.current.PositionSec = u.Position
	if u.Duration > 0 {
		t.current.DurationMs = int(u.Duration * 1000)
	}
	t.current.Playing = u.Playing
	snapshot := t.current
	listeners := t.copyListeners()
	t.mu.Unlock()

	notify(listeners, snapshot)
	return true
}

// Refresh fetches now-playing from the engine. A fetch started while another
// is in flight cancels it, and a response that is no longer the latest is
// discarded.
func (t *Tracker) Refresh(ctx context.Context) error {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	t.seq++
	seq := t.seq
	t.cancel = cancel
	t.mu.Unlock()
	defer cancel()

	np, err := t.source.NowPlaying(ctx)
	if err != nil {
		t.mu.Lock()
		if seq == t.seq && ctx.Err() == nil {
			t.failed = true
		}
		t.mu.Unlock()
		return err
	}

	playing, playErr := t.source.IsPlaying(ctx)

	t.mu.Lock()
	if seq != t.seq {
		t.mu.Unlock()
		log.Debug().Uint64("seq", seq).Msg("Dropping stale now-playing response")
		return nil
	}
	t.cancel = nil
	t.failed = false
	if np.Empty() {
		t.mu.Unlock()
		return nil
	}
	if playErr != nil {
		np.Playing = t.current.Playing
	} else {
		np.Playing = playing
	}
	t.current = np
	snapshot := t.current
	listeners := t.copyListeners()
	t.mu.Unlock()

	notify(listeners, snapshot)
	return nil
}

func (t *Tracker) refreshInBackground() {
	if err := t.Refresh(context.Background()); err != nil {
		log.Debug().Err(err).Msg("Failed to refresh now playing")
	}
}

// StartPolling refreshes on a fixed interval until StopPolling is called.
func (t *Tracker) StartPolling(interval time.Duration) {
	t.StopPolling()

	if interval <= 0 {
		interval = DefaultPollInterval
	}

	t.mu.Lock()
	t.stopPoll = make(chan struct{})
	t.pollTicker = time.NewTicker(interval)
	ticker := t.pollTicker
	stopCh := t.stopPoll
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				t.refreshInBackground()
			case <-stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

func (t *Tracker) StopPolling() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopPoll != nil {
		close(t.stopPoll)
		t.stopPoll = nil
	}
	t.pollTicker = nil
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

func (t *Tracker) copyListeners() []func(NowPlaying) {
	listeners := make([]func(NowPlaying), len(t.listeners))
	copy(listeners, t.listeners)
	return listeners
}

func notify(listeners []func(NowPlaying), np NowPlaying) {
	for _, fn := range listeners {
		fn(np)
	}
}
