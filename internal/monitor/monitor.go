// Package monitor detects the natural end of a track.
//
// Progress samples alone cannot tell "finished" from "paused near the end",
// so once a track is nearly done the monitor polls the engine's is-playing
// flag and reports the end when it goes from playing to not playing.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/glebovdev/cider-cli/internal/player"
	"github.com/rs/zerolog/log"
)

const (
	DefaultThreshold    = 0.99
	DefaultPollInterval = 250 * time.Millisecond
	DefaultGiveUp       = 30 * time.Second
)

type Engine interface {
	IsPlaying(ctx context.Context) (bool, error)
}

type Options struct {
	Threshold    float64
	PollInterval time.Duration
	GiveUp       time.Duration
}

type Monitor struct {
	engine    Engine
	inStation func() bool
	opts      Options

	mu          sync.Mutex
	armed       bool
	trackID     string
	lastPlaying bool
	ended       string
	gen         uint64
	cancel      context.CancelFunc
	closed      bool
	onEnded     func()
	wg          sync.WaitGroup
}

// New creates a monitor. inStation reports whether station mode is active;
// the engine advances stations itself, so the monitor stays idle then.
func New(engine Engine, inStation func() bool, opts Options) *Monitor {
	if opts.Threshold <= 0 || opts.Threshold > 1 {
		opts.Threshold = DefaultThreshold
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.GiveUp <= 0 {
		opts.GiveUp = DefaultGiveUp
	}
	if inStation == nil {
		inStation = func() bool { return false }
	}
	return &Monitor{
		engine:    engine,
		inStation: inStation,
		opts:      opts,
	}
}

// OnEnded sets the callback fired once per detected track end.
func (m *Monitor) OnEnded(fn func()) {
	m.mu.Lock()
	m.onEnded = fn
	m.mu.Unlock()
}

func (m *Monitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

// Observe feeds one progress sample to the monitor.
func (m *Monitor) Observe(s player.Sample) {
	inStation := m.inStation()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if inStation {
		m.disarmLocked()
		return
	}
	if s.Duration <= 0 || s.TrackID == "" {
		return
	}

	nearEnd := s.Progress() >= m.opts.Threshold
	if s.TrackID != m.ended || !nearEnd {
		m.ended = ""
	}

	if m.armed {
		if s.TrackID != m.trackID || !nearEnd {
			m.disarmLocked()
		}
		return
	}

	if nearEnd && m.ended == "" {
		m.armLocked(s.TrackID, s.Playing)
	}
}

func (m *Monitor) armLocked(trackID string, playing bool) {
	m.gen++
	gen := m.gen
	m.armed = true
	m.trackID = trackID
	m.lastPlaying = playing

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.GiveUp)
	m.cancel = cancel

	log.Debug().Str("track", trackID).Msg("Track near end, watching playback state")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.poll(ctx, gen)
	}()
}

func (m *Monitor) disarmLocked() {
	if !m.armed {
		return
	}
	m.gen++
	m.armed = false
	m.trackID = ""
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Monitor) poll(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			if gen == m.gen {
				m.disarmLocked()
			}
			m.mu.Unlock()
			return
		case <-ticker.C:
		}

		playing, err := m.engine.IsPlaying(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("is-playing poll failed")
			continue
		}

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		if m.lastPlaying && !playing {
			m.ended = m.trackID
			m.disarmLocked()
			onEnded := m.onEnded
			m.mu.Unlock()

			log.Debug().Msg("Track ended")
			if onEnded != nil {
				onEnded()
			}
			return
		}
		m.lastPlaying = playing
		m.mu.Unlock()
	}
}

// Close stops any polling and ignores later samples.
func (m *Monitor) Close() {
	m.mu.Lock()
	m.closed = true
	m.disarmLocked()
	m.mu.Unlock()

	m.wg.Wait()
}
