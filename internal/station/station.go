// Package station runs station playback. The engine picks station tracks
// itself and only reveals them through now-playing, so every station
// operation holds a single-flight lock until a poll sees the new track.
package station

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/glebovdev/cider-cli/internal/catalog"
	"github.com/glebovdev/cider-cli/internal/player"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultTimeout      = 10 * time.Second

	MsgSwitching = "Switching..."
	MsgTimeout   = "Timeout - track unchanged"
	MsgFailed    = "Cannot play this station"
)

// ErrLocked is returned for any station operation attempted while another
// one is still waiting for confirmation.
var ErrLocked = errors.New("station operation in progress")

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseEntering
	PhaseSwitching
	PhaseNavigating
	PhaseUnlocked
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseEntering:
		return "ENTERING"
	case PhaseSwitching:
		return "SWITCHING"
	case PhaseNavigating:
		return "NAVIGATING"
	case PhaseUnlocked:
		return "UNLOCKED"
	default:
		return "UNKNOWN"
	}
}

// Engine is the subset of the playback engine used in station mode.
type Engine interface {
	Stop(ctx context.Context) error
	PlayItem(ctx context.Context, id, kind string) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	NowPlaying(ctx context.Context) (player.NowPlaying, error)
}

// Status shows transient messages to the user.
type Status interface {
	Set(msg string)
	Flash(msg string)
	ClearIf(msg string)
}

// Indicator receives the track the engine settled on.
type Indicator interface {
	Adopt(id string)
}

// Session is a copy of the current station state.
type Session struct {
	Locked           bool
	Phase            Phase
	StationID        string
	ConfirmedTrackID string
	PollDeadline     time.Time
}

type Options struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// Controller serializes station operations. Operations return immediately;
// the engine command and confirmation poll run in the background.
type Controller struct {
	engine       Engine
	status       Status
	indicator    Indicator
	pollInterval time.Duration
	timeout      time.Duration

	mu          sync.Mutex
	session     Session
	gen         uint64
	cancel      context.CancelFunc
	closed      bool
	onConfirmed func(Session)
	wg          sync.WaitGroup
}

func NewController(engine Engine, status Status, indicator Indicator, opts Options) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Controller{
		engine:       engine,
		status:       status,
		indicator:    indicator,
		pollInterval: opts.PollInterval,
		timeout:      opts.Timeout,
	}
}

// OnConfirmed sets a callback run each time a station operation is confirmed.
func (c *Controller) OnConfirmed(fn func(Session)) {
	c.mu.Lock()
	c.onConfirmed = fn
	c.mu.Unlock()
}

func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Controller) Locked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Locked
}

// InStation reports whether station mode is active.
func (c *Controller) InStation() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.StationID != ""
}

type operation struct {
	gen      uint64
	phase    Phase
	baseline bool
	// known is the last confirmed track, used as the baseline when the
	// pre-command read fails.
	known    string
	stop     bool
	command  func(ctx context.Context) error
}

// Play enters stationID. A different station (or none) stops playback and
// plays the station fresh; the current station is re-sent and confirmed
// against the track playing before the command.
func (c *Controller) Play(stationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLocked(); err != nil {
		return err
	}

	op := operation{
		command: func(ctx context.Context) error {
			return c.engine.PlayItem(ctx, stationID, string(catalog.KindStation))
		},
	}
	switch c.session.StationID {
	case "":
		op.phase = PhaseEntering
		op.stop = true
	case stationID:
		op.phase = PhaseNavigating
		op.baseline = true
	default:
		op.phase = PhaseSwitching
		op.stop = true
	}

	if op.stop {
		c.session.ConfirmedTrackID = ""
	}
	c.session.StationID = stationID
	c.startLocked(op)
	return nil
}

// Next skips to the station's next track.
func (c *Controller) Next() error {
	return c.navigate(c.engine.Next)
}

// Previous returns to the station's previous track.
func (c *Controller) Previous() error {
	return c.navigate(c.engine.Previous)
}

func (c *Controller) navigate(command func(ctx context.Context) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLocked(); err != nil {
		return err
	}
	if c.session.StationID == "" {
		return errors.New("not in station mode")
	}
	c.startLocked(operation{phase: PhaseNavigating, baseline: true, command: command})
	return nil
}

func (c *Controller) checkLocked() error {
	if c.closed {
		return errors.New("station controller closed")
	}
	if c.session.Locked {
		c.status.Flash(MsgSwitching)
		return ErrLocked
	}
	return nil
}

func (c *Controller) startLocked(op operation) {
	c.gen++
	op.gen = c.gen
	if op.baseline {
		op.known = c.session.ConfirmedTrackID
	}
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	c.cancel = cancel

	c.session.Locked = true
	c.session.Phase = op.phase
	c.session.PollDeadline = time.Now().Add(c.timeout)

	log.Debug().
		Str("station", c.session.StationID).
		Str("phase", op.phase.String()).
		Msg("Station operation started")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.run(ctx, op)
	}()
}

func (c *Controller) run(ctx context.Context, op operation) {
	baseline := ""
	if op.baseline {
		baseline = op.known
		np, err := c.engine.NowPlaying(ctx)
		switch {
		case err != nil:
			log.Debug().Err(err).Str("baseline", baseline).Msg("Baseline read failed, using confirmed track")
		case np.TrackID != "":
			baseline = np.TrackID
		}
	}

	if op.stop {
		if err := c.engine.Stop(ctx); err != nil {
			log.Debug().Err(err).Msg("Stop before station play failed")
		}
	}

	if err := op.command(ctx); err != nil {
		if c.handleDone(ctx, op.gen) {
			return
		}
		log.Warn().Err(err).Msg("Station command failed")
		if c.unlock(op.gen) {
			c.status.Flash(MsgFailed)
		}
		return
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.handleDone(ctx, op.gen)
			return
		case <-ticker.C:
		}

		np, err := c.engine.NowPlaying(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Debug().Err(err).Msg("Station poll failed")
		}
		if err == nil && np.TrackID != "" && np.TrackID != baseline {
			c.confirm(op.gen, np.TrackID)
			return
		}
		if !c.current(op.gen) {
			return
		}
		c.status.Set(MsgSwitching)
	}
}

// handleDone reports whether ctx has ended, and releases the lock with a
// timeout message if the deadline passed.
func (c *Controller) handleDone(ctx context.Context, gen uint64) bool {
	switch ctx.Err() {
	case nil:
		return false
	case context.DeadlineExceeded:
		if c.unlock(gen) {
			log.Warn().Msg("Station confirmation timed out")
			c.status.Flash(MsgTimeout)
		}
	}
	return true
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

func (c *Controller) unlock(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.session.Locked = false
	c.session.Phase = PhaseUnlocked
	c.cancel = nil
	return true
}

func (c *Controller) confirm(gen uint64, trackID string) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.session.Locked = false
	c.session.Phase = PhaseUnlocked
	c.session.ConfirmedTrackID = trackID
	c.cancel = nil
	session := c.session
	onConfirmed := c.onConfirmed
	c.mu.Unlock()

	log.Debug().Str("station", session.StationID).Str("track", trackID).Msg("Station track confirmed")

	c.indicator.Adopt(trackID)
	c.status.ClearIf(MsgSwitching)
	if onConfirmed != nil {
		onConfirmed(session)
	}
}

// Follow records a track the engine moved to by itself, such as the next
// station pick after a song ended. It is ignored outside station mode and
// while an operation is in flight, since then the poll decides the track.
func (c *Controller) Follow(trackID string) bool {
	c.mu.Lock()
	if c.closed || trackID == "" || c.session.StationID == "" || c.session.Locked {
		c.mu.Unlock()
		return false
	}
	changed := c.session.ConfirmedTrackID != trackID
	c.session.ConfirmedTrackID = trackID
	c.mu.Unlock()

	if changed {
		log.Debug().Str("track", trackID).Msg("Station advanced by engine")
	}
	c.indicator.Adopt(trackID)
	return true
}

// Leave ends station mode and abandons any operation in progress.
func (c *Controller) Leave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Controller) resetLocked() {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.session = Session{}
}

// Close abandons any operation in progress, waits for it to exit and
// rejects later operations.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.resetLocked()
	c.mu.Unlock()

	c.wg.Wait()
}
