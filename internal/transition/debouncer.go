package transition

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/glebovdev/cider-cli/internal/catalog"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultQuiet   = 500 * time.Millisecond
	commandTimeout = 15 * time.Second
)

// Player is the engine command the debouncer issues.
type Player interface {
	PlayItem(ctx context.Context, id, kind string) error
}

// Request is one track-change intent.
type Request struct {
	ID        uuid.UUID
	TrackID   string
	Kind      catalog.Kind
	CreatedAt time.Time
}

// Debouncer collapses rapid track-change requests into one PlayItem call for
// the last of them, issued once no new request arrived for the quiet period.
// The indicator moves to every request immediately.
type Debouncer struct {
	engine    Player
	indicator *Indicator
	quiet     time.Duration

	mu         sync.Mutex
	pending    *Request
	timer      *time.Timer
	inflight   uuid.UUID
	cancel     context.CancelFunc
	stopped    bool
	onComplete func(Request)
	onError    func(Request, error)
}

func NewDebouncer(engine Player, indicator *Indicator, quiet time.Duration) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	return &Debouncer{
		engine:    engine,
		indicator: indicator,
		quiet:     quiet,
	}
}

// OnComplete sets the callback run after the engine accepts a command.
func (d *Debouncer) OnComplete(fn func(Request)) {
	d.mu.Lock()
	d.onComplete = fn
	d.mu.Unlock()
}

// OnError sets the callback run when a command fails.
func (d *Debouncer) OnError(fn func(Request, error)) {
	d.mu.Lock()
	d.onError = fn
	d.mu.Unlock()
}

// RequestTrackChange shows trackID as playing right away and schedules the
// engine command, replacing any command not yet sent.
func (d *Debouncer) RequestTrackChange(trackID string, kind catalog.Kind) Request {
	req := Request{
		ID:        uuid.New(),
		TrackID:   trackID,
		Kind:      kind,
		CreatedAt: time.Now(),
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return req
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = &req
	id := req.ID
	d.timer = time.AfterFunc(d.quiet, func() { d.fire(id) })
	// Under the lock so the indicator and the pending request agree on the
	// latest intent.
	d.indicator.Intend(trackID)
	d.mu.Unlock()

	return req
}

// Pending returns the scheduled request that has not been sent yet.
func (d *Debouncer) Pending() (Request, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return Request{}, false
	}
	return *d.pending, true
}

// Busy reports whether a request is scheduled or its command is in flight.
func (d *Debouncer) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil || d.inflight != uuid.Nil
}

func (d *Debouncer) fire(id uuid.UUID) {
	d.mu.Lock()
	if d.stopped || d.pending == nil || d.pending.ID != id {
		d.mu.Unlock()
		return
	}
	req := *d.pending
	d.pending = nil
	d.timer = nil
	if d.cancel != nil {
		d.cancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	d.cancel = cancel
	d.inflight = req.ID
	d.mu.Unlock()

	err := d.engine.PlayItem(ctx, req.TrackID, string(req.Kind))
	cancel()

	d.mu.Lock()
	if d.inflight != req.ID {
		d.mu.Unlock()
		log.Debug().Str("track", req.TrackID).Msg("Track change superseded while in flight")
		return
	}
	d.inflight = uuid.Nil
	d.cancel = nil
	onComplete, onError := d.onComplete, d.onError
	d.mu.Unlock()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Warn().Err(err).Str("track", req.TrackID).Msg("Track change failed")
		if onError != nil {
			onError(req, err)
		}
		return
	}

	d.indicator.Confirm(req.TrackID)
	if onComplete != nil {
		onComplete(req)
	}
}

// Cancel drops the scheduled request and aborts a command in flight. The
// indicator is left as is.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

func (d *Debouncer) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.inflight = uuid.Nil
}

// Stop cancels everything and ignores later requests.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.cancelLocked()
}
