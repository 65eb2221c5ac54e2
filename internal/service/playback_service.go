// Package service wires the playback components into the object the UI talks to.
package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/glebovdev/cider-cli/internal/autoplay"
	"github.com/glebovdev/cider-cli/internal/cache"
	"github.com/glebovdev/cider-cli/internal/catalog"
	"github.com/glebovdev/cider-cli/internal/monitor"
	"github.com/glebovdev/cider-cli/internal/notify"
	"github.com/glebovdev/cider-cli/internal/player"
	"github.com/glebovdev/cider-cli/internal/queue"
	"github.com/glebovdev/cider-cli/internal/socket"
	"github.com/glebovdev/cider-cli/internal/station"
	"github.com/glebovdev/cider-cli/internal/transition"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	MsgCannotPlayTrack     = "Cannot play this track"
	MsgAutoPlayUnavailable = "Auto-play unavailable"

	requestTimeout   = 10 * time.Second
	imageLoadTimeout = 15 * time.Second
)

// Engine is everything the service needs from the playback engine.
type Engine interface {
	PlayItem(ctx context.Context, id, kind string) error
	Stop(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	PlayPause(ctx context.Context) error
	AutoPlay(ctx context.Context) (bool, error)
	ToggleAutoPlay(ctx context.Context) error
	Seek(ctx context.Context, position float64) error
	SetVolume(ctx context.Context, v float64) error
	Volume(ctx context.Context) (float64, error)
	NowPlaying(ctx context.Context) (player.NowPlaying, error)
	IsPlaying(ctx context.Context) (bool, error)
	ShuffleMode(ctx context.Context) (player.ShuffleMode, error)
	RepeatMode(ctx context.Context) (player.RepeatMode, error)
	ToggleShuffle(ctx context.Context) error
	ToggleRepeat(ctx context.Context) error
}

// Catalog resolves tracks for containers and seeds auto-play stations.
type Catalog interface {
	autoplay.Catalog
	AlbumTracks(ctx context.Context, albumID string) ([]catalog.Item, error)
	PlaylistTracks(ctx context.Context, playlistID string) ([]catalog.Item, error)
	ArtistTopTracks(ctx context.Context, artistID string) ([]catalog.Item, error)
	TrackInfo(ctx context.Context, trackID string) (catalog.Item, error)
}

type Options struct {
	Debounce       time.Duration
	StationPoll    time.Duration
	StationTimeout time.Duration
	StatusClear    time.Duration
	Throttle       time.Duration
	FallbackPoll   time.Duration
	EndThreshold   float64
	EndPoll        time.Duration
	AutoPlay       bool
	// OnAutoPlayChange is called with the new value after ToggleAutoPlay.
	OnAutoPlayChange func(bool)
	Artwork          *cache.Cache
	QueueOptions     []queue.Option
}

// PlaybackService is the application root: it owns one of each playback
// component and routes every navigation intent to the right one.
type PlaybackService struct {
	engine  Engine
	catalog Catalog
	opts    Options

	queue     *queue.Store
	indicator *transition.Indicator
	debouncer *transition.Debouncer
	stations  *station.Controller
	monitor   *monitor.Monitor
	builder   *autoplay.Builder
	tracker   *player.Tracker
	status    *notify.Status

	http       *resty.Client
	imageCache *cache.Cache

	autoPlay atomic.Bool

	// navMu serializes navigation so each intent sees the queue state the
	// previous one left behind.
	navMu sync.Mutex

	mu        sync.RWMutex
	listeners []func(player.NowPlaying)
	closed    bool

	pendingMu        sync.Mutex
	pending          player.NowPlaying
	pendingListeners []func(player.NowPlaying)
}

func NewPlaybackService(engine Engine, cat Catalog, opts Options) *PlaybackService {
	s := &PlaybackService{
		engine:     engine,
		catalog:    cat,
		opts:       opts,
		queue:      queue.NewStore(opts.QueueOptions...),
		indicator:  transition.NewIndicator(),
		status:     notify.NewStatus(opts.StatusClear),
		tracker:    player.NewTracker(engine, opts.Throttle),
		http:       resty.New().SetTimeout(imageLoadTimeout),
		imageCache: opts.Artwork,
	}
	s.autoPlay.Store(opts.AutoPlay)

	s.debouncer = transition.NewDebouncer(engine, s.indicator, opts.Debounce)
	s.stations = station.NewController(engine, s.status, s.indicator, station.Options{
		PollInterval: opts.StationPoll,
		Timeout:      opts.StationTimeout,
	})
	s.monitor = monitor.New(engine, s.stations.InStation, monitor.Options{
		Threshold:    opts.EndThreshold,
		PollInterval: opts.EndPoll,
	})
	s.builder = autoplay.NewBuilder(cat, engine, s.queue, s.stations)

	s.debouncer.OnComplete(s.handleTransitionComplete)
	s.debouncer.OnError(s.handleTransitionError)
	s.stations.OnConfirmed(func(station.Session) { s.tracker.SetSwitching(false); s.refreshNowPlaying() })
	s.monitor.OnEnded(func() { go s.TrackEnded() })
	s.tracker.OnChange(s.handleNowPlaying)
	s.indicator.OnChange(s.handleIndicator)

	if s.imageCache != nil {
		go func() {
			if err := s.imageCache.CleanExpired(); err != nil {
				log.Debug().Err(err).Msg("Failed to clean expired cache")
			}
		}()
	}

	return s
}

// Start fetches the initial engine state and starts the fallback poll.
func (s *PlaybackService) Start(ctx context.Context) {
	s.disableEngineAutoPlay(ctx)
	if err := s.tracker.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("Initial now-playing fetch failed")
	}
	s.tracker.StartPolling(s.opts.FallbackPoll)
}

// disableEngineAutoPlay turns off the engine's own autoplay. The queue and
// the auto-play station builder decide what follows a track, and engine
// autoplay would keep the end-of-track monitor from ever seeing playback stop.
func (s *PlaybackService) disableEngineAutoPlay(ctx context.Context) {
	on, err := s.engine.AutoPlay(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Engine autoplay state unavailable")
		return
	}
	if !on {
		return
	}
	if err := s.engine.ToggleAutoPlay(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to disable engine autoplay")
		return
	}
	log.Info().Msg("Disabled engine autoplay")
}

// OnNowPlaying registers fn to receive every accepted engine snapshot.
func (s *PlaybackService) OnNowPlaying(fn func(player.NowPlaying)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *PlaybackService) OnStatus(fn func(string)) { s.status.OnChange(fn) }

func (s *PlaybackService) OnIndicator(fn func(transition.IndicatorState)) {
	s.indicator.OnChange(fn)
}

// HandleEvent applies one pushed engine event.
func (s *PlaybackService) HandleEvent(ev socket.Event) {
	switch ev.Type {
	case socket.TypeTimeDidChange:
		u, err := ev.TimeUpdate()
		if err != nil {
			log.Debug().Err(err).Msg("Ignoring time update")
			return
		}
		s.tracker.HandleTimeUpdate(u)
	case socket.TypeNowPlayingDidChange, socket.TypePlaybackStateChanged:
		go s.refreshNowPlaying()
	}
}

// RefreshNowPlaying re-reads the engine snapshot, e.g. after the event
// stream reconnects.
func (s *PlaybackService) RefreshNowPlaying() {
	s.refreshNowPlaying()
}

func (s *PlaybackService) refreshNowPlaying() {
	if err := s.tracker.Refresh(context.Background()); err != nil {
		log.Debug().Err(err).Msg("Failed to refresh now playing")
	}
}

func (s *PlaybackService) handleNowPlaying(np player.NowPlaying) {
	s.monitor.Observe(np.Sample())
	s.stations.Follow(np.TrackID)
	s.clearPending(np.TrackID)

	s.mu.RLock()
	listeners := make([]func(player.NowPlaying), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(np)
	}
}

func (s *PlaybackService) handleTransitionComplete(r transition.Request) {
	log.Debug().Str("track", r.TrackID).Msg("Track change confirmed")
	s.tracker.SetSwitching(false)
	s.refreshNowPlaying()
}

func (s *PlaybackService) handleTransitionError(r transition.Request, err error) {
	log.Warn().Err(err).Str("track", r.TrackID).Msg("Track change failed")
	s.tracker.SetSwitching(false)
	s.status.Flash(MsgCannotPlayTrack)
}

func (s *PlaybackService) modes(ctx context.Context) (player.ShuffleMode, player.RepeatMode) {
	shuffle, err := s.engine.ShuffleMode(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Shuffle mode unavailable, assuming off")
		shuffle = player.ShuffleOff
	}
	repeat, err := s.engine.RepeatMode(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Repeat mode unavailable, assuming off")
		repeat = player.RepeatOff
	}
	return shuffle, repeat
}

func (s *PlaybackService) playIndex(index int) bool {
	track, ok := s.queue.Track(index)
	if !ok {
		return false
	}
	s.queue.UpdateCurrentIndex(index)
	s.tracker.SetSwitching(true)
	s.debouncer.RequestTrackChange(track.ID, track.Kind)
	return true
}

// Next advances to the next track: the station's when in station mode,
// otherwise the queue's. When the queue is exhausted and auto-play is on a
// station seeded from recent tracks takes over.
func (s *PlaybackService) Next() error {
	return s.advance(false)
}

// TrackEnded is called when the current track finished on its own.
func (s *PlaybackService) TrackEnded() error {
	return s.advance(true)
}

func (s *PlaybackService) advance(natural bool) error {
	s.navMu.Lock()
	defer s.navMu.Unlock()

	if s.isClosed() {
		return nil
	}

	if s.stations.InStation() {
		if natural {
			// the engine advances stations by itself
			return nil
		}
		return s.stations.Next()
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	shuffle, repeat := s.modes(ctx)
	if index, ok := s.queue.NextIndex(shuffle, repeat); ok {
		s.playIndex(index)
		return nil
	}

	if !s.autoPlay.Load() || repeat != player.RepeatOff {
		log.Debug().Msg("End of queue")
		return nil
	}

	s.debouncer.Cancel()
	s.tracker.SetSwitching(false)
	if _, err := s.builder.Start(ctx); err != nil {
		s.indicator.Reset()
		s.status.Flash(MsgAutoPlayUnavailable)
		return err
	}
	return nil
}

// Previous goes back in the station or in the queue history.
func (s *PlaybackService) Previous() error {
	s.navMu.Lock()
	defer s.navMu.Unlock()

	if s.isClosed() {
		return nil
	}
	if s.stations.InStation() {
		return s.stations.Previous()
	}
	if index, ok := s.queue.PreviousIndex(); ok {
		s.playIndex(index)
	}
	return nil
}

// PlaySelected plays one item picked in the browser. Songs play on their
// own, stations enter station mode and albums or playlists play from their
// first track.
func (s *PlaybackService) PlaySelected(item catalog.Item) error {
	switch {
	case item.Kind == catalog.KindStation:
		s.navMu.Lock()
		defer s.navMu.Unlock()
		if err := s.stations.Play(item.ID); err != nil {
			return err
		}
		s.debouncer.Cancel()
		s.tracker.SetSwitching(false)
		s.queue.Clear()
		return nil

	case item.Kind.IsSong():
		if !item.Playable {
			s.status.Flash(MsgCannotPlayTrack)
			return errors.Newf("track %s is not playable", item.ID)
		}
		s.navMu.Lock()
		defer s.navMu.Unlock()
		s.stations.Leave()
		s.queue.SetSingleTrack(item)
		s.tracker.SetSwitching(true)
		s.debouncer.RequestTrackChange(item.ID, item.Kind)
		return nil

	case item.Kind.IsContainer():
		tracks, source, err := s.containerTracks(item)
		if err != nil {
			s.status.Flash(MsgCannotPlayTrack)
			return err
		}
		return s.PlayFromList(tracks, 0, source)
	}

	return errors.Newf("cannot play item of kind %s", item.Kind)
}

func (s *PlaybackService) containerTracks(item catalog.Item) ([]catalog.Item, queue.Source, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var (
		tracks []catalog.Item
		kind   queue.SourceKind
		err    error
	)
	switch item.Kind {
	case catalog.KindAlbum:
		kind = queue.SourceAlbum
		tracks, err = s.catalog.AlbumTracks(ctx, item.ID)
	case catalog.KindArtist:
		kind = queue.SourceTopTracks
		tracks, err = s.catalog.ArtistTopTracks(ctx, item.ID)
	default:
		kind = queue.SourcePlaylist
		tracks, err = s.catalog.PlaylistTracks(ctx, item.ID)
	}
	if err != nil {
		return nil, queue.Source{}, errors.Wrapf(err, "failed to load tracks of %s", item.ID)
	}
	return tracks, queue.Source{Kind: kind, ID: item.ID, Name: item.Name}, nil
}

// PlayFromList replaces the queue with items and plays the one at index.
// Unplayable entries are kept in place and skipped when picking the start.
func (s *PlaybackService) PlayFromList(items []catalog.Item, index int, source queue.Source) error {
	start := firstPlayable(items, index)
	if start < 0 {
		s.status.Flash(MsgCannotPlayTrack)
		return errors.New("no playable track in list")
	}

	s.navMu.Lock()
	defer s.navMu.Unlock()

	s.stations.Leave()
	s.queue.SetQueue(items, start, source)

	track, ok := s.queue.CurrentTrack()
	if !ok {
		return errors.New("queue is empty")
	}
	s.tracker.SetSwitching(true)
	s.debouncer.RequestTrackChange(track.ID, track.Kind)
	return nil
}

func firstPlayable(items []catalog.Item, from int) int {
	if from < 0 {
		from = 0
	}
	for i := from; i < len(items); i++ {
		if items[i].Kind.IsSong() && items[i].Playable {
			return i
		}
	}
	return -1
}

// NowPlayingID is the track the UI should highlight: the newest intent,
// falling back to what the engine reports.
func (s *PlaybackService) NowPlayingID() string {
	if id := s.indicator.Optimistic(); id != "" {
		return id
	}
	return s.tracker.Current().TrackID
}

func (s *PlaybackService) Status() string { return s.status.Message() }

func (s *PlaybackService) NowPlaying() player.NowPlaying { return s.tracker.Current() }

func (s *PlaybackService) State() player.State { return s.tracker.State() }

func (s *PlaybackService) Queue() queue.State { return s.queue.Snapshot() }

func (s *PlaybackService) Station() station.Session { return s.stations.Session() }

func (s *PlaybackService) AutoPlay() bool { return s.autoPlay.Load() }

// ToggleAutoPlay flips the local auto-play setting and returns the new value.
func (s *PlaybackService) ToggleAutoPlay() bool {
	for {
		old := s.autoPlay.Load()
		if s.autoPlay.CompareAndSwap(old, !old) {
			if s.opts.OnAutoPlayChange != nil {
				s.opts.OnAutoPlayChange(!old)
			}
			return !old
		}
	}
}

func (s *PlaybackService) ToggleShuffle() (player.ShuffleMode, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := s.engine.ToggleShuffle(ctx); err != nil {
		return player.ShuffleOff, err
	}
	return s.engine.ShuffleMode(ctx)
}

func (s *PlaybackService) ToggleRepeat() (player.RepeatMode, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := s.engine.ToggleRepeat(ctx); err != nil {
		return player.RepeatOff, err
	}
	return s.engine.RepeatMode(ctx)
}

// Modes reads the engine's current shuffle and repeat flags.
func (s *PlaybackService) Modes() (player.ShuffleMode, player.RepeatMode) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return s.modes(ctx)
}

// PlayPause pauses a playing track and resumes a paused one. Known states
// use the explicit commands so a repeated key press cannot flip playback
// back; otherwise the engine toggles.
func (s *PlaybackService) PlayPause() error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var err error
	switch s.tracker.State() {
	case player.StatePlaying:
		err = s.engine.Pause(ctx)
	case player.StatePaused:
		err = s.engine.Play(ctx)
	default:
		err = s.engine.PlayPause(ctx)
	}
	if err != nil {
		return err
	}
	s.refreshNowPlaying()
	return nil
}

// SeekBy moves the playhead by delta seconds, clamped to the track.
func (s *PlaybackService) SeekBy(delta float64) error {
	np := s.tracker.Current()
	if np.Empty() {
		return nil
	}
	pos := np.PositionSec + delta
	if pos < 0 {
		pos = 0
	}
	if d := float64(np.DurationMs) / 1000; d > 0 && pos > d {
		pos = d
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return s.engine.Seek(ctx, pos)
}

// SetVolume sets the engine volume from a 0-100 percentage.
func (s *PlaybackService) SetVolume(percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return s.engine.SetVolume(ctx, float64(percent)/100)
}

// Volume returns the engine volume as a 0-100 percentage.
func (s *PlaybackService) Volume() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	v, err := s.engine.Volume(ctx)
	if err != nil {
		return 0, err
	}
	return int(v*100 + 0.5), nil
}

func (s *PlaybackService) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close stops every timer and background goroutine. Engine playback is left
// as it is.
func (s *PlaybackService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.tracker.StopPolling()
	s.debouncer.Stop()
	s.stations.Close()
	s.monitor.Close()
	s.status.Stop()
}
