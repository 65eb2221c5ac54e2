package service

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/glebovdev/cider-cli/internal/api"
	"github.com/glebovdev/cider-cli/internal/catalog"
	"github.com/glebovdev/cider-cli/internal/player"
	"github.com/glebovdev/cider-cli/internal/transition"
	"github.com/rs/zerolog/log"
)

// The pending track is catalog metadata for the highlighted track while the
// engine still reports the previous one. It lets the player panel show the
// intended title and artwork before now-playing catches up.

// PendingTrack returns metadata for the intended track, if it differs from
// what the engine reports and its lookup has finished.
func (s *PlaybackService) PendingTrack() (player.NowPlaying, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.pending.TrackID == "" {
		return player.NowPlaying{}, false
	}
	return s.pending, true
}

// OnPendingTrack registers fn to run whenever the pending track is set or
// cleared. A cleared pending track is passed as an empty NowPlaying.
func (s *PlaybackService) OnPendingTrack(fn func(player.NowPlaying)) {
	s.pendingMu.Lock()
	s.pendingListeners = append(s.pendingListeners, fn)
	s.pendingMu.Unlock()
}

func (s *PlaybackService) handleIndicator(st transition.IndicatorState) {
	id := st.Optimistic

	s.pendingMu.Lock()
	same := id != "" && s.pending.TrackID == id
	s.pendingMu.Unlock()
	if same {
		return
	}
	s.clearPending("")

	if id == "" || id == s.tracker.Current().TrackID || s.isClosed() {
		return
	}
	go s.lookupPending(id)
}

func (s *PlaybackService) lookupPending(trackID string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	item, err := s.catalog.TrackInfo(ctx, trackID)
	if err != nil {
		if errors.Is(err, api.ErrSuperseded) || errors.Is(err, context.Canceled) {
			log.Debug().Str("track", trackID).Msg("Track info lookup superseded")
			return
		}
		log.Debug().Err(err).Str("track", trackID).Msg("Track info lookup failed")
		return
	}

	np := pendingNowPlaying(trackID, item)

	s.pendingMu.Lock()
	if s.indicator.Optimistic() != trackID || s.tracker.Current().TrackID == trackID {
		s.pendingMu.Unlock()
		log.Debug().Str("track", trackID).Msg("Dropping stale track info")
		return
	}
	s.pending = np
	listeners := s.copyPendingListeners()
	s.pendingMu.Unlock()

	for _, fn := range listeners {
		fn(np)
	}
}

// clearPending drops the pending track. With a non-empty trackID it only
// does so when that track is the pending one.
func (s *PlaybackService) clearPending(trackID string) {
	s.pendingMu.Lock()
	if s.pending.TrackID == "" || (trackID != "" && s.pending.TrackID != trackID) {
		s.pendingMu.Unlock()
		return
	}
	s.pending = player.NowPlaying{}
	listeners := s.copyPendingListeners()
	s.pendingMu.Unlock()

	for _, fn := range listeners {
		fn(player.NowPlaying{})
	}
}

func (s *PlaybackService) copyPendingListeners() []func(player.NowPlaying) {
	listeners := make([]func(player.NowPlaying), len(s.pendingListeners))
	copy(listeners, s.pendingListeners)
	return listeners
}

func pendingNowPlaying(trackID string, item catalog.Item) player.NowPlaying {
	return player.NowPlaying{
		TrackID:    trackID,
		Name:       item.Name,
		Artist:     item.Artist,
		Album:      item.Album,
		DurationMs: item.DurationMs,
		ArtworkURL: item.ArtworkURL,
	}
}
