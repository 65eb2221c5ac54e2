// Package autoplay keeps music going after the queue runs out by starting a
// station seeded from the most recently played track.
package autoplay

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/glebovdev/cider-cli/internal/catalog"
	"github.com/rs/zerolog/log"
)

var ErrNoRecentTrack = errors.New("no recently played track")

type Catalog interface {
	ResolveCatalogID(ctx context.Context, songID string) (string, error)
	StationForSong(ctx context.Context, catalogSongID string) (string, error)
}

type Engine interface {
	Stop(ctx context.Context) error
}

type Queue interface {
	RecentlyPlayed(n int) []catalog.Item
	Clear()
}

// StationPlayer starts playback of a station.
type StationPlayer interface {
	Play(stationID string) error
}

type Builder struct {
	catalog  Catalog
	engine   Engine
	queue    Queue
	stations StationPlayer
}

func NewBuilder(c Catalog, engine Engine, q Queue, stations StationPlayer) *Builder {
	return &Builder{
		catalog:  c,
		engine:   engine,
		queue:    q,
		stations: stations,
	}
}

// Start seeds a station from the newest played track and starts it. On any
// failure playback is stopped and the queue cleared, so the player never
// sits at an undefined position, and the error is returned.
func (b *Builder) Start(ctx context.Context) (string, error) {
	stationID, err := b.start(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Auto-play failed")
		if stopErr := b.engine.Stop(ctx); stopErr != nil {
			log.Debug().Err(stopErr).Msg("Stop after auto-play failure failed")
		}
		b.queue.Clear()
		return "", err
	}
	return stationID, nil
}

func (b *Builder) start(ctx context.Context) (string, error) {
	recent := b.queue.RecentlyPlayed(1)
	if len(recent) == 0 {
		return "", ErrNoRecentTrack
	}
	seed := recent[0]

	songID, err := b.catalog.ResolveCatalogID(ctx, seed.ID)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve %s", seed.ID)
	}

	stationID, err := b.catalog.StationForSong(ctx, songID)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create station from %s", songID)
	}

	b.queue.Clear()

	if err := b.stations.Play(stationID); err != nil {
		return "", errors.Wrapf(err, "failed to start station %s", stationID)
	}

	log.Info().Str("seed", seed.ID).Str("station", stationID).Msg("Auto-play station started")
	return stationID, nil
}
