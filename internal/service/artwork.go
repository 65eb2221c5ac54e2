package service

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/cockroachdb/errors"
	"github.com/glebovdev/cider-cli/internal/catalog"
	"github.com/rs/zerolog/log"
)

const artworkSize = 300

// LoadArtwork fetches the cover for an artwork URL template, going through
// the disk cache when one is configured.
func (s *PlaybackService) LoadArtwork(template string) (image.Image, error) {
	url := catalog.ArtworkURL(template, artworkSize)
	if url == "" {
		return nil, errors.New("no artwork")
	}

	if s.imageCache != nil {
		if img := s.imageCache.GetImage(url); img != nil {
			log.Debug().Str("url", url).Msg("Artwork loaded from cache")
			return img, nil
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), imageLoadTimeout)
	defer cancel()

	resp, err := s.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch artwork")
	}
	if resp.IsError() {
		return nil, errors.Newf("artwork request failed with status %d", resp.StatusCode())
	}

	data := resp.Body()
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode artwork")
	}

	if s.imageCache != nil {
		go func() {
			if err := s.imageCache.Put(url, data); err != nil {
				log.Debug().Err(err).Str("url", url).Msg("Failed to cache artwork")
			}
		}()
	}

	return img, nil
}
