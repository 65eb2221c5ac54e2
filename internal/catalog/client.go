package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"
)

const (
	DefaultStorefront = "tw"

	// TrackInfoKey is the request key shared by all track metadata lookups,
	// so a slow response for an old track never lands after a newer one.
	TrackInfoKey = "player-track-info"
)

var (
	ErrNotFound    = errors.New("catalog item not found")
	ErrNoCatalogID = errors.New("library song has no catalog id")
	ErrNoStation   = errors.New("no station for song")
)

// Requester runs a request against the Apple Music API through the engine
// proxy and returns the raw response body. A non-empty key cancels any
// in-flight request made with the same key.
type Requester interface {
	RunAMAPI(ctx context.Context, path, key string) ([]byte, error)
}

// Client fetches browsable items from the Apple Music catalog and library.
type Client struct {
	api        Requester
	storefront string
}

// NewClient creates a catalog client for the given storefront.
func NewClient(api Requester, storefront string) *Client {
	if storefront == "" {
		storefront = DefaultStorefront
	}
	return &Client{api: api, storefront: storefront}
}

type resource struct {
	ID            string                  `json:"id"`
	Type          string                  `json:"type"`
	Attributes    map[string]interface{}  `json:"attributes"`
	Relationships map[string]relationship `json:"relationships"`
}

type relationship struct {
	Data []resource `json:"data"`
}

type envelope struct {
	Data struct {
		Data    []resource              `json:"data"`
		Results map[string]relationship `json:"results"`
	} `json:"data"`
}

type playParams struct {
	ID        string `mapstructure:"id"`
	Kind      string `mapstructure:"kind"`
	CatalogID string `mapstructure:"catalogId"`
}

type attributes struct {
	Name             string      `mapstructure:"name"`
	ArtistName       string      `mapstructure:"artistName"`
	AlbumName        string      `mapstructure:"albumName"`
	CuratorName      string      `mapstructure:"curatorName"`
	DurationInMillis int         `mapstructure:"durationInMillis"`
	PlayParams       *playParams `mapstructure:"playParams"`
	LastModifiedDate string      `mapstructure:"lastModifiedDate"`
	Artwork          struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"artwork"`
}

func decodeAttributes(r resource) (attributes, error) {
	var attrs attributes
	if r.Attributes == nil {
		return attrs, nil
	}
	if err := mapstructure.Decode(r.Attributes, &attrs); err != nil {
		return attrs, errors.Wrapf(err, "failed to decode attributes of %s %s", r.Type, r.ID)
	}
	return attrs, nil
}

// parseItem converts an API resource into an Item. Songs are playable only
// when they carry a positive duration and play parameters; prerelease tracks
// come back without either.
func parseItem(r resource) Item {
	attrs, err := decodeAttributes(r)
	if err != nil {
		log.Debug().Err(err).Msg("Using partially decoded attributes")
	}

	item := Item{
		ID:         r.ID,
		Kind:       Kind(r.Type),
		Name:       attrs.Name,
		Artist:     attrs.ArtistName,
		Album:      attrs.AlbumName,
		DurationMs: attrs.DurationInMillis,
		Playable:   true,
		ArtworkURL: attrs.Artwork.URL,
	}
	if item.Artist == "" {
		item.Artist = attrs.CuratorName
	}
	if attrs.PlayParams != nil {
		item.CatalogID = attrs.PlayParams.CatalogID
	}
	if item.Kind.IsSong() {
		item.Playable = attrs.DurationInMillis > 0 && attrs.PlayParams != nil
	}
	return item
}

func parseItems(rs []resource) []Item {
	items := make([]Item, 0, len(rs))
	for _, r := range rs {
		items = append(items, parseItem(r))
	}
	return items
}

func (c *Client) fetch(ctx context.Context, path, key string) (*envelope, error) {
	body, err := c.api.RunAMAPI(ctx, path, key)
	if err != nil {
		return nil, err
	}

	var env envelope
	if len(body) == 0 {
		return &env, nil
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Wrapf(err, "failed to parse response for %s", path)
	}
	return &env, nil
}

func (c *Client) catalogPath(format string, args ...interface{}) string {
	return "/v1/catalog/" + c.storefront + fmt.Sprintf(format, args...)
}

// Search returns artists, then albums, then songs matching term, capped at limit.
func (c *Client) Search(ctx context.Context, term string, limit int) ([]Item, error) {
	path := c.catalogPath("/search?term=%s&types=songs,albums,artists&limit=%d", url.QueryEscape(term), limit)
	env, err := c.fetch(ctx, path, "")
	if err != nil {
		return nil, errors.Wrap(err, "search failed")
	}

	var items []Item
	for _, group := range []string{"artists", "albums", "songs"} {
		for _, r := range env.Data.Results[group].Data {
			if len(items) >= limit {
				return items, nil
			}
			items = append(items, parseItem(r))
		}
	}
	return items, nil
}

// RecentlyPlayed returns the user's recently played containers and songs,
// keeping the API order and dropping repeated ids.
func (c *Client) RecentlyPlayed(ctx context.Context, limit int) ([]Item, error) {
	env, err := c.fetch(ctx, fmt.Sprintf("/v1/me/recent/played?limit=%d", limit), "")
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch recently played")
	}

	seen := make(map[string]bool)
	var items []Item
	for _, r := range env.Data.Data {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		items = append(items, parseItem(r))
	}
	return items, nil
}

// LibraryPlaylists returns the user's playlists, most recently modified first.
func (c *Client) LibraryPlaylists(ctx context.Context, limit int) ([]Item, error) {
	env, err := c.fetch(ctx, fmt.Sprintf("/v1/me/library/playlists?limit=%d", limit), "")
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch library playlists")
	}

	type dated struct {
		item     Item
		modified time.Time
	}
	list := make([]dated, 0, len(env.Data.Data))
	for _, r := range env.Data.Data {
		attrs, err := decodeAttributes(r)
		if err != nil {
			log.Debug().Err(err).Msg("Sorting playlist without modification date")
		}
		modified, _ := time.Parse(time.RFC3339, attrs.LastModifiedDate)
		list = append(list, dated{item: parseItem(r), modified: modified})
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].modified.After(list[j].modified)
	})

	items := make([]Item, len(list))
	for i, d := range list {
		items[i] = d.item
	}
	return items, nil
}

// AlbumTracks returns the tracks of a catalog album.
func (c *Client) AlbumTracks(ctx context.Context, albumID string) ([]Item, error) {
	env, err := c.fetch(ctx, c.catalogPath("/albums/%s", albumID), "")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch album %s", albumID)
	}
	if len(env.Data.Data) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "album %s", albumID)
	}
	return parseItems(env.Data.Data[0].Relationships["tracks"].Data), nil
}

// PlaylistTracks returns the tracks of a library ("p." ids) or catalog playlist.
func (c *Client) PlaylistTracks(ctx context.Context, playlistID string) ([]Item, error) {
	if IsLibraryPlaylistID(playlistID) {
		env, err := c.fetch(ctx, fmt.Sprintf("/v1/me/library/playlists/%s/tracks", playlistID), "")
		if err != nil {
			return nil, errors.Wrapf(err, "failed to fetch playlist %s", playlistID)
		}
		return parseItems(env.Data.Data), nil
	}

	env, err := c.fetch(ctx, c.catalogPath("/playlists/%s", playlistID), "")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch playlist %s", playlistID)
	}
	if len(env.Data.Data) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "playlist %s", playlistID)
	}
	return parseItems(env.Data.Data[0].Relationships["tracks"].Data), nil
}

// ArtistTopTracks returns up to 20 of an artist's most popular songs.
func (c *Client) ArtistTopTracks(ctx context.Context, artistID string) ([]Item, error) {
	env, err := c.fetch(ctx, c.catalogPath("/artists/%s/songs?limit=20", artistID), "")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch top tracks for artist %s", artistID)
	}
	return parseItems(env.Data.Data), nil
}

// ArtistAlbums returns an artist's albums.
func (c *Client) ArtistAlbums(ctx context.Context, artistID string) ([]Item, error) {
	env, err := c.fetch(ctx, c.catalogPath("/artists/%s/albums?limit=100", artistID), "")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch albums for artist %s", artistID)
	}
	return parseItems(env.Data.Data), nil
}

// TrackInfo looks up a song by id. Lookups share TrackInfoKey, so starting a
// new one cancels the previous.
func (c *Client) TrackInfo(ctx context.Context, trackID string) (Item, error) {
	path := c.catalogPath("/songs/%s", trackID)
	if IsLibraryID(trackID) {
		path = fmt.Sprintf("/v1/me/library/songs/%s", trackID)
	}

	env, err := c.fetch(ctx, path, TrackInfoKey)
	if err != nil {
		return Item{}, errors.Wrapf(err, "failed to fetch track %s", trackID)
	}
	if len(env.Data.Data) == 0 {
		return Item{}, errors.Wrapf(ErrNotFound, "track %s", trackID)
	}
	return parseItem(env.Data.Data[0]), nil
}

// ResolveCatalogID maps a library song id to its catalog id. Catalog ids are
// returned unchanged.
func (c *Client) ResolveCatalogID(ctx context.Context, songID string) (string, error) {
	if !IsLibraryID(songID) {
		return songID, nil
	}

	env, err := c.fetch(ctx, fmt.Sprintf("/v1/me/library/songs/%s", songID), "")
	if err != nil {
		return "", errors.Wrapf(err, "failed to fetch library song %s", songID)
	}
	if len(env.Data.Data) == 0 {
		return "", errors.Wrapf(ErrNotFound, "library song %s", songID)
	}

	attrs, err := decodeAttributes(env.Data.Data[0])
	if err != nil {
		return "", err
	}
	if attrs.PlayParams == nil {
		return "", errors.Wrapf(ErrNoCatalogID, "library song %s", songID)
	}
	if attrs.PlayParams.CatalogID != "" {
		return attrs.PlayParams.CatalogID, nil
	}
	if attrs.PlayParams.ID != "" {
		return attrs.PlayParams.ID, nil
	}
	return "", errors.Wrapf(ErrNoCatalogID, "library song %s", songID)
}

// StationForSong returns the id of the catalog station seeded by a song.
func (c *Client) StationForSong(ctx context.Context, catalogSongID string) (string, error) {
	env, err := c.fetch(ctx, c.catalogPath("/songs/%s/station", catalogSongID), "")
	if err != nil {
		return "", errors.Wrapf(err, "failed to fetch station for song %s", catalogSongID)
	}
	if len(env.Data.Data) == 0 || env.Data.Data[0].ID == "" {
		return "", errors.Wrapf(ErrNoStation, "song %s", catalogSongID)
	}
	return env.Data.Data[0].ID, nil
}

// recommendationShares is the target mix of a recommendations list. The
// recommendations endpoint only returns containers, never single songs.
var recommendationShares = []struct {
	kind  Kind
	share float64
}{
	{KindStation, 0.2},
	{KindPlaylist, 0.3},
	{KindAlbum, 0.5},
}

// Recommendations returns up to limit personal recommendations, deduplicated
// and balanced across stations, playlists and albums.
func (c *Client) Recommendations(ctx context.Context, limit int) ([]Item, error) {
	env, err := c.fetch(ctx, fmt.Sprintf("/v1/me/recommendations?limit=%d", limit), "")
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch recommendations")
	}

	seen := make(map[string]bool)
	byKind := make(map[Kind][]Item)
	for _, rec := range env.Data.Data {
		for _, r := range rec.Relationships["contents"].Data {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			item := parseItem(r)
			byKind[item.Kind] = append(byKind[item.Kind], item)
		}
	}

	return balance(byKind, limit), nil
}

func balance(byKind map[Kind][]Item, limit int) []Item {
	quotas := make(map[Kind]int, len(recommendationShares))
	allocated := 0
	for _, s := range recommendationShares {
		quotas[s.kind] = int(float64(limit) * s.share)
		allocated += quotas[s.kind]
	}

	// Hand the rounding remainder to the kinds with the largest fractions.
	order := make([]int, len(recommendationShares))
	for i := range order {
		order[i] = i
	}
	frac := func(i int) float64 {
		v := float64(limit) * recommendationShares[i].share
		return v - float64(int(v))
	}
	sort.SliceStable(order, func(a, b int) bool { return frac(order[a]) > frac(order[b]) })
	for i := 0; i < limit-allocated && i < len(order); i++ {
		quotas[recommendationShares[order[i]].kind]++
	}

	// Give quota a kind cannot fill to kinds with spare items, larger shares first.
	short := 0
	for _, s := range recommendationShares {
		if have := len(byKind[s.kind]); have < quotas[s.kind] {
			short += quotas[s.kind] - have
			quotas[s.kind] = have
		}
	}
	byShare := make([]int, len(recommendationShares))
	copy(byShare, order)
	sort.SliceStable(byShare, func(a, b int) bool {
		return recommendationShares[byShare[a]].share > recommendationShares[byShare[b]].share
	})
	for _, i := range byShare {
		if short == 0 {
			break
		}
		kind := recommendationShares[i].kind
		spare := len(byKind[kind]) - quotas[kind]
		if spare <= 0 {
			continue
		}
		if spare > short {
			spare = short
		}
		quotas[kind] += spare
		short -= spare
	}

	var items []Item
	for _, s := range recommendationShares {
		items = append(items, byKind[s.kind][:quotas[s.kind]]...)
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
