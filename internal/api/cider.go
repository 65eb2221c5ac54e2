// Package api provides the HTTP client for the Cider playback engine.
package api

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/glebovdev/cider-cli/internal/player"
	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL = "http://localhost:10767"
	requestTimeout = 10 * time.Second

	playbackPath = "/api/v1/playback"
	amapiPath    = "/api/v1/amapi/run-v3"

	// PlayItemKey is shared by all play-item commands so only the newest
	// one can complete.
	PlayItemKey = "play-item"
)

// ErrSuperseded is returned by a keyed request that was replaced by a newer
// request with the same key before it finished.
var ErrSuperseded = errors.New("request superseded")

// CiderClient is the HTTP client for the engine's local RPC interface.
type CiderClient struct {
	client *resty.Client

	mu       sync.Mutex
	inflight map[string]*keyedRequest
	gen      uint64
}

type keyedRequest struct {
	gen    uint64
	cancel context.CancelFunc
}

// NewCiderClient creates a client for the engine at baseURL. A non-empty
// token is sent in the apptoken header on every request.
func NewCiderClient(baseURL, token string) *CiderClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		client.SetHeader("apptoken", token)
	}
	return &CiderClient{
		client:   client,
		inflight: make(map[string]*keyedRequest),
	}
}

// begin registers a keyed request, cancelling the previous one with the
// same key. The returned finish func reports whether this request is still
// the latest for its key and releases it.
func (c *CiderClient) begin(ctx context.Context, key string) (context.Context, func() bool) {
	if key == "" {
		return ctx, func() bool { return true }
	}

	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if prev, ok := c.inflight[key]; ok {
		prev.cancel()
	}
	c.gen++
	req := &keyedRequest{gen: c.gen, cancel: cancel}
	c.inflight[key] = req
	c.mu.Unlock()

	return ctx, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		cancel()
		cur, ok := c.inflight[key]
		if !ok || cur.gen != req.gen {
			return false
		}
		delete(c.inflight, key)
		return true
	}
}

func (c *CiderClient) do(ctx context.Context, method, path string, body interface{}, key string) ([]byte, error) {
	ctx, finish := c.begin(ctx, key)

	req := c.client.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)

	if !finish() {
		return nil, errors.Wrapf(ErrSuperseded, "%s %s", method, path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to call %s", path)
	}
	if !resp.IsSuccess() {
		return nil, errors.Newf("engine returned status %d for %s: %s", resp.StatusCode(), path, resp.Status())
	}
	return resp.Body(), nil
}

func (c *CiderClient) command(ctx context.Context, name string, body interface{}) error {
	_, err := c.do(ctx, resty.MethodPost, playbackPath+"/"+name, body, "")
	return err
}

func (c *CiderClient) query(ctx context.Context, name string, out interface{}) error {
	body, err := c.do(ctx, resty.MethodGet, playbackPath+"/"+name, nil, "")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "failed to parse %s response", name)
	}
	return nil
}

func (c *CiderClient) Play(ctx context.Context) error      { return c.command(ctx, "play", nil) }
func (c *CiderClient) Pause(ctx context.Context) error     { return c.command(ctx, "pause", nil) }
func (c *CiderClient) PlayPause(ctx context.Context) error { return c.command(ctx, "playpause", nil) }
func (c *CiderClient) Stop(ctx context.Context) error      { return c.command(ctx, "stop", nil) }
func (c *CiderClient) Next(ctx context.Context) error      { return c.command(ctx, "next", nil) }
func (c *CiderClient) Previous(ctx context.Context) error  { return c.command(ctx, "previous", nil) }

func (c *CiderClient) ToggleShuffle(ctx context.Context) error {
	return c.command(ctx, "toggle-shuffle", nil)
}

func (c *CiderClient) ToggleRepeat(ctx context.Context) error {
	return c.command(ctx, "toggle-repeat", nil)
}

func (c *CiderClient) ToggleAutoPlay(ctx context.Context) error {
	return c.command(ctx, "toggle-autoplay", nil)
}

// PlayItem asks the engine to play a song, station or library song. Only the
// newest PlayItem call can succeed; older ones in flight are cancelled and
// return ErrSuperseded.
func (c *CiderClient) PlayItem(ctx context.Context, id, kind string) error {
	body := map[string]string{"id": id, "type": kind}
	_, err := c.do(ctx, resty.MethodPost, playbackPath+"/play-item", body, PlayItemKey)
	return err
}

// Seek moves playback to position seconds.
func (c *CiderClient) Seek(ctx context.Context, position float64) error {
	if position < 0 {
		position = 0
	}
	return c.command(ctx, "seek", map[string]float64{"position": position})
}

// SetVolume sets the engine volume; v is clamped to [0, 1].
func (c *CiderClient) SetVolume(ctx context.Context, v float64) error {
	v = math.Max(0, math.Min(1, v))
	return c.command(ctx, "volume", map[string]float64{"volume": v})
}

func (c *CiderClient) Volume(ctx context.Context) (float64, error) {
	var out struct {
		Volume float64 `json:"volume"`
	}
	if err := c.query(ctx, "volume", &out); err != nil {
		return 0, err
	}
	return out.Volume, nil
}

type nowPlayingInfo struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	ArtistName          string  `json:"artistName"`
	AlbumName           string  `json:"albumName"`
	DurationInMillis    int     `json:"durationInMillis"`
	CurrentPlaybackTime float64 `json:"currentPlaybackTime"`
	PlayParams          struct {
		ID string `json:"id"`
	} `json:"playParams"`
	Artwork struct {
		URL string `json:"url"`
	} `json:"artwork"`
}

// NowPlaying returns the engine's current track. Playing is left false; the
// engine reports it through IsPlaying and pushed time updates.
func (c *CiderClient) NowPlaying(ctx context.Context) (player.NowPlaying, error) {
	var out struct {
		Info *nowPlayingInfo `json:"info"`
	}
	if err := c.query(ctx, "now-playing", &out); err != nil {
		return player.NowPlaying{}, err
	}
	if out.Info == nil {
		return player.NowPlaying{}, nil
	}

	info := out.Info
	trackID := info.PlayParams.ID
	if trackID == "" {
		trackID = info.ID
	}
	return player.NowPlaying{
		TrackID:     trackID,
		Name:        info.Name,
		Artist:      info.ArtistName,
		Album:       info.AlbumName,
		DurationMs:  info.DurationInMillis,
		PositionSec: info.CurrentPlaybackTime,
		ArtworkURL:  info.Artwork.URL,
	}, nil
}

func (c *CiderClient) IsPlaying(ctx context.Context) (bool, error) {
	var out struct {
		IsPlaying bool `json:"is_playing"`
	}
	if err := c.query(ctx, "is-playing", &out); err != nil {
		return false, err
	}
	return out.IsPlaying, nil
}

type valueResponse struct {
	Value json.RawMessage `json:"value"`
}

// intValue accepts both numeric and boolean "value" fields; the engine
// reports autoplay as a boolean and the modes as integers.
func (v valueResponse) intValue() int {
	var n float64
	if err := json.Unmarshal(v.Value, &n); err == nil {
		return int(n)
	}
	var b bool
	if err := json.Unmarshal(v.Value, &b); err == nil && b {
		return 1
	}
	return 0
}

func (c *CiderClient) ShuffleMode(ctx context.Context) (player.ShuffleMode, error) {
	var out valueResponse
	if err := c.query(ctx, "shuffle-mode", &out); err != nil {
		return player.ShuffleOff, err
	}
	if out.intValue() != 0 {
		return player.ShuffleOn, nil
	}
	return player.ShuffleOff, nil
}

func (c *CiderClient) RepeatMode(ctx context.Context) (player.RepeatMode, error) {
	var out valueResponse
	if err := c.query(ctx, "repeat-mode", &out); err != nil {
		return player.RepeatOff, err
	}
	switch out.intValue() {
	case 1:
		return player.RepeatOne, nil
	case 2:
		return player.RepeatAll, nil
	default:
		return player.RepeatOff, nil
	}
}

// AutoPlay reports the engine's own autoplay flag.
func (c *CiderClient) AutoPlay(ctx context.Context) (bool, error) {
	var out valueResponse
	if err := c.query(ctx, "autoplay", &out); err != nil {
		return false, err
	}
	return out.intValue() != 0, nil
}

// RunAMAPI proxies an Apple Music API GET through the engine and returns the
// raw response. A non-empty key cancels the previous request with that key.
func (c *CiderClient) RunAMAPI(ctx context.Context, path, key string) ([]byte, error) {
	return c.do(ctx, resty.MethodPost, amapiPath, map[string]string{"path": path}, key)
}
