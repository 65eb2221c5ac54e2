// Package socket subscribes to the engine's playback event stream, a
// Socket.IO channel spoken over a plain WebSocket.
package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/glebovdev/cider-cli/internal/player"
	"github.com/rs/zerolog/log"
	ws "nhooyr.io/websocket"
)

const (
	PlaybackEvent = "API:Playback"

	TypeTimeDidChange        = "playbackStatus.playbackTimeDidChange"
	TypeNowPlayingDidChange  = "playbackStatus.nowPlayingItemDidChange"
	TypePlaybackStateChanged = "playbackStatus.playbackStateDidChange"

	DefaultReconnectDelay = time.Second
	DefaultMaxAttempts    = 5
	handshakeTimeout      = 10 * time.Second
)

var ErrGaveUp = errors.New("event stream unavailable")

// Event is one API:Playback message.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type timeData struct {
	Duration  float64 `json:"currentPlaybackDuration"`
	Position  float64 `json:"currentPlaybackTime"`
	Remaining float64 `json:"currentPlaybackTimeRemaining"`
	IsPlaying bool    `json:"isPlaying"`
}

// TimeUpdate decodes the payload of a playbackTimeDidChange event.
func (e Event) TimeUpdate() (player.TimeUpdate, error) {
	var d timeData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return player.TimeUpdate{}, errors.Wrap(err, "failed to decode time update")
	}
	return player.TimeUpdate{
		Position: d.Position,
		Duration: d.Duration,
		Playing:  d.IsPlaying,
	}, nil
}

type Handler func(Event)

type Options struct {
	ReconnectDelay time.Duration
	MaxAttempts    int
	Token          string
}

type Client struct {
	url     string
	handler Handler
	opts    Options

	mu        sync.RWMutex
	connected bool
	onConnect []func()
	writeMu   sync.Mutex
}

// NewClient builds a client for the engine at baseURL (http or ws scheme).
func NewClient(baseURL string, handler Handler, opts Options) (*Client, error) {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}

	endpoint, err := socketURL(baseURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		url:     endpoint,
		handler: handler,
		opts:    opts,
	}, nil
}

func socketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", errors.Wrapf(err, "invalid engine URL %q", baseURL)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", errors.Newf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/socket.io/"
	u.RawQuery = url.Values{"EIO": {"4"}, "transport": {"websocket"}}.Encode()
	return u.String(), nil
}

// OnConnect registers fn to run after every successful namespace connect.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = append(c.onConnect, fn)
	c.mu.Unlock()
}

func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Run connects and dispatches events until ctx is done. A dropped
// connection is retried after ReconnectDelay; after MaxAttempts consecutive
// failures Run returns ErrGaveUp.
func (c *Client) Run(ctx context.Context) error {
	failures := 0
	for {
		connected, err := c.session(ctx)
		c.setConnected(false)

		if ctx.Err() != nil {
			return nil
		}
		if connected {
			failures = 0
		}
		failures++
		log.Debug().Err(err).Int("attempt", failures).Msg("Event stream disconnected")

		if failures >= c.opts.MaxAttempts {
			log.Warn().Err(err).Msg("Giving up on event stream")
			return errors.Mark(errors.Wrap(err, "reconnect attempts exhausted"), ErrGaveUp)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.opts.ReconnectDelay):
		}
	}
}

// session runs one connection. connected reports whether the namespace
// handshake completed, which resets the retry budget.
func (c *Client) session(ctx context.Context) (connected bool, err error) {
	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("apptoken", c.opts.Token)
	}

	conn, _, err := ws.Dial(dialCtx, c.url, &ws.DialOptions{HTTPHeader: header})
	if err != nil {
		return false, errors.Wrap(err, "failed to dial event stream")
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ws.CloseStatus(err) == ws.StatusNormalClosure {
				return connected, errors.New("server closed the event stream")
			}
			return connected, errors.Wrap(err, "failed to read event stream")
		}

		p, err := parsePacket(msg)
		if err != nil {
			log.Debug().Err(err).Str("frame", string(msg)).Msg("Skipping frame")
			continue
		}

		switch p.kind {
		case packetOpen:
			if err := c.write(ctx, conn, frameConnect); err != nil {
				return connected, err
			}
		case packetPing:
			if err := c.write(ctx, conn, framePong); err != nil {
				return connected, err
			}
		case packetConnect:
			connected = true
			c.setConnected(true)
			log.Info().Msg("Event stream connected")
			c.fireConnect()
		case packetConnectError:
			return connected, errors.Newf("namespace connect refused: %s", string(p.payload))
		case packetClose, packetDisconnect:
			conn.Close(ws.StatusNormalClosure, "")
			return connected, errors.New("server closed the event stream")
		case packetEvent:
			c.dispatch(p)
		}
	}
}

func (c *Client) write(ctx context.Context, conn *ws.Conn, frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.Write(ctx, ws.MessageText, []byte(frame)); err != nil {
		return errors.Wrap(err, "failed to write event stream frame")
	}
	return nil
}

func (c *Client) dispatch(p packet) {
	if p.name != PlaybackEvent || c.handler == nil {
		return
	}
	var ev Event
	if err := json.Unmarshal(p.payload, &ev); err != nil {
		log.Debug().Err(err).Msg("Failed to decode playback event")
		return
	}
	c.handler(ev)
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Client) fireConnect() {
	c.mu.RLock()
	fns := make([]func(), len(c.onConnect))
	copy(fns, c.onConnect)
	c.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}
