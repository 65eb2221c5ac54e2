package socket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	ws "nhooyr.io/websocket"
)

func TestParsePacket(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		wantKind packetKind
		wantName string
		wantErr  bool
	}{
		{"open", `0{"sid":"abc","pingInterval":25000}`, packetOpen, "", false},
		{"ping", "2", packetPing, "", false},
		{"pong", "3", packetNoop, "", false},
		{"close", "1", packetClose, "", false},
		{"connect", `40{"sid":"xyz"}`, packetConnect, "", false},
		{"connect error", `44{"message":"nope"}`, packetConnectError, "", false},
		{"disconnect", "41", packetDisconnect, "", false},
		{"event", `42["API:Playback",{"type":"x","data":{}}]`, packetEvent, "API:Playback", false},
		{"event without payload", `42["hello"]`, packetEvent, "hello", false},
		{"namespaced event", `42/ns,["hello"]`, packetEvent, "hello", false},
		{"empty", "", packetUnknown, "", true},
		{"bare message", "4", packetUnknown, "", true},
		{"event without list", "42", packetUnknown, "", true},
		{"event bad json", `42["x",`, packetUnknown, "", true},
		{"unknown type", "9", packetUnknown, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := parsePacket([]byte(tt.frame))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.frame)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.kind != tt.wantKind {
				t.Errorf("kind = %d, want %d", p.kind, tt.wantKind)
			}
			if p.name != tt.wantName {
				t.Errorf("name = %q, want %q", p.name, tt.wantName)
			}
		})
	}
}

func TestEventTimeUpdate(t *testing.T) {
	ev := Event{
		Type: TypeTimeDidChange,
		Data: []byte(`{"currentPlaybackDuration":200.5,"currentPlaybackTime":12.25,"currentPlaybackTimeRemaining":188.25,"isPlaying":true}`),
	}

	u, err := ev.TimeUpdate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Position != 12.25 || u.Duration != 200.5 || !u.Playing {
		t.Errorf("unexpected update %+v", u)
	}

	if _, err := (Event{Data: []byte("nope")}).TimeUpdate(); err == nil {
		t.Error("expected error for invalid payload")
	}
}

func TestSocketURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://localhost:10767", "ws://localhost:10767/socket.io/?EIO=4&transport=websocket", false},
		{"http://localhost:10767/", "ws://localhost:10767/socket.io/?EIO=4&transport=websocket", false},
		{"https://host", "wss://host/socket.io/?EIO=4&transport=websocket", false},
		{"ftp://host", "", true},
	}

	for _, tt := range tests {
		got, err := socketURL(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("socketURL(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("socketURL(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("socketURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// fakeEngine speaks just enough Engine.IO to drive the client.
func fakeEngine(t *testing.T, frames []string, pongs *int32) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/socket.io/" || r.URL.Query().Get("EIO") != "4" {
			http.Error(w, "bad path", http.StatusNotFound)
			return
		}
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: []string{"*"}})
		if err != nil {
			t.Errorf("accept failed: %v", err)
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		if err := conn.Write(ctx, ws.MessageText, []byte(`0{"sid":"s1","pingInterval":25000,"pingTimeout":20000}`)); err != nil {
			return
		}
		_, msg, err := conn.Read(ctx)
		if err != nil || string(msg) != "40" {
			t.Errorf("expected namespace connect, got %q (%v)", msg, err)
			return
		}
		if err := conn.Write(ctx, ws.MessageText, []byte(`40{"sid":"n1"}`)); err != nil {
			return
		}
		if err := conn.Write(ctx, ws.MessageText, []byte("2")); err != nil {
			return
		}
		_, msg, err = conn.Read(ctx)
		if err == nil && string(msg) == "3" && pongs != nil {
			atomic.AddInt32(pongs, 1)
		}

		for _, f := range frames {
			if err := conn.Write(ctx, ws.MessageText, []byte(f)); err != nil {
				return
			}
		}

		// hold the connection until the client goes away
		_, _, _ = conn.Read(ctx)
	}))
}

func TestClientReceivesEvents(t *testing.T) {
	var pongs int32
	server := fakeEngine(t, []string{
		`42["API:Playback",{"type":"playbackStatus.playbackTimeDidChange","data":{"currentPlaybackTime":3,"currentPlaybackDuration":60,"isPlaying":true}}]`,
		`42["other",{"type":"ignored"}]`,
		`42["API:Playback",{"type":"playbackStatus.nowPlayingItemDidChange","data":{}}]`,
	}, &pongs)
	defer server.Close()

	var mu sync.Mutex
	var events []Event
	client, err := NewClient(server.URL, func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}, Options{ReconnectDelay: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	var connects int32
	client.OnConnect(func() { atomic.AddInt32(&connects, 1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(events)
		mu.Unlock()
		if n == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !client.Connected() {
		t.Error("expected client to be connected")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("expected 2 playback events, got %d", len(events))
	}
	if events[0].Type != TypeTimeDidChange || events[1].Type != TypeNowPlayingDidChange {
		t.Errorf("unexpected event types %q, %q", events[0].Type, events[1].Type)
	}
	u, err := events[0].TimeUpdate()
	if err != nil || u.Position != 3 || u.Duration != 60 {
		t.Errorf("unexpected time update %+v (%v)", u, err)
	}
	if atomic.LoadInt32(&connects) != 1 {
		t.Errorf("expected 1 connect callback, got %d", connects)
	}
	if atomic.LoadInt32(&pongs) != 1 {
		t.Errorf("expected pong reply to ping, got %d", pongs)
	}
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, nil, Options{ReconnectDelay: time.Millisecond, MaxAttempts: 3})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	err = client.Run(context.Background())
	if !errors.Is(err, ErrGaveUp) {
		t.Fatalf("expected ErrGaveUp, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Errorf("expected 3 dial attempts, got %d", got)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient("ftp://nope", nil, Options{}); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}
