// Package queue holds the client-side play queue and the next/previous
// selection rules applied to it.
package queue

import (
	"math/rand"
	"sync"
	"time"

	"github.com/glebovdev/cider-cli/internal/catalog"
	"github.com/glebovdev/cider-cli/internal/player"
)

type Mode int

const (
	ModeSingleTrack Mode = iota
	ModeInList
)

func (m Mode) String() string {
	if m == ModeInList {
		return "in-list"
	}
	return "single"
}

type SourceKind int

const (
	SourceSingle SourceKind = iota
	SourcePlaylist
	SourceAlbum
	SourceTopTracks
)

func (k SourceKind) String() string {
	switch k {
	case SourcePlaylist:
		return "playlist"
	case SourceAlbum:
		return "album"
	case SourceTopTracks:
		return "top-tracks"
	default:
		return "single"
	}
}

// Source describes where the queue came from. It is informational only.
type Source struct {
	Kind SourceKind
	ID   string
	Name string
}

// State is a copy of the queue contents.
type State struct {
	Mode          Mode
	Tracks        []catalog.Item
	CurrentIndex  int
	PlayedIndices []int
	Source        Source
}

// Store is the virtual play queue. All methods are safe for concurrent use
// and never fail: invalid input is ignored.
type Store struct {
	mu      sync.Mutex
	mode    Mode
	tracks  []catalog.Item
	current int
	// played lists visited indices once each, oldest first.
	played []int
	source Source
	rng    *rand.Rand
}

type Option func(*Store)

// WithRand sets the random source used for shuffle picks.
func WithRand(r *rand.Rand) Option {
	return func(s *Store) {
		s.rng = r
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{current: -1}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s
}

// SetQueue replaces the queue with tracks, starting at startIndex clamped
// into range. An empty track list clears the queue.
func (s *Store) SetQueue(tracks []catalog.Item, startIndex int, source Source) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(tracks) == 0 {
		s.reset()
		return
	}
	if startIndex < 0 {
		startIndex = 0
	}
	if startIndex >= len(tracks) {
		startIndex = len(tracks) - 1
	}

	s.mode = ModeInList
	s.tracks = append([]catalog.Item(nil), tracks...)
	s.current = startIndex
	s.played = []int{startIndex}
	s.source = source
}

// SetSingleTrack replaces the queue with one ad-hoc track.
func (s *Store) SetSingleTrack(track catalog.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mode = ModeSingleTrack
	s.tracks = []catalog.Item{track}
	s.current = 0
	s.played = []int{0}
	s.source = Source{Kind: SourceSingle, ID: track.ID, Name: track.Name}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *Store) reset() {
	s.mode = ModeSingleTrack
	s.tracks = nil
	s.current = -1
	s.played = nil
	s.source = Source{}
}

func (s *Store) valid() bool {
	return s.current >= 0 && s.current < len(s.tracks)
}

func (s *Store) wasPlayed(i int) bool {
	for _, p := range s.played {
		if p == i {
			return true
		}
	}
	return false
}

// NextIndex picks the index to play after the current one. With shuffle on
// it never returns an index already played until every index has been;
// under RepeatAll it then starts a fresh round.
func (s *Store) NextIndex(shuffle player.ShuffleMode, repeat player.RepeatMode) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.valid() {
		return 0, false
	}

	if repeat == player.RepeatOne {
		return s.current, true
	}

	if shuffle == player.ShuffleOn {
		var unplayed []int
		for i := range s.tracks {
			if !s.wasPlayed(i) {
				unplayed = append(unplayed, i)
			}
		}
		if len(unplayed) > 0 {
			return unplayed[s.rng.Intn(len(unplayed))], true
		}
		if repeat == player.RepeatAll {
			s.played = nil
			return s.rng.Intn(len(s.tracks)), true
		}
		return 0, false
	}

	if next := s.current + 1; next < len(s.tracks) {
		return next, true
	}
	if repeat == player.RepeatAll {
		return 0, true
	}
	return 0, false
}

// PreviousIndex returns the most recently played index before the current
// one, else the index just before it, else wraps to the last track when
// there is more than one.
func (s *Store) PreviousIndex() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.valid() {
		return 0, false
	}

	for i := len(s.played) - 1; i >= 0; i-- {
		if p := s.played[i]; p < s.current && p >= 0 {
			return p, true
		}
	}
	if s.current > 0 {
		return s.current - 1, true
	}
	if len(s.tracks) > 1 {
		return len(s.tracks) - 1, true
	}
	return 0, false
}

// UpdateCurrentIndex moves the cursor to index and records it as the most
// recently played. Out of range indices are ignored.
func (s *Store) UpdateCurrentIndex(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.tracks) {
		return
	}
	s.current = index

	for i, p := range s.played {
		if p == index {
			s.played = append(s.played[:i], s.played[i+1:]...)
			break
		}
	}
	s.played = append(s.played, index)
}

func (s *Store) CurrentTrack() (catalog.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.valid() {
		return catalog.Item{}, false
	}
	return s.tracks[s.current], true
}

// Track returns the track at index.
func (s *Store) Track(index int) (catalog.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.tracks) {
		return catalog.Item{}, false
	}
	return s.tracks[index], true
}

// RecentlyPlayed returns up to n distinct tracks, most recently played first.
func (s *Store) RecentlyPlayed(n int) []catalog.Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []catalog.Item
	seen := make(map[string]bool)
	for i := len(s.played) - 1; i >= 0 && len(out) < n; i-- {
		p := s.played[i]
		if p < 0 || p >= len(s.tracks) {
			continue
		}
		t := s.tracks[p]
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}

func (s *Store) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Snapshot returns a copy of the queue state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return State{
		Mode:          s.mode,
		Tracks:        append([]catalog.Item(nil), s.tracks...),
		CurrentIndex:  s.current,
		PlayedIndices: append([]int(nil), s.played...),
		Source:        s.source,
	}
}
