// Package player mirrors the engine's playback state on the client side.
package player

import "math"

type State int

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
	StateSwitching
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePlaying:
		return "PLAYING"
	case StatePaused:
		return "PAUSED"
	case StateSwitching:
		return "SWITCHING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ShuffleMode is the engine's shuffle flag as reported by /shuffle-mode.
type ShuffleMode int

const (
	ShuffleOff ShuffleMode = iota
	ShuffleOn
)

func (m ShuffleMode) String() string {
	if m == ShuffleOn {
		return "on"
	}
	return "off"
}

// RepeatMode is the engine's repeat setting as reported by /repeat-mode.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatOne
	RepeatAll
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return "off"
	}
}

// NowPlaying is a snapshot of the engine's current track.
type NowPlaying struct {
	TrackID     string
	Name        string
	Artist      string
	Album       string
	DurationMs  int
	PositionSec float64
	ArtworkURL  string
	Playing     bool
}

// Empty reports whether the engine has nothing loaded.
func (n NowPlaying) Empty() bool {
	return n.TrackID == "" && n.Name == ""
}

// Sample converts the snapshot to a progress sample for end-of-track detection.
func (n NowPlaying) Sample() Sample {
	return Sample{
		TrackID:  n.TrackID,
		Position: n.PositionSec,
		Duration: float64(n.DurationMs) / 1000,
		Playing:  n.Playing,
	}
}

// Sample is one observation of playback progress, in seconds.
type Sample struct {
	TrackID  string
	Position float64
	Duration float64
	Playing  bool
}

// Progress returns Position/Duration clamped to [0, 1]; zero when the
// duration is unknown.
func (s Sample) Progress() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return math.Max(0, math.Min(1, s.Position/s.Duration))
}
