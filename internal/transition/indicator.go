// Package transition turns bursts of track-change intents into single engine
// commands and tracks which track the UI should show as playing.
package transition

import "sync"

// Indicator is the "now playing" marker shown to the user. Optimistic follows
// user intent immediately; Confirmed follows what the engine accepted. They
// differ while a change is pending and after a command fails, since a failed
// command does not roll Optimistic back.
type Indicator struct {
	mu         sync.RWMutex
	optimistic string
	confirmed  string
	listeners  []func(IndicatorState)
}

type IndicatorState struct {
	Optimistic string
	Confirmed  string
}

func NewIndicator() *Indicator {
	return &Indicator{}
}

func (i *Indicator) OnChange(fn func(IndicatorState)) {
	i.mu.Lock()
	i.listeners = append(i.listeners, fn)
	i.mu.Unlock()
}

// Intend records a user intent to play id.
func (i *Indicator) Intend(id string) {
	i.update(func() { i.optimistic = id })
}

// Confirm records that the engine accepted a command for id. Optimistic is
// left alone; a newer intent may already be showing.
func (i *Indicator) Confirm(id string) {
	i.update(func() { i.confirmed = id })
}

// Adopt records a track the engine chose on its own, such as a station pick.
func (i *Indicator) Adopt(id string) {
	i.update(func() {
		i.optimistic = id
		i.confirmed = id
	})
}

func (i *Indicator) Reset() {
	i.update(func() {
		i.optimistic = ""
		i.confirmed = ""
	})
}

func (i *Indicator) update(fn func()) {
	i.mu.Lock()
	before := IndicatorState{Optimistic: i.optimistic, Confirmed: i.confirmed}
	fn()
	after := IndicatorState{Optimistic: i.optimistic, Confirmed: i.confirmed}
	listeners := i.listeners
	i.mu.Unlock()

	if before == after {
		return
	}
	for _, l := range listeners {
		l(after)
	}
}

func (i *Indicator) State() IndicatorState {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return IndicatorState{Optimistic: i.optimistic, Confirmed: i.confirmed}
}

// Optimistic is the track id the UI should highlight.
func (i *Indicator) Optimistic() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.optimistic
}

func (i *Indicator) Confirmed() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.confirmed
}

func (i *Indicator) Diverged() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.optimistic != i.confirmed
}
