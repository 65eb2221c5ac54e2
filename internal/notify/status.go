// Package notify holds the one-line status message shown under the player.
package notify

import (
	"sync"
	"time"
)

const DefaultFlashDuration = 2 * time.Second

// Status is an observable message string. Flashed messages clear themselves;
// any newer message replaces the pending clear.
type Status struct {
	flashFor time.Duration

	mu        sync.Mutex
	message   string
	gen       uint64
	timer     *time.Timer
	listeners []func(string)
}

func NewStatus(flashFor time.Duration) *Status {
	if flashFor <= 0 {
		flashFor = DefaultFlashDuration
	}
	return &Status{flashFor: flashFor}
}

func (s *Status) OnChange(fn func(string)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Status) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

// Set shows msg until something else replaces or clears it.
func (s *Status) Set(msg string) {
	s.mu.Lock()
	s.stopTimer()
	s.gen++
	changed := s.message != msg
	s.message = msg
	listeners := s.listeners
	s.mu.Unlock()

	if changed {
		emit(listeners, msg)
	}
}

// Flash shows msg and clears it after the flash duration.
func (s *Status) Flash(msg string) {
	s.mu.Lock()
	s.stopTimer()
	s.gen++
	gen := s.gen
	s.message = msg
	s.timer = time.AfterFunc(s.flashFor, func() { s.expire(gen) })
	listeners := s.listeners
	s.mu.Unlock()

	emit(listeners, msg)
}

func (s *Status) Clear() {
	s.Set("")
}

// ClearIf clears the message only if it is still msg.
func (s *Status) ClearIf(msg string) {
	s.mu.Lock()
	if s.message != msg {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.Clear()
}

func (s *Status) expire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.message = ""
	listeners := s.listeners
	s.mu.Unlock()

	emit(listeners, "")
}

// Stop cancels a pending clear.
func (s *Status) Stop() {
	s.mu.Lock()
	s.stopTimer()
	s.mu.Unlock()
}

func (s *Status) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func emit(listeners []func(string), msg string) {
	for _, fn := range listeners {
		fn(msg)
	}
}
