// Package notifications delivers backend change events to the feed session and pushes
// session state to the UI over websockets.
package notifications

import (
	"sync"

	"animelight/internal/observability"
)

// Signal counts posts inserted since the viewer last refreshed. The count is a hint
// for the "new posts" banner and never touches the feed itself.
type Signal struct {
	mu         sync.Mutex
	value      int
	refreshing int
	listeners  []func(int)
}

func NewSignal() *Signal {
	return &Signal{}
}

// Increment adds one unless a refresh is running, and reports whether it counted.
func (s *Signal) Increment() bool {
	s.mu.Lock()
	if s.refreshing > 0 {
		s.mu.Unlock()
		return false
	}
	s.value++
	v := s.value
	listeners := s.listeners
	s.mu.Unlock()

	s.publish(v, listeners)
	return true
}

func (s *Signal) Value() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Reset sets the counter back to zero.
func (s *Signal) Reset() {
	s.mu.Lock()
	s.value = 0
	listeners := s.listeners
	s.mu.Unlock()

	s.publish(0, listeners)
}

// BeginRefresh suppresses increments until the matching EndRefresh.
func (s *Signal) BeginRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshing++
}

func (s *Signal) EndRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshing > 0 {
		s.refreshing--
	}
}

// OnChange registers fn to receive every new counter value.
func (s *Signal) OnChange(fn func(int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Signal) publish(v int, listeners []func(int)) {
	observability.PendingNewPosts.Set(float64(v))
	for _, fn := range listeners {
		fn(v)
	}
}
