package autosave

import (
	"log"
	"sync"
	"time"
)

// Saver coalesces rapid mutations into a single flush after a quiet
// period. Flush errors are logged and the dirty mark kept, so the next
// mutation retries. Close force-flushes anything pending.
type Saver struct {
	mu     sync.Mutex
	quiet  time.Duration
	flush  func() error
	timer  *time.Timer
	dirty  bool
	closed bool
}

func New(quiet time.Duration, flush func() error) *Saver {
	return &Saver{quiet: quiet, flush: flush}
}

// Notify marks the state dirty and arms the quiet-period timer. Repeated
// calls inside the quiet period reset it.
func (s *Saver) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.dirty = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.quiet, s.fire)
}

func (s *Saver) fire() {
	s.mu.Lock()
	if s.closed || !s.dirty {
		s.mu.Unlock()
		return
	}
	s.dirty = false
	s.mu.Unlock()

	if err := s.flush(); err != nil {
		log.Printf("autosave: flush: %v", err)
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
	}
}

// Close stops the timer and force-flushes pending state so the last
// mutation is never lost on teardown.
func (s *Saver) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	pending := s.dirty
	s.dirty = false
	s.mu.Unlock()

	if pending {
		return s.flush()
	}
	return nil
}
