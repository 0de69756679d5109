package sync

import (
	"sync"
	"time"
)

// suppressionSet tracks server ids whose push echo should be discarded.
// Every id leaves the set either when its echo is matched or when its window
// expires, whichever comes first.
type suppressionSet struct {
	mu     sync.Mutex
	ids    map[int64]time.Time // id -> expiry
	window time.Duration
	now    func() time.Time
}

func newSuppressionSet(window time.Duration) *suppressionSet {
	return &suppressionSet{
		ids:    make(map[int64]time.Time),
		window: window,
		now:    time.Now,
	}
}

func (s *suppressionSet) Add(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.ids[id] = s.now().Add(s.window)
}

// CheckAndRemove reports whether id is currently suppressed and consumes the
// entry if so. An expired entry counts as not suppressed.
func (s *suppressionSet) CheckAndRemove(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	expiry, ok := s.ids[id]
	if !ok {
		return false
	}
	delete(s.ids, id)
	return s.now().Before(expiry)
}

func (s *suppressionSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	return len(s.ids)
}

func (s *suppressionSet) sweepLocked() {
	now := s.now()
	for id, expiry := range s.ids {
		if !now.Before(expiry) {
			delete(s.ids, id)
		}
	}
}
