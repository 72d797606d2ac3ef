package learning

import "sync"

// singleFlight serializes background learning work per user. A trigger that
// arrives while a cycle is already running is dropped rather than queued;
// the periodic triggers make retries cheap.
type singleFlight struct {
	mu       sync.Mutex
	inFlight map[string]bool
}

func newSingleFlight() *singleFlight {
	return &singleFlight{inFlight: make(map[string]bool)}
}

func (s *singleFlight) tryAcquire(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[userID] {
		return false
	}
	s.inFlight[userID] = true
	return true
}

func (s *singleFlight) release(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, userID)
}
