package multierr

import "sync"

// Sync is a MultiErr safe for concurrent use, for example by goroutines
// closing senders in parallel.
type Sync struct {
	mu       sync.Mutex
	multierr MultiErr
}

func (s *Sync) Add(err error) {
	if err == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.multierr.Add(err)
}

func (s *Sync) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.multierr.Err()
}
