package strategy

import (
	"context"
	"sync"
)

// Semaphore is a counting semaphore with FIFO wakeup order: waiters acquire
// slots in the order they arrived, so no goroutine starves under contention.
type Semaphore struct {
	mu      sync.Mutex
	slots   int
	waiters []chan struct{}
}

// NewSemaphore creates a semaphore with n slots. n < 1 is treated as 1.
func NewSemaphore(n int) *Semaphore {
	if n < 1 {
		n = 1
	}
	return &Semaphore{slots: n}
}

// Acquire takes a slot, blocking in FIFO order until one is free or the
// context is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.slots > 0 {
		s.slots--
		s.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for i, w := range s.waiters {
			if w == ch {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				s.mu.Unlock()
				return ctx.Err()
			}
		}
		s.mu.Unlock()
		// The slot was granted concurrently with cancellation; hand it on.
		s.Release()
		return ctx.Err()
	}
}

// Release returns a slot, waking the oldest waiter if any.
func (s *Semaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.waiters) > 0 {
		ch := s.waiters[0]
		s.waiters = s.waiters[1:]
		close(ch)
		return
	}
	s.slots++
}
