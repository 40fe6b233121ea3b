// Package semaphore implements a FIFO-fair counting semaphore.
//
// This is the primitive the rest of the concurrency-control protocol is
// built from (see internal/nodemonitor). Two properties matter beyond the
// usual counting-semaphore contract:
//
//   - Fairness: callers are served in the order they call Acquire. A caller
//     that arrives while others are already waiting enrolls behind them
//     instead of racing them for a freshly released permit.
//   - No barging: Release never lets a later Acquire (including one from
//     the same goroutine, in the pathological case of a goroutine calling
//     Acquire again right after its own Release) jump ahead of a goroutine
//     that is already enrolled as a waiter.
//
// Both properties fall out of a single rule evaluated under one mutex: a
// caller only consumes a permit without waiting if permits exceed the
// number of goroutines already waiting. Otherwise it enrolls as a waiter
// and blocks on a condition variable until explicitly woken.
//
// There is no failure mode exposed to callers. The only way Acquire or
// Release can fail is a corrupted sync.Mutex/sync.Cond, which is a
// programming error; Go's runtime reports that as a panic, which is this
// package's equivalent of the fatal-abort contract such primitives
// traditionally have.
package semaphore

import "sync"

// Semaphore is a FIFO-fair counting semaphore.
type Semaphore struct {
	mu      sync.Mutex
	cond    sync.Cond
	permits int
	waiting int
}

// New returns a semaphore initialized with the given number of permits.
func New(permits int) *Semaphore {
	if permits < 0 {
		panic("semaphore: negative initial permit count")
	}
	s := &Semaphore{permits: permits}
	s.cond.L = &s.mu
	return s
}

// Acquire blocks until a permit is available and this goroutine is not
// overtaking any earlier waiter.
func (s *Semaphore) Acquire() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.permits <= s.waiting {
		s.waiting++
		// Always wait for a Release's signal: a permit that is already
		// present belongs to a waiter that was signalled earlier.
		s.cond.Wait()
		for s.permits == 0 {
			s.cond.Wait()
		}
		s.waiting--
	}
	s.permits--
}

// Release returns a permit to the semaphore, waking exactly one waiter if
// any goroutine is currently blocked in Acquire.
func (s *Semaphore) Release() {
	s.mu.Lock()
	s.permits++
	s.cond.Signal()
	s.mu.Unlock()
}
