package semaphore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	s := New(1)
	s.Acquire()
	s.Release()
	s.Acquire()
	s.Release()
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	s := New(0)
	acquired := make(chan struct{})
	go func() {
		s.Acquire()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("Acquire returned before a permit was released")
	case <-time.After(20 * time.Millisecond):
	}

	s.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after Release")
	}
}

// TestFIFOOrdering enrolls N goroutines as waiters in a known order (they
// are launched one at a time in index order, with a short pause between
// launches), then releases one permit at a time and checks that waiters are
// woken in the order they enrolled.
func TestFIFOOrdering(t *testing.T) {
	const n = 20
	s := New(0)

	order := make(chan int, n)
	var startWg sync.WaitGroup
	startWg.Add(n)

	for i := 0; i < n; i++ {
		go func(i int) {
			// Best-effort enrollment ordering: launch in index order and
			// give each goroutine a short head start so it reaches
			// Acquire before the next one is spawned.
			startWg.Done()
			s.Acquire()
			order <- i
		}(i)
		time.Sleep(time.Millisecond)
	}
	startWg.Wait()
	time.Sleep(10 * time.Millisecond)

	for i := 0; i < n; i++ {
		s.Release()
		select {
		case got := <-order:
			assert.Equal(t, i, got, "waiter woken out of enrollment order")
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for waiter %d to be woken", i)
		}
	}
}

// TestNoBarging checks that a goroutine calling Acquire while another
// goroutine is already parked does not steal the permit a concurrent
// Release just produced for the earlier waiter.
func TestNoBarging(t *testing.T) {
	s := New(0)

	firstAcquired := make(chan struct{})
	go func() {
		s.Acquire()
		close(firstAcquired)
		// Hold the permit briefly so a racing second Acquire, if it
		// barged, would return before we release again.
		time.Sleep(30 * time.Millisecond)
		s.Release()
	}()

	time.Sleep(10 * time.Millisecond) // let the first goroutine enroll
	s.Release()                       // wakes the first goroutine

	second := make(chan struct{})
	go func() {
		s.Acquire()
		close(second)
	}()

	require.Eventually(t, func() bool {
		select {
		case <-firstAcquired:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("second Acquire never completed")
	}
}

// TestCounterStress hammers a single semaphore-guarded counter from many
// goroutines and checks the final value, the way a counting mutex should
// behave under contention.
func TestCounterStress(t *testing.T) {
	s := New(1)
	counter := 0
	const goroutines = 50
	const incrementsEach = 200

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < incrementsEach; j++ {
				s.Acquire()
				counter++
				s.Release()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines*incrementsEach, counter)
}
