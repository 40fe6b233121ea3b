package nodemonitor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadersConcurrent(t *testing.T) {
	m := New(nil)

	m.ReaderEnter()
	done := make(chan struct{})
	go func() {
		m.ReaderEnter()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second reader blocked behind first reader")
	}
	m.ReaderExit()
	m.ReaderExit()
}

func TestWriterExcludesReader(t *testing.T) {
	m := New(nil)
	m.WriterEnter()

	readerEntered := make(chan struct{})
	go func() {
		m.ReaderEnter()
		close(readerEntered)
	}()

	select {
	case <-readerEntered:
		t.Fatal("reader admitted while writer active")
	case <-time.After(20 * time.Millisecond):
	}

	m.WriterExit()

	select {
	case <-readerEntered:
	case <-time.After(time.Second):
		t.Fatal("reader never admitted after writer exit")
	}
	m.ReaderExit()
}

func TestWriterExcludesWriter(t *testing.T) {
	m := New(nil)
	m.WriterEnter()

	secondEntered := make(chan struct{})
	go func() {
		m.WriterEnter()
		close(secondEntered)
	}()

	select {
	case <-secondEntered:
		t.Fatal("second writer admitted while first active")
	case <-time.After(20 * time.Millisecond):
	}

	m.WriterExit()

	select {
	case <-secondEntered:
	case <-time.After(time.Second):
		t.Fatal("second writer never admitted")
	}
	m.WriterExit()
}

// TestWriterPreference verifies that once a writer is waiting, a reader
// that arrives afterward queues behind it rather than jumping the queue
// via an already-active reader batch.
func TestWriterPreference(t *testing.T) {
	m := New(nil)

	m.ReaderEnter() // first reader holds the monitor open

	writerWaiting := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		close(writerWaiting)
		m.WriterEnter()
		close(writerDone)
	}()
	<-writerWaiting
	time.Sleep(20 * time.Millisecond) // let the writer enroll as waiting

	lateReaderDone := make(chan struct{})
	go func() {
		m.ReaderEnter()
		close(lateReaderDone)
	}()
	time.Sleep(20 * time.Millisecond)

	select {
	case <-writerDone:
		t.Fatal("writer admitted while original reader still active")
	case <-lateReaderDone:
		t.Fatal("late reader overtook waiting writer")
	default:
	}

	m.ReaderExit() // release the original reader; writer should go next

	select {
	case <-writerDone:
	case <-time.After(time.Second):
		t.Fatal("writer never admitted after reader released")
	}

	select {
	case <-lateReaderDone:
		t.Fatal("late reader admitted before writer released")
	default:
	}

	m.WriterExit()

	select {
	case <-lateReaderDone:
	case <-time.After(time.Second):
		t.Fatal("late reader never admitted after writer released")
	}
	m.ReaderExit()
}

func TestGateCloseQuarantinesNewEntries(t *testing.T) {
	m := New(nil)

	m.ReaderEnter() // simulate a goroutine already inside at move time
	m.Close()

	newReader := make(chan struct{})
	go func() {
		m.ReaderEnter()
		close(newReader)
	}()

	select {
	case <-newReader:
		t.Fatal("new reader admitted while gate closed")
	case <-time.After(20 * time.Millisecond):
	}

	// The goroutine already inside can still exit while the gate is
	// closed.
	m.ReaderExit()

	select {
	case <-newReader:
		t.Fatal("new reader admitted before gate reopened")
	case <-time.After(20 * time.Millisecond):
	}

	m.Open()

	select {
	case <-newReader:
	case <-time.After(time.Second):
		t.Fatal("new reader never admitted after gate reopened")
	}
	m.ReaderExit()
}

// TestConcurrentMixStress exercises many readers and writers concurrently
// against a single shared counter, asserting mutual exclusion held at every
// observed writer critical section.
func TestConcurrentMixStress(t *testing.T) {
	m := New(nil)
	var counter int64
	var inWriter int32

	var wg sync.WaitGroup
	const n = 100
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			if i%3 == 0 {
				m.WriterEnter()
				require.True(t, atomic.CompareAndSwapInt32(&inWriter, 0, 1))
				atomic.AddInt64(&counter, 1)
				require.True(t, atomic.CompareAndSwapInt32(&inWriter, 1, 0))
				m.WriterExit()
			} else {
				m.ReaderEnter()
				m.ReaderExit()
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, (n+2)/3, counter)
}
