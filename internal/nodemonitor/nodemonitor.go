// Package nodemonitor implements the per-node reader/writer coordinator
// that the tree engine uses to serialize access to a single node.
//
// "Readers" are list and find traversals; "writers" are create, remove, and
// move. At most one writer, or arbitrarily many readers, may be inside a
// Monitor at a time. The protocol is writer-preferring with bounded reader
// starvation: once a writer is active or waiting, arriving readers queue
// behind it, but the exit protocol always drains the whole waiting-reader
// batch before letting a second writer in, so a steady stream of writers
// cannot starve readers indefinitely, and a steady stream of readers cannot
// starve a writer indefinitely either, because new readers stop being
// admitted the instant a writer starts waiting.
//
// A Monitor also has an entry gate, independent of the reader/writer state,
// that can be closed to refuse all new entries (reader or writer) without
// disturbing goroutines already inside. The tree engine uses this to
// quarantine a node immediately after a move: goroutines already inside the
// moved subtree keep draining out normally, but no new goroutine can enter
// until the move has fully committed and the gate reopens.
package nodemonitor

import (
	"github.com/concurrentfs/ctree/internal/semaphore"
	"github.com/sirupsen/logrus"
)

// Monitor is a writer-preferring reader/writer coordinator with a
// closeable entry gate. The zero value is not usable; construct with New.
type Monitor struct {
	// entry is the FIFO admission gate every ReaderEnter/WriterEnter must
	// pass through. Acquiring it and immediately releasing it (after
	// taking mu) turns it into a fairness checkpoint for new entrants;
	// holding it (via Close) blocks all new entrants until Open.
	entry *semaphore.Semaphore

	// mu guards the counters below.
	mu *semaphore.Semaphore

	// readers/writers park goroutines that lost the race for immediate
	// entry; each holds exactly the number of permits needed to wake the
	// appropriate waiters, mirroring the original monitor's signaling
	// discipline (see nmReaderEnter/nmWriterExit in the grounding
	// source).
	readers *semaphore.Semaphore
	writers *semaphore.Semaphore

	reading, writing   int
	waitingR, waitingW int

	log *logrus.Entry
}

// New returns a ready-to-use Monitor. log may be nil, in which case
// protocol tracing goes to logrus's standard logger.
func New(log *logrus.Entry) *Monitor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Monitor{
		entry:   semaphore.New(1),
		mu:      semaphore.New(1),
		readers: semaphore.New(0),
		writers: semaphore.New(0),
		log:     log,
	}
}

func (m *Monitor) trace(event string) {
	m.log.WithFields(logrus.Fields{
		"event":           event,
		"reading":         m.reading,
		"writing":         m.writing,
		"waiting_readers": m.waitingR,
		"waiting_writers": m.waitingW,
	}).Trace("nodemonitor")
}

// ReaderEnter blocks until shared read access is granted.
func (m *Monitor) ReaderEnter() {
	m.entry.Acquire()
	m.mu.Acquire()
	m.entry.Release()

	m.trace("reader_enter")
	if m.writing+m.waitingW > 0 {
		m.waitingR++
		m.mu.Release()
		m.readers.Acquire()
		m.waitingR--
	}
	m.reading++
	if m.waitingR > 0 {
		// Pass the baton directly to the next queued reader instead of
		// releasing mu, so the whole waiting-reader batch drains as one
		// unit ahead of any writer.
		m.readers.Release()
	} else {
		m.mu.Release()
	}
}

// ReaderExit releases this goroutine's shared read access.
func (m *Monitor) ReaderExit() {
	m.mu.Acquire()
	m.reading--
	m.trace("reader_exit")
	if m.reading == 0 && m.waitingW > 0 {
		m.writers.Release()
	} else {
		m.mu.Release()
	}
}

// WriterEnter blocks until exclusive write access is granted.
func (m *Monitor) WriterEnter() {
	m.entry.Acquire()
	m.mu.Acquire()
	m.entry.Release()

	m.trace("writer_enter")
	if m.reading+m.writing > 0 {
		m.waitingW++
		m.mu.Release()
		m.writers.Acquire()
		m.waitingW--
	}
	m.writing++
	m.mu.Release()
}

// WriterExit releases this goroutine's exclusive write access.
func (m *Monitor) WriterExit() {
	m.mu.Acquire()
	m.writing--
	m.trace("writer_exit")
	if m.waitingR > 0 {
		m.readers.Release()
	} else if m.waitingW > 0 {
		m.writers.Release()
	} else {
		m.mu.Release()
	}
}

// Close shuts the entry gate: no new ReaderEnter or WriterEnter call can
// proceed past its admission check until Open is called. Goroutines already
// inside the monitor are unaffected and may still exit normally.
func (m *Monitor) Close() {
	m.trace("gate_close")
	m.entry.Acquire()
}

// Open reopens the entry gate closed by Close.
func (m *Monitor) Open() {
	m.trace("gate_open")
	m.entry.Release()
}
