package ctree

import (
	"sync"

	"github.com/concurrentfs/ctree/internal/childset"
	"github.com/concurrentfs/ctree/internal/nodemonitor"
	"github.com/concurrentfs/ctree/internal/semaphore"
	"github.com/sirupsen/logrus"
)

// node is one directory in the tree. Its monitor and semaphore fields are
// safe for concurrent use; children is not, and is only touched while
// monitor is held; everything under metaMu is plain state protected by a
// short, uncontended critical section.
type node struct {
	monitor  *nodemonitor.Monitor
	children *childset.Set[*node]

	// metaMu guards the fields below. Its critical sections are short: a
	// counter update and at most one pointer swap, plus, in descent, the
	// release of the parent's reader lock, and, in Move, the update of the
	// two parents' children and the closing of this node's entry gate.
	metaMu sync.Mutex

	// parent is this node's current parent, as seen by new entrants and
	// by traceback. Move sets it directly when no goroutine is inside this
	// node; otherwise it changes via the deferred re-parenting commit
	// performed by traceback when inSubtree drains to zero.
	parent *node

	// newParent is set by Move when this node is re-parented while
	// goroutines are still inside it (inSubtree > 0 at commit time). The
	// swap into parent, and the reopening of the entry gate Move closed,
	// happen the moment traceback observes inSubtree hit zero.
	newParent *node

	// inSubtree counts goroutines currently holding a reader or writer
	// lock anywhere in or below this node, i.e. logically "present" in
	// this subtree per the descent protocol.
	inSubtree int

	// removeWaiting is true while a Remove call is blocked waiting for
	// this node to drain to a single occupant (itself) before detaching
	// it. removeGate is the handoff semaphore traceback releases to wake
	// it.
	removeWaiting bool
	removeGate    *semaphore.Semaphore
}

func newNode(parent *node, log *logrus.Entry) *node {
	return &node{
		monitor:    nodemonitor.New(log),
		children:   childset.New[*node](),
		parent:     parent,
		removeGate: semaphore.New(0),
	}
}
