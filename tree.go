package ctree

import (
	"strings"

	"github.com/concurrentfs/ctree/internal/pathutil"
	"github.com/sirupsen/logrus"
)

// Tree is an in-memory, concurrent, hierarchical directory tree. The zero
// value is not usable; construct one with New.
type Tree struct {
	root *node
	log  *logrus.Logger
}

// Option configures a Tree constructed by New.
type Option func(*Tree)

// WithLogger sets the logrus.Logger used for protocol tracing. Without
// this option, Tree logs to logrus's standard logger.
func WithLogger(log *logrus.Logger) Option {
	return func(t *Tree) { t.log = log }
}

// New returns an empty Tree: a single root node with no children.
func New(opts ...Option) *Tree {
	t := &Tree{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(t)
	}
	t.root = newNode(nil, t.log.WithField("component", "ctree"))
	return t
}

// List returns the names of path's immediate children, sorted
// lexicographically, joined with commas. It returns ErrInvalidPath,
// ErrNotExist as appropriate.
func (t *Tree) List(path string) (string, error) {
	if !pathutil.IsValid(path) {
		return "", ErrInvalidPath
	}

	target, err := t.find(t.root, path, false)
	if err != nil {
		return "", err
	}
	names := target.children.Names()
	t.traceback(target, false, t.root, true)
	return strings.Join(names, ","), nil
}

// Create adds a new, empty directory at path. The parent directory named
// by path must already exist and must not already have a child with
// path's final component.
func (t *Tree) Create(path string) error {
	if !pathutil.IsValid(path) {
		return ErrInvalidPath
	}
	if pathutil.IsRoot(path) {
		return ErrExist
	}

	parentPath, component, _ := pathutil.ParentOf(path)
	parent, err := t.find(t.root, parentPath, true)
	if err != nil {
		return err
	}

	child := newNode(parent, t.log.WithField("component", "ctree"))
	if !parent.children.Insert(component, child) {
		t.traceback(parent, true, t.root, true)
		return ErrExist
	}
	t.traceback(parent, true, t.root, true)
	return nil
}

// Remove deletes the empty directory at path. Removing the root, or a
// non-empty directory, fails without side effects.
func (t *Tree) Remove(path string) error {
	if !pathutil.IsValid(path) {
		return ErrInvalidPath
	}
	if pathutil.IsRoot(path) {
		return ErrBusy
	}

	parentPath, component, _ := pathutil.ParentOf(path)
	_, parent, target, err := t.findTwo(parentPath, path)
	if err != nil {
		return err
	}

	if target.children.Len() != 0 {
		t.traceback(target, true, target, true)
		t.traceback(parent, true, t.root, true)
		return ErrNotEmpty
	}

	// Drain every other goroutine out of target's subtree before
	// detaching it: inSubtree counts this call's own presence too, so the
	// drain target is 1, not 0.
	target.metaMu.Lock()
	if target.inSubtree > 1 {
		target.removeWaiting = true
		target.metaMu.Unlock()
		target.removeGate.Acquire()
		target.metaMu.Lock()
		target.removeWaiting = false
	}
	target.metaMu.Unlock()

	parent.children.Remove(component)
	// target is now unreachable and is simply abandoned; nothing else in
	// the tree holds a reference to it, and no other goroutine can be
	// holding its monitor (the drain above guarantees that).
	t.traceback(parent, true, t.root, true)
	return nil
}

// Move relocates the node at source to target, which must not yet exist.
// Moving the root, or moving a node into its own subtree, fails without
// side effects.
func (t *Tree) Move(source, target string) error {
	if !pathutil.IsValid(source) || !pathutil.IsValid(target) {
		return ErrInvalidPath
	}
	if pathutil.IsRoot(source) || pathutil.IsProperPrefix(source, target) {
		return ErrBusy
	}
	if pathutil.IsRoot(target) {
		return ErrExist
	}

	sourceParentPath, sourceComponent, _ := pathutil.ParentOf(source)
	targetParentPath, targetComponent, _ := pathutil.ParentOf(target)

	sameParent := pathutil.Equal(sourceParentPath, targetParentPath)

	var lca, sourceParent, targetParent *node
	var err error
	if sameParent {
		sourceParent, err = t.find(t.root, sourceParentPath, true)
		targetParent = sourceParent
	} else {
		lca, sourceParent, targetParent, err = t.findTwo(sourceParentPath, targetParentPath)
	}
	if err != nil {
		return err
	}

	finish := func(result error) error {
		if sameParent {
			t.traceback(targetParent, true, t.root, true)
		} else {
			t.tracebackPair(sourceParent, targetParent, lca)
		}
		return result
	}

	sourceChild, ok := sourceParent.children.Get(sourceComponent)
	if !ok {
		return finish(ErrNotExist)
	}
	if existing, exists := targetParent.children.Get(targetComponent); exists && existing != sourceChild {
		return finish(ErrExist)
	}

	sourceChild.metaMu.Lock()
	sourceParent.children.Remove(sourceComponent)
	targetParent.children.Insert(targetComponent, sourceChild)
	if sourceChild.inSubtree == 0 {
		// Nobody is inside the moved node right now; the re-parenting is
		// visible to new entrants immediately.
		sourceChild.parent = targetParent
	} else {
		// Goroutines are mid-descent inside the moved subtree, and will
		// follow sourceChild.parent on their way back up in traceback.
		// Quarantine new entrants and defer the swap to traceback, which
		// commits it (and reopens the gate) the instant the last of them
		// leaves.
		sourceChild.newParent = targetParent
		sourceChild.monitor.Close()
	}
	sourceChild.metaMu.Unlock()

	return finish(nil)
}

// find descends from start along path, holding at most one ancestor's
// read lock at a time, and returns the target node holding a reader lock
// (writerAtTarget false) or writer lock (writerAtTarget true) on it. The
// caller is responsible for eventually tracing back from the returned
// node to start.
func (t *Tree) find(start *node, path string, writerAtTarget bool) (*node, error) {
	current := start
	for !pathutil.IsRoot(path) {
		current.monitor.ReaderEnter()
		enterSubtree(current, start)

		component, rest, _ := pathutil.Head(path)
		child, ok := current.children.Get(component)
		if !ok {
			t.traceback(current, false, start, true)
			return nil, ErrNotExist
		}
		current = child
		path = rest
	}

	if writerAtTarget {
		current.monitor.WriterEnter()
	} else {
		current.monitor.ReaderEnter()
	}
	enterSubtree(current, start)

	return current, nil
}

// enterSubtree performs the bookkeeping find does for every node it
// passes through: under current's metaMu, hand the read lock on current's
// parent back (unless current is the descent's own starting point, whose
// parent lock, if any, belongs to an outer caller), then count current as
// occupied.
func enterSubtree(current, start *node) {
	current.metaMu.Lock()
	if current.parent != nil && current != start {
		current.parent.monitor.ReaderExit()
	}
	current.inSubtree++
	current.metaMu.Unlock()
}

// findTwo acquires write locks on the nodes named by p1 and p2, in
// lexicographic path order, by descending to their lowest common ancestor
// and then down each diverging branch. It returns the LCA node along with
// the two target nodes in p1, p2 order. When the LCA is not one of the two
// targets, its reader lock has already been released on return; only its
// inSubtree bookkeeping is still owed.
//
// The caller must eventually release all of this via tracebackPair(n1,
// n2, lca), which also accounts for the LCA's still-pending bookkeeping
// when the LCA was not one of the two targets.
func (t *Tree) findTwo(p1, p2 string) (lca, n1, n2 *node, err error) {
	lcaPath, suffix1, suffix2 := pathutil.LCA(p1, p2)

	swapped := !pathutil.Less(p1, p2)
	if swapped {
		suffix1, suffix2 = suffix2, suffix1
	}
	lcaIsLesser := pathutil.IsRoot(suffix1)

	var lcaNode, lesser, greater *node
	if lcaIsLesser {
		lcaNode, err = t.find(t.root, lcaPath, true)
		if err != nil {
			return nil, nil, nil, err
		}
		lesser = lcaNode
	} else {
		lcaNode, err = t.find(t.root, lcaPath, false)
		if err != nil {
			return nil, nil, nil, err
		}
		// Peel off the first component ourselves, using the read lock
		// already held on lcaNode to look it up safely, and descend from
		// that child rather than from lcaNode itself: lcaNode must not be
		// touched a second time by this nested descent, since it is not
		// one of the two nodes this call will hand back to the caller for
		// tracing back.
		component, rest, _ := pathutil.Head(suffix1)
		child, ok := lcaNode.children.Get(component)
		if !ok {
			t.traceback(lcaNode, false, t.root, true)
			return nil, nil, nil, ErrNotExist
		}
		lesser, err = t.find(child, rest, true)
		if err != nil {
			t.traceback(lcaNode, false, t.root, true)
			return nil, nil, nil, err
		}
	}

	component, rest, _ := pathutil.Head(suffix2)
	child, ok := lcaNode.children.Get(component)
	if !ok {
		err = ErrNotExist
	} else {
		greater, err = t.find(child, rest, true)
	}
	if err != nil {
		if lcaIsLesser {
			t.traceback(lesser, true, t.root, true)
		} else {
			t.traceback(lesser, true, lcaNode, false)
			t.traceback(lcaNode, false, t.root, true)
		}
		return nil, nil, nil, err
	}

	if !lcaIsLesser {
		// The LCA is a strict ancestor of both targets: its reader lock
		// (acquired above) is released here directly rather than via
		// traceback, since it is not itself one of the two results the
		// caller will later traceback from. Its inSubtree bookkeeping
		// remains owed and is settled when tracebackPair's root-inclusive
		// walk passes through it.
		lcaNode.monitor.ReaderExit()
	}

	if swapped {
		n1, n2 = greater, lesser
	} else {
		n1, n2 = lesser, greater
	}
	return lcaNode, n1, n2, nil
}

// tracebackPair releases the write locks findTwo acquired on n1 and n2
// (given in the same order findTwo's caller originally asked for them)
// and walks both ancestor chains back to root, visiting their lowest
// common ancestor lca exactly once.
func (t *Tree) tracebackPair(n1, n2, lca *node) {
	if n2 == lca {
		t.traceback(n1, true, lca, false)
		t.traceback(n2, true, t.root, true)
	} else {
		t.traceback(n2, true, lca, false)
		t.traceback(n1, true, t.root, true)
	}
}

// traceback releases the lock on from (a writer lock if writeLocked, else
// a reader lock), then walks the parent chain upward, decrementing each
// visited node's inSubtree counter and performing any deferred
// re-parenting commit or remove-drain handoff that counter reaching zero
// or one triggers, until upTo is reached (inclusive or exclusive per
// inclusive).
func (t *Tree) traceback(from *node, writeLocked bool, upTo *node, inclusive bool) {
	current := from
	first := true
	for {
		current.metaMu.Lock()
		parent := current.parent
		current.inSubtree--
		switch {
		case current.inSubtree == 0 && current.newParent != nil:
			current.parent = current.newParent
			current.newParent = nil
			current.metaMu.Unlock()
			current.monitor.Open()
		case current.inSubtree == 1 && current.removeWaiting:
			current.metaMu.Unlock()
			current.removeGate.Release()
		default:
			current.metaMu.Unlock()
		}

		if first {
			if writeLocked {
				current.monitor.WriterExit()
			} else {
				current.monitor.ReaderExit()
			}
			first = false
		}

		done := inclusive && current == upTo
		done = done || (!inclusive && parent == upTo)
		if done {
			return
		}
		current = parent
	}
}
