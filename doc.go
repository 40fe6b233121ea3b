// Package ctree implements an in-memory, concurrent, hierarchical
// directory tree. Every node may be listed, created, removed, or moved
// concurrently with operations touching unrelated parts of the tree;
// operations that share ancestors serialize only as far up the tree as
// they must.
//
// Concurrency control is built from two hand-rolled primitives in the
// internal/semaphore and internal/nodemonitor packages: a FIFO counting
// semaphore with no barging, and a writer-preferring reader/writer monitor
// with a closeable entry gate built on top of it. Descent from the root to
// a target node holds at most one ancestor's read lock at a time
// ("handover locking"), so a long-running operation deep in one subtree
// never blocks traffic to an unrelated subtree. Operations needing two
// targets (Remove, Move) acquire both write locks by descending to their
// lowest common ancestor and then down each branch in a fixed
// lexicographic path order, which rules out deadlock between concurrent
// two-target operations.
package ctree
