package ctree

import "errors"

// Sentinel errors returned by Tree operations. Callers should compare with
// errors.Is rather than switching on the concrete value.
var (
	// ErrInvalidPath is returned when a path argument is not well formed:
	// not '/'-delimited, components outside 'a'-'z', or over a length
	// limit.
	ErrInvalidPath = errors.New("ctree: invalid path")

	// ErrNotExist is returned when an operation requires a path to name an
	// existing node and it does not.
	ErrNotExist = errors.New("ctree: no such node")

	// ErrExist is returned when an operation requires a path to be free
	// and something already occupies it.
	ErrExist = errors.New("ctree: node already exists")

	// ErrNotEmpty is returned when Remove targets a directory with
	// children.
	ErrNotEmpty = errors.New("ctree: node not empty")

	// ErrBusy is returned for operations rejected outright regardless of
	// tree state, such as removing or moving the root, or moving a node
	// into its own subtree.
	ErrBusy = errors.New("ctree: operation not permitted on this node")
)
