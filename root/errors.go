package root

import (
	"errors"
	"fmt"

	"github.com/joshuapare/rootkit/root/alloc"
)

var (
	// ErrAllocFailure indicates a new pool could not be obtained. Create
	// returns the zero Handle with it.
	ErrAllocFailure = alloc.ErrAllocFailure

	// ErrTooWide indicates CreateN was given more values than the widest
	// size class holds.
	ErrTooWide = alloc.ErrTooWide

	// ErrClosed indicates use of an Arena after Close.
	ErrClosed = alloc.ErrClosed

	// ErrUseAfterDelete is reported when a deleted root is used again.
	ErrUseAfterDelete = errors.New("root: use after delete")
)

// violation panics with a contract violation.
func violation(op string, err error) {
	panic(fmt.Errorf("root: %s: %w", op, err))
}
