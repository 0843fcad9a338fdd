package linear

import (
	"fmt"

	"github.com/minz/wasmpipe/pkg/ir"
)

// ErrorKind enumerates the closed set of ways a function can fail the
// linear-type passes (spec.md §4.3).
type ErrorKind uint8

const (
	ImplicitDrop ErrorKind = iota
	DoubleConsume
	UnconsumedReturn
	LeakThroughBorrow
	LeakThroughClosure
)

func (k ErrorKind) String() string {
	switch k {
	case ImplicitDrop:
		return "ImplicitDrop"
	case DoubleConsume:
		return "DoubleConsume"
	case UnconsumedReturn:
		return "UnconsumedReturn"
	case LeakThroughBorrow:
		return "LeakThroughBorrow"
	case LeakThroughClosure:
		return "LeakThroughClosure"
	default:
		return "unknown"
	}
}

// Error reports one linear-type violation. A failure in any of the three
// ordered passes aborts compilation (spec.md §4.3) — Check returns the
// first one found rather than accumulating.
type Error struct {
	Kind     ErrorKind
	Function string
	Local    ir.LocalIdx
	Block    ir.BlockId
	Loc      ir.SourceLocation
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: local %d in block %d: %s", e.Function, e.Local, e.Block, e.Kind)
}
