package ir

import "fmt"

// ValidationErrorKind enumerates the closed set of ways a Function can fail
// to satisfy the IR's structural invariants.
type ValidationErrorKind uint8

const (
	ErrInvalidLocalIndex ValidationErrorKind = iota
	ErrInvalidBlockId
	ErrMissingTerminator
	ErrTypeMismatch
	ErrMultipleEntries
)

// ValidationError reports why validate rejected a function. It carries
// enough context (function name, offending block, index) to point to the
// specific failure.
type ValidationError struct {
	Kind     ValidationErrorKind
	Function string
	Block    BlockId
	HasBlock bool
	Index    LocalIdx
	Where    string
	Expected string
	Got      string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case ErrInvalidLocalIndex:
		return fmt.Sprintf("%s: invalid local index %d", e.Function, e.Index)
	case ErrInvalidBlockId:
		if e.HasBlock {
			return fmt.Sprintf("%s: invalid block id %d referenced", e.Function, e.Block)
		}
		return fmt.Sprintf("%s: invalid block id referenced", e.Function)
	case ErrMissingTerminator:
		return fmt.Sprintf("%s: block %d has no terminator", e.Function, e.Block)
	case ErrTypeMismatch:
		return fmt.Sprintf("%s: type mismatch at %s: expected %s, got %s", e.Function, e.Where, e.Expected, e.Got)
	case ErrMultipleEntries:
		return fmt.Sprintf("%s: function has no block 0 despite having blocks", e.Function)
	default:
		return fmt.Sprintf("%s: validation error", e.Function)
	}
}

// Validate checks every structural invariant listed in spec §3 and returns
// the first violation found, or nil if the function is well-formed.
// Validation is deterministic: given the same function, it always reports
// the same first error.
func Validate(f *Function) error {
	numLocals := LocalIdx(len(f.Locals))

	if len(f.Blocks) > 0 {
		if f.Block(0) == nil {
			return &ValidationError{Kind: ErrMultipleEntries, Function: f.Name}
		}
	}

	blockExists := func(id BlockId) bool {
		return f.Block(id) != nil
	}

	checkOperand := func(o Operand) error {
		if o.Kind == OperandLocal && o.Local >= numLocals {
			return &ValidationError{Kind: ErrInvalidLocalIndex, Function: f.Name, Index: o.Local}
		}
		if o.Kind == OperandStackValue {
			return &ValidationError{Kind: ErrTypeMismatch, Function: f.Name, Where: "operand", Expected: "Local|Constant|Global", Got: "StackValue"}
		}
		return nil
	}

	for bi := range f.Blocks {
		b := &f.Blocks[bi]

		for ii := range b.Instructions {
			instr := &b.Instructions[ii]
			switch instr.Op {
			case OpLocalGet:
				if instr.Local >= numLocals {
					return &ValidationError{Kind: ErrInvalidLocalIndex, Function: f.Name, Index: instr.Local}
				}
			case OpLocalSet:
				if instr.Local >= numLocals {
					return &ValidationError{Kind: ErrInvalidLocalIndex, Function: f.Name, Index: instr.Local}
				}
				if err := checkOperand(instr.Operand); err != nil {
					return err
				}
			case OpBinaryOp:
				if err := checkOperand(instr.Left); err != nil {
					return err
				}
				if err := checkOperand(instr.Right); err != nil {
					return err
				}
				if instr.Type.IsInteger() == instr.Type.IsFloat() {
					// neither or both: not a recognized arithmetic type class
					return &ValidationError{Kind: ErrTypeMismatch, Function: f.Name, Where: fmt.Sprintf("block %d binary op", b.ID), Expected: "integer or float", Got: instr.Type.String()}
				}
				if instr.HasDest && instr.Dest >= numLocals {
					return &ValidationError{Kind: ErrInvalidLocalIndex, Function: f.Name, Index: instr.Dest}
				}
			case OpUnaryOp:
				if err := checkOperand(instr.Operand); err != nil {
					return err
				}
				if instr.HasDest && instr.Dest >= numLocals {
					return &ValidationError{Kind: ErrInvalidLocalIndex, Function: f.Name, Index: instr.Dest}
				}
			case OpMemoryLoad:
				if err := checkOperand(instr.Addr); err != nil {
					return err
				}
			case OpMemoryStore:
				if err := checkOperand(instr.Addr); err != nil {
					return err
				}
				if err := checkOperand(instr.Value); err != nil {
					return err
				}
			case OpCall:
				if err := checkOperand(instr.Func); err != nil {
					return err
				}
				for _, a := range instr.Args {
					if err := checkOperand(a); err != nil {
						return err
					}
				}
				if instr.HasDest && instr.Dest >= numLocals {
					return &ValidationError{Kind: ErrInvalidLocalIndex, Function: f.Name, Index: instr.Dest}
				}
			case OpExternRefCast:
				if err := checkOperand(instr.CastValue); err != nil {
					return err
				}
				if instr.HasDest && instr.Dest >= numLocals {
					return &ValidationError{Kind: ErrInvalidLocalIndex, Function: f.Name, Index: instr.Dest}
				}
			case OpLinearOp:
				if err := checkOperand(instr.LinearVal); err != nil {
					return err
				}
			case OpInvariantCheck:
				for _, p := range instr.Params {
					if p >= numLocals {
						return &ValidationError{Kind: ErrInvalidLocalIndex, Function: f.Name, Index: p}
					}
				}
			}
		}

		switch b.Terminator.Kind {
		case TermJump:
			if !blockExists(b.Terminator.Target) {
				return &ValidationError{Kind: ErrInvalidBlockId, Function: f.Name, Block: b.Terminator.Target, HasBlock: true}
			}
		case TermBranch:
			if err := checkOperand(b.Terminator.Condition); err != nil {
				return err
			}
			if !blockExists(b.Terminator.Then) {
				return &ValidationError{Kind: ErrInvalidBlockId, Function: f.Name, Block: b.Terminator.Then, HasBlock: true}
			}
			if !blockExists(b.Terminator.Else) {
				return &ValidationError{Kind: ErrInvalidBlockId, Function: f.Name, Block: b.Terminator.Else, HasBlock: true}
			}
		case TermSwitch:
			if err := checkOperand(b.Terminator.SwitchValue); err != nil {
				return err
			}
			for _, c := range b.Terminator.Cases {
				if !blockExists(c.Target) {
					return &ValidationError{Kind: ErrInvalidBlockId, Function: f.Name, Block: c.Target, HasBlock: true}
				}
			}
			if !blockExists(b.Terminator.Default) {
				return &ValidationError{Kind: ErrInvalidBlockId, Function: f.Name, Block: b.Terminator.Default, HasBlock: true}
			}
		case TermReturn:
			if b.Terminator.HasValue {
				if err := checkOperand(b.Terminator.Value); err != nil {
					return err
				}
			}
		case TermUnreachable:
			// no operands to check
		default:
			return &ValidationError{Kind: ErrMissingTerminator, Function: f.Name, Block: b.ID}
		}
	}

	return nil
}

// ReachableBlocks computes the set of block ids reachable from block 0 by
// following terminator edges (Jump, Branch, Switch targets).
func ReachableBlocks(f *Function) map[BlockId]bool {
	reachable := map[BlockId]bool{}
	if len(f.Blocks) == 0 {
		return reachable
	}
	var worklist []BlockId
	worklist = append(worklist, BlockId(0))
	for len(worklist) > 0 {
		id := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if reachable[id] {
			continue
		}
		reachable[id] = true
		b := f.Block(id)
		if b == nil {
			continue
		}
		switch b.Terminator.Kind {
		case TermJump:
			worklist = append(worklist, b.Terminator.Target)
		case TermBranch:
			worklist = append(worklist, b.Terminator.Then, b.Terminator.Else)
		case TermSwitch:
			worklist = append(worklist, b.Terminator.Default)
			for _, c := range b.Terminator.Cases {
				worklist = append(worklist, c.Target)
			}
		}
	}
	return reachable
}
