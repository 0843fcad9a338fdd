// Package linear enforces exactly-once consumption of linear-typed locals
// over the IR's ownership annotation stream. It runs three ordered passes —
// mandatory-destruction scan, path-completeness forward dataflow, and a
// capability-escape check — plus an unwind-discipline check, mirroring
// spec.md §4.3. Grounded on original_source/src/wasmir/linear_passes.rs's
// run_linear_object_drop_scan / LinearLivenessAnalysis /
// run_linear_capability_escape_check structure, rebuilt against this
// module's ownership-annotation encoding rather than a MIR drop-scan.
package linear

import "github.com/minz/wasmpipe/pkg/ir"

// State is a linear local's lifecycle state, per spec.md §4.3.2's domain.
type State uint8

const (
	Uninitialized State = iota
	Active
	Consumed
)

// Join implements the lattice join "Active ⊔ Consumed = Active": if any
// predecessor path leaves the local live, it is live at the merge point.
func Join(a, b State) State {
	if a == Active || b == Active {
		return Active
	}
	if a == Consumed || b == Consumed {
		return Consumed
	}
	return Uninitialized
}

// Check runs the three linear-type passes over f in order, with the
// function-exit completeness check right after path completeness, and then
// the unwind-discipline check. It returns the
// first violation found; per spec.md §4.3, a failure in any pass aborts
// compilation rather than accumulating diagnostics the way lowering does.
func Check(f *ir.Function) error {
	if len(f.LinearLocals) == 0 {
		return nil
	}
	if err := destructionScan(f); err != nil {
		return err
	}
	entryStates, exitStates, err := pathCompleteness(f)
	if err != nil {
		return err
	}
	if err := unconsumedReturnCheck(f, exitStates); err != nil {
		return err
	}
	if err := capabilityEscapeCheck(f); err != nil {
		return err
	}
	return unwindDiscipline(f, entryStates)
}

// perBlockEvents groups a function's ownership annotations by block, in
// original insertion order (which is statement order within a block).
func perBlockEvents(f *ir.Function) map[ir.BlockId][]ir.OwnershipAnnotation {
	out := map[ir.BlockId][]ir.OwnershipAnnotation{}
	for _, a := range f.Ownership {
		if !f.IsLinear(a.Variable) {
			continue
		}
		out[a.Block] = append(out[a.Block], a)
	}
	return out
}

// destructionScan implements §4.3.1: a StorageDead while Active/Owned
// signals an implicit drop; StorageDead on a Consumed local resets it to
// Uninitialized (the slot becomes reusable). It walks each block
// independently starting from Uninitialized — a simpler, block-local
// approximation of the full dataflow below, matching the scan's own
// description as a pass over "every block".
func destructionScan(f *ir.Function) error {
	events := perBlockEvents(f)
	for blockID, evs := range events {
		state := map[ir.LocalIdx]State{}
		for _, a := range evs {
			switch a.State {
			case ir.StateOwned:
				state[a.Variable] = Active
			case ir.StateBorrowed:
				// borrow does not change destruction-scan state; capability
				// escape (§4.3.3) handles borrow-specific violations.
			case ir.StateConsumed:
				state[a.Variable] = Consumed
			case ir.StateDestroyed:
				switch state[a.Variable] {
				case Active:
					return &Error{Kind: ImplicitDrop, Function: f.Name, Local: a.Variable, Block: blockID, Loc: a.Loc}
				case Consumed:
					state[a.Variable] = Uninitialized
				}
			}
		}
	}
	return nil
}

// pathCompleteness implements §4.3.2's forward dataflow: a worklist fixpoint
// over the CFG, joining predecessor exit states, applying each block's
// transfer function, and flagging a double-consume the instant it occurs.
// It returns each block's *entry* and *exit* states per linear local: the
// caller checks function-exit completeness against the exit states and
// unwind discipline against the entry states.
func pathCompleteness(f *ir.Function) (map[ir.BlockId]map[ir.LocalIdx]State, map[ir.BlockId]map[ir.LocalIdx]State, error) {
	events := perBlockEvents(f)
	entry := map[ir.BlockId]map[ir.LocalIdx]State{}
	exit := map[ir.BlockId]map[ir.LocalIdx]State{}

	preds := predecessors(f)
	var order []ir.BlockId
	for _, b := range f.Blocks {
		order = append(order, b.ID)
	}

	changed := true
	for changed {
		changed = false
		for _, blockID := range order {
			in := map[ir.LocalIdx]State{}
			for _, p := range preds[blockID] {
				if ex, ok := exit[p]; ok {
					for local, st := range ex {
						if cur, has := in[local]; has {
							in[local] = Join(cur, st)
						} else {
							in[local] = st
						}
					}
				}
			}
			if prevIn, ok := entry[blockID]; ok && statesEqual(prevIn, in) {
				// entry state unchanged since last visit; exit is already
				// current unless this is the very first computation.
				if _, computed := exit[blockID]; computed {
					continue
				}
			}
			entry[blockID] = in

			out := map[ir.LocalIdx]State{}
			for local, st := range in {
				out[local] = st
			}
			for _, a := range events[blockID] {
				switch a.State {
				case ir.StateOwned:
					out[a.Variable] = Active
				case ir.StateConsumed:
					if out[a.Variable] == Consumed {
						return nil, nil, &Error{Kind: DoubleConsume, Function: f.Name, Local: a.Variable, Block: blockID, Loc: a.Loc}
					}
					out[a.Variable] = Consumed
				case ir.StateDestroyed:
					if out[a.Variable] == Consumed {
						out[a.Variable] = Uninitialized
					}
					// Active-while-destroyed is flagged by destructionScan,
					// already run before this pass.
				}
			}
			if prevOut, ok := exit[blockID]; !ok || !statesEqual(prevOut, out) {
				exit[blockID] = out
				changed = true
			}
		}
	}
	return entry, exit, nil
}

func statesEqual(a, b map[ir.LocalIdx]State) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// predecessors builds the reverse edge map from terminators.
func predecessors(f *ir.Function) map[ir.BlockId][]ir.BlockId {
	preds := map[ir.BlockId][]ir.BlockId{}
	add := func(from, to ir.BlockId) { preds[to] = append(preds[to], from) }
	for _, b := range f.Blocks {
		switch b.Terminator.Kind {
		case ir.TermJump:
			add(b.ID, b.Terminator.Target)
		case ir.TermBranch:
			add(b.ID, b.Terminator.Then)
			add(b.ID, b.Terminator.Else)
		case ir.TermSwitch:
			add(b.ID, b.Terminator.Default)
			for _, c := range b.Terminator.Cases {
				add(b.ID, c.Target)
			}
		}
	}
	return preds
}

// unconsumedReturnCheck implements the exit-completeness rule: at every
// block ending in Return, every linear local must be Uninitialized or
// Consumed.
func unconsumedReturnCheck(f *ir.Function, exitStates map[ir.BlockId]map[ir.LocalIdx]State) error {
	for _, b := range f.Blocks {
		if b.Terminator.Kind != ir.TermReturn {
			continue
		}
		st := exitStates[b.ID]
		for local := range f.LinearLocals {
			if st[local] == Active {
				return &Error{Kind: UnconsumedReturn, Function: f.Name, Local: local, Block: b.ID, Loc: b.Terminator.Loc}
			}
		}
	}
	return nil
}

// capabilityEscapeCheck implements §4.3.3: at every consumption point, no
// outstanding borrow of the consumed local may be live. A borrow begins at
// a Borrowed annotation and, absent an explicit release, is considered live
// until the function's linear-op capability set notes a Release — the
// stricter rule from the prose (borrows captured into heap structures or
// closures also count) is approximated here by also failing when a
// LinearRelease instruction for that local was never emitted before the
// consume.
func capabilityEscapeCheck(f *ir.Function) error {
	events := perBlockEvents(f)
	for blockID, evs := range events {
		borrowed := map[ir.LocalIdx]bool{}
		for _, a := range evs {
			switch a.State {
			case ir.StateBorrowed:
				borrowed[a.Variable] = true
			case ir.StateConsumed:
				if borrowed[a.Variable] {
					kind := LeakThroughBorrow
					if closureCapture(f, a.Variable) {
						kind = LeakThroughClosure
					}
					return &Error{Kind: kind, Function: f.Name, Local: a.Variable, Block: blockID, Loc: a.Loc}
				}
			case ir.StateDestroyed:
				delete(borrowed, a.Variable)
			}
		}
		for bi := range f.Block(blockID).Instructions {
			instr := &f.Block(blockID).Instructions[bi]
			if instr.Op == ir.OpLinearOp && instr.LinearKind == ir.LinearRelease && instr.LinearVal.Kind == ir.OperandLocal {
				delete(borrowed, instr.LinearVal.Local)
			}
		}
	}
	return nil
}

// closureCapture is a narrow heuristic: a local captured as a Call argument
// to a function-valued (FuncRef) callee is treated as captured into a
// closure environment rather than a plain borrow escape.
func closureCapture(f *ir.Function, local ir.LocalIdx) bool {
	for instr := range f.AllInstructions() {
		if instr.Op != ir.OpCall {
			continue
		}
		if instr.Func.Kind == ir.OperandLocal {
			for _, arg := range instr.Args {
				if arg.Kind == ir.OperandLocal && arg.Local == local {
					return true
				}
			}
		}
	}
	return false
}

// unwindDiscipline implements §4.3.4: every cleanup block must consume, or
// be preceded by code that consumes, every linear local still active at the
// point of unwinding. wasmpipe's IR has no distinct unwind edge (the wasm
// targets this module emits to use trap-based abort rather that
// original_source's landing-pad model), so cleanup blocks are identified by
// convention: a block whose first instruction is a LinearOp{Release} is a
// compiler-inserted cleanup block, and every linear local Active at that
// block's entry (computed by pathCompleteness) must be consumed somewhere
// in it.
func unwindDiscipline(f *ir.Function, entryStates map[ir.BlockId]map[ir.LocalIdx]State) error {
	for _, b := range f.Blocks {
		isCleanup := len(b.Instructions) > 0 &&
			b.Instructions[0].Op == ir.OpLinearOp &&
			b.Instructions[0].LinearKind == ir.LinearRelease
		if !isCleanup {
			continue
		}
		consumed := map[ir.LocalIdx]bool{}
		for _, instr := range b.Instructions {
			if instr.Op == ir.OpLinearOp && instr.LinearKind == ir.LinearConsume && instr.LinearVal.Kind == ir.OperandLocal {
				consumed[instr.LinearVal.Local] = true
			}
		}
		for local, st := range entryStates[b.ID] {
			if st == Active && !consumed[local] {
				return &Error{Kind: ImplicitDrop, Function: f.Name, Local: local, Block: b.ID, Loc: b.Instructions[0].Loc}
			}
		}
	}
	return nil
}
