package optimizer

import "github.com/minz/wasmpipe/pkg/ir"

// DeadCodeElimination drops unreachable blocks and then-unused locals, per
// spec.md §4.4: "Compute the set of reachable blocks from block 0 ... drop
// unreachable blocks. Recompute used_locals ... and drop locals that are
// neither a parameter ... nor used." Adapted from minzc's
// dead_code_elimination.go mark-then-sweep shape (markUsedRegisters /
// markReferencedLabels followed by a filtering rewrite), rebuilt against
// block/local reachability instead of flat-instruction-list register
// liveness since this IR is block-structured, not a linear tape.
type DeadCodeElimination struct{}

func (p *DeadCodeElimination) Name() string { return "dead-code-elimination" }

func (p *DeadCodeElimination) Run(f *ir.Function) (bool, error) {
	changed := false

	reachable := ir.ReachableBlocks(f)
	if len(reachable) < len(f.Blocks) {
		kept := f.Blocks[:0]
		for _, b := range f.Blocks {
			if reachable[b.ID] {
				kept = append(kept, b)
			}
		}
		f.Blocks = append([]ir.BasicBlock(nil), kept...)
		f.Reindex()
		changed = true
	}

	used := f.UsedLocals()
	if len(used) < len(f.Locals) {
		dropUnusedLocals(f, used)
		changed = true
	}

	return changed, nil
}

// dropUnusedLocals removes every local neither a parameter nor present in
// used, wherever it sits in the list (not just a trailing run), and
// renumbers every remaining LocalIdx reference to match. Parameters are
// always in used — UsedLocals marks the first NumParams indices
// unconditionally — so they keep their original slots; only the temporaries
// lowering and earlier passes appended can move.
func dropUnusedLocals(f *ir.Function, used map[ir.LocalIdx]bool) {
	remap := make(map[ir.LocalIdx]ir.LocalIdx, len(used))
	kept := make([]ir.Local, 0, len(used))
	for old := range f.Locals {
		oldIdx := ir.LocalIdx(old)
		if !used[oldIdx] {
			continue
		}
		remap[oldIdx] = ir.LocalIdx(len(kept))
		kept = append(kept, f.Locals[old])
	}
	f.Locals = kept

	remapOperand := func(o *ir.Operand) {
		if o.Kind == ir.OperandLocal {
			o.Local = remap[o.Local]
		}
	}

	for instr := range f.AllInstructions() {
		instr.Local = remap[instr.Local]
		remapOperand(&instr.Operand)
		remapOperand(&instr.Left)
		remapOperand(&instr.Right)
		remapOperand(&instr.Addr)
		remapOperand(&instr.Value)
		remapOperand(&instr.Func)
		for i := range instr.Args {
			remapOperand(&instr.Args[i])
		}
		if instr.HasDest {
			instr.Dest = remap[instr.Dest]
		}
		remapOperand(&instr.CastValue)
		remapOperand(&instr.LinearVal)
		for i, p := range instr.Params {
			instr.Params[i] = remap[p]
		}
		if instr.HasReturnValue {
			remapOperand(&instr.ReturnValue)
		}
	}

	for bi := range f.Blocks {
		term := &f.Blocks[bi].Terminator
		switch term.Kind {
		case ir.TermReturn:
			if term.HasValue {
				remapOperand(&term.Value)
			}
		case ir.TermBranch:
			remapOperand(&term.Condition)
		case ir.TermSwitch:
			remapOperand(&term.SwitchValue)
		}
	}

	for i := range f.Ownership {
		f.Ownership[i].Variable = remap[f.Ownership[i].Variable]
	}

	renumberedLinear := make(map[ir.LocalIdx]bool, len(f.LinearLocals))
	for idx, v := range f.LinearLocals {
		if newIdx, ok := remap[idx]; ok {
			renumberedLinear[newIdx] = v
		}
	}
	f.LinearLocals = renumberedLinear
}
