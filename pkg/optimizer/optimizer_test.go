package optimizer

import (
	"testing"

	"github.com/minz/wasmpipe/pkg/ir"
)

func TestConstantFoldingAdd(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{Returns: &ir.I32})
	dest := f.AddLocal(ir.I32, ir.SourceLocation{})
	f.AddBlock(
		[]ir.Instruction{{
			Op: ir.OpBinaryOp, BinOp: ir.BinAdd, Type: ir.I32,
			Left: ir.ConstOperand(ir.Constant{Kind: ir.ConstI32, I32: 2}),
			Right: ir.ConstOperand(ir.Constant{Kind: ir.ConstI32, I32: 3}),
			Dest: dest, HasDest: true,
		}},
		ir.Terminator{Kind: ir.TermReturn, HasValue: true, Value: ir.LocalOperand(dest)},
	)

	pass := &ConstantFolding{}
	changed, err := pass.Run(f)
	if err != nil || !changed {
		t.Fatalf("expected fold, changed=%v err=%v", changed, err)
	}
	instr := f.Blocks[0].Instructions[0]
	if instr.Op != ir.OpLocalSet || instr.Operand.Const.I32 != 5 {
		t.Fatalf("expected folded LocalSet(5), got %+v", instr)
	}
}

func TestConstantFoldingSkipsDivByZero(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{Returns: &ir.I32})
	dest := f.AddLocal(ir.I32, ir.SourceLocation{})
	f.AddBlock(
		[]ir.Instruction{{
			Op: ir.OpBinaryOp, BinOp: ir.BinDiv, Type: ir.I32,
			Left: ir.ConstOperand(ir.Constant{Kind: ir.ConstI32, I32: 2}),
			Right: ir.ConstOperand(ir.Constant{Kind: ir.ConstI32, I32: 0}),
			Dest: dest, HasDest: true,
		}},
		ir.Terminator{Kind: ir.TermReturn, HasValue: true, Value: ir.LocalOperand(dest)},
	)
	pass := &ConstantFolding{}
	changed, err := pass.Run(f)
	if err != nil || changed {
		t.Fatalf("expected division-by-zero left unfolded, changed=%v err=%v", changed, err)
	}
}

func TestStrengthReductionMulShl(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{Returns: &ir.I32})
	x := f.AddParam("x", ir.I32, ir.SourceLocation{})
	dest := f.AddLocal(ir.I32, ir.SourceLocation{})
	f.AddBlock(
		[]ir.Instruction{{
			Op: ir.OpBinaryOp, BinOp: ir.BinMul, Type: ir.I32,
			Left: ir.LocalOperand(x), Right: ir.ConstOperand(ir.Constant{Kind: ir.ConstI32, I32: 8}),
			Dest: dest, HasDest: true,
		}},
		ir.Terminator{Kind: ir.TermReturn, HasValue: true, Value: ir.LocalOperand(dest)},
	)
	pass := &StrengthReduction{}
	changed, err := pass.Run(f)
	if err != nil || !changed {
		t.Fatalf("expected strength reduction, changed=%v err=%v", changed, err)
	}
	instr := f.Blocks[0].Instructions[0]
	if instr.BinOp != ir.BinShl || instr.Right.Const.I32 != 3 {
		t.Fatalf("expected Shl by 3, got %+v", instr)
	}
}

func TestDeadCodeEliminationDropsUnreachableBlock(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{})
	f.AddBlock(nil, ir.Terminator{Kind: ir.TermReturn})
	f.AddBlock(nil, ir.Terminator{Kind: ir.TermUnreachable}) // unreachable from block 0

	pass := &DeadCodeElimination{}
	changed, err := pass.Run(f)
	if err != nil || !changed {
		t.Fatalf("expected DCE to drop block 1, changed=%v err=%v", changed, err)
	}
	if len(f.Blocks) != 1 {
		t.Fatalf("expected 1 block remaining, got %d", len(f.Blocks))
	}
}

func TestDeadCodeEliminationDropsInteriorUnusedLocal(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{Params: []ir.Type{ir.I32}, Returns: &ir.I32})
	f.AddParam("x", ir.I32, ir.SourceLocation{})
	_ = f.AddLocal(ir.I32, ir.SourceLocation{}) // local 1: declared, never referenced anywhere
	dest := f.AddLocal(ir.I32, ir.SourceLocation{}) // local 2: survives, must renumber to 1
	f.AddBlock(
		[]ir.Instruction{{
			Op: ir.OpBinaryOp, BinOp: ir.BinAdd, Type: ir.I32,
			Left: ir.LocalOperand(0), Right: ir.ConstOperand(ir.Constant{Kind: ir.ConstI32, I32: 1}),
			Dest: dest, HasDest: true,
		}},
		ir.Terminator{Kind: ir.TermReturn, HasValue: true, Value: ir.LocalOperand(dest)},
	)

	pass := &DeadCodeElimination{}
	changed, err := pass.Run(f)
	if err != nil || !changed {
		t.Fatalf("expected DCE to drop the interior unused local, changed=%v err=%v", changed, err)
	}
	if len(f.Locals) != 2 {
		t.Fatalf("expected 2 locals remaining (param + dest), got %d", len(f.Locals))
	}
	body := f.Blocks[0].Instructions
	if body[0].Dest != 1 {
		t.Fatalf("expected surviving dest local renumbered to 1, got %d", body[0].Dest)
	}
	if term := f.Blocks[0].Terminator; term.Value.Local != 1 {
		t.Fatalf("expected terminator's return operand renumbered to 1, got %d", term.Value.Local)
	}
}

func TestOptimizerRevertsOnInvalidPass(t *testing.T) {
	f := ir.NewFunction("f", ir.Signature{})
	f.AddBlock(nil, ir.Terminator{Kind: ir.TermReturn})
	m := ir.NewModule("m")
	m.AddFunction(f)

	breaking := &breakingPass{}
	opt := NewWithPasses([]Pass{breaking})
	err := opt.Optimize(m)
	if err == nil {
		t.Fatal("expected OptimizationFailed")
	}
	if _, ok := err.(*OptimizationFailed); !ok {
		t.Fatalf("expected *OptimizationFailed, got %T", err)
	}
	if len(f.Blocks[0].Instructions) != 0 {
		t.Fatalf("expected revert to pre-pass state, got %+v", f.Blocks[0].Instructions)
	}
}

// breakingPass always mutates the function into an invalid state, to
// exercise the fail-safe revert path (spec.md §4.4).
type breakingPass struct{}

func (breakingPass) Name() string { return "breaking" }
func (breakingPass) Run(f *ir.Function) (bool, error) {
	f.Blocks[0].Instructions = append(f.Blocks[0].Instructions, ir.Instruction{
		Op: ir.OpLocalSet, Local: ir.LocalIdx(999),
	})
	return true, nil
}
