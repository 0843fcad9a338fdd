package aggressive

import (
	"testing"

	"github.com/minz/wasmpipe/pkg/codegen"
	"github.com/minz/wasmpipe/pkg/ir"
)

func addOneFunction() *ir.Function {
	sig := ir.Signature{Params: []ir.Type{ir.I32}, Returns: &ir.I32}
	fn := ir.NewFunction("add_one", sig)
	fn.AddParam("x", ir.I32, ir.SourceLocation{})
	dest := fn.AddLocal(ir.I32, ir.SourceLocation{})
	fn.AddBlock(
		[]ir.Instruction{{
			Op:      ir.OpBinaryOp,
			BinOp:   ir.BinAdd,
			Left:    ir.LocalOperand(0),
			Right:   ir.ConstOperand(ir.Constant{Kind: ir.ConstI32, I32: 1}),
			Type:    ir.I32,
			Dest:    dest,
			HasDest: true,
		}},
		ir.Terminator{Kind: ir.TermReturn, HasValue: true, Value: ir.LocalOperand(dest)},
	)
	return fn
}

func functionWithDeadBlock() *ir.Function {
	sig := ir.Signature{Params: []ir.Type{ir.I32}, Returns: &ir.I32}
	fn := ir.NewFunction("has_dead_block", sig)
	fn.AddParam("x", ir.I32, ir.SourceLocation{})
	fn.AddBlock(nil, ir.Terminator{Kind: ir.TermReturn, HasValue: true, Value: ir.LocalOperand(0)})
	fn.AddBlock(nil, ir.Terminator{Kind: ir.TermReturn, HasValue: true, Value: ir.LocalOperand(0)})
	return fn
}

func TestBackendCompileProducesValidModule(t *testing.T) {
	m := ir.NewModule("test")
	m.AddFunction(addOneFunction())

	b := New()
	res, err := b.Compile(m, codegen.BackendOptions{Profile: codegen.ProfileRelease})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(res.Code) < 8 {
		t.Fatalf("expected a non-trivial wasm binary, got %d bytes", len(res.Code))
	}
	if _, ok := res.Symbols["add_one"]; !ok {
		t.Fatalf("expected add_one in exported symbols")
	}
	if res.Stats.OptimizationPasses == 0 {
		t.Fatalf("expected at least one optimization pass to have run")
	}
}

func TestCapabilitiesSatisfyValidation(t *testing.T) {
	b := New()
	if err := codegen.ValidateBackend(b); err != nil {
		t.Fatalf("ValidateBackend: %v", err)
	}
	if !b.Capabilities().PGOSupport {
		t.Fatalf("expected aggressive backend to publish pgo_support")
	}
}

func TestUnreachableBlockPrunedByLLIRFeedback(t *testing.T) {
	m := ir.NewModule("test")
	fn := functionWithDeadBlock()
	m.AddFunction(fn)

	b := New()
	if _, err := b.Compile(m, codegen.BackendOptions{Profile: codegen.ProfileDevelopment}); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(fn.Blocks) != 1 {
		t.Fatalf("expected the unreachable second block to be pruned, got %d blocks", len(fn.Blocks))
	}
}

func TestProfileGuidedReorder(t *testing.T) {
	fn := functionWithDeadBlock()
	fn.Blocks[1].Terminator = ir.Terminator{Kind: ir.TermReturn, HasValue: true, Value: ir.LocalOperand(0)}
	original := append([]ir.BasicBlock(nil), fn.Blocks...)

	p := parseProfile(encodeTestProfile(fn.Name, []uint64{1, 100}))
	counts := p.counts[fn.Name]
	if len(counts) != 2 {
		t.Fatalf("expected 2 block counts, got %d", len(counts))
	}
	changed := reorderByProfile(fn, counts)
	if !changed {
		t.Fatalf("expected reordering by descending frequency to change block order")
	}
	if fn.Blocks[0].ID != original[1].ID {
		t.Fatalf("expected the higher-frequency block first after reordering")
	}
}

func encodeTestProfile(name string, counts []uint64) []byte {
	out := make([]byte, 0, 2+len(name)+4+8*len(counts))
	out = append(out, byte(len(name)>>8), byte(len(name)))
	out = append(out, []byte(name)...)
	n := len(counts)
	out = append(out, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	for _, c := range counts {
		for shift := 56; shift >= 0; shift -= 8 {
			out = append(out, byte(c>>uint(shift)))
		}
	}
	return out
}
