package fast

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

func branchingFunction() *ir.Function {
	sig := ir.Signature{Params: []ir.Type{ir.I32}, Returns: &ir.I32}
	fn := ir.NewFunction("abs", sig)
	fn.AddParam("x", ir.I32, ir.SourceLocation{})

	thenBlock := ir.BlockId(1)
	elseBlock := ir.BlockId(2)

	entryTerm := ir.Terminator{
		Kind:      ir.TermBranch,
		Condition: ir.LocalOperand(0),
		Then:      thenBlock,
		Else:      elseBlock,
	}
	fn.AddBlock(nil, entryTerm)
	fn.AddBlock(nil, ir.Terminator{Kind: ir.TermReturn, HasValue: true, Value: ir.LocalOperand(0)})
	fn.AddBlock(nil, ir.Terminator{Kind: ir.TermUnreachable})
	negDest := fn.AddLocal(ir.I32, ir.SourceLocation{})
	fn.Blocks[2].Instructions = []ir.Instruction{{
		Op:      ir.OpUnaryOp,
		UnOp:    ir.UnNeg,
		Operand: ir.LocalOperand(0),
		Type:    ir.I32,
		Dest:    negDest,
		HasDest: true,
	}}
	fn.Blocks[2].Terminator = ir.Terminator{Kind: ir.TermReturn, HasValue: true, Value: ir.LocalOperand(negDest)}
	return fn
}

func TestGeneratorEncodesSimpleFunction(t *testing.T) {
	fn := addOneFunction()
	g := newGenerator()
	if err := g.addFunction(fn); err != nil {
		t.Fatalf("addFunction: %v", err)
	}
	if len(g.codes) != 1 {
		t.Fatalf("expected 1 encoded function body, got %d", len(g.codes))
	}
	if g.stats.FunctionsCompiled != 1 {
		t.Fatalf("expected FunctionsCompiled=1, got %d", g.stats.FunctionsCompiled)
	}
	out := g.emit()
	if string(out[:4]) != string(wasmMagic) {
		t.Fatalf("missing wasm magic header")
	}
}

func TestInstructionEncoderDispatchesBranch(t *testing.T) {
	fn := branchingFunction()
	g := newGenerator()
	if err := g.addFunction(fn); err != nil {
		t.Fatalf("addFunction: %v", err)
	}
	body := g.codes[0]
	found := false
	for _, b := range body {
		if b == opBrTable {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected br_table in encoded body for a function with 3 blocks, got none")
	}
}

func TestBackendCompileProducesValidModule(t *testing.T) {
	m := ir.NewModule("test")
	m.AddFunction(addOneFunction())

	b := New()
	res, err := b.Compile(m, codegen.BackendOptions{Profile: codegen.ProfileDevelopment})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(res.Code) < 8 {
		t.Fatalf("expected a non-trivial wasm binary, got %d bytes", len(res.Code))
	}
	if res.Stats.FunctionsCompiled != 1 {
		t.Fatalf("expected FunctionsCompiled=1, got %d", res.Stats.FunctionsCompiled)
	}
	if _, ok := res.Symbols["add_one"]; !ok {
		t.Fatalf("expected add_one in exported symbols")
	}
}

func TestBackendCompileReusesStructuralCache(t *testing.T) {
	m1 := ir.NewModule("m1")
	m1.AddFunction(addOneFunction())
	m2 := ir.NewModule("m2")
	m2.AddFunction(addOneFunction())

	b := New()
	if _, err := b.Compile(m1, codegen.BackendOptions{}); err != nil {
		t.Fatalf("first Compile: %v", err)
	}
	if len(b.cache) != 1 {
		t.Fatalf("expected one cache entry after first compile, got %d", len(b.cache))
	}
	res2, err := b.Compile(m2, codegen.BackendOptions{})
	if err != nil {
		t.Fatalf("second Compile: %v", err)
	}
	if res2.Stats.FunctionsCompiled != 1 {
		t.Fatalf("expected cached compile to still count as 1 function compiled, got %d", res2.Stats.FunctionsCompiled)
	}
}

func TestUnsupportedTypeRejected(t *testing.T) {
	sig := ir.Signature{Params: []ir.Type{ir.F64}, Returns: &ir.F64}
	fn := ir.NewFunction("double", sig)
	fn.AddParam("x", ir.F64, ir.SourceLocation{})
	dest := fn.AddLocal(ir.F64, ir.SourceLocation{})
	fn.AddBlock(
		[]ir.Instruction{{
			Op:      ir.OpBinaryOp,
			BinOp:   ir.BinAdd,
			Left:    ir.LocalOperand(0),
			Right:   ir.LocalOperand(0),
			Type:    ir.F64,
			Dest:    dest,
			HasDest: true,
		}},
		ir.Terminator{Kind: ir.TermReturn, HasValue: true, Value: ir.LocalOperand(dest)},
	)

	g := newGenerator()
	err := g.addFunction(fn)
	if err == nil {
		t.Fatalf("expected an unsupported-type error for f64 arithmetic, got nil")
	}
	var be *codegen.BackendError
	if !asBackendError(err, &be) {
		t.Fatalf("expected *codegen.BackendError, got %T", err)
	}
	if be.Kind != codegen.ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", be.Kind)
	}
}

func asBackendError(err error, target **codegen.BackendError) bool {
	be, ok := err.(*codegen.BackendError)
	if ok {
		*target = be
	}
	return ok
}
