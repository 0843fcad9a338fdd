package lowering

import (
	"testing"

	"github.com/minz/wasmpipe/pkg/ir"
	"github.com/minz/wasmpipe/pkg/mir"
)

func mustParse(t *testing.T, src string) *mir.Module {
	t.Helper()
	m, err := mir.ParseMIRString("test.mir", src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return m
}

func TestLowerSimpleAdd(t *testing.T) {
	m := mustParse(t, `
fn add(a: i32, b: i32) -> i32 {
bb0:
  _0 = a + b
  return
}
`)
	out, err := LowerModule(m)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	if len(out.Functions) != 1 {
		t.Fatalf("expected 1 function, got %d", len(out.Functions))
	}
	f := out.Functions[0]
	if err := ir.Validate(f); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if f.NumParams != 2 {
		t.Fatalf("expected 2 params, got %d", f.NumParams)
	}
	blk := f.Block(0)
	if blk == nil || len(blk.Instructions) != 1 {
		t.Fatalf("expected 1 instruction in bb0, got %+v", blk)
	}
	instr := blk.Instructions[0]
	if instr.Op != ir.OpBinaryOp || instr.BinOp != ir.BinAdd || !instr.HasDest {
		t.Fatalf("unexpected instruction: %+v", instr)
	}
	if blk.Terminator.Kind != ir.TermReturn || !blk.Terminator.HasValue {
		t.Fatalf("unexpected terminator: %+v", blk.Terminator)
	}
}

func TestLowerLinearMoveEmitsConsume(t *testing.T) {
	m := mustParse(t, `
fn consume(linear handle: i32) -> () {
bb0:
  StorageLive(tmp)
  tmp = move handle
  return
}
`)
	out, err := LowerModule(m)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	f := out.Functions[0]
	blk := f.Block(0)
	foundConsume := false
	for _, instr := range blk.Instructions {
		if instr.Op == ir.OpLinearOp && instr.LinearKind == ir.LinearConsume {
			foundConsume = true
		}
	}
	if !foundConsume {
		t.Fatalf("expected a LinearOp Consume instruction, got %+v", blk.Instructions)
	}
	if err := ir.Validate(f); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLowerSwitch(t *testing.T) {
	m := mustParse(t, `
fn classify(x: i32) -> i32 {
bb0:
  switch x [0 -> bb1, 1 -> bb2] otherwise bb2
bb1:
  _0 = 10
  return
bb2:
  _0 = 20
  return
}
`)
	out, err := LowerModule(m)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	f := out.Functions[0]
	if err := ir.Validate(f); err != nil {
		t.Fatalf("validate: %v", err)
	}
	entry := f.Block(0)
	if entry.Terminator.Kind != ir.TermSwitch {
		t.Fatalf("expected switch terminator, got %+v", entry.Terminator)
	}
	if len(entry.Terminator.Cases) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(entry.Terminator.Cases))
	}
}

func TestLowerUnknownCallFails(t *testing.T) {
	m := mustParse(t, `
fn caller() -> i32 {
bb0:
  _0 = call missing()
  return
}
`)
	_, err := LowerModule(m)
	if err == nil {
		t.Fatal("expected an error for a call to an undeclared function")
	}
}

func TestLowerCallResolvesModuleFunction(t *testing.T) {
	m := mustParse(t, `
fn helper(x: i32) -> i32 {
bb0:
  _0 = x
  return
}
fn caller(x: i32) -> i32 {
bb0:
  _0 = call helper(x)
  return
}
`)
	out, err := LowerModule(m)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	if len(out.Functions) != 2 {
		t.Fatalf("expected 2 functions, got %d", len(out.Functions))
	}
	caller := out.Functions[1]
	blk := caller.Block(0)
	var call *ir.Instruction
	for i := range blk.Instructions {
		if blk.Instructions[i].Op == ir.OpCall {
			call = &blk.Instructions[i]
		}
	}
	if call == nil {
		t.Fatal("expected a Call instruction")
	}
	if call.Func.Kind != ir.OperandGlobal || call.Func.Global != 0 {
		t.Fatalf("expected call to resolve to function index 0, got %+v", call.Func)
	}
}
