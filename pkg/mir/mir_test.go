package mir

import "testing"

func TestParseMIRStringSimpleFunction(t *testing.T) {
	m, err := ParseMIRString("t.mir", `
fn add_one(x: i32) -> i32 {
bb0:
  result = x + 1
  return
}
`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(m.Functions) != 1 {
		t.Fatalf("expected 1 function, got %d", len(m.Functions))
	}
	fn := m.Functions[0]
	if fn.Name != "add_one" {
		t.Fatalf("expected name add_one, got %q", fn.Name)
	}
	if fn.NumParams != 1 {
		t.Fatalf("expected 1 param, got %d", fn.NumParams)
	}
	if fn.ReturnType.Kind != TI32 {
		t.Fatalf("expected i32 return type, got %v", fn.ReturnType.Kind)
	}
	if len(fn.Blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(fn.Blocks))
	}
	if len(fn.Blocks[0].Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(fn.Blocks[0].Statements))
	}
}

func TestParseMIRStringLinearParam(t *testing.T) {
	m, err := ParseMIRString("t.mir", `
fn take(linear h: i32) -> () {
bb0:
  StorageDead(h)
  return
}
`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	fn := m.Functions[0]
	if !fn.Linear[0] {
		t.Fatal("expected param 0 to be marked linear")
	}
}

func TestParseMIRStringForwardGoto(t *testing.T) {
	m, err := ParseMIRString("t.mir", `
fn loopy() -> () {
bb0:
  goto bb1
bb1:
  return
}
`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	fn := m.Functions[0]
	term := fn.Blocks[0].Terminator
	if term.Kind != TermGoto || term.Target != 1 {
		t.Fatalf("expected goto bb1 (idx 1), got %+v", term)
	}
}

func TestParseMIRStringSwitch(t *testing.T) {
	m, err := ParseMIRString("t.mir", `
fn pick(x: i32) -> i32 {
bb0:
  switch x [0 -> bb1, 1 -> bb2] otherwise bb1
bb1:
  return
bb2:
  return
}
`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	term := m.Functions[0].Blocks[0].Terminator
	if term.Kind != TermSwitchInt {
		t.Fatalf("expected a switch terminator, got %v", term.Kind)
	}
	if len(term.Arms) != 2 {
		t.Fatalf("expected 2 switch arms, got %d", len(term.Arms))
	}
	if term.Otherwise != 1 {
		t.Fatalf("expected otherwise to target bb1 (idx 1), got %d", term.Otherwise)
	}
}

func TestParseMIRStringUnknownBlockIsError(t *testing.T) {
	_, err := ParseMIRString("t.mir", `
fn bad() -> () {
bb0:
  goto bb7
}
`)
	if err == nil {
		t.Fatal("expected an error for a goto targeting an undeclared block")
	}
}

func TestParseMIRStringCallAndBinOp(t *testing.T) {
	m, err := ParseMIRString("t.mir", `
fn caller(x: i32, y: i32) -> i32 {
bb0:
  sum = x + y
  out = call helper(sum, 2)
  return
}
`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	stmts := m.Functions[0].Blocks[0].Statements
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(stmts))
	}
	if stmts[0].Source.Kind != RBinaryOp || stmts[0].Source.BinOp != BAdd {
		t.Fatalf("expected a binary add rvalue, got %+v", stmts[0].Source)
	}
	if stmts[1].Source.Kind != RCall || stmts[1].Source.CallFunc != "helper" {
		t.Fatalf("expected a call to helper, got %+v", stmts[1].Source)
	}
	if len(stmts[1].Source.CallArgs) != 2 {
		t.Fatalf("expected 2 call args, got %d", len(stmts[1].Source.CallArgs))
	}
}
