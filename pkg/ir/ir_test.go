package ir

import "testing"

func addOne() *Function {
	sig := Signature{Params: []Type{I32}, Returns: &I32}
	fn := NewFunction("add_one", sig)
	fn.AddParam("x", I32, SourceLocation{})
	dest := fn.AddLocal(I32, SourceLocation{})
	fn.AddBlock(
		[]Instruction{{
			Op:      OpBinaryOp,
			BinOp:   BinAdd,
			Left:    LocalOperand(0),
			Right:   ConstOperand(Constant{Kind: ConstI32, I32: 1}),
			Type:    I32,
			Dest:    dest,
			HasDest: true,
		}},
		Terminator{Kind: TermReturn, HasValue: true, Value: LocalOperand(dest)},
	)
	return fn
}

func TestValidateAcceptsWellFormedFunction(t *testing.T) {
	if err := Validate(addOne()); err != nil {
		t.Fatalf("expected no validation error, got %v", err)
	}
}

func TestValidateRejectsOutOfRangeLocal(t *testing.T) {
	fn := addOne()
	fn.Blocks[0].Instructions[0].Left = LocalOperand(99)
	err := Validate(fn)
	if err == nil {
		t.Fatal("expected a validation error for an out-of-range local")
	}
	ve, ok := err.(*ValidationError)
	if !ok || ve.Kind != ErrInvalidLocalIndex {
		t.Fatalf("expected ErrInvalidLocalIndex, got %#v", err)
	}
}

func TestValidateRejectsDanglingJumpTarget(t *testing.T) {
	fn := addOne()
	fn.Blocks[0].Terminator = Terminator{Kind: TermJump, Target: 7}
	err := Validate(fn)
	if err == nil {
		t.Fatal("expected a validation error for a dangling jump target")
	}
	ve, ok := err.(*ValidationError)
	if !ok || ve.Kind != ErrInvalidBlockId {
		t.Fatalf("expected ErrInvalidBlockId, got %#v", err)
	}
}

func TestValidateRejectsMissingTerminator(t *testing.T) {
	fn := addOne()
	fn.Blocks[0].Terminator = Terminator{}
	err := Validate(fn)
	if err == nil {
		t.Fatal("expected a validation error for a zero-value terminator")
	}
}

func TestReachableBlocksFollowsBranchesNotDeclarationOrder(t *testing.T) {
	fn := NewFunction("pick", Signature{Params: []Type{I32}, Returns: &I32})
	fn.AddBlock(nil, Terminator{Kind: TermBranch, Condition: LocalOperand(0), Then: 2, Else: 1})
	fn.AddBlock(nil, Terminator{Kind: TermReturn, HasValue: true, Value: LocalOperand(0)}) // block 1, reachable
	fn.AddBlock(nil, Terminator{Kind: TermReturn, HasValue: true, Value: LocalOperand(0)}) // block 2, reachable
	fn.AddBlock(nil, Terminator{Kind: TermUnreachable})                                    // block 3, unreachable

	reachable := ReachableBlocks(fn)
	for _, id := range []BlockId{0, 1, 2} {
		if !reachable[id] {
			t.Fatalf("expected block %d to be reachable", id)
		}
	}
	if reachable[3] {
		t.Fatal("expected block 3 to be unreachable")
	}
}

func TestSignatureKeyDistinguishesParamsAndReturn(t *testing.T) {
	a := Signature{Params: []Type{I32, I64}, Returns: &I32}
	b := Signature{Params: []Type{I32, I64}, Returns: &I64}
	if a.Key() == b.Key() {
		t.Fatalf("expected distinct signature keys for distinct return types, got %q for both", a.Key())
	}
	if !a.Equal(a) {
		t.Fatal("expected a signature to equal itself")
	}
}

func TestTypeEqualComparesStructurally(t *testing.T) {
	size := uint32(4)
	a := Array(I32, &size)
	b := Array(I32, &size)
	if !a.Equal(b) {
		t.Fatal("expected two arrays of the same element type and size to be equal")
	}
	if a.Equal(Array(I64, &size)) {
		t.Fatal("expected arrays of different element types to differ")
	}
}

func TestMarkLinearAndIsLinear(t *testing.T) {
	fn := addOne()
	idx := fn.AddLocal(I32, SourceLocation{})
	if fn.IsLinear(idx) {
		t.Fatal("expected a freshly added local not to be linear")
	}
	fn.MarkLinear(idx)
	if !fn.IsLinear(idx) {
		t.Fatal("expected MarkLinear to register the local as linear")
	}
}

func TestReindexPreservesBlockIdentityNotPosition(t *testing.T) {
	fn := NewFunction("swap", Signature{Returns: &I32})
	fn.AddBlock(nil, Terminator{Kind: TermJump, Target: 1})
	fn.AddBlock(nil, Terminator{Kind: TermReturn, HasValue: true, Value: ConstOperand(Constant{Kind: ConstI32, I32: 1})})

	fn.Blocks[0], fn.Blocks[1] = fn.Blocks[1], fn.Blocks[0]
	fn.Reindex()

	if fn.Block(0) == nil || fn.Block(1) == nil {
		t.Fatal("expected Reindex to keep both block ids resolvable after reordering")
	}
}
