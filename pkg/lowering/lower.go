// Package lowering translates one MIR function at a time into the typed IR
// consumed by the optimizer and the codegen backends, making the MIR
// frontend's implicit linear-move, borrow, aliasing, and external-reference
// properties explicit in the emitted instructions (see the mapping notes on
// each lowering method). Grounded on original_source/src/wasmir/lower.rs's
// two-pass LoweringContext: blocks are created empty first so forward jump
// targets resolve, then statements and terminators are translated in a
// second pass.
package lowering

import (
	"github.com/minz/wasmpipe/pkg/ir"
	"github.com/minz/wasmpipe/pkg/mir"
)

// Context holds the state of one function's lowering. FuncIndex resolves a
// MIR call target's name to the module-level function index IR calls
// reference; build it once per module with BuildFuncIndex and reuse it
// across every function lowered from that module.
type Context struct {
	mf        *mir.Function
	f         *ir.Function
	blockMap  map[mir.BlockIdx]ir.BlockId
	localMap  map[mir.LocalIdx]ir.LocalIdx
	funcIndex map[string]uint32
	errs      Errors
}

// BuildFuncIndex assigns each module function a stable index in declaration
// order, used to resolve call targets during lowering.
func BuildFuncIndex(m *mir.Module) map[string]uint32 {
	idx := make(map[string]uint32, len(m.Functions))
	for i, f := range m.Functions {
		idx[f.Name] = uint32(i)
	}
	return idx
}

// LowerModule lowers every function in a MIR module, collecting per-function
// errors. It returns the functions that lowered cleanly plus a combined
// error if any function failed; per spec.md §4.2, a function with errors is
// entirely discarded rather than emitted partially.
func LowerModule(m *mir.Module) (*ir.Module, error) {
	funcIndex := BuildFuncIndex(m)
	out := ir.NewModule(m.Name)
	var allErrs Errors
	for _, mf := range m.Functions {
		f, err := LowerFunction(mf, funcIndex)
		if err != nil {
			if es, ok := err.(Errors); ok {
				allErrs = append(allErrs, es...)
			} else {
				allErrs = append(allErrs, &Error{Kind: ErrUnknownConstruct, Function: mf.Name, Detail: err.Error()})
			}
			continue
		}
		out.AddFunction(f)
	}
	if len(allErrs) > 0 {
		return nil, allErrs
	}
	return out, nil
}

// LowerFunction lowers a single MIR function to IR. funcIndex resolves call
// targets; pass the result of BuildFuncIndex for the enclosing module, or
// nil if the function contains no calls.
func LowerFunction(mf *mir.Function, funcIndex map[string]uint32) (*ir.Function, error) {
	ctx := &Context{
		mf:        mf,
		blockMap:  map[mir.BlockIdx]ir.BlockId{},
		localMap:  map[mir.LocalIdx]ir.LocalIdx{},
		funcIndex: funcIndex,
	}

	sig := ctx.buildSignature()
	ctx.f = ir.NewFunction(mf.Name, sig)

	ctx.lowerLocals()
	ctx.lowerBlocksPass1()
	ctx.lowerBlocksPass2()
	ctx.lowerNonAliasing()

	if len(ctx.errs) > 0 {
		return nil, ctx.errs
	}
	return ctx.f, nil
}

func (c *Context) fail(kind ErrorKind, detail string, loc mir.SourceLocation) {
	c.errs = append(c.errs, &Error{
		Kind:     kind,
		Function: c.mf.Name,
		Detail:   detail,
		Loc:      FileLoc{File: loc.File, Line: loc.Line, Column: loc.Column},
	})
}

func (c *Context) buildSignature() ir.Signature {
	sig := ir.Signature{}
	for i := 0; i < c.mf.NumParams; i++ {
		sig.Params = append(sig.Params, mapType(c.mf.Locals[i].Type))
	}
	if c.mf.ReturnType.Kind != mir.TUnit {
		rt := mapType(c.mf.ReturnType)
		sig.Returns = &rt
	}
	return sig
}

// lowerLocals copies MIR locals into IR locals 1:1 and in the same order,
// so localMap is the identity map on indices — kept explicit (rather than
// relying on positional coincidence) because a future MIR dialect may not
// guarantee params-first ordering.
func (c *Context) lowerLocals() {
	for i := 0; i < c.mf.NumParams; i++ {
		l := c.mf.Locals[i]
		idx := c.f.AddParam(l.Name, mapType(l.Type), toIRLoc(l.Loc))
		c.localMap[mir.LocalIdx(i)] = idx
		if c.mf.IsLinear(mir.LocalIdx(i)) {
			c.f.MarkLinear(idx)
			c.f.AddOwnershipAnnotation(ir.OwnershipAnnotation{Variable: idx, State: ir.StateOwned, Block: 0, Loc: toIRLoc(l.Loc)})
		}
	}
	for i := c.mf.NumParams; i < len(c.mf.Locals); i++ {
		l := c.mf.Locals[i]
		idx := c.f.AddLocal(mapType(l.Type), toIRLoc(l.Loc))
		c.localMap[mir.LocalIdx(i)] = idx
		if c.mf.IsLinear(mir.LocalIdx(i)) {
			c.f.MarkLinear(idx)
		}
	}
}

// lowerBlocksPass1 creates one empty IR block per MIR block so forward jump
// and switch targets resolve during pass 2.
func (c *Context) lowerBlocksPass1() {
	for i := range c.mf.Blocks {
		id := c.f.AddBlock(nil, ir.Terminator{Kind: ir.TermUnreachable})
		c.blockMap[mir.BlockIdx(i)] = id
	}
}

func (c *Context) lowerBlocksPass2() {
	for i, mb := range c.mf.Blocks {
		blockID := c.blockMap[mir.BlockIdx(i)]
		var instrs []ir.Instruction
		var lastAssign *mir.LocalIdx
		for _, stmt := range mb.Statements {
			instrs = append(instrs, c.lowerStatement(blockID, stmt)...)
			if stmt.Kind == mir.StmtAssign {
				l := stmt.Dest.Local
				lastAssign = &l
			}
		}
		term := c.lowerTerminator(blockID, mb.Terminator, lastAssign)
		blk := c.f.Block(blockID)
		blk.Instructions = instrs
		blk.Terminator = term
	}
}

// lowerNonAliasing implements spec.md §4.2 point 3: parameters the frontend
// guarantees do not alias become an InvariantCheck at function entry.
func (c *Context) lowerNonAliasing() {
	if len(c.mf.NonAliasing) == 0 {
		return
	}
	params := make([]ir.LocalIdx, 0, len(c.mf.NonAliasing))
	for _, p := range c.mf.NonAliasing {
		params = append(params, c.localMap[p])
	}
	if len(c.f.Blocks) == 0 {
		return
	}
	check := ir.Instruction{Op: ir.OpInvariantCheck, InvariantKind: ir.InvariantAliasing, Params: params}
	entry := c.f.Block(0)
	entry.Instructions = append([]ir.Instruction{check}, entry.Instructions...)
}

// lowerStatement implements points 1 (linear moves) and the StorageLive/Dead
// rows of the mapping table: neither emits an instruction by itself, but
// both record an ownership-annotation state transition.
func (c *Context) lowerStatement(blockID ir.BlockId, stmt mir.Statement) []ir.Instruction {
	loc := toIRLoc(stmt.Loc)
	switch stmt.Kind {
	case mir.StmtStorageLive:
		local := c.localMap[stmt.Local]
		c.f.AddOwnershipAnnotation(ir.OwnershipAnnotation{Variable: local, State: ir.StateOwned, Block: blockID, Loc: loc})
		return nil
	case mir.StmtStorageDead:
		local := c.localMap[stmt.Local]
		c.f.AddOwnershipAnnotation(ir.OwnershipAnnotation{Variable: local, State: ir.StateDestroyed, Block: blockID, Loc: loc})
		return nil
	case mir.StmtAssign:
		return c.lowerAssign(blockID, stmt)
	default:
		c.fail(ErrUnknownConstruct, "unknown MIR statement kind", stmt.Loc)
		return nil
	}
}

func (c *Context) lowerAssign(blockID ir.BlockId, stmt mir.Statement) []ir.Instruction {
	loc := toIRLoc(stmt.Loc)
	dest := c.localMap[stmt.Dest.Local]

	// Point 1: a linear move lowers to an explicit Consume, followed by the
	// assignment; a non-linear move falls through to the general rvalue
	// lowering below as a plain local copy.
	var instrs []ir.Instruction
	if stmt.Source.Kind == mir.RUse && stmt.Source.Operand.Kind == mir.OperandMove && c.mf.IsLinear(stmt.Source.Operand.Place.Local) {
		srcLocal := c.localMap[stmt.Source.Operand.Place.Local]
		c.f.AddOwnershipAnnotation(ir.OwnershipAnnotation{Variable: srcLocal, State: ir.StateConsumed, Block: blockID, Loc: loc})
		instrs = []ir.Instruction{
			{Op: ir.OpLinearOp, LinearKind: ir.LinearConsume, LinearVal: ir.LocalOperand(srcLocal), Loc: loc},
			{Op: ir.OpLocalSet, Local: dest, Operand: ir.LocalOperand(srcLocal), Loc: loc},
		}
	} else {
		instr, ok := c.lowerRvalueInto(dest, stmt.Source, loc, blockID)
		if !ok {
			return nil
		}
		instrs = []ir.Instruction{instr}
	}

	// "Assignment to l: target becomes Active" (spec.md §4.3.2) applies to
	// every assignment, not just the linear-move case above.
	if c.f.IsLinear(dest) {
		c.f.AddOwnershipAnnotation(ir.OwnershipAnnotation{Variable: dest, State: ir.StateOwned, Block: blockID, Loc: loc})
	}
	return instrs
}

func (c *Context) lowerRvalueInto(dest ir.LocalIdx, rv mir.Rvalue, loc ir.SourceLocation, blockID ir.BlockId) (ir.Instruction, bool) {
	switch rv.Kind {
	case mir.RUse:
		op, ok := c.lowerOperand(rv.Operand)
		if !ok {
			return ir.Instruction{}, false
		}
		return ir.Instruction{Op: ir.OpLocalSet, Local: dest, Operand: op, Loc: loc}, true

	case mir.RRef:
		// Point 2: borrows. The destination is treated as a pointer-typed
		// local (its type was already mapped to Type::Pointer by the
		// frontend-declared type of dest); the source is marked Borrowed
		// for the remainder of its (frontend-checked) borrow lifetime.
		srcLocal := c.localMap[rv.RefPlace.Local]
		c.f.AddOwnershipAnnotation(ir.OwnershipAnnotation{Variable: srcLocal, State: ir.StateBorrowed, Block: blockID, Loc: loc})
		return ir.Instruction{Op: ir.OpLocalSet, Local: dest, Operand: ir.LocalOperand(srcLocal), Loc: loc}, true

	case mir.RBinaryOp:
		left, ok1 := c.lowerOperand(rv.Left)
		right, ok2 := c.lowerOperand(rv.Right)
		if !ok1 || !ok2 {
			return ir.Instruction{}, false
		}
		return ir.Instruction{
			Op: ir.OpBinaryOp, BinOp: mapBinOp(rv.BinOp), Left: left, Right: right,
			Type: c.f.Locals[dest].Type, Dest: dest, HasDest: true, Loc: loc,
		}, true

	case mir.RUnaryOp:
		operand, ok := c.lowerOperand(rv.Left)
		if !ok {
			return ir.Instruction{}, false
		}
		return ir.Instruction{
			Op: ir.OpUnaryOp, UnOp: mapUnOp(rv.UnOp), Operand: operand,
			Type: c.f.Locals[dest].Type, Dest: dest, HasDest: true, Loc: loc,
		}, true

	case mir.RCast:
		operand, ok := c.lowerOperand(rv.CastOperand)
		if !ok {
			return ir.Instruction{}, false
		}
		if rv.CastTo.Kind != mir.TExternRef {
			c.fail(ErrUnknownConstruct, "cast to a non-externref type is not part of the lowering contract", fromIRLoc(loc))
			return ir.Instruction{}, false
		}
		c.f.AddCapability(ir.CapJsInterop)
		return ir.Instruction{
			Op: ir.OpExternRefCast, CastValue: operand, CastType: mapType(rv.CastTo),
			Dest: dest, HasDest: true, Loc: loc,
		}, true

	case mir.RLen:
		// Projections collapse to the base local (spec.md §4.2, "known
		// limitation to extend"), so "len-field-of(p)" collapses to p's
		// base local itself rather than a distinct length slot.
		base := c.localMap[rv.LenPlace.Local]
		return ir.Instruction{Op: ir.OpLocalSet, Local: dest, Operand: ir.LocalOperand(base), Loc: loc}, true

	case mir.RCall:
		idx, ok := c.funcIndex[rv.CallFunc]
		if !ok {
			c.fail(ErrUnknownConstruct, "call to undeclared function "+rv.CallFunc, fromIRLoc(loc))
			return ir.Instruction{}, false
		}
		args := make([]ir.Operand, 0, len(rv.CallArgs))
		for _, a := range rv.CallArgs {
			op, ok := c.lowerOperand(a)
			if !ok {
				return ir.Instruction{}, false
			}
			args = append(args, op)
		}
		return ir.Instruction{
			Op: ir.OpCall, Func: ir.GlobalOperand(idx), Args: args,
			Dest: dest, HasDest: true, Loc: loc,
		}, true

	default:
		c.fail(ErrUnknownConstruct, "unknown MIR rvalue kind", fromIRLoc(loc))
		return ir.Instruction{}, false
	}
}

func (c *Context) lowerOperand(op mir.Operand) (ir.Operand, bool) {
	switch op.Kind {
	case mir.OperandCopy, mir.OperandMove:
		local, ok := c.localMap[op.Place.Local]
		if !ok {
			c.fail(ErrUnknownLocal, "operand references an unknown local", mir.SourceLocation{})
			return ir.Operand{}, false
		}
		return ir.LocalOperand(local), true
	case mir.OperandConst:
		return ir.ConstOperand(mapConst(op.Const)), true
	default:
		c.fail(ErrUnknownConstruct, "unknown MIR operand kind", mir.SourceLocation{})
		return ir.Operand{}, false
	}
}

func (c *Context) lowerTerminator(blockID ir.BlockId, term mir.Terminator, lastAssign *mir.LocalIdx) ir.Terminator {
	loc := toIRLoc(term.Loc)
	switch term.Kind {
	case mir.TermGoto:
		target, ok := c.blockMap[term.Target]
		if !ok {
			c.fail(ErrUnknownBlock, "goto to unknown block", term.Loc)
			return ir.Terminator{Kind: ir.TermUnreachable, Loc: loc}
		}
		return ir.Terminator{Kind: ir.TermJump, Target: target, Loc: loc}

	case mir.TermSwitchInt:
		disc, ok := c.lowerOperand(term.Discriminant)
		if !ok {
			return ir.Terminator{Kind: ir.TermUnreachable, Loc: loc}
		}
		cases := make([]ir.SwitchCase, 0, len(term.Arms))
		for _, arm := range term.Arms {
			target, ok := c.blockMap[arm.Target]
			if !ok {
				c.fail(ErrUnknownBlock, "switch arm targets unknown block", term.Loc)
				continue
			}
			cases = append(cases, ir.SwitchCase{
				Value:  ir.Constant{Kind: ir.ConstI32, I32: int32(arm.Value)},
				Target: target,
			})
		}
		def, ok := c.blockMap[term.Otherwise]
		if !ok {
			c.fail(ErrUnknownBlock, "switch otherwise targets unknown block", term.Loc)
			return ir.Terminator{Kind: ir.TermUnreachable, Loc: loc}
		}
		return ir.Terminator{Kind: ir.TermSwitch, SwitchValue: disc, Cases: cases, Default: def, Loc: loc}

	case mir.TermReturn:
		if c.mf.ReturnType.Kind == mir.TUnit {
			return ir.Terminator{Kind: ir.TermReturn, Loc: loc}
		}
		// "Return{value=last result local}" (spec.md §4.2 mapping table):
		// the result is whatever local the block's last assignment wrote.
		if lastAssign == nil {
			c.fail(ErrUnknownConstruct, "return of a non-unit type with no preceding assignment in this block", term.Loc)
			return ir.Terminator{Kind: ir.TermUnreachable, Loc: loc}
		}
		retLocal := c.localMap[*lastAssign]
		return ir.Terminator{Kind: ir.TermReturn, Value: ir.LocalOperand(retLocal), HasValue: true, Loc: loc}

	case mir.TermUnreachable:
		return ir.Terminator{Kind: ir.TermUnreachable, Loc: loc}

	default:
		c.fail(ErrUnknownConstruct, "unknown MIR terminator kind", term.Loc)
		return ir.Terminator{Kind: ir.TermUnreachable, Loc: loc}
	}
}

func toIRLoc(l mir.SourceLocation) ir.SourceLocation {
	return ir.SourceLocation{File: l.File, Line: l.Line, Column: l.Column}
}

func fromIRLoc(l ir.SourceLocation) mir.SourceLocation {
	return mir.SourceLocation{File: l.File, Line: l.Line, Column: l.Column}
}

// mapType implements the "MIR construct -> IR lowering" type rows of
// spec.md §4.2's mapping table. Sub-32-bit integer widths have no native
// wasm representation, so I8/U8/I16/U16/I32/U32 all map to I32 — wasm's
// numeric type set is simply coarser than a typical frontend's.
func mapType(t mir.Type) ir.Type {
	switch t.Kind {
	case mir.TBool:
		return ir.I32
	case mir.TUnit:
		return ir.Void
	case mir.TI8, mir.TU8, mir.TI16, mir.TU16, mir.TI32, mir.TU32:
		return ir.I32
	case mir.TI64, mir.TU64:
		return ir.I64
	case mir.TF32:
		return ir.F32
	case mir.TF64:
		return ir.F64
	case mir.TRef:
		elem := mapType(*t.Elem)
		return ir.Pointer(elem)
	case mir.TArray:
		elem := mapType(*t.Elem)
		size := t.ArrayLen
		return ir.Array(elem, &size)
	case mir.TStruct:
		fields := make([]ir.Type, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = mapType(f)
		}
		return ir.Struct(fields...)
	case mir.TExternRef:
		return ir.ExternRef(t.ExternName)
	case mir.TFuncRef:
		return ir.FuncRef
	default:
		return ir.Void
	}
}

func mapBinOp(op mir.BinOp) ir.BinOp {
	switch op {
	case mir.BAdd:
		return ir.BinAdd
	case mir.BSub:
		return ir.BinSub
	case mir.BMul:
		return ir.BinMul
	case mir.BDiv:
		return ir.BinDiv
	case mir.BRem:
		return ir.BinMod
	case mir.BBitAnd:
		return ir.BinAnd
	case mir.BBitOr:
		return ir.BinOr
	case mir.BBitXor:
		return ir.BinXor
	case mir.BShl:
		return ir.BinShl
	case mir.BShr:
		return ir.BinShr
	case mir.BEq:
		return ir.BinEq
	case mir.BNe:
		return ir.BinNe
	case mir.BLt:
		return ir.BinLt
	case mir.BLe:
		return ir.BinLe
	case mir.BGt:
		return ir.BinGt
	case mir.BGe:
		return ir.BinGe
	default:
		return ir.BinAdd
	}
}

func mapUnOp(op mir.UnOp) ir.UnOp {
	switch op {
	case mir.UNot:
		return ir.UnNot
	default:
		return ir.UnNeg
	}
}

func mapConst(c mir.ConstValue) ir.Constant {
	switch c.Kind {
	case mir.CI32:
		return ir.Constant{Kind: ir.ConstI32, I32: c.I32}
	case mir.CI64:
		return ir.Constant{Kind: ir.ConstI64, I64: c.I64}
	case mir.CF32:
		return ir.Constant{Kind: ir.ConstF32, F32: c.F32}
	case mir.CF64:
		return ir.Constant{Kind: ir.ConstF64, F64: c.F64}
	case mir.CBool:
		return ir.Constant{Kind: ir.ConstBool, Bool: c.Bool}
	default:
		return ir.Constant{Kind: ir.ConstI32}
	}
}
