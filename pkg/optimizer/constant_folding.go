package optimizer

import "github.com/minz/wasmpipe/pkg/ir"

// ConstantFolding implements spec.md §4.4: for each BinaryOp whose operands
// are both constants of the same numeric type, with the op defined for that
// type, rewrite the instruction into a single LocalSet of the folded
// constant. Division/remainder by zero are left unfolded so the runtime trap
// is preserved; shift amounts are reduced modulo width. Adapted from minzc's
// constant_folding.go (pkg/optimizer/constant_folding.go) switch-on-opcode
// shape, simplified because this IR's BinaryOp/UnaryOp operands are direct
// Operand values (which may already be OperandConstant) rather than
// register-indirect — there is no separate "constants seen so far" map to
// maintain across a flat instruction list.
type ConstantFolding struct{}

func (p *ConstantFolding) Name() string { return "constant-folding" }

func (p *ConstantFolding) Run(f *ir.Function) (bool, error) {
	changed := false
	for bi := range f.Blocks {
		instrs := f.Blocks[bi].Instructions
		for ii := range instrs {
			instr := &instrs[ii]
			switch instr.Op {
			case ir.OpBinaryOp:
				if !instr.HasDest || instr.Left.Kind != ir.OperandConstant || instr.Right.Kind != ir.OperandConstant {
					continue
				}
				folded, ok := foldBinary(instr.BinOp, instr.Left.Const, instr.Right.Const)
				if !ok {
					continue
				}
				*instr = ir.Instruction{
					Op:      ir.OpLocalSet,
					Local:   instr.Dest,
					Operand: ir.ConstOperand(folded),
					Loc:     instr.Loc,
				}
				changed = true
			case ir.OpUnaryOp:
				if !instr.HasDest || instr.Operand.Kind != ir.OperandConstant {
					continue
				}
				folded, ok := foldUnary(instr.UnOp, instr.Operand.Const)
				if !ok {
					continue
				}
				*instr = ir.Instruction{
					Op:      ir.OpLocalSet,
					Local:   instr.Dest,
					Operand: ir.ConstOperand(folded),
					Loc:     instr.Loc,
				}
				changed = true
			}
		}
	}
	return changed, nil
}

func foldBinary(op ir.BinOp, a, b ir.Constant) (ir.Constant, bool) {
	if a.Kind != b.Kind {
		return ir.Constant{}, false
	}
	switch a.Kind {
	case ir.ConstI32:
		return foldI32(op, a.I32, b.I32)
	case ir.ConstI64:
		return foldI64(op, a.I64, b.I64)
	case ir.ConstF32:
		return foldF32(op, a.F32, b.F32)
	case ir.ConstF64:
		return foldF64(op, a.F64, b.F64)
	default:
		return ir.Constant{}, false
	}
}

func foldI32(op ir.BinOp, a, b int32) (ir.Constant, bool) {
	bit := func(v bool) int32 {
		if v {
			return 1
		}
		return 0
	}
	switch op {
	case ir.BinAdd:
		return ir.Constant{Kind: ir.ConstI32, I32: a + b}, true
	case ir.BinSub:
		return ir.Constant{Kind: ir.ConstI32, I32: a - b}, true
	case ir.BinMul:
		return ir.Constant{Kind: ir.ConstI32, I32: a * b}, true
	case ir.BinDiv:
		if b == 0 {
			return ir.Constant{}, false
		}
		return ir.Constant{Kind: ir.ConstI32, I32: a / b}, true
	case ir.BinMod:
		if b == 0 {
			return ir.Constant{}, false
		}
		return ir.Constant{Kind: ir.ConstI32, I32: a % b}, true
	case ir.BinAnd:
		return ir.Constant{Kind: ir.ConstI32, I32: a & b}, true
	case ir.BinOr:
		return ir.Constant{Kind: ir.ConstI32, I32: a | b}, true
	case ir.BinXor:
		return ir.Constant{Kind: ir.ConstI32, I32: a ^ b}, true
	case ir.BinShl:
		return ir.Constant{Kind: ir.ConstI32, I32: a << (uint32(b) % 32)}, true
	case ir.BinShr:
		return ir.Constant{Kind: ir.ConstI32, I32: a >> (uint32(b) % 32)}, true
	case ir.BinEq:
		return ir.Constant{Kind: ir.ConstI32, I32: bit(a == b)}, true
	case ir.BinNe:
		return ir.Constant{Kind: ir.ConstI32, I32: bit(a != b)}, true
	case ir.BinLt:
		return ir.Constant{Kind: ir.ConstI32, I32: bit(a < b)}, true
	case ir.BinLe:
		return ir.Constant{Kind: ir.ConstI32, I32: bit(a <= b)}, true
	case ir.BinGt:
		return ir.Constant{Kind: ir.ConstI32, I32: bit(a > b)}, true
	case ir.BinGe:
		return ir.Constant{Kind: ir.ConstI32, I32: bit(a >= b)}, true
	default:
		return ir.Constant{}, false
	}
}

func foldI64(op ir.BinOp, a, b int64) (ir.Constant, bool) {
	bit := func(v bool) int64 {
		if v {
			return 1
		}
		return 0
	}
	switch op {
	case ir.BinAdd:
		return ir.Constant{Kind: ir.ConstI64, I64: a + b}, true
	case ir.BinSub:
		return ir.Constant{Kind: ir.ConstI64, I64: a - b}, true
	case ir.BinMul:
		return ir.Constant{Kind: ir.ConstI64, I64: a * b}, true
	case ir.BinDiv:
		if b == 0 {
			return ir.Constant{}, false
		}
		return ir.Constant{Kind: ir.ConstI64, I64: a / b}, true
	case ir.BinMod:
		if b == 0 {
			return ir.Constant{}, false
		}
		return ir.Constant{Kind: ir.ConstI64, I64: a % b}, true
	case ir.BinAnd:
		return ir.Constant{Kind: ir.ConstI64, I64: a & b}, true
	case ir.BinOr:
		return ir.Constant{Kind: ir.ConstI64, I64: a | b}, true
	case ir.BinXor:
		return ir.Constant{Kind: ir.ConstI64, I64: a ^ b}, true
	case ir.BinShl:
		return ir.Constant{Kind: ir.ConstI64, I64: a << (uint64(b) % 64)}, true
	case ir.BinShr:
		return ir.Constant{Kind: ir.ConstI64, I64: a >> (uint64(b) % 64)}, true
	case ir.BinEq:
		return ir.Constant{Kind: ir.ConstI32, I32: int32(bit(a == b))}, true
	case ir.BinNe:
		return ir.Constant{Kind: ir.ConstI32, I32: int32(bit(a != b))}, true
	case ir.BinLt:
		return ir.Constant{Kind: ir.ConstI32, I32: int32(bit(a < b))}, true
	case ir.BinLe:
		return ir.Constant{Kind: ir.ConstI32, I32: int32(bit(a <= b))}, true
	case ir.BinGt:
		return ir.Constant{Kind: ir.ConstI32, I32: int32(bit(a > b))}, true
	case ir.BinGe:
		return ir.Constant{Kind: ir.ConstI32, I32: int32(bit(a >= b))}, true
	default:
		return ir.Constant{}, false
	}
}

func foldF32(op ir.BinOp, a, b float32) (ir.Constant, bool) {
	bit := func(v bool) int32 {
		if v {
			return 1
		}
		return 0
	}
	switch op {
	case ir.BinAdd:
		return ir.Constant{Kind: ir.ConstF32, F32: a + b}, true
	case ir.BinSub:
		return ir.Constant{Kind: ir.ConstF32, F32: a - b}, true
	case ir.BinMul:
		return ir.Constant{Kind: ir.ConstF32, F32: a * b}, true
	case ir.BinDiv:
		return ir.Constant{Kind: ir.ConstF32, F32: a / b}, true
	case ir.BinEq:
		return ir.Constant{Kind: ir.ConstI32, I32: bit(a == b)}, true
	case ir.BinNe:
		return ir.Constant{Kind: ir.ConstI32, I32: bit(a != b)}, true
	case ir.BinLt:
		return ir.Constant{Kind: ir.ConstI32, I32: bit(a < b)}, true
	case ir.BinLe:
		return ir.Constant{Kind: ir.ConstI32, I32: bit(a <= b)}, true
	case ir.BinGt:
		return ir.Constant{Kind: ir.ConstI32, I32: bit(a > b)}, true
	case ir.BinGe:
		return ir.Constant{Kind: ir.ConstI32, I32: bit(a >= b)}, true
	default:
		return ir.Constant{}, false
	}
}

func foldF64(op ir.BinOp, a, b float64) (ir.Constant, bool) {
	bit := func(v bool) int32 {
		if v {
			return 1
		}
		return 0
	}
	switch op {
	case ir.BinAdd:
		return ir.Constant{Kind: ir.ConstF64, F64: a + b}, true
	case ir.BinSub:
		return ir.Constant{Kind: ir.ConstF64, F64: a - b}, true
	case ir.BinMul:
		return ir.Constant{Kind: ir.ConstF64, F64: a * b}, true
	case ir.BinDiv:
		return ir.Constant{Kind: ir.ConstF64, F64: a / b}, true
	case ir.BinEq:
		return ir.Constant{Kind: ir.ConstI32, I32: bit(a == b)}, true
	case ir.BinNe:
		return ir.Constant{Kind: ir.ConstI32, I32: bit(a != b)}, true
	case ir.BinLt:
		return ir.Constant{Kind: ir.ConstI32, I32: bit(a < b)}, true
	case ir.BinLe:
		return ir.Constant{Kind: ir.ConstI32, I32: bit(a <= b)}, true
	case ir.BinGt:
		return ir.Constant{Kind: ir.ConstI32, I32: bit(a > b)}, true
	case ir.BinGe:
		return ir.Constant{Kind: ir.ConstI32, I32: bit(a >= b)}, true
	default:
		return ir.Constant{}, false
	}
}

func foldUnary(op ir.UnOp, a ir.Constant) (ir.Constant, bool) {
	switch op {
	case ir.UnNeg:
		switch a.Kind {
		case ir.ConstI32:
			return ir.Constant{Kind: ir.ConstI32, I32: -a.I32}, true
		case ir.ConstI64:
			return ir.Constant{Kind: ir.ConstI64, I64: -a.I64}, true
		case ir.ConstF32:
			return ir.Constant{Kind: ir.ConstF32, F32: -a.F32}, true
		case ir.ConstF64:
			return ir.Constant{Kind: ir.ConstF64, F64: -a.F64}, true
		}
	case ir.UnNot:
		switch a.Kind {
		case ir.ConstI32, ir.ConstBool:
			return ir.Constant{Kind: ir.ConstI32, I32: boolToI32(a.I32 == 0)}, true
		case ir.ConstI64:
			return ir.Constant{Kind: ir.ConstI64, I64: boolToI64(a.I64 == 0)}, true
		}
	}
	return ir.Constant{}, false
}

func boolToI32(v bool) int32 {
	if v {
		return 1
	}
	return 0
}

func boolToI64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}
