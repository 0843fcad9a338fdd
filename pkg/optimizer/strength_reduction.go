package optimizer

import "github.com/minz/wasmpipe/pkg/ir"

// StrengthReduction implements spec.md §4.4: Mul by a positive power-of-two
// constant becomes Shl by that exponent. Div is never rewritten: Div→Shr is
// sound only for unsigned division (a signed arithmetic-shift replacement
// needs the negative-operand rounding-toward-zero correction), and this IR's
// integer kinds carry no signedness, so every Div is left as is (see
// SPEC_FULL.md's Open Question 3). Grounded on
// original_source/src/backend/cranelift/wasm_codegen.rs's
// InstructionSelection::optimize_instruction power-of-two rewrite.
type StrengthReduction struct{}

func (p *StrengthReduction) Name() string { return "strength-reduction" }

func (p *StrengthReduction) Run(f *ir.Function) (bool, error) {
	changed := false
	for bi := range f.Blocks {
		instrs := f.Blocks[bi].Instructions
		for ii := range instrs {
			instr := &instrs[ii]
			if instr.Op != ir.OpBinaryOp || !instr.HasDest {
				continue
			}
			if instr.Right.Kind != ir.OperandConstant {
				continue
			}
			exp, ok := powerOfTwoExponent(instr.Right.Const)
			if !ok {
				continue
			}
			switch instr.BinOp {
			case ir.BinMul:
				instr.BinOp = ir.BinShl
				instr.Right = ir.ConstOperand(sameKindInt(instr.Right.Const.Kind, exp))
				changed = true
			case ir.BinDiv:
				// Unsigned-only: spec.md §4.4 signed Div->Shr needs a
				// rounding correction this pass does not perform.
				if instr.Type.Kind == ir.KindI32 || instr.Type.Kind == ir.KindI64 {
					// No unsigned integer type exists in this IR's closed
					// Kind set (spec.md §3 collapses signedness into the
					// opcode, not the type) — conservatively skip every Div,
					// matching Open Question 3's "or skip when unsafe"
					// escape hatch.
					continue
				}
			}
		}
	}
	return changed, nil
}

// powerOfTwoExponent reports whether c is a positive integer constant that is
// an exact power of two, and if so its exponent.
func powerOfTwoExponent(c ir.Constant) (int32, bool) {
	switch c.Kind {
	case ir.ConstI32:
		return exponentOf(int64(c.I32))
	case ir.ConstI64:
		return exponentOf(c.I64)
	default:
		return 0, false
	}
}

func exponentOf(v int64) (int32, bool) {
	if v <= 0 || (v&(v-1)) != 0 {
		return 0, false
	}
	exp := int32(0)
	for v > 1 {
		v >>= 1
		exp++
	}
	return exp, true
}

func sameKindInt(k ir.ConstKind, v int32) ir.Constant {
	if k == ir.ConstI64 {
		return ir.Constant{Kind: ir.ConstI64, I64: int64(v)}
	}
	return ir.Constant{Kind: ir.ConstI32, I32: v}
}
