// Package aggressive implements the heavy, IR-to-LLIR-to-wasm release
// backend: it builds genuine github.com/llir/llvm values, basic blocks, and
// functions (not a placeholder string the way the teacher's
// pkg/codegen/llvm_backend.go does), runs a pass list over that LLIR
// (constant folding, unreachable-block elimination, common-subexpression
// elimination, CFG simplification, and — at the Aggressive level — a
// loop-invariant-code-motion stub), then feeds the one result of that pass
// list it trusts (which blocks became unreachable) back into the source
// ir.Module before handing it to the shared fast-backend encoder for final
// wasm emission. No inlining is performed. Grounded on
// other_examples/.../dshills-alas__internal-codegen-optimizer.go's pass
// list and API usage, adapted from its statement-oriented IR to this
// module's ir package.
package aggressive

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	wpir "github.com/minz/wasmpipe/pkg/ir"
)

// funcMapping records the block and local correspondence between one
// wpir.Function and the llir.Func it was lowered to, so results discovered
// by the LLIR-level optimizer (dead blocks) can be fed back onto the
// original IR by BlockId.
type funcMapping struct {
	src       *wpir.Function
	llfn      *ir.Func
	blockOf   map[wpir.BlockId]*ir.Block
	idOf      map[*ir.Block]wpir.BlockId
	allocaOf  map[wpir.LocalIdx]*ir.InstAlloca
}

// lowerModule builds a complete llir.Module mirroring m, returning one
// funcMapping per function for the feedback step (applyFeedback in
// backend.go).
func lowerModule(m *wpir.Module, funcIndex map[string]*ir.Func) (*ir.Module, []*funcMapping, error) {
	llm := ir.NewModule()
	var mappings []*funcMapping

	names := make([]string, len(m.Functions))
	for i, fn := range m.Functions {
		names[i] = fn.Name
		llfn := llm.NewFunc(fn.Name, llvmType(fn.Signature.Returns), llvmParams(fn.Signature.Params)...)
		funcIndex[fn.Name] = llfn
	}

	for _, fn := range m.Functions {
		mapping, err := lowerFunction(fn, names, funcIndex)
		if err != nil {
			return nil, nil, err
		}
		mappings = append(mappings, mapping)
	}
	return llm, mappings, nil
}

func llvmType(t *wpir.Type) types.Type {
	if t == nil {
		return types.Void
	}
	switch t.Kind {
	case wpir.KindI32:
		return types.I32
	case wpir.KindI64:
		return types.I64
	case wpir.KindF32:
		return types.Float
	case wpir.KindF64:
		return types.Double
	default:
		return types.Void
	}
}

func llvmParams(params []wpir.Type) []*ir.Param {
	out := make([]*ir.Param, len(params))
	for i, p := range params {
		out[i] = ir.NewParam(fmt.Sprintf("p%d", i), llvmType(&p))
	}
	return out
}

// lowerFunction translates one wpir.Function into its already-created
// llir.Func (its signature was registered in lowerModule so forward calls
// resolve), building one llir.Block per wpir BlockId plus a synthetic entry
// block that allocates every local and stores incoming parameters, mirroring
// the teacher's llvm_backend.go alloca-per-local convention.
func lowerFunction(fn *wpir.Function, names []string, funcIndex map[string]*ir.Func) (*funcMapping, error) {
	llfn := funcIndex[fn.Name]

	mapping := &funcMapping{
		src:      fn,
		llfn:     llfn,
		blockOf:  make(map[wpir.BlockId]*ir.Block, len(fn.Blocks)),
		idOf:     make(map[*ir.Block]wpir.BlockId, len(fn.Blocks)),
		allocaOf: make(map[wpir.LocalIdx]*ir.InstAlloca, len(fn.Locals)),
	}

	entry := llfn.NewBlock("entry")
	for i, local := range fn.Locals {
		alloca := entry.NewAlloca(llvmType(&local.Type))
		mapping.allocaOf[wpir.LocalIdx(i)] = alloca
	}
	for i := 0; i < fn.NumParams; i++ {
		entry.NewStore(llfn.Params[i], mapping.allocaOf[wpir.LocalIdx(i)])
	}

	for _, b := range fn.Blocks {
		mapping.blockOf[b.ID] = llfn.NewBlock(fmt.Sprintf("bb%d", b.ID))
	}
	for id, blk := range mapping.blockOf {
		mapping.idOf[blk] = id
	}

	entryTarget, ok := mapping.blockOf[wpir.BlockId(0)]
	if !ok {
		return nil, fmt.Errorf("aggressive: function %s has no block 0", fn.Name)
	}
	entry.NewBr(entryTarget)

	for _, b := range fn.Blocks {
		if err := lowerBlock(&b, mapping, names, funcIndex); err != nil {
			return nil, fmt.Errorf("aggressive: function %s: %w", fn.Name, err)
		}
	}
	return mapping, nil
}

func lowerBlock(b *wpir.BasicBlock, m *funcMapping, names []string, funcIndex map[string]*ir.Func) error {
	blk := m.blockOf[b.ID]
	for i := range b.Instructions {
		if err := lowerInstr(&b.Instructions[i], blk, m, names, funcIndex); err != nil {
			return err
		}
	}
	return lowerTerminator(&b.Terminator, blk, m)
}

func lowerOperand(o wpir.Operand, blk *ir.Block, m *funcMapping) (value.Value, error) {
	switch o.Kind {
	case wpir.OperandLocal:
		alloca := m.allocaOf[o.Local]
		return blk.NewLoad(alloca.ElemType, alloca), nil
	case wpir.OperandConstant:
		return lowerConstant(o.Const), nil
	default:
		return nil, fmt.Errorf("unsupported operand kind %d in aggressive backend", o.Kind)
	}
}

func lowerConstant(c wpir.Constant) constant.Constant {
	switch c.Kind {
	case wpir.ConstI32:
		return constant.NewInt(types.I32, int64(c.I32))
	case wpir.ConstI64:
		return constant.NewInt(types.I64, c.I64)
	case wpir.ConstBool:
		v := int64(0)
		if c.Bool {
			v = 1
		}
		return constant.NewInt(types.I32, v)
	case wpir.ConstF32:
		return constant.NewFloat(types.Float, float64(c.F32))
	case wpir.ConstF64:
		return constant.NewFloat(types.Double, c.F64)
	default:
		return constant.NewInt(types.I32, 0)
	}
}

func storeDest(blk *ir.Block, dest wpir.LocalIdx, hasDest bool, v value.Value, m *funcMapping) {
	if !hasDest {
		return
	}
	blk.NewStore(v, m.allocaOf[dest])
}

func lowerInstr(instr *wpir.Instruction, blk *ir.Block, m *funcMapping, names []string, funcIndex map[string]*ir.Func) error {
	switch instr.Op {
	case wpir.OpLocalGet:
		// Pure stack-machine bookkeeping in the source IR; the load happens
		// lazily wherever the value is consumed (lowerOperand), so there is
		// nothing to emit for the LocalGet instruction itself here.
		return nil
	case wpir.OpLocalSet:
		v, err := lowerOperand(instr.Operand, blk, m)
		if err != nil {
			return err
		}
		blk.NewStore(v, m.allocaOf[instr.Local])
		return nil
	case wpir.OpBinaryOp:
		return lowerBinaryOp(instr, blk, m)
	case wpir.OpUnaryOp:
		return lowerUnaryOp(instr, blk, m)
	case wpir.OpCall:
		return lowerCall(instr, blk, m, names, funcIndex)
	case wpir.OpExternRefCast:
		return fmt.Errorf("ExternRefCast unsupported in aggressive backend (component model not implemented)")
	case wpir.OpMemoryLoad, wpir.OpMemoryStore:
		return fmt.Errorf("linear-memory access unsupported in aggressive backend's LLIR lowering")
	case wpir.OpLinearOp, wpir.OpInvariantCheck, wpir.OpNop:
		return nil
	default:
		return fmt.Errorf("unsupported instruction op %d in aggressive backend", instr.Op)
	}
}

func lowerBinaryOp(instr *wpir.Instruction, blk *ir.Block, m *funcMapping) error {
	left, err := lowerOperand(instr.Left, blk, m)
	if err != nil {
		return err
	}
	right, err := lowerOperand(instr.Right, blk, m)
	if err != nil {
		return err
	}
	isFloat := instr.Type.IsFloat()
	var result value.Value
	switch instr.BinOp {
	case wpir.BinAdd:
		if isFloat {
			result = blk.NewFAdd(left, right)
		} else {
			result = blk.NewAdd(left, right)
		}
	case wpir.BinSub:
		if isFloat {
			result = blk.NewFSub(left, right)
		} else {
			result = blk.NewSub(left, right)
		}
	case wpir.BinMul:
		if isFloat {
			result = blk.NewFMul(left, right)
		} else {
			result = blk.NewMul(left, right)
		}
	case wpir.BinDiv:
		if isFloat {
			result = blk.NewFDiv(left, right)
		} else {
			result = blk.NewSDiv(left, right)
		}
	case wpir.BinMod:
		if isFloat {
			result = blk.NewFRem(left, right)
		} else {
			result = blk.NewSRem(left, right)
		}
	case wpir.BinAnd:
		result = blk.NewAnd(left, right)
	case wpir.BinOr:
		result = blk.NewOr(left, right)
	case wpir.BinXor:
		result = blk.NewXor(left, right)
	case wpir.BinShl:
		result = blk.NewShl(left, right)
	case wpir.BinShr:
		result = blk.NewAShr(left, right)
	case wpir.BinEq, wpir.BinNe, wpir.BinLt, wpir.BinLe, wpir.BinGt, wpir.BinGe:
		result = lowerCompare(instr.BinOp, isFloat, left, right, blk)
	default:
		return fmt.Errorf("unsupported binary op %d in aggressive backend", instr.BinOp)
	}
	storeDest(blk, instr.Dest, instr.HasDest, result, m)
	return nil
}

func lowerCompare(op wpir.BinOp, isFloat bool, left, right value.Value, blk *ir.Block) value.Value {
	if isFloat {
		var pred enum.FPred
		switch op {
		case wpir.BinEq:
			pred = enum.FPredOEQ
		case wpir.BinNe:
			pred = enum.FPredONE
		case wpir.BinLt:
			pred = enum.FPredOLT
		case wpir.BinLe:
			pred = enum.FPredOLE
		case wpir.BinGt:
			pred = enum.FPredOGT
		default:
			pred = enum.FPredOGE
		}
		return blk.NewFCmp(pred, left, right)
	}
	var pred enum.IPred
	switch op {
	case wpir.BinEq:
		pred = enum.IPredEQ
	case wpir.BinNe:
		pred = enum.IPredNE
	case wpir.BinLt:
		pred = enum.IPredSLT
	case wpir.BinLe:
		pred = enum.IPredSLE
	case wpir.BinGt:
		pred = enum.IPredSGT
	default:
		pred = enum.IPredSGE
	}
	return blk.NewICmp(pred, left, right)
}

func lowerUnaryOp(instr *wpir.Instruction, blk *ir.Block, m *funcMapping) error {
	v, err := lowerOperand(instr.Operand, blk, m)
	if err != nil {
		return err
	}
	var result value.Value
	switch instr.UnOp {
	case wpir.UnNeg:
		if instr.Type.IsFloat() {
			result = blk.NewFNeg(v)
		} else {
			result = blk.NewSub(lowerConstant(wpir.Constant{Kind: wpir.ConstI32}), v)
		}
	case wpir.UnNot:
		cmp := blk.NewICmp(enum.IPredEQ, v, lowerConstant(wpir.Constant{Kind: wpir.ConstI32}))
		result = blk.NewZExt(cmp, types.I32)
	default:
		return fmt.Errorf("unsupported unary op %d in aggressive backend", instr.UnOp)
	}
	storeDest(blk, instr.Dest, instr.HasDest, result, m)
	return nil
}

func lowerCall(instr *wpir.Instruction, blk *ir.Block, m *funcMapping, names []string, funcIndex map[string]*ir.Func) error {
	if instr.Func.Kind != wpir.OperandGlobal {
		return fmt.Errorf("indirect calls unsupported in aggressive backend")
	}
	if int(instr.Func.Global) >= len(names) {
		return fmt.Errorf("call to out-of-range function index %d", instr.Func.Global)
	}
	callee := names[instr.Func.Global]
	target, ok := funcIndex[callee]
	if !ok {
		return fmt.Errorf("call to unknown function %q", callee)
	}
	args := make([]value.Value, len(instr.Args))
	for i, a := range instr.Args {
		v, err := lowerOperand(a, blk, m)
		if err != nil {
			return err
		}
		args[i] = v
	}
	result := blk.NewCall(target, args...)
	storeDest(blk, instr.Dest, instr.HasDest, result, m)
	return nil
}

func lowerTerminator(t *wpir.Terminator, blk *ir.Block, m *funcMapping) error {
	switch t.Kind {
	case wpir.TermReturn:
		if t.HasValue {
			v, err := lowerOperand(t.Value, blk, m)
			if err != nil {
				return err
			}
			blk.NewRet(v)
		} else {
			blk.NewRet(nil)
		}
	case wpir.TermJump:
		blk.NewBr(m.blockOf[t.Target])
	case wpir.TermBranch:
		cond, err := lowerOperand(t.Condition, blk, m)
		if err != nil {
			return err
		}
		asBool := blk.NewICmp(enum.IPredNE, cond, lowerConstant(wpir.Constant{Kind: wpir.ConstI32}))
		blk.NewCondBr(asBool, m.blockOf[t.Then], m.blockOf[t.Else])
	case wpir.TermSwitch:
		v, err := lowerOperand(t.SwitchValue, blk, m)
		if err != nil {
			return err
		}
		cases := make([]*ir.Case, len(t.Cases))
		for i, c := range t.Cases {
			cases[i] = ir.NewCase(lowerConstant(c.Value), m.blockOf[c.Target])
		}
		blk.NewSwitch(v, m.blockOf[t.Default], cases...)
	case wpir.TermUnreachable:
		blk.NewUnreachable()
	default:
		return fmt.Errorf("block has no terminator")
	}
	return nil
}
