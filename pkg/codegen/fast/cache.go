package fast

import (
	"fmt"
	"hash/fnv"

	"github.com/minz/wasmpipe/pkg/ir"
)

// structuralHash computes a 64-bit FNV-1a hash over a canonical textual
// rendering of fn's signature, locals, blocks, and instructions (spec.md
// §4.5 "Caching"). Two distinct *ir.Function values with identical
// structure hash identically, so a cache lookup is pointer-independent.
func structuralHash(fn *ir.Function) uint64 {
	h := fnv.New64a()
	writeFunctionSignature(h, fn)
	for _, b := range fn.Blocks {
		fmt.Fprintf(h, "block %d\n", b.ID)
		for _, instr := range b.Instructions {
			writeInstruction(h, instr)
		}
		writeTerminator(h, b.Terminator)
	}
	return h.Sum64()
}

func writeFunctionSignature(h interface{ Write([]byte) (int, error) }, fn *ir.Function) {
	fmt.Fprintf(h, "fn %s params=%d\n", fn.Name, fn.NumParams)
	for _, l := range fn.Locals {
		fmt.Fprintf(h, "local %s %d\n", l.Name, l.Type.Kind)
	}
	fmt.Fprintf(h, "sig %s\n", fn.Signature.Key())
}

func writeOperand(h interface{ Write([]byte) (int, error) }, o ir.Operand) {
	switch o.Kind {
	case ir.OperandLocal:
		fmt.Fprintf(h, "L%d", o.Local)
	case ir.OperandConstant:
		fmt.Fprintf(h, "C%d:%v", o.Const.Kind, o.Const)
	case ir.OperandGlobal:
		fmt.Fprintf(h, "G%d", o.Global)
	default:
		fmt.Fprintf(h, "S%d", o.StackDep)
	}
}

func writeInstruction(h interface{ Write([]byte) (int, error) }, instr ir.Instruction) {
	fmt.Fprintf(h, "op %d ", instr.Op)
	switch instr.Op {
	case ir.OpLocalGet:
		fmt.Fprintf(h, "local=%d", instr.Local)
	case ir.OpLocalSet:
		fmt.Fprintf(h, "local=%d val=", instr.Local)
		writeOperand(h, instr.Operand)
	case ir.OpBinaryOp:
		fmt.Fprintf(h, "bin=%d left=", instr.BinOp)
		writeOperand(h, instr.Left)
		fmt.Fprintf(h, " right=")
		writeOperand(h, instr.Right)
		fmt.Fprintf(h, " dest=%d,%v", instr.Dest, instr.HasDest)
	case ir.OpUnaryOp:
		fmt.Fprintf(h, "un=%d val=", instr.UnOp)
		writeOperand(h, instr.Operand)
		fmt.Fprintf(h, " dest=%d,%v", instr.Dest, instr.HasDest)
	case ir.OpMemoryLoad:
		fmt.Fprintf(h, "addr=")
		writeOperand(h, instr.Addr)
		fmt.Fprintf(h, " align=%d offset=%d dest=%d", instr.Align, instr.Offset, instr.Dest)
	case ir.OpMemoryStore:
		fmt.Fprintf(h, "addr=")
		writeOperand(h, instr.Addr)
		fmt.Fprintf(h, " val=")
		writeOperand(h, instr.Value)
		fmt.Fprintf(h, " align=%d offset=%d", instr.Align, instr.Offset)
	case ir.OpCall:
		fmt.Fprintf(h, "func=")
		writeOperand(h, instr.Func)
		for _, a := range instr.Args {
			fmt.Fprintf(h, " arg=")
			writeOperand(h, a)
		}
		fmt.Fprintf(h, " dest=%d,%v", instr.Dest, instr.HasDest)
	case ir.OpExternRefCast:
		fmt.Fprintf(h, "val=")
		writeOperand(h, instr.CastValue)
		fmt.Fprintf(h, " to=%d dest=%d,%v", instr.CastType.Kind, instr.Dest, instr.HasDest)
	case ir.OpLinearOp:
		fmt.Fprintf(h, "kind=%d val=", instr.LinearKind)
		writeOperand(h, instr.LinearVal)
	case ir.OpInvariantCheck:
		fmt.Fprintf(h, "kind=%d params=%v", instr.InvariantKind, instr.Params)
	}
	h.Write([]byte{'\n'})
}

func writeTerminator(h interface{ Write([]byte) (int, error) }, t ir.Terminator) {
	fmt.Fprintf(h, "term %d ", t.Kind)
	switch t.Kind {
	case ir.TermReturn:
		if t.HasValue {
			writeOperand(h, t.Value)
		}
	case ir.TermJump:
		fmt.Fprintf(h, "target=%d", t.Target)
	case ir.TermBranch:
		writeOperand(h, t.Condition)
		fmt.Fprintf(h, " then=%d else=%d", t.Then, t.Else)
	case ir.TermSwitch:
		writeOperand(h, t.SwitchValue)
		for _, c := range t.Cases {
			fmt.Fprintf(h, " case=%v->%d", c.Value, c.Target)
		}
		fmt.Fprintf(h, " default=%d", t.Default)
	}
	h.Write([]byte{'\n'})
}

// addCachedFunction registers a previously-encoded function's type,
// function-section, and export entries, reusing cached body bytes instead of
// re-running the instruction encoder.
func (g *generator) addCachedFunction(fn *ir.Function, cached []byte) {
	tidx := g.typeIdx(fn.Signature)
	fidx := len(g.funcs)
	g.funcs = append(g.funcs, tidx)
	g.exports = append(g.exports, wasmExport{name: fn.Name, kind: exportFunc, index: fidx})
	g.codes = append(g.codes, cached)
	g.stats.FunctionsCompiled++
}
