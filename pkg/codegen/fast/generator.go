package fast

import (
	"github.com/minz/wasmpipe/pkg/codegen"
	"github.com/minz/wasmpipe/pkg/ir"
)

// generator assembles one wasm binary module from an ir.Module. Grounded on
// other_examples/.../lhaig-intent__internal-wasmbe-wasmbe.go's generator
// struct (types/typeCache/funcs/exports/codes, typeIndex dedup, emit*
// section methods), adapted from that file's dynamically-typed statement/
// expression tree walk to a straight-line block/instruction encoder since
// this IR is already block-structured SSA-ish wasm-shaped code, not an AST.
type generator struct {
	types     []ir.Signature
	typeIndex map[string]int
	funcs     []int // type index per function, in declaration order
	exports   []wasmExport
	codes     [][]byte
	funcIndex map[string]int // function name -> function index

	stats codegen.Stats
}

type wasmExport struct {
	name  string
	kind  byte
	index int
}

func newGenerator() *generator {
	return &generator{
		typeIndex: make(map[string]int),
		funcIndex: make(map[string]int),
	}
}

// typeIdx returns the type-section index for sig, adding a new entry the
// first time a structurally distinct signature is seen (spec.md §4.5
// "Type-section deduplication").
func (g *generator) typeIdx(sig ir.Signature) int {
	key := sig.Key()
	if idx, ok := g.typeIndex[key]; ok {
		return idx
	}
	idx := len(g.types)
	g.types = append(g.types, sig)
	g.typeIndex[key] = idx
	return idx
}

func valType(t ir.Type) (byte, bool) {
	switch t.Kind {
	case ir.KindI32:
		return valI32, true
	case ir.KindI64:
		return valI64, true
	case ir.KindF32:
		return valF32, true
	case ir.KindF64:
		return valF64, true
	default:
		return 0, false
	}
}

// addModule compiles every function in m into the generator's running
// module state.
func (g *generator) addModule(m *ir.Module) error {
	for i, fn := range m.Functions {
		g.funcIndex[fn.Name] = i
	}
	for _, fn := range m.Functions {
		if err := g.addFunction(fn); err != nil {
			return err
		}
	}
	return nil
}

func (g *generator) addFunction(fn *ir.Function) error {
	tidx := g.typeIdx(fn.Signature)
	fidx := len(g.funcs)
	g.funcs = append(g.funcs, tidx)
	g.exports = append(g.exports, wasmExport{name: fn.Name, kind: exportFunc, index: fidx})

	enc := &instructionEncoder{gen: g, fn: fn}
	body, err := enc.encodeFunction()
	if err != nil {
		return err
	}
	g.codes = append(g.codes, body)
	g.stats.FunctionsCompiled++
	g.stats.InstructionsGenerated += enc.count
	return nil
}

// emit produces the complete wasm binary: magic+version, type, function,
// memory, export, code sections, in that fixed order (spec.md §4.5 "Module
// assembly").
func (g *generator) emit() []byte {
	var out []byte
	out = append(out, wasmMagic...)
	out = append(out, wasmVersion...)
	out = append(out, g.emitTypeSection()...)
	out = append(out, g.emitFunctionSection()...)
	out = append(out, g.emitMemorySection()...)
	out = append(out, g.emitExportSection()...)
	out = append(out, g.emitCodeSection()...)
	return out
}

func (g *generator) emitTypeSection() []byte {
	var contents []byte
	for _, sig := range g.types {
		contents = append(contents, 0x60)
		var params []byte
		for _, p := range sig.Params {
			vt, _ := valType(p)
			params = append(params, vt)
		}
		contents = append(contents, encodeVector(len(sig.Params), params)...)
		var results []byte
		n := 0
		if sig.Returns != nil {
			vt, ok := valType(*sig.Returns)
			if ok {
				results = append(results, vt)
				n = 1
			}
		}
		contents = append(contents, encodeVector(n, results)...)
	}
	return encodeSection(sectionType, encodeVector(len(g.types), contents))
}

func (g *generator) emitFunctionSection() []byte {
	var contents []byte
	for _, tidx := range g.funcs {
		contents = append(contents, encodeLEB128U(uint64(tidx))...)
	}
	return encodeSection(sectionFunction, encodeVector(len(g.funcs), contents))
}

func (g *generator) emitMemorySection() []byte {
	contents := []byte{0x00}
	contents = append(contents, encodeLEB128U(1)...)
	return encodeSection(sectionMemory, encodeVector(1, contents))
}

func (g *generator) emitExportSection() []byte {
	var contents []byte
	for _, exp := range g.exports {
		contents = append(contents, encodeString(exp.name)...)
		contents = append(contents, exp.kind)
		contents = append(contents, encodeLEB128U(uint64(exp.index))...)
	}
	return encodeSection(sectionExport, encodeVector(len(g.exports), contents))
}

func (g *generator) emitCodeSection() []byte {
	var contents []byte
	for _, code := range g.codes {
		contents = append(contents, encodeLEB128U(uint64(len(code)))...)
		contents = append(contents, code...)
	}
	return encodeSection(sectionCode, encodeVector(len(g.codes), contents))
}

// symbols returns the exported function name -> wasm function index map,
// used by Backend.Compile to populate CompilationResult.Symbols.
func (g *generator) symbols() map[string]uint64 {
	out := make(map[string]uint64, len(g.exports))
	for _, exp := range g.exports {
		if exp.kind == exportFunc {
			out[exp.name] = uint64(exp.index)
		}
	}
	return out
}
