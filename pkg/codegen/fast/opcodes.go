package fast

// wasm module section ids, value types, and the instruction opcode table
// from spec.md §4.5.
const (
	sectionType     = 0x01
	sectionFunction = 0x03
	sectionMemory   = 0x05
	sectionExport   = 0x07
	sectionCode     = 0x0a
)

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}
var wasmVersion = []byte{0x01, 0x00, 0x00, 0x00}

const (
	valI32 = 0x7f
	valI64 = 0x7e
	valF32 = 0x7d
	valF64 = 0x7c
)

const (
	opUnreachable = 0x00
	opNop         = 0x01
	// Structural control-flow opcodes. Not part of spec.md §4.5's
	// instruction table (which only enumerates the "interesting" leaf
	// opcodes) — the table gives no mechanism for Branch/Switch at all, so
	// a CFG->structured-control lowering needs block/loop/if/br_if/br_table
	// from the wasm spec proper; standard wasm values are used here.
	opBlock   = 0x02
	opLoop    = 0x03
	opIf      = 0x04
	opElse    = 0x05
	opEnd     = 0x0b
	opBr      = 0x0c
	opBrIf    = 0x0d
	opBrTable = 0x0e

	blockVoid = 0x40

	// Return / Terminator::Return maps to 0x0b per spec.md §4.5's literal
	// table entry (sharing the byte with opEnd — every function body's
	// final explicit control transfer is naturally followed by the
	// function-closing end anyway).
	opReturn = 0x0b

	opI32Const = 0x41
	opI64Const = 0x42
	opF32Const = 0x43
	opF64Const = 0x44

	opCall = 0x10

	opLocalGet = 0x20
	opLocalSet = 0x21

	opI32Load  = 0x28
	opI32Store = 0x36

	opI32Eq  = 0x46
	opI32Ne  = 0x47
	opI32LtS = 0x48
	opI32LeS = 0x49
	opI32GtS = 0x4a
	opI32GeS = 0x4b

	opI32Add = 0x6a
	opI32Sub = 0x6b
	opI32Mul = 0x6c
	opI32DivS = 0x6d
	opI32RemS = 0x6f
	opI32And  = 0x71
	opI32Or   = 0x72
	opI32Xor  = 0x73
	opI32Shl  = 0x74
	opI32ShrS = 0x75
)

const (
	exportFunc   = 0x00
	exportMemory = 0x02
)
