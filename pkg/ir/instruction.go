package ir

// LocalIdx indexes a function's local slots. Parameters occupy the first N
// slots; additional temporaries are appended by the lowering pass and the
// optimizer.
type LocalIdx uint32

// BlockId identifies a basic block. Block 0 is always the entry block.
// BlockIds are identities, not positions — the streaming-layout pass may
// reorder the block slice without renumbering them.
type BlockId uint32

// ConstKind enumerates the closed set of constant value kinds.
type ConstKind uint8

const (
	ConstI32 ConstKind = iota
	ConstI64
	ConstF32
	ConstF64
	ConstBool
)

// Constant is a literal value of one of the closed constant kinds.
type Constant struct {
	Kind ConstKind
	I32  int32
	I64  int64
	F32  float32
	F64  float64
	Bool bool
}

// Type returns the IR type of the constant.
func (c Constant) Type() Type {
	switch c.Kind {
	case ConstI32, ConstBool:
		return I32
	case ConstI64:
		return I64
	case ConstF32:
		return F32
	case ConstF64:
		return F64
	default:
		return Void
	}
}

// OperandKind enumerates the closed set of operand forms.
type OperandKind uint8

const (
	OperandLocal OperandKind = iota
	OperandConstant
	OperandGlobal
	OperandStackValue
)

// Operand is a value reference: a local, a constant, a global, or (only as
// a lowering-time intermediate — validate rejects it in finished IR) the
// value `depth` slots down the implicit expression stack.
type Operand struct {
	Kind     OperandKind
	Local    LocalIdx
	Const    Constant
	Global   uint32
	StackDep uint32
}

// LocalOperand constructs an Operand referencing a local.
func LocalOperand(idx LocalIdx) Operand { return Operand{Kind: OperandLocal, Local: idx} }

// ConstOperand constructs an Operand wrapping a constant.
func ConstOperand(c Constant) Operand { return Operand{Kind: OperandConstant, Const: c} }

// GlobalOperand constructs an Operand referencing a global.
func GlobalOperand(idx uint32) Operand { return Operand{Kind: OperandGlobal, Global: idx} }

// BinOp enumerates binary operators.
type BinOp uint8

const (
	BinAdd BinOp = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinAnd
	BinOr
	BinXor
	BinShl
	BinShr
	BinEq
	BinNe
	BinLt
	BinLe
	BinGt
	BinGe
)

// UnOp enumerates unary operators.
type UnOp uint8

const (
	UnNeg UnOp = iota
	UnNot
)

// LinearOpKind enumerates the linear-resource operations a lowering pass may
// emit: Consume marks an "exactly once" use, Borrow marks a temporary
// non-owning reference, Release ends a borrow's live range.
type LinearOpKind uint8

const (
	LinearConsume LinearOpKind = iota
	LinearBorrow
	LinearRelease
)

// InvariantKind enumerates compiler-inserted invariant checks.
type InvariantKind uint8

const (
	InvariantAliasing InvariantKind = iota
)

// InstrOp enumerates the closed set of non-terminal instruction forms.
type InstrOp uint8

const (
	OpLocalGet InstrOp = iota
	OpLocalSet
	OpBinaryOp
	OpUnaryOp
	OpMemoryLoad
	OpMemoryStore
	OpCall
	OpExternRefCast
	OpLinearOp
	OpInvariantCheck
	OpNop
	OpReturn
)

// SourceLocation is a file/line/column triple propagated from MIR. Every
// local and every non-trivial instruction SHOULD carry one.
type SourceLocation struct {
	File   string
	Line   int
	Column int
}

// IsZero reports whether no source location was recorded.
func (s SourceLocation) IsZero() bool {
	return s.File == "" && s.Line == 0 && s.Column == 0
}

// Instruction is a single non-terminal IR instruction. Only the fields
// relevant to Op are populated; the rest are zero.
type Instruction struct {
	Op InstrOp

	// LocalGet / LocalSet
	Local   LocalIdx
	Operand Operand

	// BinaryOp / UnaryOp. Dest/HasDest (shared with Call, ExternRefCast)
	// assign the computed result directly to a local — the IR has no
	// operand stack, so a value-producing instruction always names its own
	// destination rather than leaving a value for a following LocalSet to
	// pick up.
	BinOp BinOp
	UnOp  UnOp
	Left  Operand
	Right Operand
	Type  Type // result / operand type class for the op

	// MemoryLoad / MemoryStore
	Addr   Operand
	Value  Operand
	Align  uint32
	Offset uint32

	// Call
	Func    Operand
	Args    []Operand
	Dest    LocalIdx
	HasDest bool

	// ExternRefCast. Result goes to Dest/HasDest as well.
	CastValue Operand
	CastType  Type

	// LinearOp
	LinearKind LinearOpKind
	LinearVal  Operand

	// InvariantCheck
	InvariantKind InvariantKind
	Params        []LocalIdx

	// Return (non-terminal use exists only inside the optimizer before a
	// terminator is synthesized; terminal Return lives in Terminator)
	ReturnValue    Operand
	HasReturnValue bool

	Loc SourceLocation
}

// TermKind enumerates the closed set of terminator forms.
type TermKind uint8

const (
	// TermNone is the zero value: a block whose terminator was never set.
	// Validate rejects it with ErrMissingTerminator.
	TermNone TermKind = iota
	TermReturn
	TermJump
	TermBranch
	TermSwitch
	TermUnreachable
)

// SwitchCase pairs a matched constant with its target block.
type SwitchCase struct {
	Value  Constant
	Target BlockId
}

// Terminator ends exactly one basic block.
type Terminator struct {
	Kind TermKind

	// Return
	Value    Operand
	HasValue bool

	// Jump
	Target BlockId

	// Branch
	Condition Operand
	Then      BlockId
	Else      BlockId

	// Switch
	SwitchValue Operand
	Cases       []SwitchCase
	Default     BlockId

	Loc SourceLocation
}

// BasicBlock is a straight-line instruction sequence ending in exactly one
// terminator. No fall-through between blocks — every exit is explicit.
type BasicBlock struct {
	ID           BlockId
	Instructions []Instruction
	Terminator   Terminator
}

// OwnershipState enumerates the states a local's ownership annotation may
// hold across its lifetime.
type OwnershipState uint8

const (
	StateUninitialized OwnershipState = iota
	StateOwned
	StateBorrowed
	StateMoved
	StateConsumed
	// StateDestroyed marks a StorageDead scope-exit, kept distinct from
	// StateConsumed (an explicit linear-resource consumption) so the
	// linear-type passes can tell "this local went out of scope" from
	// "this local was consumed" even though MIR spells the former as a
	// plain StorageDead statement (spec.md §4.2 mapping table).
	StateDestroyed
)

// OwnershipAnnotation records a state transition for a local variable at a
// specific point in the lowering, attached to the owning function in
// insertion order. Block identifies where the transition occurs so the
// linear-type passes can run a per-block forward dataflow joined across
// control-flow edges.
type OwnershipAnnotation struct {
	Variable LocalIdx
	State    OwnershipState
	Block    BlockId
	Loc      SourceLocation
}

// Local is a declared local slot: a parameter (if Index < len(params)) or a
// lowering-introduced temporary.
type Local struct {
	Name string
	Type Type
	Loc  SourceLocation
}

// Function is a named IR entity: a signature, an ordered local list
// (parameters occupy the first NumParams slots), an ordered basic-block
// list (block 0 is entry), a capability set, and an ownership annotation
// list.
type Function struct {
	Name       string
	Signature  Signature
	NumParams  int
	Locals     []Local
	Blocks     []BasicBlock
	Caps       CapabilitySet
	Ownership  []OwnershipAnnotation
	// LinearLocals is the set of locals whose type the frontend tagged
	// linear. Ownership transitions are recorded for every local, but the
	// linear-type passes (pkg/linear) only enforce consume-exactly-once
	// discipline on the locals named here.
	LinearLocals map[LocalIdx]bool
	blockIndex   map[BlockId]int
}

// NewFunction creates an empty IR function ready for block/local population
// by the lowering pass.
func NewFunction(name string, sig Signature) *Function {
	return &Function{
		Name:         name,
		Signature:    sig,
		Caps:         CapabilitySet{},
		LinearLocals: map[LocalIdx]bool{},
		blockIndex:   map[BlockId]int{},
	}
}

// MarkLinear tags idx as carrying a linear type.
func (f *Function) MarkLinear(idx LocalIdx) {
	f.LinearLocals[idx] = true
}

// IsLinear reports whether idx was tagged linear.
func (f *Function) IsLinear(idx LocalIdx) bool {
	return f.LinearLocals != nil && f.LinearLocals[idx]
}

// AddLocal appends a local declaration and returns its index. Parameters
// must be added before any temporary via AddParam.
func (f *Function) AddLocal(typ Type, loc SourceLocation) LocalIdx {
	idx := LocalIdx(len(f.Locals))
	f.Locals = append(f.Locals, Local{Type: typ, Loc: loc})
	return idx
}

// AddParam appends a parameter local. Must be called before any AddLocal
// call for a given function to keep parameters occupying the first
// NumParams slots.
func (f *Function) AddParam(name string, typ Type, loc SourceLocation) LocalIdx {
	idx := LocalIdx(len(f.Locals))
	f.Locals = append(f.Locals, Local{Name: name, Type: typ, Loc: loc})
	f.NumParams++
	return idx
}

// AddBlock appends a new basic block with the given body and terminator and
// returns its BlockId. Blocks are append-only during construction.
func (f *Function) AddBlock(instrs []Instruction, term Terminator) BlockId {
	id := BlockId(len(f.Blocks))
	f.Blocks = append(f.Blocks, BasicBlock{ID: id, Instructions: instrs, Terminator: term})
	f.blockIndex[id] = len(f.Blocks) - 1
	return id
}

// Block returns a pointer to the basic block with the given id, or nil if
// it does not exist (e.g. it was removed by an optimizer pass).
func (f *Function) Block(id BlockId) *BasicBlock {
	if i, ok := f.blockIndex[id]; ok {
		return &f.Blocks[i]
	}
	return nil
}

// AddCapability records a capability requirement on the function.
func (f *Function) AddCapability(c Capability) {
	f.Caps.Add(c)
}

// AddOwnershipAnnotation appends an ownership state transition in insertion
// order.
func (f *Function) AddOwnershipAnnotation(a OwnershipAnnotation) {
	f.Ownership = append(f.Ownership, a)
}

// Reindex rebuilds blockIndex after blocks have been filtered or reordered
// by an optimizer pass. Pass implementations that mutate f.Blocks directly
// must call this before the function is used again.
func (f *Function) Reindex() {
	f.blockIndex = make(map[BlockId]int, len(f.Blocks))
	for i, b := range f.Blocks {
		f.blockIndex[b.ID] = i
	}
}

// UsedLocals returns the set of local indices referenced anywhere in the
// function's instructions and terminators, plus every parameter. Ownership
// annotations are not consulted.
func (f *Function) UsedLocals() map[LocalIdx]bool {
	used := map[LocalIdx]bool{}
	for i := 0; i < f.NumParams; i++ {
		used[LocalIdx(i)] = true
	}
	markOperand := func(o Operand) {
		if o.Kind == OperandLocal {
			used[o.Local] = true
		}
	}
	for instr := range f.AllInstructions() {
		switch instr.Op {
		case OpLocalGet:
			used[instr.Local] = true
		case OpLocalSet:
			used[instr.Local] = true
			markOperand(instr.Operand)
		case OpBinaryOp:
			markOperand(instr.Left)
			markOperand(instr.Right)
			if instr.HasDest {
				used[instr.Dest] = true
			}
		case OpUnaryOp:
			markOperand(instr.Operand)
			if instr.HasDest {
				used[instr.Dest] = true
			}
		case OpMemoryLoad:
			markOperand(instr.Addr)
		case OpMemoryStore:
			markOperand(instr.Addr)
			markOperand(instr.Value)
		case OpCall:
			markOperand(instr.Func)
			for _, a := range instr.Args {
				markOperand(a)
			}
			if instr.HasDest {
				used[instr.Dest] = true
			}
		case OpExternRefCast:
			markOperand(instr.CastValue)
			if instr.HasDest {
				used[instr.Dest] = true
			}
		case OpLinearOp:
			markOperand(instr.LinearVal)
		case OpInvariantCheck:
			for _, p := range instr.Params {
				used[p] = true
			}
		}
	}
	for _, b := range f.Blocks {
		switch b.Terminator.Kind {
		case TermReturn:
			if b.Terminator.HasValue {
				markOperand(b.Terminator.Value)
			}
		case TermBranch:
			markOperand(b.Terminator.Condition)
		case TermSwitch:
			markOperand(b.Terminator.SwitchValue)
		}
	}
	return used
}

// AllInstructions returns an iterator over every non-terminal instruction in
// the function, in block then in-block order.
func (f *Function) AllInstructions() func(func(*Instruction) bool) {
	return func(yield func(*Instruction) bool) {
		for bi := range f.Blocks {
			for ii := range f.Blocks[bi].Instructions {
				if !yield(&f.Blocks[bi].Instructions[ii]) {
					return
				}
			}
		}
	}
}

// Module is a collection of functions and globals compiled as one unit.
type Module struct {
	Name      string
	Functions []*Function
	Globals   []Global
}

// Global represents a module-level global variable.
type Global struct {
	Name string
	Type Type
	Init Constant
}

// NewModule creates an empty IR module.
func NewModule(name string) *Module {
	return &Module{Name: name}
}

// AddFunction appends a function to the module.
func (m *Module) AddFunction(f *Function) {
	m.Functions = append(m.Functions, f)
}

// AddGlobal appends a global variable declaration.
func (m *Module) AddGlobal(name string, typ Type, init Constant) {
	m.Globals = append(m.Globals, Global{Name: name, Type: typ, Init: init})
}
