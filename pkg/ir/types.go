// Package ir defines the typed intermediate representation that sits
// between a frontend's MIR and the wasm codegen backends. IR functions are
// built by the lowering pass, rewritten in place by the optimizer, and
// consumed by the fast and aggressive backends.
package ir

import "fmt"

// Kind enumerates the closed set of IR types.
type Kind uint8

const (
	KindI32 Kind = iota
	KindI64
	KindF32
	KindF64
	KindVoid
	KindFuncRef
	KindExternRef
	KindPointer
	KindArray
	KindStruct
)

// Type is a closed sum type: I32, I64, F32, F64, Void, FuncRef,
// ExternRef(name), Pointer(T), Array{element, size?}, Struct{fields}.
type Type struct {
	Kind Kind

	// ExternRef
	ExternName string

	// Pointer, Array element
	Elem *Type

	// Array
	HasSize bool
	Size    uint32

	// Struct
	Fields []Type
}

var (
	I32     = Type{Kind: KindI32}
	I64     = Type{Kind: KindI64}
	F32     = Type{Kind: KindF32}
	F64     = Type{Kind: KindF64}
	Void    = Type{Kind: KindVoid}
	FuncRef = Type{Kind: KindFuncRef}
)

// ExternRef constructs a named host-reference type.
func ExternRef(name string) Type {
	return Type{Kind: KindExternRef, ExternName: name}
}

// Pointer constructs a pointer-to-T type.
func Pointer(elem Type) Type {
	return Type{Kind: KindPointer, Elem: &elem}
}

// Array constructs an array type. A nil size means unbounded (slice-like).
func Array(elem Type, size *uint32) Type {
	t := Type{Kind: KindArray, Elem: &elem}
	if size != nil {
		t.HasSize = true
		t.Size = *size
	}
	return t
}

// Struct constructs a struct type from an ordered field list.
func Struct(fields ...Type) Type {
	return Type{Kind: KindStruct, Fields: fields}
}

// Equal reports structural equality, used for signature comparison and type
// section deduplication.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindExternRef:
		return t.ExternName == o.ExternName
	case KindPointer:
		return t.Elem.Equal(*o.Elem)
	case KindArray:
		if t.HasSize != o.HasSize || (t.HasSize && t.Size != o.Size) {
			return false
		}
		return t.Elem.Equal(*o.Elem)
	case KindStruct:
		if len(t.Fields) != len(o.Fields) {
			return false
		}
		for i := range t.Fields {
			if !t.Fields[i].Equal(o.Fields[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func (t Type) String() string {
	switch t.Kind {
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindVoid:
		return "void"
	case KindFuncRef:
		return "funcref"
	case KindExternRef:
		return fmt.Sprintf("externref(%s)", t.ExternName)
	case KindPointer:
		return "*" + t.Elem.String()
	case KindArray:
		if t.HasSize {
			return fmt.Sprintf("[%d]%s", t.Size, t.Elem.String())
		}
		return "[]" + t.Elem.String()
	case KindStruct:
		s := "struct{"
		for i, f := range t.Fields {
			if i > 0 {
				s += ","
			}
			s += f.String()
		}
		return s + "}"
	default:
		return "unknown"
	}
}

// IsInteger reports whether the type belongs to the integer type class, used
// to validate BinaryOp/UnaryOp operand type-class matches.
func (t Type) IsInteger() bool {
	return t.Kind == KindI32 || t.Kind == KindI64
}

// IsFloat reports whether the type belongs to the floating type class.
func (t Type) IsFloat() bool {
	return t.Kind == KindF32 || t.Kind == KindF64
}

// Signature is a function's ordered parameter types and optional return
// type. Two signatures are equal iff ordered parameter types match and
// return type matches.
type Signature struct {
	Params  []Type
	Returns *Type
}

// Key returns a string uniquely identifying the signature's structure, used
// as a map key for type-section deduplication.
func (s Signature) Key() string {
	key := ""
	for _, p := range s.Params {
		key += p.String() + ","
	}
	key += "->"
	if s.Returns != nil {
		key += s.Returns.String()
	}
	return key
}

// Equal reports structural equality between two signatures.
func (s Signature) Equal(o Signature) bool {
	return s.Key() == o.Key()
}
