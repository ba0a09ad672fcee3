// Package types implements the type database the compiler uses to resolve
// declared names and BTF-ingested kernel types to their physical layout:
// size, field offsets, array element counts, and function parameter lists.
//
// A Type is a closed union over seven base kinds (Void, Integer, Float,
// Array, Struct, Enum, Function) plus a pointer depth (NumRefs). Go has no
// tagged union, so BaseKind is a discriminant byte and each payload lives in
// its own field of Type; only the field matching Kind is populated, rather
// than an interface hierarchy.
package types

// BaseKind discriminates the payload carried by a Type.
type BaseKind byte

const (
	Void BaseKind = iota
	Integer
	Float
	Array
	Struct
	Enum
	Function
)

func (k BaseKind) String() string {
	switch k {
	case Void:
		return "void"
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Array:
		return "array"
	case Struct:
		return "struct"
	case Enum:
		return "enum"
	case Function:
		return "function"
	default:
		return "unknown"
	}
}

// IntegerType holds the physical properties of an integer.
type IntegerType struct {
	// UsedBits is the total number of bits used to store the integer.
	UsedBits uint32
	// Bits is the number of bits used when performing operations, may be
	// less than UsedBits.
	Bits uint32
	// Signed reports whether the integer is signed.
	Signed bool
}

// Size returns the integer's size in bytes.
func (i IntegerType) Size() uint32 { return i.UsedBits / 8 }

// FloatType holds the physical properties of a float.
type FloatType struct {
	Bits uint32
}

// Size returns the float's size in bytes.
func (f FloatType) Size() uint32 { return f.Bits / 8 }

// ArrayType holds the physical properties of an array.
type ArrayType struct {
	ElementTypeID int
	NumElements   uint32
	// size is cached at creation time.
	size uint32
}

// Size returns the array's size in bytes.
func (a ArrayType) Size() uint32 { return a.size }

// FieldType holds the physical properties of a field in a struct.
type FieldType struct {
	// OffsetBits is the bit offset of the field within its struct.
	OffsetBits uint32
	TypeID     int
}

// StructType holds the physical properties of a structure.
type StructType struct {
	Fields map[string]FieldType
	size   uint32
}

// Size returns the structure's size in bytes.
func (s StructType) Size() uint32 { return s.size }

// EnumValue is one (name, value) pair of an enum type.
type EnumValue struct {
	Name  string
	Value int64
}

// EnumType holds the physical properties of an enum type.
type EnumType struct {
	Bits   uint32
	Values []EnumValue
}

// Size returns the enum's underlying storage size in bytes.
func (e EnumType) Size() uint32 { return e.Bits / 8 }

// FunctionType holds the physical properties of a function.
type FunctionType struct {
	ParamTypeIDs []int
}

// Type is a fully-qualified type: a base kind plus a pointer depth. Only
// the field matching Kind should be read; the others are zero value.
type Type struct {
	Kind BaseKind

	IntegerV  IntegerType
	FloatV    FloatType
	ArrayV    ArrayType
	StructV   StructType
	EnumV     EnumType
	FunctionV FunctionType

	// NumRefs is the pointer depth. 0 means a value type.
	NumRefs uint32
}

// IsPointer reports whether this is a pointer type (NumRefs > 0).
func (t Type) IsPointer() bool { return t.NumRefs > 0 }

// Size returns the size, in bytes, of the type. Pointers are always 8
// bytes: BPF is a 64-bit instruction set, so references are not narrowed
// even when the host architecture is 32-bit.
func (t Type) Size() uint32 {
	if t.NumRefs > 0 {
		return 8
	}
	switch t.Kind {
	case Void, Function:
		return 0
	case Integer:
		return t.IntegerV.Size()
	case Float:
		return t.FloatV.Size()
	case Array:
		return t.ArrayV.Size()
	case Struct:
		return t.StructV.Size()
	case Enum:
		return t.EnumV.Size()
	default:
		return 0
	}
}

func fromBaseKind(kind BaseKind) Type {
	return Type{Kind: kind}
}
