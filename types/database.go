package types

// Database holds every type known to a compilation: built-in primitives,
// user-declared structs/enums/arrays, and anything ingested from BTF.
// Types are addressed either by a stable integer id (their index in the
// backing slice) or, if given one, by name.
type Database struct {
	types   []Type
	nameMap map[string]int
}

// NewDatabase returns an empty type database.
func NewDatabase() *Database {
	return &Database{nameMap: make(map[string]int)}
}

// AddType inserts ty into the database. If name is non-empty and already
// present, the existing entry is overwritten in place (used by the BTF
// adapter's two-pass placeholder-then-fill strategy) and its id is
// returned; otherwise a new entry is appended.
func (d *Database) AddType(name string, ty Type) int {
	if name != "" {
		if index, ok := d.nameMap[name]; ok {
			d.types[index] = ty
			return index
		}
		index := len(d.types)
		d.types = append(d.types, ty)
		d.nameMap[name] = index
		return index
	}
	d.types = append(d.types, ty)
	return len(d.types) - 1
}

// GetTypeByName finds a type by name.
func (d *Database) GetTypeByName(name string) (Type, bool) {
	index, ok := d.nameMap[name]
	if !ok {
		return Type{}, false
	}
	return d.types[index], true
}

// GetTypeByID finds a type by id.
func (d *Database) GetTypeByID(id int) (Type, bool) {
	if id < 0 || id >= len(d.types) {
		return Type{}, false
	}
	return d.types[id], true
}

// GetTypeIDByName returns the id of a named type.
func (d *Database) GetTypeIDByName(name string) (int, bool) {
	id, ok := d.nameMap[name]
	return id, ok
}

// AddInteger adds an integer type of the given byte width.
func (d *Database) AddInteger(name string, bytes uint32, signed bool) int {
	bits := bytes * 8
	return d.AddType(name, Type{Kind: Integer, IntegerV: IntegerType{
		UsedBits: bits,
		Bits:     bits,
		Signed:   signed,
	}})
}

// AddFloat adds a float type of the given bit width.
func (d *Database) AddFloat(name string, bits uint32) int {
	return d.AddType(name, Type{Kind: Float, FloatV: FloatType{Bits: bits}})
}

// AddArray adds an array type. Returns ErrInvalidTypeID if elementTypeID
// does not resolve.
func (d *Database) AddArray(name string, elementTypeID int, numElements uint32) (int, error) {
	elemType, ok := d.GetTypeByID(elementTypeID)
	if !ok {
		return 0, ErrInvalidTypeID
	}
	size := elemType.Size() * numElements
	return d.AddType(name, Type{Kind: Array, ArrayV: ArrayType{
		ElementTypeID: elementTypeID,
		NumElements:   numElements,
		size:          size,
	}}), nil
}

// namedField pairs a field name with its offset/type, used internally by
// the three struct constructors below before they converge on the same
// size-computing AddType call.
type namedField struct {
	name  string
	field FieldType
}

func (d *Database) addStructFromFields(name string, fields []namedField) (int, error) {
	newFields := make(map[string]FieldType, len(fields))
	var bits uint32
	for _, nf := range fields {
		fieldType, ok := d.GetTypeByID(nf.field.TypeID)
		if !ok {
			return 0, ErrInvalidTypeID
		}
		reach := nf.field.OffsetBits + fieldType.Size()*8
		if reach > bits {
			bits = reach
		}
		newFields[nf.name] = nf.field
	}
	return d.AddType(name, Type{Kind: Struct, StructV: StructType{
		Fields: newFields,
		size:   bits / 8,
	}}), nil
}

// AddStruct adds a struct from already-positioned fields.
func (d *Database) AddStruct(name string, fields map[string]FieldType) (int, error) {
	named := make([]namedField, 0, len(fields))
	for n, f := range fields {
		named = append(named, namedField{n, f})
	}
	return d.addStructFromFields(name, named)
}

// AddStructByIDs adds a struct whose fields are given as (name, type id)
// pairs. Fields are packed contiguously in the given order.
func (d *Database) AddStructByIDs(name string, fields []struct {
	Name   string
	TypeID int
}) (int, error) {
	named := make([]namedField, 0, len(fields))
	var offset uint32
	for _, f := range fields {
		fieldType, ok := d.GetTypeByID(f.TypeID)
		if !ok {
			return 0, ErrInvalidTypeName
		}
		named = append(named, namedField{f.Name, FieldType{OffsetBits: offset, TypeID: f.TypeID}})
		offset += fieldType.Size() * 8
	}
	return d.addStructFromFields(name, named)
}

// AddStructByNames adds a struct whose fields are given as (name, type
// name) pairs. Fields are packed contiguously in the given order.
func (d *Database) AddStructByNames(name string, fields []struct {
	Name     string
	TypeName string
}) (int, error) {
	named := make([]namedField, 0, len(fields))
	var offset uint32
	for _, f := range fields {
		fieldType, ok := d.GetTypeByName(f.TypeName)
		if !ok {
			return 0, ErrInvalidTypeName
		}
		typeID, ok := d.GetTypeIDByName(f.TypeName)
		if !ok {
			return 0, ErrInvalidTypeName
		}
		named = append(named, namedField{f.Name, FieldType{OffsetBits: offset, TypeID: typeID}})
		offset += fieldType.Size() * 8
	}
	return d.addStructFromFields(name, named)
}
