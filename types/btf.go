package types

import (
	"fmt"

	"github.com/cilium/ebpf/btf"
	"github.com/pkg/errors"
)

// ErrNoConversion is returned when a BTF type references another BTF type
// that has not been registered yet under its synthetic ".btf.N" name.
var ErrNoConversion = errors.New("no conversion from btf type")

// btfIDName is the synthetic name every ingested BTF type is registered
// under first, keyed by its position in the spec's type list. Named BTF
// types (structs, typedefs, ...) are additionally registered under every
// name BTF attaches to them, so AddBTFTypes runs this twice per type: once
// by position (to let later types forward-reference earlier ones that
// haven't been named yet) and once by name.
func btfIDName(id btf.TypeID) string {
	return fmt.Sprintf(".btf.%d", id)
}

func (d *Database) addBTFVoid(name string, numRefs uint32) int {
	return d.AddType(name, Type{Kind: Void, NumRefs: numRefs})
}

func (d *Database) addBTFInt(name string, t *btf.Int, numRefs uint32) int {
	bits := t.Size * 8
	return d.AddType(name, Type{
		Kind: Integer,
		IntegerV: IntegerType{
			UsedBits: bits,
			Bits:     bits,
			Signed:   t.Encoding&btf.Signed != 0,
		},
		NumRefs: numRefs,
	})
}

func (d *Database) addBTFFloat(name string, size uint32, numRefs uint32) int {
	return d.AddType(name, Type{
		Kind:    Float,
		FloatV:  FloatType{Bits: size * 8},
		NumRefs: numRefs,
	})
}

func (d *Database) addBTFArray(name string, t *btf.Array, numRefs uint32) (int, error) {
	elemID, ok := d.GetTypeIDByName(btfIDName(elementID(t.Type)))
	if !ok {
		return 0, ErrNoConversion
	}
	id, err := d.AddArray(name, elemID, t.Nelems)
	if err != nil {
		return 0, err
	}
	if numRefs > 0 {
		ty, _ := d.GetTypeByID(id)
		ty.NumRefs = numRefs
		d.types[id] = ty
	}
	return id, nil
}

func (d *Database) addBTFStruct(name string, t *btf.Struct, numRefs uint32) (int, error) {
	fields := make([]namedField, 0, len(t.Members))
	for _, member := range t.Members {
		typeID, ok := d.GetTypeIDByName(btfIDName(elementID(member.Type)))
		if !ok {
			return 0, ErrNoConversion
		}
		fields = append(fields, namedField{member.Name, FieldType{
			OffsetBits: uint32(member.Offset.Bytes()) * 8,
			TypeID:     typeID,
		}})
	}
	id, err := d.addStructFromFields(name, fields)
	if err != nil {
		return 0, err
	}
	if numRefs > 0 {
		ty, _ := d.GetTypeByID(id)
		ty.NumRefs = numRefs
		d.types[id] = ty
	}
	return id, nil
}

// elementID extracts the TypeID a BTF reference points at, unwrapping the
// single level of indirection the cilium/ebpf type graph uses in place of
// raw integer ids.
func elementID(t btf.Type) btf.TypeID {
	id, _ := t.(interface{ TypeID() btf.TypeID })
	if id == nil {
		return 0
	}
	return id.TypeID()
}

// addBTFType dispatches on the concrete BTF type, following the same
// integer-reference-count propagation the rest of the adapter uses.
func (d *Database) addBTFType(name string, t btf.Type, numRefs uint32) (int, error) {
	switch v := t.(type) {
	case *btf.Int:
		return d.addBTFInt(name, v, numRefs), nil
	case *btf.Float:
		return d.addBTFFloat(name, v.Size, numRefs), nil
	case *btf.Array:
		return d.addBTFArray(name, v, numRefs)
	case *btf.Struct:
		return d.addBTFStruct(name, v, numRefs)
	case *btf.Union:
		return d.addBTFUnion(name, v, numRefs)
	case *btf.Pointer:
		return d.addBTFType(name, v.Target, numRefs+1)
	case *btf.Typedef:
		return d.addBTFType(name, v.Type, numRefs)
	case *btf.Volatile:
		return d.addBTFType(name, v.Type, numRefs)
	case *btf.Const:
		return d.addBTFType(name, v.Type, numRefs)
	default:
		return d.addBTFVoid(name, numRefs), nil
	}
}

// addBTFUnion treats a union the same as a struct with every member at
// offset 0 — BPF scripts never write overlapping members simultaneously,
// and struct/union share physical layout rules.
func (d *Database) addBTFUnion(name string, t *btf.Union, numRefs uint32) (int, error) {
	fields := make([]namedField, 0, len(t.Members))
	for _, member := range t.Members {
		typeID, ok := d.GetTypeIDByName(btfIDName(elementID(member.Type)))
		if !ok {
			return 0, ErrNoConversion
		}
		fields = append(fields, namedField{member.Name, FieldType{TypeID: typeID}})
	}
	id, err := d.addStructFromFields(name, fields)
	if err != nil {
		return 0, err
	}
	if numRefs > 0 {
		ty, _ := d.GetTypeByID(id)
		ty.NumRefs = numRefs
		d.types[id] = ty
	}
	return id, nil
}

// AddBTFTypes ingests every type in spec into the database.
//
// BTF types can forward-reference each other (a struct member can name a
// type defined later in the blob), so this runs in two passes: first a
// placeholder Void entry is reserved for every type, keyed by its
// positional ".btf.N" name; then every type is filled in for real, once
// under its positional name and once under every name BTF attaches to it
// (struct/enum/typedef tags). A type is never resolved during the first
// pass, so a forward reference always finds an entry — just possibly
// still a placeholder if it in turn forward-references something later.
func (d *Database) AddBTFTypes(spec *btf.Spec) error {
	iter := spec.Iterate()
	ids := make([]btf.TypeID, 0)
	kinds := make([]btf.Type, 0)
	for iter.Next() {
		id, _ := iter.Type.(interface{ TypeID() btf.TypeID })
		var tid btf.TypeID
		if id != nil {
			tid = id.TypeID()
		}
		ids = append(ids, tid)
		kinds = append(kinds, iter.Type)
		d.addBTFVoid(btfIDName(tid), 0)
	}

	for i, t := range kinds {
		name := btfIDName(ids[i])
		if _, err := d.addBTFType(name, t, 0); err != nil {
			return errors.Wrapf(err, "adding btf type %s", name)
		}

		if named, ok := t.(interface{ TypeName() string }); ok {
			if n := named.TypeName(); n != "" {
				if _, err := d.addBTFType(n, t, 0); err != nil {
					return errors.Wrapf(err, "adding btf type %s", n)
				}
			}
		}
	}

	return nil
}
