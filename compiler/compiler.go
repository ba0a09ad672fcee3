package compiler

import (
	"bytes"
	"encoding/binary"
	"strconv"

	"github.com/cilium/ebpf/asm"
	"github.com/pkg/errors"

	"github.com/arcjustin/bpfscript/ast"
	"github.com/arcjustin/bpfscript/helpers"
	"github.com/arcjustin/bpfscript/instr"
	"github.com/arcjustin/bpfscript/optimizer"
	"github.com/arcjustin/bpfscript/parser"
	"github.com/arcjustin/bpfscript/types"
)

// maxStackSize is the largest stack frame a compiled program may use.
const maxStackSize = 4096

type locationKind byte

const (
	locStack locationKind = iota
	locSpecialImmediate
)

// variableLocation is where a variable's value lives: either a stack
// slot relative to R10, or a host-captured constant materialized by a
// typed load rather than a stack read.
type variableLocation struct {
	kind    locationKind
	stack   int16
	special uint32
}

type variableInfo struct {
	varType  types.Type
	location variableLocation
}

// argRegisters is R1..R5 in call-argument order.
var argRegisters = [5]asm.Register{instr.R1, instr.R2, instr.R3, instr.R4, instr.R5}

// Compiler holds the per-compilation environment: the variable table, the
// stack pointer, the instructions emitted so far, and the expression
// counter used for diagnostics. A Compiler is single-use: call Compile
// once, then GetInstructions/GetBytecode.
type Compiler struct {
	types        *types.Database
	variables    map[string]variableInfo
	instructions []asm.Instruction
	stack        uint32
	exprNum      uint32
}

// Create returns a compiler that resolves declared type names against db.
func Create(db *types.Database) *Compiler {
	return &Compiler{
		types:     db,
		variables: make(map[string]variableInfo),
		exprNum:   1,
	}
}

// Capture binds a host-side value into the script under name, read back
// via a typed load rather than a stack slot. Only the low 32 bits of value
// are kept. Used to pass map
// descriptors and other host constants into a compiled program; a
// captured name can never be re-assigned or dereferenced.
func (c *Compiler) Capture(name string, value int64) {
	c.variables[name] = variableInfo{
		varType: types.Type{Kind: types.Integer, IntegerV: types.IntegerType{
			UsedBits: 64,
			Bits:     64,
			Signed:   false,
		}},
		location: variableLocation{kind: locSpecialImmediate, special: uint32(value)},
	}
}

func (c *Compiler) typeFromDecl(decl *ast.TypeDecl) (types.Type, error) {
	ty, ok := c.types.GetTypeByName(decl.Name)
	if !ok {
		return types.Type{}, semanticsError(c.exprNum, "type with name %q doesn't exist", decl.Name)
	}
	if decl.IsRef {
		ty.NumRefs++
	}
	return ty, nil
}

func (c *Compiler) getVariableByName(name string) (variableInfo, error) {
	info, ok := c.variables[name]
	if !ok {
		return variableInfo{}, semanticsError(c.exprNum, "no variable with name %q", name)
	}
	return info, nil
}

func (c *Compiler) parseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return 0, semanticsError(c.exprNum, "failed to parse immediate value %q", s)
	}
	return v, nil
}

func (c *Compiler) parseInt(s string, bits int) (int64, error) {
	v, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		return 0, semanticsError(c.exprNum, "failed to parse immediate value %q", s)
	}
	return v, nil
}

func (c *Compiler) getStack() int16 { return -int16(c.stack) }

// pushStack reserves size bytes of stack and returns the offset for the
// new value. Returns a semantics error if the frame exceeds maxStackSize.
func (c *Compiler) pushStack(size uint32) (int16, error) {
	if c.stack+size > maxStackSize {
		return 0, semanticsError(c.exprNum, "stack size exceeded %d bytes with this assignment", maxStackSize)
	}
	c.stack += size
	return c.getStack(), nil
}

// emitInitStackRange works like an abstract memset: it replicates value
// into every byte of [offset, offset+size), using the widest store that
// still fits the remaining span at each step.
func (c *Compiler) emitInitStackRange(offset int16, value int8, size uint32) {
	v := int64(value)
	v64 := v | v<<8 | v<<16 | v<<24 | v<<32 | v<<40 | v<<48 | v<<56
	remaining := size

	for i := uint32(0); i < size/8; i++ {
		c.instructions = append(c.instructions, instr.StoreImm(instr.R10, offset, v64, instr.DWord))
		remaining -= 8
		offset += 8
	}
	size = remaining

	for i := uint32(0); i < size/4; i++ {
		c.instructions = append(c.instructions, instr.StoreImm(instr.R10, offset, v64, instr.Word))
		remaining -= 4
		offset += 4
	}
	size = remaining

	for i := uint32(0); i < size/2; i++ {
		c.instructions = append(c.instructions, instr.StoreImm(instr.R10, offset, v64, instr.Half))
		remaining -= 2
		offset += 2
	}
	size = remaining

	for i := uint32(0); i < size; i++ {
		c.instructions = append(c.instructions, instr.StoreImm(instr.R10, offset, v64, instr.Byte))
		remaining--
		offset++
	}
}

// emitPushImmediate emits instructions that push imm, parsed and narrowed
// to castType, onto the stack (or to useOffset, if given).
func (c *Compiler) emitPushImmediate(imm string, castType types.Type, useOffset *int16) (int16, types.Type, error) {
	size := castType.Size()
	if size == 0 && castType.Kind != types.Void {
		return 0, types.Type{}, semanticsError(c.exprNum, "can't assign to zero-sized type")
	}

	offset, err := c.resolveOffset(useOffset, size)
	if err != nil {
		return 0, types.Type{}, err
	}

	if castType.IsPointer() {
		v, err := c.parseInt(imm, 8)
		if err != nil {
			return 0, types.Type{}, err
		}
		c.instructions = append(c.instructions, instr.StoreImm(instr.R10, offset, v, instr.Byte))
		return offset, castType, nil
	}

	// No type was given, so a 64-bit unsigned integer is inferred.
	if castType.Kind == types.Void {
		v, err := c.parseInt(imm, 64)
		if err != nil {
			return 0, types.Type{}, err
		}
		c.instructions = append(c.instructions, instr.StoreImm(instr.R10, offset, v, instr.DWord))
		newType := types.Type{Kind: types.Integer, IntegerV: types.IntegerType{UsedBits: 64, Bits: 64, Signed: false}}
		return offset, newType, nil
	}

	if castType.Kind == types.Integer {
		integer := castType.IntegerV
		var v int64
		var err error
		switch {
		case size == 1 && !integer.Signed:
			var u uint64
			u, err = c.parseUint(imm, 8)
			v = int64(int8(u))
		case size == 1 && integer.Signed:
			v, err = c.parseInt(imm, 8)
		case size == 2 && !integer.Signed:
			var u uint64
			u, err = c.parseUint(imm, 16)
			v = int64(int16(u))
		case size == 2 && integer.Signed:
			v, err = c.parseInt(imm, 16)
		case size == 4 && !integer.Signed:
			var u uint64
			u, err = c.parseUint(imm, 32)
			v = int64(int32(u))
		case size == 4 && integer.Signed:
			v, err = c.parseInt(imm, 32)
		case size == 8 && !integer.Signed:
			var u uint64
			u, err = c.parseUint(imm, 64)
			v = int64(u)
		case size == 8 && integer.Signed:
			v, err = c.parseInt(imm, 64)
		default:
			return 0, types.Type{}, semanticsError(c.exprNum, "%d-bit integers not supported", size*8)
		}
		if err != nil {
			return 0, types.Type{}, err
		}
		c.instructions = append(c.instructions, instr.StoreImm(instr.R10, offset, v, widthOf(size)))
		return offset, castType, nil
	}

	v, err := c.parseInt(imm, 8)
	if err != nil {
		return 0, types.Type{}, err
	}
	c.emitInitStackRange(offset, int8(v), size)
	return offset, castType, nil
}

func widthOf(size uint32) instr.Width {
	switch size {
	case 1:
		return instr.Byte
	case 2:
		return instr.Half
	case 4:
		return instr.Word
	default:
		return instr.DWord
	}
}

func (c *Compiler) resolveOffset(useOffset *int16, size uint32) (int16, error) {
	if useOffset != nil {
		return *useOffset, nil
	}
	return c.pushStack(size)
}

// emitPushRegister emits instructions that push reg's full 64 bits onto
// the stack (or to offset, if given).
func (c *Compiler) emitPushRegister(reg asm.Register, useOffset *int16) (int16, error) {
	offset, err := c.resolveOffset(useOffset, 8)
	if err != nil {
		return 0, err
	}
	c.instructions = append(c.instructions, instr.StoreReg(instr.R10, offset, reg, instr.DWord))
	return offset, nil
}

// emitDerefRegisterToStack always emits a probe_read call: only certain
// memory can be directly dereferenced by the VM, but every address can be
// read through the helper, so this is unconditional even for addresses
// that happen to be locally-addressable.
func (c *Compiler) emitDerefRegisterToStack(reg asm.Register, derefType types.Type, offset int16) {
	c.instructions = append(c.instructions,
		instr.MovX64(instr.R1, instr.R10),
		instr.Add64(instr.R1, int32(offset)),
		instr.Mov64(instr.R2, int64(derefType.Size())),
		instr.MovX64(instr.R3, reg),
		instr.Call(asm.FnProbeRead),
	)
}

// emitPushLvalue emits instructions that push lval to the stack.
func (c *Compiler) emitPushLvalue(lval *ast.LValue, castType types.Type, useOffset *int16) (int16, types.Type, error) {
	varType, err := c.emitSetRegisterToLvalueAddr(instr.R6, lval)
	if err != nil {
		return 0, types.Type{}, err
	}

	realType := castType
	if castType.Kind == types.Void {
		realType = varType
	}

	if realType.Size() != varType.Size() {
		return 0, types.Type{}, semanticsError(c.exprNum, "cannot assign two types of different sizes")
	}

	offset, err := c.resolveOffset(useOffset, realType.Size())
	if err != nil {
		return 0, types.Type{}, err
	}

	switch lval.Prefix {
	case ast.NoPrefix:
		c.emitDerefRegisterToStack(instr.R6, realType, offset)
	case ast.Deref:
		return 0, types.Type{}, semanticsError(c.exprNum, "dereferencing is not currently supported")
	case ast.AddrOf:
		realType.NumRefs++
		c.instructions = append(c.instructions, instr.StoreReg(instr.R10, offset, instr.R6, instr.DWord))
	}

	return offset, realType, nil
}

// emitPushRvalue emits instructions that push rval to the stack.
func (c *Compiler) emitPushRvalue(rval *ast.RValue, castType types.Type, useOffset *int16) (int16, types.Type, error) {
	switch rval.Kind {
	case ast.RImmediate:
		return c.emitPushImmediate(rval.Immediate, castType, useOffset)
	case ast.RLValue:
		return c.emitPushLvalue(&rval.LValue, castType, useOffset)
	case ast.RFunctionCall:
		if castType.Kind != types.Integer || castType.Size() != 8 {
			return 0, types.Type{}, semanticsError(c.exprNum, "function return values can only be stored in 64-bit types")
		}
		if err := c.emitCall(&rval.Call); err != nil {
			return 0, types.Type{}, err
		}
		offset, err := c.emitPushRegister(instr.R0, useOffset)
		if err != nil {
			return 0, types.Type{}, err
		}
		return offset, castType, nil
	default:
		return 0, types.Type{}, errors.Wrap(ErrInternal, "unknown rvalue kind")
	}
}

// getFieldAccess returns the byte offset and type of a struct field.
func (c *Compiler) getFieldAccess(structType types.Type, fieldName string) (uint32, types.Type, error) {
	if structType.Kind != types.Struct {
		return 0, types.Type{}, semanticsError(c.exprNum, "can't field-deref a non-structure type")
	}
	field, ok := structType.StructV.Fields[fieldName]
	if !ok {
		return 0, types.Type{}, semanticsError(c.exprNum, "field %q doesn't exist on type", fieldName)
	}
	if field.OffsetBits%8 != 0 {
		return 0, types.Type{}, semanticsError(c.exprNum, "bit-field accesses not supported")
	}
	fieldType, ok := c.types.GetTypeByID(field.TypeID)
	if !ok {
		return 0, types.Type{}, errors.Wrap(ErrInternal, "type id invalid")
	}
	return field.OffsetBits / 8, fieldType, nil
}

// getArrayIndex returns the byte offset and type of an array element.
// index == array.NumElements is accepted, not rejected: the bound this
// checks against is the one the original compiler this was ported from
// actually enforces, not the exclusive upper bound its own prose
// describes — preserved here rather than silently tightened.
func (c *Compiler) getArrayIndex(arrayType types.Type, indexStr string) (uint32, types.Type, error) {
	if arrayType.Kind != types.Array {
		return 0, types.Type{}, semanticsError(c.exprNum, "can't array-deref a non-array type")
	}
	index, err := c.parseUint(indexStr, 32)
	if err != nil {
		return 0, types.Type{}, err
	}
	if uint32(index) > arrayType.ArrayV.NumElements {
		return 0, types.Type{}, semanticsError(c.exprNum, "out-of-bounds array access %d/%d", index, arrayType.ArrayV.NumElements)
	}
	elementType, ok := c.types.GetTypeByID(arrayType.ArrayV.ElementTypeID)
	if !ok {
		return 0, types.Type{}, errors.Wrap(ErrInternal, "type id invalid")
	}
	return elementType.Size() * uint32(index), elementType, nil
}

// getDerefOffset walks a deref chain and returns its total byte offset
// and final type.
func (c *Compiler) getDerefOffset(ty types.Type, derefs []ast.DeReference) (int16, types.Type, error) {
	var offset uint32
	curType := ty
	for _, deref := range derefs {
		if curType.IsPointer() {
			return 0, types.Type{}, semanticsError(c.exprNum, "can't deref an offset through an indirection")
		}
		var off uint32
		var next types.Type
		var err error
		switch deref.Kind {
		case ast.FieldAccess:
			off, next, err = c.getFieldAccess(curType, deref.Name)
		case ast.ArrayIndex:
			off, next, err = c.getArrayIndex(curType, deref.Index)
		}
		if err != nil {
			return 0, types.Type{}, err
		}
		offset += off
		curType = next
	}

	if offset > 0x7fff {
		return 0, types.Type{}, errors.Wrap(ErrIntegerConversion, "type is too large to deref")
	}
	return int16(offset), curType, nil
}

// emitAssign emits instructions for `left[: TypeDecl] = right`.
func (c *Compiler) emitAssign(assign *ast.Assignment) error {
	newVariable := true
	var castType types.Type
	var useOffset *int16

	if info, err := c.getVariableByName(assign.Left.Name); err == nil {
		if assign.TypeName != nil {
			return semanticsError(c.exprNum, "can't re-type %q after first assignment", assign.Left.Name)
		}
		if info.location.kind != locStack {
			return semanticsError(c.exprNum, "variable %q cannot be re-assigned", assign.Left.Name)
		}
		relOff, offsetType, err := c.getDerefOffset(info.varType, assign.Left.Derefs)
		if err != nil {
			return err
		}
		newVariable = false
		castType = offsetType
		off := info.location.stack + relOff
		useOffset = &off
	} else if assign.TypeName != nil {
		assignType, err := c.typeFromDecl(assign.TypeName)
		if err != nil {
			return err
		}
		castType = assignType
	}

	offset, newType, err := c.emitPushRvalue(&assign.Right, castType, useOffset)
	if err != nil {
		return err
	}

	if newVariable {
		c.variables[assign.Left.Name] = variableInfo{
			varType:  newType,
			location: variableLocation{kind: locStack, stack: offset},
		}
	}

	return nil
}

// emitFieldAccess bumps reg by a struct field's offset, returning the
// field's type.
func (c *Compiler) emitFieldAccess(reg asm.Register, structType types.Type, fieldName string) (types.Type, error) {
	offset, fieldType, err := c.getFieldAccess(structType, fieldName)
	if err != nil {
		return types.Type{}, err
	}
	if offset > 0 {
		c.instructions = append(c.instructions, instr.Add64(reg, int32(offset)))
	}
	return fieldType, nil
}

// emitIndexArray bumps reg by an array element's offset, returning the
// element's type.
func (c *Compiler) emitIndexArray(reg asm.Register, arrayType types.Type, indexStr string) (types.Type, error) {
	offset, elementType, err := c.getArrayIndex(arrayType, indexStr)
	if err != nil {
		return types.Type{}, err
	}
	if offset > 0 {
		c.instructions = append(c.instructions, instr.Add64(reg, int32(offset)))
	}
	return elementType, nil
}

// emitApplyDerefsToReg applies a deref chain to reg, which holds the
// address of a varType value; afterward reg holds the address of the
// final dereferenced value.
func (c *Compiler) emitApplyDerefsToReg(reg asm.Register, varType types.Type, derefs []ast.DeReference) (types.Type, error) {
	if len(derefs) == 0 {
		return varType, nil
	}

	if varType.IsPointer() {
		c.instructions = append(c.instructions, instr.LoadReg(reg, reg, 0, instr.DWord))
	}

	var nextType types.Type
	var err error
	switch derefs[0].Kind {
	case ast.FieldAccess:
		nextType, err = c.emitFieldAccess(reg, varType, derefs[0].Name)
	case ast.ArrayIndex:
		nextType, err = c.emitIndexArray(reg, varType, derefs[0].Index)
	}
	if err != nil {
		return types.Type{}, err
	}

	return c.emitApplyDerefsToReg(reg, nextType, derefs[1:])
}

// emitSetRegisterToLvalueAddr sets reg to the address of lval, returning
// the type of the value at that address.
func (c *Compiler) emitSetRegisterToLvalueAddr(reg asm.Register, lval *ast.LValue) (types.Type, error) {
	info, err := c.getVariableByName(lval.Name)
	if err != nil {
		return types.Type{}, err
	}

	if info.location.kind == locSpecialImmediate {
		return types.Type{}, semanticsError(c.exprNum, "variable %q is a capture; captures can't be assigned to", lval.Name)
	}

	c.instructions = append(c.instructions,
		instr.MovX64(reg, instr.R10),
		instr.Add64(reg, int32(info.location.stack)),
	)

	return c.emitApplyDerefsToReg(reg, info.varType, lval.Derefs)
}

// emitSetRegisterFromLvalue sets reg to the *value* of lval, honoring a
// helper argument's load-type descriptor when lval names a capture.
func (c *Compiler) emitSetRegisterFromLvalue(reg asm.Register, lval *ast.LValue, loadType helpers.ArgType) error {
	info, err := c.getVariableByName(lval.Name)
	if err != nil {
		return err
	}

	if info.location.kind == locSpecialImmediate {
		if len(lval.Derefs) > 0 {
			return semanticsError(c.exprNum, "can't dereference %q; it's a capture", lval.Name)
		}
		c.instructions = append(c.instructions, instr.LoadType(reg, int64(info.location.special), loadType))
		return nil
	}

	varType, err := c.emitSetRegisterToLvalueAddr(reg, lval)
	if err != nil {
		return err
	}

	// reg already holds a pointer to the lvalue, so a reference prefix
	// needs nothing further.
	if lval.Prefix == ast.AddrOf {
		return nil
	}

	// reg points to a value of type varType; load it in, if it fits.
	switch varType.Size() {
	case 1:
		c.instructions = append(c.instructions, instr.LoadReg(reg, reg, 0, instr.Byte))
	case 2:
		c.instructions = append(c.instructions, instr.LoadReg(reg, reg, 0, instr.Half))
	case 4:
		c.instructions = append(c.instructions, instr.LoadReg(reg, reg, 0, instr.Word))
	case 8:
		c.instructions = append(c.instructions, instr.LoadReg(reg, reg, 0, instr.DWord))
	default:
		return semanticsError(c.exprNum, "the variable %q is %d bytes and is too large to be passed in a register", lval.Name, varType.Size())
	}

	if lval.Prefix == ast.Deref {
		if !varType.IsPointer() {
			return semanticsError(c.exprNum, "cannot dereference a non-pointer type")
		}
		c.instructions = append(c.instructions, instr.LoadReg(reg, reg, 0, instr.DWord))
	}

	return nil
}

// emitSetRegisterFromRvalue sets reg to the value of rval: an lvalue's
// value, a parsed immediate, or a function call's return value.
func (c *Compiler) emitSetRegisterFromRvalue(reg asm.Register, rval *ast.RValue, loadType *helpers.ArgType) error {
	switch rval.Kind {
	case ast.RImmediate:
		v, err := c.parseInt(rval.Immediate, 64)
		if err != nil {
			return err
		}
		if loadType != nil {
			c.instructions = append(c.instructions, instr.LoadType(reg, v, *loadType))
		} else {
			c.instructions = append(c.instructions, instr.Mov64(reg, v))
		}
		return nil
	case ast.RLValue:
		lt := helpers.Void
		if loadType != nil {
			lt = *loadType
		}
		return c.emitSetRegisterFromLvalue(reg, &rval.LValue, lt)
	case ast.RFunctionCall:
		if err := c.emitCall(&rval.Call); err != nil {
			return err
		}
		if reg != instr.R0 {
			c.instructions = append(c.instructions, instr.MovX64(reg, instr.R0))
		}
		return nil
	default:
		return errors.Wrap(ErrInternal, "unknown rvalue kind")
	}
}

// emitCall resolves call's helper and emits its argument loads plus the
// call instruction itself.
func (c *Compiler) emitCall(call *ast.FunctionCall) error {
	helper, ok := helpers.Lookup(call.Name)
	if !ok {
		return semanticsError(c.exprNum, "unknown function %q", call.Name)
	}

	if len(call.Args) > 5 {
		return semanticsError(c.exprNum, "function call exceeds 5 arguments")
	}

	for i := range call.Args {
		lt := helper.ArgTypes[i]
		if err := c.emitSetRegisterFromRvalue(argRegisters[i], &call.Args[i], &lt); err != nil {
			return err
		}
	}
	c.instructions = append(c.instructions, instr.Call(helper.ID))

	return nil
}

// emitIfStatement emits the condition's register setup, a peephole pass
// (folding the condition's lvalue address arithmetic before the branch
// is laid down), the conditional/unconditional jumps, and both bodies.
// Jump targets are computed and patched by instruction index after the
// branch body is known, not resolved through any label mechanism.
func (c *Compiler) emitIfStatement(stmt *ast.IfStatement) error {
	if err := c.emitSetRegisterFromRvalue(instr.R8, &stmt.Cond.Left, nil); err != nil {
		return err
	}
	if err := c.emitSetRegisterFromRvalue(instr.R9, &stmt.Cond.Right, nil); err != nil {
		return err
	}

	c.instructions = optimizer.Run(c.instructions)

	cmp, err := comparatorFromAST(stmt.Cond.Op)
	if err != nil {
		return err
	}
	jumpIfTrue, err := instr.JumpIfX(cmp, instr.R8, instr.R9, 1)
	if err != nil {
		return err
	}
	c.instructions = append(c.instructions, jumpIfTrue)

	elseIndex := len(c.instructions)
	c.instructions = append(c.instructions, instr.JumpAbs(0))

	if err := c.emitBody(stmt.Exprs); err != nil {
		return err
	}

	endIndex := len(c.instructions)
	if len(stmt.ElseExprs) > 0 {
		c.instructions = append(c.instructions, instr.JumpAbs(0))
	}

	offset, err := signedOffset(len(c.instructions) - elseIndex - 1)
	if err != nil {
		return err
	}
	c.instructions[elseIndex] = instr.JumpAbs(offset)

	if len(stmt.ElseExprs) > 0 {
		if err := c.emitBody(stmt.ElseExprs); err != nil {
			return err
		}
		offset, err := signedOffset(len(c.instructions) - endIndex - 1)
		if err != nil {
			return err
		}
		c.instructions[endIndex] = instr.JumpAbs(offset)
	}

	return nil
}

func signedOffset(n int) (int16, error) {
	if n < -0x8000 || n > 0x7fff {
		return 0, errors.Wrap(ErrIntegerConversion, "jump distance too large")
	}
	return int16(n), nil
}

func comparatorFromAST(op ast.Comparator) (instr.Comparator, error) {
	switch op {
	case ast.Eq:
		return instr.Equal, nil
	case ast.Ne:
		return instr.NotEqual, nil
	case ast.Lt:
		return instr.LessThan, nil
	case ast.Le:
		return instr.LessOrEqual, nil
	case ast.Gt:
		return instr.GreaterThan, nil
	case ast.Ge:
		return instr.GreaterOrEqual, nil
	default:
		return 0, errors.Wrap(ErrInternal, "unknown comparator")
	}
}

// emitReturn emits a return, implicitly returning 0 when no value is
// given.
func (c *Compiler) emitReturn(ret *ast.Return) error {
	if ret.Value == nil {
		c.instructions = append(c.instructions, instr.Mov64(instr.R0, 0), instr.Exit())
		return nil
	}
	if err := c.emitSetRegisterFromRvalue(instr.R0, ret.Value, nil); err != nil {
		return err
	}
	c.instructions = append(c.instructions, instr.Exit())
	return nil
}

// emitPrologue pushes each declared argument from its register (R1..R5)
// onto the stack and registers it as a variable.
func (c *Compiler) emitPrologue(input *ast.InputLine) error {
	if len(input.Args) > 5 {
		return semanticsError(c.exprNum, "function exceeds 5 arguments")
	}

	for i := range input.Args {
		arg := &input.Args[i]
		argType, err := c.typeFromDecl(&arg.Type)
		if err != nil {
			return err
		}
		offset, err := c.emitPushRegister(argRegisters[i], nil)
		if err != nil {
			return err
		}
		c.variables[arg.Name] = variableInfo{
			varType:  argType,
			location: variableLocation{kind: locStack, stack: offset},
		}
	}

	return nil
}

// emitBody emits every expression in exprs in order, then runs the
// peephole optimizer over everything emitted so far — this runs at the
// end of the top-level body and again at the end of every nested if/else
// body, since those are emitted through this same function.
func (c *Compiler) emitBody(exprs []ast.Expression) error {
	for _, expr := range exprs {
		c.exprNum++

		var err error
		switch e := expr.(type) {
		case *ast.Assignment:
			err = c.emitAssign(e)
		case *ast.FunctionCall:
			err = c.emitCall(e)
		case *ast.IfStatement:
			err = c.emitIfStatement(e)
		case *ast.Return:
			err = c.emitReturn(e)
		default:
			err = errors.Wrap(ErrInternal, "unknown expression kind")
		}
		if err != nil {
			return err
		}
	}

	c.instructions = optimizer.Run(c.instructions)
	return nil
}

// Compile parses scriptText and emits its instructions. Programs that
// don't end in an explicit return implicitly return 0.
func (c *Compiler) Compile(scriptText string) error {
	script, err := parser.Parse(scriptText)
	if err != nil {
		return err
	}

	if err := c.emitPrologue(&script.Input); err != nil {
		return err
	}
	if err := c.emitBody(script.Exprs); err != nil {
		return err
	}

	last := len(script.Exprs) - 1
	if last < 0 {
		return c.emitReturn(&ast.Return{})
	}
	if _, ok := script.Exprs[last].(*ast.Return); !ok {
		return c.emitReturn(&ast.Return{})
	}

	return nil
}

// GetInstructions returns the instructions emitted by Compile.
func (c *Compiler) GetInstructions() []asm.Instruction {
	return c.instructions
}

// GetBytecode returns the wire-encoded form of every emitted
// instruction: one 64-bit word for most instructions, two for a 64-bit
// immediate load, whose second half carries the high 32 bits.
func (c *Compiler) GetBytecode() ([]uint64, error) {
	var words []uint64
	for _, ins := range c.instructions {
		var buf bytes.Buffer
		if _, err := ins.Marshal(&buf, binary.LittleEndian); err != nil {
			return nil, errors.Wrap(err, "failed to encode instruction")
		}
		data := buf.Bytes()
		for i := 0; i+8 <= len(data); i += 8 {
			words = append(words, binary.LittleEndian.Uint64(data[i:i+8]))
		}
	}
	return words, nil
}
