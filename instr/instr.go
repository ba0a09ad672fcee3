// Package instr is the thin naming layer between the compiler's emission
// vocabulary (mov64, storeN, loadxN, jmp_ifx, call, exit, ...) and the real
// BPF instruction encoder, github.com/cilium/ebpf/asm. The compiler never
// constructs asm.Instruction values directly; every emission goes through
// one of the constructors here, so the encoding rules (which BPF opcode
// class an operation lands in, how an immediate is widened) live in one
// place.
package instr

import (
	"github.com/cilium/ebpf/asm"
	"github.com/pkg/errors"

	"github.com/arcjustin/bpfscript/helpers"
)

// Register aliases the BPF register file by the names the emitter's
// design notes use: R0 is the return value, R1-R5 are call arguments, R6
// is scratch, R8/R9 hold the two operands of an if-condition's comparison,
// R10 is the read-only frame
// pointer.
const (
	R0  = asm.R0
	R1  = asm.R1
	R2  = asm.R2
	R3  = asm.R3
	R4  = asm.R4
	R5  = asm.R5
	R6  = asm.R6
	R7  = asm.R7
	R8  = asm.R8
	R9  = asm.R9
	R10 = asm.RFP
)

// Width is the size, in bytes, of a load/store.
type Width byte

const (
	Byte  Width = 1
	Half  Width = 2
	Word  Width = 4
	DWord Width = 8
)

func (w Width) size() asm.Size {
	switch w {
	case Byte:
		return asm.Byte
	case Half:
		return asm.Half
	case Word:
		return asm.Word
	default:
		return asm.DWord
	}
}

// Mov64 loads a 64-bit immediate into dst.
func Mov64(dst asm.Register, imm int64) asm.Instruction {
	return asm.Mov.Imm64(dst, imm)
}

// MovX64 copies the full 64 bits of src into dst.
func MovX64(dst, src asm.Register) asm.Instruction {
	return asm.Mov.Reg(dst, src)
}

// Add64 adds an immediate into dst in place.
func Add64(dst asm.Register, imm int32) asm.Instruction {
	return asm.Add.Imm(dst, imm)
}

// AddX64 adds src into dst in place.
func AddX64(dst, src asm.Register) asm.Instruction {
	return asm.Add.Reg(dst, src)
}

// StoreImm writes a narrowed immediate to [dst+offset].
func StoreImm(dst asm.Register, offset int16, imm int64, width Width) asm.Instruction {
	return asm.StoreImm(dst, offset, imm, width.size())
}

// StoreReg writes a narrowed src to [dst+offset].
func StoreReg(dst asm.Register, offset int16, src asm.Register, width Width) asm.Instruction {
	return asm.StoreMem(dst, offset, src, width.size())
}

// LoadReg widens the value at [src+offset] into dst.
func LoadReg(dst, src asm.Register, offset int16, width Width) asm.Instruction {
	return asm.LoadMem(dst, src, offset, width.size())
}

// LoadType materializes imm into reg, honoring a helper argument's
// load-type descriptor. Void is a plain 64-bit immediate load; Map uses
// the real BPF pseudo-instruction for loading a map file descriptor as a
// map pointer (asm.PseudoMapFD), the same encoding the kernel verifier
// expects for `bpf_map_lookup_elem`'s first argument. MapIndex and
// MapValue have no equivalent pseudo-load: those arguments are always
// stack addresses in practice, computed by ordinary lvalue addressing,
// never materialized as a bare immediate, so both fall back to Void.
func LoadType(reg asm.Register, imm int64, lt helpers.ArgType) asm.Instruction {
	if lt == helpers.Map {
		return asm.Instruction{
			OpCode:   asm.LoadImmOp(asm.DWord),
			Dst:      reg,
			Src:      asm.PseudoMapFD,
			Constant: imm,
		}
	}
	return Mov64(reg, imm)
}

// Call emits a helper call. The helper id is a real Linux bpf_func_id,
// exactly what github.com/cilium/ebpf/asm.BuiltinFunc already enumerates.
func Call(fn asm.BuiltinFunc) asm.Instruction {
	return fn.Call()
}

// Exit emits the single, unconditional "leave the program" instruction.
func Exit() asm.Instruction {
	return asm.Return()
}

// Comparator is the relational test a conditional jump performs, matching
// the script language's comparator set (==, !=, <, <=, >, >=).
type Comparator byte

const (
	Equal Comparator = iota
	NotEqual
	LessThan
	LessOrEqual
	GreaterThan
	GreaterOrEqual
)

func (cmp Comparator) jumpOp() (asm.JumpOp, error) {
	switch cmp {
	case Equal:
		return asm.JEq, nil
	case NotEqual:
		return asm.JNE, nil
	case LessThan:
		return asm.JLT, nil
	case LessOrEqual:
		return asm.JLE, nil
	case GreaterThan:
		return asm.JGT, nil
	case GreaterOrEqual:
		return asm.JGE, nil
	default:
		return 0, errors.Errorf("unknown comparator %d", cmp)
	}
}

// JumpIfX emits a conditional jump comparing dst against src, branching
// offset instructions forward (or backward, if negative) relative to the
// jump itself. The compiler emits these with a fixed offset of 1, skipping
// the unconditional JumpAbs placed right after it; that JumpAbs is the one
// emitted with a placeholder 0 and replaced once its target is known. This
// constructor never goes through asm's label/symbol resolution: a raw
// offset, computed by instruction index, is the emitter's own jump model,
// not a linker's.
func JumpIfX(cmp Comparator, dst, src asm.Register, offset int16) (asm.Instruction, error) {
	op, err := cmp.jumpOp()
	if err != nil {
		return asm.Instruction{}, err
	}
	return asm.Instruction{
		OpCode: op.Op(asm.RegSource),
		Dst:    dst,
		Src:    src,
		Offset: offset,
	}, nil
}

// JumpAbs emits an unconditional jump, offset instructions forward (or
// backward) relative to the jump itself. Same raw-offset, patch-by-index
// model as JumpIfX.
func JumpAbs(offset int16) asm.Instruction {
	return asm.Instruction{
		OpCode: asm.Ja.Op(asm.ImmSource),
		Offset: offset,
	}
}

// SetOffset patches an already-emitted jump's branch distance in place,
// used once a conditional or unconditional jump's placeholder target
// becomes known.
func SetOffset(ins *asm.Instruction, offset int16) {
	ins.Offset = offset
}
