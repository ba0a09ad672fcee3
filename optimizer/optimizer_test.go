package optimizer_test

import (
	"testing"

	"github.com/cilium/ebpf/asm"
	"github.com/stretchr/testify/require"

	"github.com/arcjustin/bpfscript/optimizer"
)

func TestRunFoldsMovAddLoadIntoOffsetLoad(t *testing.T) {
	in := []asm.Instruction{
		asm.Mov.Reg(asm.R2, asm.R1),
		asm.Add.Imm(asm.R2, -8),
		asm.LoadMem(asm.R2, asm.R2, 0, asm.DWord),
	}
	out := optimizer.Run(in)
	require.Equal(t, []asm.Instruction{
		asm.LoadMem(asm.R2, asm.R1, -8, asm.DWord),
	}, out)
}

func TestRunFoldsAddLoadIntoOffsetLoad(t *testing.T) {
	in := []asm.Instruction{
		asm.Add.Imm(asm.R3, 16),
		asm.LoadMem(asm.R3, asm.R3, 0, asm.DWord),
	}
	out := optimizer.Run(in)
	require.Equal(t, []asm.Instruction{
		asm.LoadMem(asm.R3, asm.R3, 16, asm.DWord),
	}, out)
}

func TestRunLeavesUnmatchedInstructionsInOrder(t *testing.T) {
	in := []asm.Instruction{
		asm.Mov.Imm64(asm.R0, 300),
		asm.Return(),
	}
	out := optimizer.Run(in)
	require.Equal(t, in, out)
}

func TestRunFoldsConsecutiveIndependentWindows(t *testing.T) {
	// Two unrelated mov+add+load triples back to back, as emitted by an
	// if-condition setting R8 then R9 from two different stack slots.
	in := []asm.Instruction{
		asm.Mov.Reg(asm.R8, asm.RFP),
		asm.Add.Imm(asm.R8, -8),
		asm.LoadMem(asm.R8, asm.R8, 0, asm.DWord),
		asm.Mov.Reg(asm.R9, asm.RFP),
		asm.Add.Imm(asm.R9, -16),
		asm.LoadMem(asm.R9, asm.R9, 0, asm.DWord),
	}
	out := optimizer.Run(in)
	require.Equal(t, []asm.Instruction{
		asm.LoadMem(asm.R8, asm.RFP, -8, asm.DWord),
		asm.LoadMem(asm.R9, asm.RFP, -16, asm.DWord),
	}, out)
}

func TestRunIsIdempotent(t *testing.T) {
	in := []asm.Instruction{
		asm.Mov.Reg(asm.R2, asm.R1),
		asm.Add.Imm(asm.R2, -8),
		asm.LoadMem(asm.R2, asm.R2, 0, asm.Word),
		asm.Mov.Imm64(asm.R0, 0),
		asm.Return(),
	}
	once := optimizer.Run(in)
	twice := optimizer.Run(once)
	require.Equal(t, once, twice)
}
