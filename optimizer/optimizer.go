// Package optimizer is the peephole pass the emitter runs over its own
// output: a small table of fixed-size instruction windows, each paired
// with a rewrite that only fires when every instruction in the window
// matches exactly. Rules are data (a []pass slice), not a hardcoded
// if/else chain, so adding a rewrite never touches the scan loop.
package optimizer

import "github.com/cilium/ebpf/asm"

type pass struct {
	window int
	apply  func(window []asm.Instruction) ([]asm.Instruction, bool)
}

var loadSizes = []asm.Size{asm.Byte, asm.Half, asm.Word, asm.DWord}

// equal compares the fields that matter to this optimizer's pattern
// matching. Reference/Symbol are never set by the emitter (it patches
// jump offsets by instruction index, not by label), so they're excluded.
func equal(a, b asm.Instruction) bool {
	return a.OpCode == b.OpCode && a.Dst == b.Dst && a.Src == b.Src &&
		a.Offset == b.Offset && a.Constant == b.Constant
}

// movAddLoad folds
//
//	r2 = r1
//	r2 += N
//	r2 = *r2
//
// into a single offset load: r2 = *(r1 + N).
func movAddLoad(w []asm.Instruction) ([]asm.Instruction, bool) {
	for _, size := range loadSizes {
		if !equal(asm.LoadMem(w[2].Dst, w[2].Src, 0, size), w[2]) {
			continue
		}
		if !equal(asm.Mov.Reg(w[0].Dst, w[0].Src), w[0]) {
			return nil, false
		}
		if !equal(asm.Add.Imm(w[1].Dst, int32(w[1].Constant)), w[1]) {
			return nil, false
		}
		if w[0].Dst != w[1].Dst || w[1].Dst != w[2].Dst || w[2].Dst != w[2].Src {
			return nil, false
		}
		return []asm.Instruction{asm.LoadMem(w[0].Dst, w[0].Src, int16(w[1].Constant), size)}, true
	}
	return nil, false
}

// addLoad folds
//
//	r2 += N
//	r2 = *r2
//
// into a single offset load: r2 = *(r2 + N).
func addLoad(w []asm.Instruction) ([]asm.Instruction, bool) {
	if !equal(asm.LoadMem(w[1].Dst, w[1].Src, 0, asm.DWord), w[1]) {
		return nil, false
	}
	if !equal(asm.Add.Imm(w[0].Dst, int32(w[0].Constant)), w[0]) {
		return nil, false
	}
	if w[0].Dst != w[1].Dst || w[1].Dst != w[1].Src {
		return nil, false
	}
	return []asm.Instruction{asm.LoadMem(w[0].Dst, w[0].Dst, int16(w[0].Constant), asm.DWord)}, true
}

var passes = []pass{
	{window: 3, apply: movAddLoad},
	{window: 2, apply: addLoad},
}

// Run scans instructions left to right, replacing the first matching
// window at each position and resuming immediately after the
// replacement — a rewritten instruction is never re-examined in the
// same pass. Idempotent: running it again over its own output is a
// no-op, since every fold produces a single offset load that no window
// pattern here matches.
func Run(instructions []asm.Instruction) []asm.Instruction {
	var out []asm.Instruction
	eliminated := 0
	for i := 0; i < len(instructions); i++ {
		start := i + eliminated
		if start > len(instructions) {
			start = len(instructions)
		}
		remaining := instructions[start:]
		if len(remaining) == 0 {
			break
		}

		matched := false
		for _, p := range passes {
			if p.window > len(remaining) {
				continue
			}
			if rewritten, ok := p.apply(remaining[:p.window]); ok {
				out = append(out, rewritten...)
				eliminated += p.window - 1
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		out = append(out, remaining[0])
	}
	return out
}
