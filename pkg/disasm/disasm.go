// Package disasm decodes x86-64 instructions for display, using
// golang.org/x/arch's decoder the same way go-delve/delve does. It is
// a pure function over raw bytes: breakpoint bytes must already be
// restored to their original values by the caller before decoding, or
// the INT3 opcode will show up in place of the real instruction.
package disasm

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"coredbg/pkg/addr"
)

// Instruction is one decoded instruction ready for display.
type Instruction struct {
	Addr     addr.Addr
	Length   int
	Text     string
	RawBytes []byte
}

// Decode decodes a single instruction from the start of code, which
// must already have any breakpoint INT3 byte restored to its original
// value.
func Decode(a addr.Addr, code []byte) (Instruction, error) {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return Instruction{}, fmt.Errorf("decoding instruction at %s: %w", a, err)
	}
	return Instruction{
		Addr:     a,
		Length:   inst.Len,
		Text:     x86asm.GNUSyntax(inst, uint64(a.Uint64()), nil),
		RawBytes: append([]byte(nil), code[:inst.Len]...),
	}, nil
}

// DecodeRange decodes count consecutive instructions starting at a
// from code, restarting the scan at each decoded instruction's length
// as x86 has variable-width instructions.
func DecodeRange(a addr.Addr, code []byte, count int) ([]Instruction, error) {
	var out []Instruction
	offset := 0
	for i := 0; i < count && offset < len(code); i++ {
		instr, err := Decode(a.Add(uint64(offset)), code[offset:])
		if err != nil {
			return out, err
		}
		out = append(out, instr)
		offset += instr.Length
	}
	return out, nil
}

// RestoreBreakpointByte overwrites the INT3 byte at the start of code
// with the original byte the breakpoint engine saved, so disassembly
// of a breakpointed address shows the real instruction rather than
// "int3".
func RestoreBreakpointByte(code []byte, original byte) []byte {
	if len(code) == 0 {
		return code
	}
	out := append([]byte(nil), code...)
	out[0] = original
	return out
}
