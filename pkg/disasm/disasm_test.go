package disasm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coredbg/pkg/addr"
)

func TestDecodeNop(t *testing.T) {
	instr, err := Decode(addr.Addr(0x401000), []byte{0x90})
	require.NoError(t, err)
	require.Equal(t, 1, instr.Length)
	require.NotEmpty(t, instr.Text)
}

func TestDecodeRange(t *testing.T) {
	// nop ; ret
	code := []byte{0x90, 0xC3}
	instrs, err := DecodeRange(addr.Addr(0x401000), code, 2)
	require.NoError(t, err)
	require.Len(t, instrs, 2)
	require.Equal(t, addr.Addr(0x401000), instrs[0].Addr)
	require.Equal(t, addr.Addr(0x401001), instrs[1].Addr)
}

func TestRestoreBreakpointByte(t *testing.T) {
	code := []byte{0xCC, 0x01, 0x02}
	restored := RestoreBreakpointByte(code, 0x90)
	require.Equal(t, byte(0x90), restored[0])
	require.Equal(t, byte(0xCC), code[0], "original slice must not be mutated")
}
