package procio

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coredbg/pkg/register"
)

func TestRegsGetSetRoundTrip(t *testing.T) {
	var r Regs
	cases := []register.Register{
		register.Rax, register.Rbx, register.Rcx, register.Rdx,
		register.Rsi, register.Rdi, register.Rbp, register.Rsp,
		register.R8, register.R15, register.Rip, register.Eflags,
		register.Cs, register.Ss, register.Ds, register.Es,
		register.Fs, register.Gs, register.FsBase, register.GsBase,
		register.OrigRax,
	}
	for i, reg := range cases {
		want := uint64(0x1000 + i)
		require.NoError(t, r.Set(reg, want))
		got, err := r.Get(reg)
		require.NoError(t, err)
		require.Equal(t, want, got, "register %v", reg)
	}
}

func TestPCAndSP(t *testing.T) {
	var r Regs
	require.NoError(t, r.Set(register.Rip, 0x401000))
	require.NoError(t, r.Set(register.Rsp, 0x7ffffffde000))
	require.Equal(t, uint64(0x401000), r.PC().Uint64())
	require.Equal(t, uint64(0x7ffffffde000), r.SP().Uint64())

	r.SetPC(0x402000)
	require.Equal(t, uint64(0x402000), r.PC().Uint64())
}

func TestUnknownRegisterErrors(t *testing.T) {
	var r Regs
	_, err := r.Get(register.Register(999))
	require.Error(t, err)
	require.Error(t, r.Set(register.Register(999), 0))
}
