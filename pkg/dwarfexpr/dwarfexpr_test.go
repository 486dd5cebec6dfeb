package dwarfexpr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coredbg/pkg/register"
)

func TestEvalRegister(t *testing.T) {
	// DW_OP_reg0 (rax)
	loc, err := Eval([]byte{opReg0}, Context{})
	require.NoError(t, err)
	require.Equal(t, KindRegister, loc.Kind)
	require.Equal(t, register.Rax, loc.Register)
}

func TestEvalFbregOffset(t *testing.T) {
	// DW_OP_fbreg -8 : LEB128 signed -8 = 0x78
	loc, err := Eval([]byte{opFbreg, 0x78}, Context{FrameBase: 0x7fffffffe000})
	require.NoError(t, err)
	require.Equal(t, KindAddress, loc.Kind)
	require.Equal(t, uint64(0x7fffffffdff8), loc.Address.Uint64())
}

func TestEvalBregWithRegisterContext(t *testing.T) {
	ctx := Context{
		GetRegister: func(r register.Register) (uint64, error) {
			require.Equal(t, register.Rbp, r)
			return 0x1000, nil
		},
	}
	// DW_OP_breg6 (rbp) +16: LEB128 signed 16 = 0x10
	loc, err := Eval([]byte{opBreg0 + 6, 0x10}, ctx)
	require.NoError(t, err)
	require.Equal(t, KindAddress, loc.Kind)
	require.Equal(t, uint64(0x1010), loc.Address.Uint64())
}

func TestEvalStackValue(t *testing.T) {
	// DW_OP_const1u 42, DW_OP_stack_value
	loc, err := Eval([]byte{opConst1u, 42, opStackValue}, Context{})
	require.NoError(t, err)
	require.Equal(t, KindValue, loc.Kind)
	require.Equal(t, uint64(42), loc.Value)
}

func TestEvalAddrWithLoadBase(t *testing.T) {
	expr := []byte{opAddr, 0x00, 0x10, 0, 0, 0, 0, 0, 0}
	loc, err := Eval(expr, Context{LoadBase: 0x555500000000})
	require.NoError(t, err)
	require.Equal(t, KindAddress, loc.Kind)
	require.Equal(t, uint64(0x555500001000), loc.Address.Uint64())
}

func TestEvalEmptyExpression(t *testing.T) {
	loc, err := Eval(nil, Context{})
	require.NoError(t, err)
	require.Equal(t, KindEmpty, loc.Kind)
}

func TestEvalUnsupportedOpcode(t *testing.T) {
	_, err := Eval([]byte{0xFF}, Context{})
	require.Error(t, err)
}
