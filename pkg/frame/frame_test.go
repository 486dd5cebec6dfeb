package frame

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coredbg/pkg/addr"
	"coredbg/pkg/register"
)

func TestMachineDefCfaAndOffset(t *testing.T) {
	c := &cie{codeAlign: 1, dataAlign: -8, returnAddrReg: 16}
	m := newMachine(c, addr.Addr(0x401000))

	// DW_CFA_def_cfa rsp(7), 8
	// DW_CFA_advance_loc1 4
	// DW_CFA_offset rbp(6), 2   -> rbp saved at CFA-16
	// DW_CFA_def_cfa_offset 16
	instrs := []byte{
		cfaDefCfa, 0x07, 0x08,
		cfaAdvanceLoc1, 0x04,
		cfaOffset | 0x06, 0x02,
		cfaDefCfaOffset, 0x10,
	}
	m.run(instrs)

	require.NotEmpty(t, m.rows)
	last := m.rows[len(m.rows)-1]
	require.Equal(t, addr.Addr(0x401004), last.StartAddr)
	require.Equal(t, register.Rsp, last.CFARule.Reg)
	require.Equal(t, int64(0x10), last.CFARule.Offset)

	rule, ok := last.Rules[register.Rbp]
	require.True(t, ok)
	require.Equal(t, RuleOffset, rule.Kind)
	require.Equal(t, int64(-16), rule.Offset)
}

func TestRowForPC(t *testing.T) {
	table := &Table{
		FDEs: []FDE{
			{
				LowPC:  0x401000,
				HighPC: 0x401100,
				Rows: []Row{
					{StartAddr: 0x401000, CFARule: RegisterRule{Kind: RuleRegister, Reg: register.Rsp, Offset: 8}},
					{StartAddr: 0x401010, CFARule: RegisterRule{Kind: RuleRegister, Reg: register.Rbp, Offset: 16}},
				},
			},
		},
	}

	row, ok := table.RowForPC(0x401020)
	require.True(t, ok)
	require.Equal(t, register.Rbp, row.CFARule.Reg)

	row, ok = table.RowForPC(0x401005)
	require.True(t, ok)
	require.Equal(t, register.Rsp, row.CFARule.Reg)

	_, ok = table.RowForPC(0x500000)
	require.False(t, ok)
}
