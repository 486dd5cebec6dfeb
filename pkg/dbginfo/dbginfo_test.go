package dbginfo

import (
	"debug/dwarf"
	"testing"

	"github.com/stretchr/testify/require"

	"coredbg/pkg/addr"
)

func TestFunctionAt(t *testing.T) {
	fn := &OwnedSymbol{
		Tag: dwarf.TagSubprogram, Name: "main",
		LowPC: 0x1000, HighPC: 0x1100, HasPC: true,
	}
	cu := &CompileUnit{Root: &OwnedSymbol{
		Tag:      dwarf.TagCompileUnit,
		Children: []*OwnedSymbol{fn},
	}}
	info := &Info{CompileUnits: []*CompileUnit{cu}}

	loadBase := addr.Addr(0x555500000000)
	got, gotCU, ok := info.FunctionAt(loadBase.Add(0x1050), loadBase)
	require.True(t, ok)
	require.Same(t, fn, got)
	require.Same(t, cu, gotCU)

	_, _, ok = info.FunctionAt(loadBase.Add(0x2000), loadBase)
	require.False(t, ok)
}

func TestVariablesInScope(t *testing.T) {
	param := &OwnedSymbol{Tag: dwarf.TagFormalParameter, Name: "argc"}
	local := &OwnedSymbol{Tag: dwarf.TagVariable, Name: "i"}
	nested := &OwnedSymbol{
		Tag:      dwarf.TagLexDwarfBlock,
		Children: []*OwnedSymbol{local},
	}
	fn := &OwnedSymbol{
		Tag:      dwarf.TagSubprogram,
		Name:     "main",
		Children: []*OwnedSymbol{param, nested},
	}

	vars := VariablesInScope(fn)
	require.Len(t, vars, 2)
	names := []string{vars[0].Name, vars[1].Name}
	require.ElementsMatch(t, []string{"argc", "i"}, names)
}

func TestFindChildByName(t *testing.T) {
	inner := &OwnedSymbol{Tag: dwarf.TagVariable, Name: "target"}
	block := &OwnedSymbol{Tag: dwarf.TagLexDwarfBlock, Children: []*OwnedSymbol{inner}}
	fn := &OwnedSymbol{Tag: dwarf.TagSubprogram, Name: "main", Children: []*OwnedSymbol{block}}

	found, ok := FindChildByName(fn, "target")
	require.True(t, ok)
	require.Same(t, inner, found)

	_, ok = FindChildByName(fn, "nonexistent")
	require.False(t, ok)
}

func TestCompileUnitGetSymbolByOffset(t *testing.T) {
	sym := &OwnedSymbol{Offset: 0x42, Name: "x"}
	cu := &CompileUnit{byOffset: map[dwarf.Offset]*OwnedSymbol{0x42: sym}}

	got, ok := cu.GetSymbolByOffset(0x42)
	require.True(t, ok)
	require.Same(t, sym, got)

	_, ok = cu.GetSymbolByOffset(0x99)
	require.False(t, ok)
}
