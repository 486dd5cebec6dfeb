// Package dbginfo builds an owned-symbol tree from an ELF
// binary's DWARF debug info. It is built directly on the standard
// library's debug/dwarf and debug/elf packages, the same foundation
// every Go-native debugger in practice (including go-delve/delve)
// layers its own higher-level symbol model on top of; there is no
// competing third-party DWARF reader in the ecosystem worth adopting
// instead.
package dbginfo

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"

	"coredbg/pkg/addr"
)

// OwnedSymbol is one DIE in the owned symbol tree: a DWARF compile
// unit, subprogram, variable, or type, with its children attached
// directly rather than through shared pointers, so the tree can be
// walked and torn down without reference-counting.
type OwnedSymbol struct {
	Tag      dwarf.Tag
	Offset   dwarf.Offset
	Name     string
	LowPC    addr.Addr
	HighPC   addr.Addr
	HasPC    bool
	DeclFile string
	DeclLine int
	// TypeOffset is the DIE offset this symbol's DW_AT_type points at,
	// resolved lazily via GetSymbolByOffset against the owning CU.
	TypeOffset dwarf.Offset
	HasType    bool
	// Location is the raw DW_AT_location exprloc bytes, when present
	// as a simple byte-string attribute rather than a location list
	// reference.
	Location []byte
	// LocListOffset is set instead of Location when DW_AT_location is
	// a loclistx/offset into .debug_loc(lists).
	LocListOffset int64
	HasLocList    bool
	// FrameBase is a subprogram's raw DW_AT_frame_base exprloc, used to
	// evaluate its locals' DW_OP_fbreg-relative locations.
	FrameBase []byte

	ByteSize int64
	Children []*OwnedSymbol
}

// CompileUnit is one DWARF compilation unit: its root DIE tree plus an
// offset index scoped to this CU alone, per the "per compile unit"
// resolution of GetSymbolByOffset's original ambiguity.
type CompileUnit struct {
	Root     *OwnedSymbol
	Name     string
	LowPC    addr.Addr
	byOffset map[dwarf.Offset]*OwnedSymbol
}

// GetSymbolByOffset resolves a DIE offset against this compile unit
// only. Offsets are only unique within a CU, so callers must always
// pass the CU a reference DIE actually belongs to.
func (cu *CompileUnit) GetSymbolByOffset(off dwarf.Offset) (*OwnedSymbol, bool) {
	s, ok := cu.byOffset[off]
	return s, ok
}

// Info is the full DWARF symbol model for one executable: its
// compile units plus the ELF load-time information (entry point,
// section addresses) needed to turn file-relative DWARF addresses
// into absolute ones once a load base is known.
type Info struct {
	CompileUnits []*CompileUnit
	Entry        addr.Addr
	dwarfData    *dwarf.Data
}

// Load parses the DWARF debug info out of the ELF file at path.
func Load(path string) (*Info, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ELF file %s: %w", path, err)
	}
	defer f.Close()

	data, err := f.DWARF()
	if err != nil {
		return nil, fmt.Errorf("reading DWARF info from %s: %w", path, err)
	}

	info := &Info{Entry: addr.Addr(f.Entry), dwarfData: data}

	reader := data.Reader()
	for {
		entry, err := reader.Next()
		if err != nil {
			return nil, fmt.Errorf("reading DWARF entries: %w", err)
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			continue
		}
		cu, err := buildCompileUnit(data, reader, entry)
		if err != nil {
			return nil, fmt.Errorf("building compile unit: %w", err)
		}
		info.CompileUnits = append(info.CompileUnits, cu)
	}
	return info, nil
}

func buildCompileUnit(data *dwarf.Data, reader *dwarf.Reader, root *dwarf.Entry) (*CompileUnit, error) {
	cu := &CompileUnit{byOffset: make(map[dwarf.Offset]*OwnedSymbol)}
	sym, err := buildTree(data, reader, root, cu)
	if err != nil {
		return nil, err
	}
	cu.Root = sym
	cu.Name = sym.Name
	cu.LowPC = sym.LowPC
	return cu, nil
}

// buildTree recursively builds an OwnedSymbol for entry and, since
// entry came from reader.Next(), consumes entry's children by reading
// forward until the matching null entry, the idiom debug/dwarf's
// Reader requires for tree-shaped traversal.
func buildTree(data *dwarf.Data, reader *dwarf.Reader, entry *dwarf.Entry, cu *CompileUnit) (*OwnedSymbol, error) {
	sym := &OwnedSymbol{
		Tag:    entry.Tag,
		Offset: entry.Offset,
	}
	cu.byOffset[entry.Offset] = sym

	if name, ok := entry.Val(dwarf.AttrName).(string); ok {
		sym.Name = name
	}
	if low, ok := entry.Val(dwarf.AttrLowpc).(uint64); ok {
		sym.LowPC = addr.Addr(low)
		sym.HasPC = true
		if high := entry.Val(dwarf.AttrHighpc); high != nil {
			switch v := high.(type) {
			case uint64:
				// DW_FORM_addr: absolute high PC.
				sym.HighPC = addr.Addr(v)
			case int64:
				// DW_FORM_data*: high PC is an offset from low PC.
				sym.HighPC = sym.LowPC.Add(uint64(v))
			}
		}
	}
	if file, ok := entry.Val(dwarf.AttrDeclFile).(int64); ok {
		sym.DeclFile = fmt.Sprintf("#%d", file)
	}
	if line, ok := entry.Val(dwarf.AttrDeclLine).(int64); ok {
		sym.DeclLine = int(line)
	}
	if typ, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok {
		sym.TypeOffset = typ
		sym.HasType = true
	}
	if size, ok := entry.Val(dwarf.AttrByteSize).(int64); ok {
		sym.ByteSize = size
	}
	if loc := entry.Val(dwarf.AttrLocation); loc != nil {
		switch v := loc.(type) {
		case []byte:
			sym.Location = v
		case int64:
			sym.LocListOffset = v
			sym.HasLocList = true
		}
	}
	if fb, ok := entry.Val(dwarf.AttrFrameBase).([]byte); ok {
		sym.FrameBase = fb
	}

	if !entry.Children {
		return sym, nil
	}
	for {
		child, err := reader.Next()
		if err != nil {
			return nil, err
		}
		if child == nil {
			return nil, fmt.Errorf("unexpected end of DWARF entries inside %s", sym.Name)
		}
		if child.Tag == 0 {
			// Null entry terminates this tree's children.
			break
		}
		childSym, err := buildTree(data, reader, child, cu)
		if err != nil {
			return nil, err
		}
		sym.Children = append(sym.Children, childSym)
	}
	return sym, nil
}

// FunctionAt returns the subprogram symbol whose [LowPC, HighPC) range
// (relative to loadBase) contains pc, across all compile units.
func (info *Info) FunctionAt(pc addr.Addr, loadBase addr.Addr) (*OwnedSymbol, *CompileUnit, bool) {
	for _, cu := range info.CompileUnits {
		if sym, ok := findFunction(cu.Root, pc, loadBase); ok {
			return sym, cu, true
		}
	}
	return nil, nil, false
}

func findFunction(sym *OwnedSymbol, pc addr.Addr, loadBase addr.Addr) (*OwnedSymbol, bool) {
	if sym.Tag == dwarf.TagSubprogram && sym.HasPC {
		low := loadBase.Add(sym.LowPC.Uint64())
		high := loadBase.Add(sym.HighPC.Uint64())
		if pc >= low && pc < high {
			return sym, true
		}
	}
	for _, c := range sym.Children {
		if found, ok := findFunction(c, pc, loadBase); ok {
			return found, true
		}
	}
	return nil, false
}

// VariablesInScope walks fn's children (formal parameters and local
// variables) without descending into nested lexical blocks belonging
// to other ranges, returning every DW_TAG_variable/DW_TAG_formal_parameter
// symbol reachable.
func VariablesInScope(fn *OwnedSymbol) []*OwnedSymbol {
	var out []*OwnedSymbol
	var walk func(*OwnedSymbol)
	walk = func(s *OwnedSymbol) {
		for _, c := range s.Children {
			if c.Tag == dwarf.TagVariable || c.Tag == dwarf.TagFormalParameter {
				out = append(out, c)
			}
			if c.Tag == dwarf.TagLexDwarfBlock {
				walk(c)
			}
		}
	}
	walk(fn)
	return out
}

// FindChildByName does a shallow, then recursive, search for a named
// child symbol (a local variable, a nested function).
func FindChildByName(sym *OwnedSymbol, name string) (*OwnedSymbol, bool) {
	for _, c := range sym.Children {
		if c.Name == name {
			return c, true
		}
	}
	for _, c := range sym.Children {
		if found, ok := FindChildByName(c, name); ok {
			return found, true
		}
	}
	return nil, false
}

// GetLocalVariables returns every local variable and formal parameter
// in scope at pc: the locals/parameters of the subprogram whose range
// covers pc, per VariablesInScope.
func (info *Info) GetLocalVariables(pc addr.Addr, loadBase addr.Addr) ([]*OwnedSymbol, bool) {
	fn, _, ok := info.FunctionAt(pc, loadBase)
	if !ok {
		return nil, false
	}
	return VariablesInScope(fn), true
}

// GetSymbolsByName returns every symbol across every compile unit
// whose name matches name exactly, for front-end variable/function
// lookups that aren't scoped to a particular PC.
func (info *Info) GetSymbolsByName(name string) []*OwnedSymbol {
	var out []*OwnedSymbol
	var walk func(*OwnedSymbol)
	walk = func(s *OwnedSymbol) {
		if s.Name == name {
			out = append(out, s)
		}
		for _, c := range s.Children {
			walk(c)
		}
	}
	for _, cu := range info.CompileUnits {
		walk(cu.Root)
	}
	return out
}
