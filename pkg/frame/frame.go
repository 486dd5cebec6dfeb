// Package frame parses Call Frame Information out of .debug_frame or
// .eh_frame (CIE/FDE records) and evaluates the call-frame instruction
// stream to recover, for a given PC, how to find the caller's CFA,
// return address, and saved registers. The stack package walks the
// call stack with these rows.
package frame

import (
	"encoding/binary"
	"fmt"

	"coredbg/pkg/addr"
	"coredbg/pkg/register"
)

// RegisterRule describes how to recover one register's value in the
// caller's frame.
type RegisterRule struct {
	// Offset is, for RuleOffset, a displacement from the CFA; in a
	// Row's CFARule (Kind RuleRegister), the offset added to Reg's
	// value to form the CFA.
	Offset int64
	Kind   RuleKind
	// Reg is, for RuleRegister, the source register: the register
	// holding the value (or, in a CFARule, the CFA base register).
	Reg    register.Register
}

// RuleKind enumerates the small set of DWARF CFI register rules this
// unwinder implements (same_value, offset(N), register(R), undefined).
type RuleKind int

const (
	RuleUndefined RuleKind = iota
	RuleSameValue
	RuleOffset
	RuleRegister
)

// Row is the unwind state valid for one range of addresses: how to
// compute the CFA, and a rule per callee-saved register.
type Row struct {
	StartAddr addr.Addr
	CFARule   RegisterRule
	CFAIsReg  bool
	Rules     map[register.Register]RegisterRule
}

// FDE is one parsed Frame Description Entry: the address range it
// covers and the sequence of unwind rows produced by running its (and
// its CIE's) instruction stream.
type FDE struct {
	LowPC  addr.Addr
	HighPC addr.Addr
	Rows   []Row
}

// Table is a full parsed .debug_frame/.eh_frame section: every FDE,
// searchable by covered PC.
type Table struct {
	FDEs []FDE
}

// RowForPC returns the unwind row describing how to recover the
// caller's frame at pc, if any FDE covers it.
func (t *Table) RowForPC(pc addr.Addr) (Row, bool) {
	for _, fde := range t.FDEs {
		if pc < fde.LowPC || pc >= fde.HighPC {
			continue
		}
		var best Row
		found := false
		for _, row := range fde.Rows {
			if row.StartAddr > pc {
				break
			}
			best = row
			found = true
		}
		if found {
			return best, true
		}
	}
	return Row{}, false
}

// cie is a parsed Common Information Entry, shared by every FDE that
// references it.
type cie struct {
	codeAlign      uint64
	dataAlign      int64
	returnAddrReg  uint64
	initialInstrs  []byte
}

// Parse decodes a raw .debug_frame (or .eh_frame) section into a
// Table. It implements the classic CIE/FDE binary layout: a length
// prefix, a CIE-or-FDE discriminator (CIE_id 0xffffffff in
// .debug_frame, 0 in .eh_frame), and an instruction stream of
// call-frame opcodes run once per entry to produce Rows.
func Parse(section []byte, ehFrame bool) (*Table, error) {
	cies := make(map[int]*cie)
	table := &Table{}

	pos := 0
	for pos < len(section) {
		start := pos
		if pos+4 > len(section) {
			break
		}
		length := binary.LittleEndian.Uint32(section[pos : pos+4])
		pos += 4
		if length == 0 {
			break
		}
		entryEnd := pos + int(length)
		if entryEnd > len(section) {
			return nil, fmt.Errorf("frame entry at offset %d overruns section", start)
		}
		if pos+4 > len(section) {
			return nil, fmt.Errorf("truncated frame entry at offset %d", start)
		}
		idField := binary.LittleEndian.Uint32(section[pos : pos+4])
		isCIE := (ehFrame && idField == 0) || (!ehFrame && idField == 0xffffffff)
		body := section[pos:entryEnd]

		if isCIE {
			c, err := parseCIE(body)
			if err != nil {
				return nil, fmt.Errorf("parsing CIE at offset %d: %w", start, err)
			}
			cies[start] = c
		} else {
			cieOffset := start + 4 - int(idField)
			if ehFrame {
				cieOffset = start + 4 - int(idField)
			} else {
				cieOffset = int(idField)
			}
			c, ok := cies[cieOffset]
			if !ok {
				// CIE appeared after its FDE in file order, or this
				// entry's CIE reference could not be resolved;
				// skip rather than fail the whole table.
				pos = entryEnd
				continue
			}
			fde, err := parseFDE(body, c)
			if err != nil {
				return nil, fmt.Errorf("parsing FDE at offset %d: %w", start, err)
			}
			table.FDEs = append(table.FDEs, fde)
		}
		pos = entryEnd
	}
	return table, nil
}

func parseCIE(body []byte) (*cie, error) {
	// body[0:4] id, body[4] version
	if len(body) < 6 {
		return nil, fmt.Errorf("CIE too short")
	}
	pos := 5 // skip id(4) + version(1)
	// augmentation string, NUL terminated
	augStart := pos
	for pos < len(body) && body[pos] != 0 {
		pos++
	}
	augmentation := string(body[augStart:pos])
	pos++ // skip NUL

	codeAlign, n := uleb128(body[pos:])
	pos += n
	dataAlign, n := sleb128(body[pos:])
	pos += n
	returnReg, n := uleb128(body[pos:])
	pos += n

	if augmentation != "" {
		// An eh_frame augmentation ("zR", etc.) prefixes a LEB128
		// length followed by that many augmentation-data bytes; skip
		// them since this unwinder doesn't consume LSDA/personality
		// pointers.
		if augmentation[0] == 'z' {
			augLen, n := uleb128(body[pos:])
			pos += n
			pos += int(augLen)
		}
	}

	var instrs []byte
	if pos <= len(body) {
		instrs = body[pos:]
	}

	return &cie{
		codeAlign:     codeAlign,
		dataAlign:     dataAlign,
		returnAddrReg: returnReg,
		initialInstrs: instrs,
	}, nil
}

func parseFDE(body []byte, c *cie) (FDE, error) {
	if len(body) < 4+8+8 {
		return FDE{}, fmt.Errorf("FDE too short")
	}
	pos := 4 // cie pointer field already consumed by caller logic
	initialLoc := binary.LittleEndian.Uint64(body[pos : pos+8])
	pos += 8
	rangeLen := binary.LittleEndian.Uint64(body[pos : pos+8])
	pos += 8

	instrs := body[pos:]

	fde := FDE{
		LowPC:  addr.Addr(initialLoc),
		HighPC: addr.Addr(initialLoc + rangeLen),
	}

	m := newMachine(c, fde.LowPC)
	m.run(c.initialInstrs)
	m.run(instrs)
	fde.Rows = m.rows
	return fde, nil
}

// uleb128 decodes an unsigned LEB128 value.
func uleb128(b []byte) (uint64, int) {
	var result uint64
	var shift uint
	var i int
	for i = 0; i < len(b); i++ {
		v := b[i]
		result |= uint64(v&0x7f) << shift
		if v&0x80 == 0 {
			i++
			break
		}
		shift += 7
	}
	return result, i
}

// sleb128 decodes a signed LEB128 value.
func sleb128(b []byte) (int64, int) {
	var result int64
	var shift uint
	var i int
	var v byte
	for i = 0; i < len(b); i++ {
		v = b[i]
		result |= int64(v&0x7f) << shift
		shift += 7
		if v&0x80 == 0 {
			i++
			break
		}
	}
	if shift < 64 && v&0x40 != 0 {
		result |= -1 << shift
	}
	return result, i
}
