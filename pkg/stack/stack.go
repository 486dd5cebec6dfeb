// Package stack captures raw stack memory and produces CFI-driven
// backtraces: a flat
// snapshot of bytes for display, and a frame-by-frame walk driven by
// the frame package's unwind rows. The walk derives each caller's CFA
// from the saved value of the current row's CFA register, so it
// follows frames whose CFA is rbp-relative; a frame whose CFA is
// rsp-relative (rsp has no saved-value rule) ends the walk.
package stack

import (
	"strings"

	"coredbg/pkg/addr"
	"coredbg/pkg/dbginfo"
	"coredbg/pkg/frame"
	"coredbg/pkg/register"
)

// Snapshot is a flat capture of stack memory, from the current stack
// pointer up through some number of bytes toward higher addresses.
type Snapshot struct {
	StackPointer addr.Addr
	Data         []byte
}

// MemReader is the subset of procio.Process a backtrace needs to read
// saved registers off the stack.
type MemReader interface {
	ReadMemory(a addr.Addr, size int) ([]byte, error)
}

// Frame is one entry in a backtrace: the return address, the
// resolved function (if DWARF info covers it), and the CFA used to
// find the next frame up.
type Frame struct {
	PC           addr.Addr
	CFA          addr.Addr
	Function     string
	DemangledOK  bool
	File         string
	Line         int
}

// Backtrace is an ordered list of frames, innermost (current PC)
// first.
type Backtrace struct {
	Frames []Frame
}

// Unwind walks the call stack starting at pc/initialCFA (typically
// rsp right after a call instruction, or the CFA of frame 0 computed
// from the current rsp/rbp), using table to recover each frame's
// return address and the next CFA, and info/loadBase to resolve
// function names. It stops after maxFrames frames, when no FDE covers
// the current PC, when the recovered return address is zero, or when
// nextCFA cannot derive the caller's CFA.
func Unwind(mem MemReader, table *frame.Table, info *dbginfo.Info, loadBase addr.Addr, pc addr.Addr, cfa addr.Addr, maxFrames int) (*Backtrace, error) {
	bt := &Backtrace{}
	curPC := pc
	curCFA := cfa

	for i := 0; i < maxFrames; i++ {
		relativePC := addr.Addr(curPC.Uint64() - loadBase.Uint64())
		row, ok := table.RowForPC(relativePC)
		if !ok {
			break
		}

		f := Frame{PC: curPC, CFA: curCFA}
		if info != nil {
			if sym, _, ok := info.FunctionAt(curPC, loadBase); ok {
				name, demangled := Demangle(sym.Name)
				f.Function = name
				f.DemangledOK = demangled
				f.File = sym.DeclFile
				f.Line = sym.DeclLine
			}
		}
		bt.Frames = append(bt.Frames, f)

		returnAddrRule, hasReturnRule := row.Rules[register.Rip]
		var returnAddr addr.Addr
		if hasReturnRule && returnAddrRule.Kind == frame.RuleOffset {
			word, err := mem.ReadMemory(curCFA.Add(uint64(returnAddrRule.Offset)), 8)
			if err != nil {
				return bt, err
			}
			returnAddr = addr.Addr(leUint64(word))
		} else {
			// Most CFI programs agree that the return address sits
			// one word below the CFA even without an explicit rule
			// for the return-address column.
			word, err := mem.ReadMemory(curCFA.Sub(8), 8)
			if err != nil {
				return bt, err
			}
			returnAddr = addr.Addr(leUint64(word))
		}
		if returnAddr == 0 {
			break
		}

		// The next frame's CFA is computed from this row's CFA rule
		// register: its saved value (read from the current CFA using
		// that register's own save rule) is the value it held on
		// entry to the callee, which is exactly the value the caller
		// frame needs to re-derive its own CFA.
		nextCFA, ok := nextCFA(mem, row, curCFA)
		if !ok {
			break
		}

		curPC = returnAddr
		curCFA = nextCFA
		if curCFA == 0 {
			break
		}
	}
	return bt, nil
}

// nextCFA recovers the caller's CFA from the current frame's CFA
// register rule: that register's value, as saved relative to the
// current CFA, equals its value in the caller, which combined with
// the CFA rule's fixed offset yields the caller's CFA. It reports false
// when row has no offset rule for its CFA register, as for an
// rsp-relative CFA.
func nextCFA(mem MemReader, row frame.Row, curCFA addr.Addr) (addr.Addr, bool) {
	savedRule, ok := row.Rules[row.CFARule.Reg]
	if !ok || savedRule.Kind != frame.RuleOffset {
		return 0, false
	}
	word, err := mem.ReadMemory(curCFA.Add(uint64(savedRule.Offset)), 8)
	if err != nil {
		return 0, false
	}
	return addr.Addr(leUint64(word) + uint64(row.CFARule.Offset)), true
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// Demangle turns an Itanium-mangled C++ symbol name (the "_Z..."
// scheme clang/gcc emit) into a best-effort readable form. Full
// Itanium demangling is out of scope; this recognizes the mangling
// and strips the leading length-prefixed identifier chain, which is
// enough to show a readable function name for the common
// non-templated, non-overloaded case. Anything it cannot fully unpack
// is returned unmodified with demangled=false.
func Demangle(name string) (demangled string, ok bool) {
	if !strings.HasPrefix(name, "_Z") {
		return name, true
	}
	rest := name[2:]
	var parts []string
	for len(rest) > 0 && rest[0] >= '0' && rest[0] <= '9' {
		n := 0
		for len(rest) > 0 && rest[0] >= '0' && rest[0] <= '9' {
			n = n*10 + int(rest[0]-'0')
			rest = rest[1:]
		}
		if n <= 0 || n > len(rest) {
			return name, false
		}
		parts = append(parts, rest[:n])
		rest = rest[n:]
	}
	if len(parts) == 0 {
		return name, false
	}
	return strings.Join(parts, "::"), true
}
