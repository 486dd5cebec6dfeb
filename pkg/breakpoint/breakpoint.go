// Package breakpoint implements software breakpoints by patching a
// single 0xCC (INT3) byte into the debuggee's text, following
// install/remove of the INT3 opcode: one saved original byte per
// breakpoint, word-granular read-modify-write through ptrace so only
// the targeted byte is ever touched.
package breakpoint

import (
	"fmt"

	"coredbg/pkg/addr"
)

// int3 is the x86 INT3 trap-to-debugger instruction opcode.
const int3 = 0xCC

// wordReadWriter is the subset of procio.Process a Breakpoint needs,
// so the breakpoint engine can be tested without a live tracee.
type wordReadWriter interface {
	ReadWord(a addr.Addr) (addr.Word, error)
	WriteWord(a addr.Addr, w addr.Word) error
}

// Breakpoint is a single installed (or installable) software
// breakpoint at a fixed address.
type Breakpoint struct {
	Addr     addr.Addr
	Enabled  bool
	orig     byte
	hasOrig  bool
	HitCount int
}

// New creates a breakpoint description for addr. It is not installed
// until Install is called.
func New(a addr.Addr) *Breakpoint {
	return &Breakpoint{Addr: a}
}

// Install patches the INT3 byte into the tracee and remembers the
// original byte for later restoration. Installing an already-installed
// breakpoint is a no-op.
func (b *Breakpoint) Install(p wordReadWriter) error {
	if b.Enabled {
		return nil
	}
	aligned, off := b.Addr.AlignDown()
	word, err := p.ReadWord(aligned)
	if err != nil {
		return fmt.Errorf("installing breakpoint at %s: %w", b.Addr, err)
	}
	bytes := word.Bytes()
	b.orig = bytes[off]
	b.hasOrig = true
	bytes[off] = int3
	if err := p.WriteWord(aligned, addr.WordFromBytes(bytes)); err != nil {
		return fmt.Errorf("installing breakpoint at %s: %w", b.Addr, err)
	}
	b.Enabled = true
	return nil
}

// Remove restores the original byte, undoing Install. Removing an
// already-removed breakpoint is a no-op.
func (b *Breakpoint) Remove(p wordReadWriter) error {
	if !b.Enabled {
		return nil
	}
	if !b.hasOrig {
		return fmt.Errorf("removing breakpoint at %s: no saved original byte", b.Addr)
	}
	aligned, off := b.Addr.AlignDown()
	word, err := p.ReadWord(aligned)
	if err != nil {
		return fmt.Errorf("removing breakpoint at %s: %w", b.Addr, err)
	}
	bytes := word.Bytes()
	bytes[off] = b.orig
	if err := p.WriteWord(aligned, addr.WordFromBytes(bytes)); err != nil {
		return fmt.Errorf("removing breakpoint at %s: %w", b.Addr, err)
	}
	b.Enabled = false
	return nil
}

// OriginalByte returns the byte that was at Addr before installation.
// It is only valid once the breakpoint has been installed at least once.
func (b *Breakpoint) OriginalByte() (byte, bool) {
	return b.orig, b.hasOrig
}

// Set manages the collection of breakpoints for one debuggee.
type Set struct {
	byAddr map[addr.Addr]*Breakpoint
}

// NewSet creates an empty breakpoint set.
func NewSet() *Set {
	return &Set{byAddr: make(map[addr.Addr]*Breakpoint)}
}

// Add installs a new breakpoint at a, or returns the existing one if
// already present.
func (s *Set) Add(p wordReadWriter, a addr.Addr) (*Breakpoint, error) {
	if bp, ok := s.byAddr[a]; ok {
		return bp, nil
	}
	bp := New(a)
	if err := bp.Install(p); err != nil {
		return nil, err
	}
	s.byAddr[a] = bp
	return bp, nil
}

// Remove uninstalls and forgets the breakpoint at a, if any.
func (s *Set) Remove(p wordReadWriter, a addr.Addr) error {
	bp, ok := s.byAddr[a]
	if !ok {
		return nil
	}
	if err := bp.Remove(p); err != nil {
		return err
	}
	delete(s.byAddr, a)
	return nil
}

// At returns the breakpoint installed at a, if any.
func (s *Set) At(a addr.Addr) (*Breakpoint, bool) {
	bp, ok := s.byAddr[a]
	return bp, ok
}

// All returns every breakpoint in the set, in no particular order.
func (s *Set) All() []*Breakpoint {
	out := make([]*Breakpoint, 0, len(s.byAddr))
	for _, bp := range s.byAddr {
		out = append(out, bp)
	}
	return out
}

// StepOver temporarily removes the breakpoint at a (if present and
// enabled), invokes step, and reinstalls the breakpoint afterward —
// the standard protocol for resuming execution through an address that
// currently holds an INT3 byte.
func (s *Set) StepOver(p wordReadWriter, a addr.Addr, step func() error) error {
	bp, ok := s.byAddr[a]
	if !ok || !bp.Enabled {
		return step()
	}
	if err := bp.Remove(p); err != nil {
		return err
	}
	stepErr := step()
	if err := bp.Install(p); err != nil {
		if stepErr != nil {
			return fmt.Errorf("%w (also failed to reinstall breakpoint: %v)", stepErr, err)
		}
		return err
	}
	return stepErr
}
