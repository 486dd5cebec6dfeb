package breakpoint

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coredbg/pkg/addr"
)

// fakeMem is an in-memory stand-in for a traced process's word I/O,
// letting the breakpoint engine be tested without ptrace.
type fakeMem struct {
	words map[addr.Addr]addr.Word
}

func newFakeMem() *fakeMem {
	return &fakeMem{words: make(map[addr.Addr]addr.Word)}
}

func (f *fakeMem) ReadWord(a addr.Addr) (addr.Word, error) {
	return f.words[a], nil
}

func (f *fakeMem) WriteWord(a addr.Addr, w addr.Word) error {
	f.words[a] = w
	return nil
}

func TestInstallRemoveRoundTrip(t *testing.T) {
	mem := newFakeMem()
	target := addr.Addr(0x401000)
	aligned, off := target.AlignDown()
	mem.words[aligned] = 0x1122334455667788

	bp := New(target)
	require.NoError(t, bp.Install(mem))
	require.True(t, bp.Enabled)

	patched := mem.words[aligned].Bytes()
	require.Equal(t, byte(0xCC), patched[off])

	require.NoError(t, bp.Remove(mem))
	require.False(t, bp.Enabled)
	require.Equal(t, addr.Word(0x1122334455667788), mem.words[aligned])
}

func TestInstallIsIdempotent(t *testing.T) {
	mem := newFakeMem()
	target := addr.Addr(0x401008)
	mem.words[target] = 0xDEADBEEFCAFEBABE

	bp := New(target)
	require.NoError(t, bp.Install(mem))
	first, _ := bp.OriginalByte()
	require.NoError(t, bp.Install(mem))
	second, _ := bp.OriginalByte()
	require.Equal(t, first, second)
}

func TestSetStepOver(t *testing.T) {
	mem := newFakeMem()
	target := addr.Addr(0x401010)
	mem.words[target] = 0x0102030405060708

	set := NewSet()
	bp, err := set.Add(mem, target)
	require.NoError(t, err)
	require.True(t, bp.Enabled)

	var sawOriginal bool
	err = set.StepOver(mem, target, func() error {
		word := mem.words[target]
		sawOriginal = word.LowByte() != 0xCC
		return nil
	})
	require.NoError(t, err)
	require.True(t, sawOriginal, "breakpoint byte should be removed during step-over")
	require.True(t, bp.Enabled, "breakpoint should be reinstalled after step-over")
	require.Equal(t, byte(0xCC), mem.words[target].LowByte())
}

func TestRemoveWithoutInstallIsNoop(t *testing.T) {
	mem := newFakeMem()
	bp := New(addr.Addr(0x401020))
	require.NoError(t, bp.Remove(mem))
}
