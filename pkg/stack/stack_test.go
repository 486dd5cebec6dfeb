package stack

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coredbg/pkg/addr"
)

func TestDemangleNonMangled(t *testing.T) {
	name, ok := Demangle("main")
	require.True(t, ok)
	require.Equal(t, "main", name)
}

func TestDemangleSimple(t *testing.T) {
	// _Z3fooi demangles (roughly) to the identifier chain "foo"
	name, ok := Demangle("_Z3fooi")
	require.True(t, ok)
	require.Equal(t, "foo", name)
}

func TestDemangleNamespaced(t *testing.T) {
	// _ZN2ns3fooEv -> leading "N...E" nesting isn't unpacked by this
	// best-effort demangler, so it should report failure rather than
	// a wrong answer.
	_, ok := Demangle("_ZN2ns3fooEv")
	require.False(t, ok)
}

type fakeMemReader struct {
	data map[addr.Addr][]byte
}

func (f *fakeMemReader) ReadMemory(a addr.Addr, size int) ([]byte, error) {
	return f.data[a], nil
}

func TestLeUint64(t *testing.T) {
	b := []byte{0x01, 0x02, 0x03, 0x04, 0, 0, 0, 0}
	require.Equal(t, uint64(0x04030201), leUint64(b))
}
