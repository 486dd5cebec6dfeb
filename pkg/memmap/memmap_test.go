package memmap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"coredbg/pkg/addr"
)

const sampleMaps = `00400000-00401000 r-xp 00000000 08:01 1234567 /usr/bin/example
00600000-00601000 rw-p 00000000 08:01 1234567 /usr/bin/example
7ffff7dc0000-7ffff7de2000 r-xp 00000000 08:01 2345678 /usr/lib/libc.so.6
7ffffffde000-7ffffffff000 rw-p 00000000 00:00 0 [stack]
`

func TestParse(t *testing.T) {
	m, err := Parse(strings.NewReader(sampleMaps))
	require.NoError(t, err)
	require.Len(t, m.Regions, 4)

	first := m.Regions[0]
	require.Equal(t, addr.Addr(0x400000), first.Start)
	require.Equal(t, addr.Addr(0x401000), first.End)
	require.True(t, first.Readable)
	require.True(t, first.Executable)
	require.False(t, first.Writable)
	require.Equal(t, "/usr/bin/example", first.Path)
}

func TestFindByPath(t *testing.T) {
	m, err := Parse(strings.NewReader(sampleMaps))
	require.NoError(t, err)

	r, ok := m.FindByPath("example")
	require.True(t, ok)
	require.Equal(t, addr.Addr(0x400000), r.Start)

	_, ok = m.FindByPath("nonexistent")
	require.False(t, ok)
}

func TestRegionAt(t *testing.T) {
	m, err := Parse(strings.NewReader(sampleMaps))
	require.NoError(t, err)

	r, ok := m.RegionAt(addr.Addr(0x400500))
	require.True(t, ok)
	require.Equal(t, "/usr/bin/example", r.Path)

	_, ok = m.RegionAt(addr.Addr(0x999999))
	require.False(t, ok)
}

func TestDescribe(t *testing.T) {
	m, err := Parse(strings.NewReader(sampleMaps))
	require.NoError(t, err)

	md := m.Describe()
	require.Equal(t, 2, md.ExecutableCount)
	require.Equal(t, 2, md.WritableCount)
	require.Equal(t, 4, md.PrivateCount)
	require.Greater(t, md.TotalBytes, uint64(0))
}
