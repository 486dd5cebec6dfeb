// Package memmap parses /proc/<pid>/maps into the region list
// calls a memory map, used to locate a PIE executable's load base and
// to classify addresses as code, stack, heap, or a shared library.
package memmap

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"coredbg/pkg/addr"
)

// Region describes one contiguous mapping from /proc/<pid>/maps.
type Region struct {
	Start      addr.Addr
	End        addr.Addr
	Readable   bool
	Writable   bool
	Executable bool
	Private    bool
	Offset     uint64
	Path       string
}

// Size returns the number of bytes the region covers.
func (r Region) Size() uint64 {
	return uint64(r.End - r.Start)
}

// Contains reports whether a falls within [Start, End).
func (r Region) Contains(a addr.Addr) bool {
	return a >= r.Start && a < r.End
}

// Map is a process's full set of mapped regions, in ascending address
// order as the kernel reports them.
type Map struct {
	Regions []Region
}

// Read parses /proc/<pid>/maps for the given process.
func Read(pid int) (*Map, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, fmt.Errorf("reading memory map for pid %d: %w", pid, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads the /proc/<pid>/maps format from r. Exported separately
// from Read so tests can exercise the parser without a live process.
func Parse(r io.Reader) (*Map, error) {
	m := &Map{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		region, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("parsing memory map line %q: %w", line, err)
		}
		m.Regions = append(m.Regions, region)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading memory map: %w", err)
	}
	return m, nil
}

func parseLine(line string) (Region, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return Region{}, fmt.Errorf("expected at least 5 fields, got %d", len(fields))
	}
	bounds := strings.SplitN(fields[0], "-", 2)
	if len(bounds) != 2 {
		return Region{}, fmt.Errorf("malformed address range %q", fields[0])
	}
	start, err := strconv.ParseUint(bounds[0], 16, 64)
	if err != nil {
		return Region{}, fmt.Errorf("parsing start address: %w", err)
	}
	end, err := strconv.ParseUint(bounds[1], 16, 64)
	if err != nil {
		return Region{}, fmt.Errorf("parsing end address: %w", err)
	}
	perms := fields[1]
	offset, err := strconv.ParseUint(fields[2], 16, 64)
	if err != nil {
		return Region{}, fmt.Errorf("parsing offset: %w", err)
	}
	region := Region{
		Start:      addr.Addr(start),
		End:        addr.Addr(end),
		Readable:   strings.Contains(perms, "r"),
		Writable:   strings.Contains(perms, "w"),
		Executable: strings.Contains(perms, "x"),
		Private:    strings.Contains(perms, "p"),
		Offset:     offset,
	}
	if len(fields) >= 6 {
		region.Path = fields[5]
	}
	return region, nil
}

// FindByPath returns the lowest-addressed region whose path contains
// needle, e.g. the executable's own path, for load-base computation on
// a PIE binary.
func (m *Map) FindByPath(needle string) (Region, bool) {
	for _, r := range m.Regions {
		if strings.Contains(r.Path, needle) {
			return r, true
		}
	}
	return Region{}, false
}

// RegionAt returns the region containing a, if any.
func (m *Map) RegionAt(a addr.Addr) (Region, bool) {
	for _, r := range m.Regions {
		if r.Contains(a) {
			return r, true
		}
	}
	return Region{}, false
}

// Metadata aggregates counts and sizes across the whole map.
type Metadata struct {
	TotalBytes       uint64
	ExecutableCount  int
	WritableCount    int
	PrivateCount     int
}

// Describe computes aggregate Metadata over the map, mirroring
// load-base resolution.
func (m *Map) Describe() Metadata {
	var md Metadata
	for _, r := range m.Regions {
		md.TotalBytes += r.Size()
		if r.Executable {
			md.ExecutableCount++
		}
		if r.Writable {
			md.WritableCount++
		}
		if r.Private {
			md.PrivateCount++
		}
	}
	return md
}
