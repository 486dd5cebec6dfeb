// Package variable reads and writes DWARF-described variables at
// runtime: it evaluates a symbol's location expression to find where
// the variable lives, then interprets (or writes) the raw bytes there
// according to the variable's scalar kind.
package variable

import (
	"encoding/binary"
	"fmt"
	"math"

	"coredbg/pkg/addr"
	"coredbg/pkg/dwarfexpr"
	"coredbg/pkg/register"
)

// Kind names the scalar interpretations a variable's raw bytes can be
// given, plus a generic 64-bit fallback for types this debugger
// doesn't otherwise recognize.
type Kind int

const (
	KindU8 Kind = iota
	KindI8
	KindU16
	KindI16
	KindU32
	KindI32
	KindF32
	KindU64
	KindI64
	KindF64
	KindGenericU64
)

// Value is a variable's value, tagged by Kind, plus the raw bytes it
// was decoded from.
type Value struct {
	Kind  Kind
	Bytes []byte
}

// MemAccess is the subset of procio.Process variable read/write needs.
type MemAccess interface {
	ReadMemory(a addr.Addr, size int) ([]byte, error)
	WriteMemory(a addr.Addr, data []byte) error
}

// RegAccess is the subset of procio.Process register read/write
// variable read/write needs when a variable lives entirely in a
// register.
type RegAccess interface {
	GetRegister(r register.Register) (uint64, error)
	SetRegister(r register.Register, value uint64) error
}

func sizeOf(k Kind) int {
	switch k {
	case KindU8, KindI8:
		return 1
	case KindU16, KindI16:
		return 2
	case KindU32, KindI32, KindF32:
		return 4
	case KindU64, KindI64, KindF64, KindGenericU64:
		return 8
	default:
		return 8
	}
}

// Read evaluates loc and reads back a Value of the given kind and
// byteSize (byteSize overrides the Kind's natural size for composite
// or oddly-sized types, falling back to the Kind's size when zero).
func Read(mem MemAccess, regs RegAccess, loc dwarfexpr.Location, kind Kind, byteSize int) (Value, error) {
	size := byteSize
	if size == 0 {
		size = sizeOf(kind)
	}

	switch loc.Kind {
	case dwarfexpr.KindEmpty:
		return Value{}, fmt.Errorf("variable has no location (optimized out or out of scope)")
	case dwarfexpr.KindValue:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, loc.Value)
		return Value{Kind: kind, Bytes: b[:min(size, 8)]}, nil
	case dwarfexpr.KindBytes:
		return Value{Kind: kind, Bytes: loc.Bytes}, nil
	case dwarfexpr.KindRegister:
		if regs == nil {
			return Value{}, fmt.Errorf("variable lives in register %v but no register access available", loc.Register)
		}
		v, err := regs.GetRegister(loc.Register)
		if err != nil {
			return Value{}, err
		}
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v)
		return Value{Kind: kind, Bytes: b[:min(size, 8)]}, nil
	case dwarfexpr.KindAddress:
		b, err := mem.ReadMemory(loc.Address, size)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: kind, Bytes: b}, nil
	default:
		return Value{}, fmt.Errorf("unknown location kind %v", loc.Kind)
	}
}

// Write evaluates loc and writes v's bytes back to wherever the
// variable lives. Writing to a KindValue location (a computed
// constant with no backing storage) is an error, matching the
// refusal to write through a location that isn't an actual place.
func Write(mem MemAccess, regs RegAccess, loc dwarfexpr.Location, v Value) error {
	switch loc.Kind {
	case dwarfexpr.KindEmpty:
		return fmt.Errorf("cannot write: variable has no location")
	case dwarfexpr.KindValue:
		return fmt.Errorf("cannot write: location is a computed value, not a place")
	case dwarfexpr.KindRegister:
		if regs == nil {
			return fmt.Errorf("variable lives in register %v but no register access available", loc.Register)
		}
		padded := make([]byte, 8)
		copy(padded, v.Bytes)
		return regs.SetRegister(loc.Register, binary.LittleEndian.Uint64(padded))
	case dwarfexpr.KindAddress:
		return mem.WriteMemory(loc.Address, v.Bytes)
	default:
		return fmt.Errorf("unknown location kind %v", loc.Kind)
	}
}

// Format renders a Value as a human-readable string per its Kind, the
// way a front-end prints a variable.
func Format(v Value) string {
	switch v.Kind {
	case KindU8:
		if len(v.Bytes) < 1 {
			return "<invalid>"
		}
		return fmt.Sprintf("%d", v.Bytes[0])
	case KindI8:
		if len(v.Bytes) < 1 {
			return "<invalid>"
		}
		return fmt.Sprintf("%d", int8(v.Bytes[0]))
	case KindU16:
		return fmt.Sprintf("%d", binary.LittleEndian.Uint16(pad(v.Bytes, 2)))
	case KindI16:
		return fmt.Sprintf("%d", int16(binary.LittleEndian.Uint16(pad(v.Bytes, 2))))
	case KindU32:
		return fmt.Sprintf("%d", binary.LittleEndian.Uint32(pad(v.Bytes, 4)))
	case KindI32:
		return fmt.Sprintf("%d", int32(binary.LittleEndian.Uint32(pad(v.Bytes, 4))))
	case KindF32:
		return fmt.Sprintf("%g", math.Float32frombits(binary.LittleEndian.Uint32(pad(v.Bytes, 4))))
	case KindU64, KindGenericU64:
		return fmt.Sprintf("%d", binary.LittleEndian.Uint64(pad(v.Bytes, 8)))
	case KindI64:
		return fmt.Sprintf("%d", int64(binary.LittleEndian.Uint64(pad(v.Bytes, 8))))
	case KindF64:
		return fmt.Sprintf("%g", math.Float64frombits(binary.LittleEndian.Uint64(pad(v.Bytes, 8))))
	default:
		return fmt.Sprintf("% x", v.Bytes)
	}
}

func pad(b []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, b)
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
