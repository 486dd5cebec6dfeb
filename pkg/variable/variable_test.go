package variable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coredbg/pkg/addr"
	"coredbg/pkg/dwarfexpr"
	"coredbg/pkg/register"
)

type fakeMem struct {
	data map[addr.Addr][]byte
}

func (f *fakeMem) ReadMemory(a addr.Addr, size int) ([]byte, error) {
	return f.data[a], nil
}

func (f *fakeMem) WriteMemory(a addr.Addr, data []byte) error {
	f.data[a] = append([]byte(nil), data...)
	return nil
}

type fakeRegs struct {
	values map[register.Register]uint64
}

func (f *fakeRegs) GetRegister(r register.Register) (uint64, error) {
	return f.values[r], nil
}

func (f *fakeRegs) SetRegister(r register.Register, v uint64) error {
	f.values[r] = v
	return nil
}

func TestReadWriteAddressLocation(t *testing.T) {
	mem := &fakeMem{data: map[addr.Addr][]byte{0x2000: {0x2a, 0, 0, 0}}}
	loc := dwarfexpr.Location{Kind: dwarfexpr.KindAddress, Address: 0x2000}

	v, err := Read(mem, nil, loc, KindI32, 4)
	require.NoError(t, err)
	require.Equal(t, "42", Format(v))

	require.NoError(t, Write(mem, nil, loc, Value{Kind: KindI32, Bytes: []byte{100, 0, 0, 0}}))
	require.Equal(t, []byte{100, 0, 0, 0}, mem.data[0x2000])
}

func TestReadWriteRegisterLocation(t *testing.T) {
	regs := &fakeRegs{values: map[register.Register]uint64{register.Rax: 7}}
	loc := dwarfexpr.Location{Kind: dwarfexpr.KindRegister, Register: register.Rax}

	v, err := Read(nil, regs, loc, KindU64, 8)
	require.NoError(t, err)
	require.Equal(t, "7", Format(v))

	require.NoError(t, Write(nil, regs, loc, Value{Kind: KindU64, Bytes: []byte{9, 0, 0, 0, 0, 0, 0, 0}}))
	require.Equal(t, uint64(9), regs.values[register.Rax])
}

func TestReadEmptyLocationErrors(t *testing.T) {
	_, err := Read(nil, nil, dwarfexpr.Location{Kind: dwarfexpr.KindEmpty}, KindI32, 4)
	require.Error(t, err)
}

func TestWriteToValueLocationErrors(t *testing.T) {
	err := Write(nil, nil, dwarfexpr.Location{Kind: dwarfexpr.KindValue, Value: 1}, Value{Kind: KindI32})
	require.Error(t, err)
}

func TestFormatFloat(t *testing.T) {
	v := Value{Kind: KindF64, Bytes: []byte{0, 0, 0, 0, 0, 0, 0x10, 0x40}} // 4.0
	require.Equal(t, "4", Format(v))
}
