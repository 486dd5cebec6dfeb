// Package register names the x86-64 general purpose and segment
// registers ptrace exposes, and maps DWARF register numbers (as used in
// CFI programs and DW_OP_regN/DW_OP_bregN expressions) onto them,
// following the System V AMD64 ABI's register numbering.
package register

import "fmt"

// Register identifies one machine register captured by PTRACE_GETREGS.
type Register int

const (
	R15 Register = iota
	R14
	R13
	R12
	Rbp
	Rbx
	R11
	R10
	R9
	R8
	Rax
	Rcx
	Rdx
	Rsi
	Rdi
	OrigRax
	Rip
	Cs
	Eflags
	Rsp
	Ss
	FsBase
	GsBase
	Ds
	Es
	Fs
	Gs
)

var names = map[Register]string{
	R15: "r15", R14: "r14", R13: "r13", R12: "r12", Rbp: "rbp", Rbx: "rbx",
	R11: "r11", R10: "r10", R9: "r9", R8: "r8", Rax: "rax", Rcx: "rcx",
	Rdx: "rdx", Rsi: "rsi", Rdi: "rdi", OrigRax: "orig_rax", Rip: "rip",
	Cs: "cs", Eflags: "eflags", Rsp: "rsp", Ss: "ss", FsBase: "fs_base",
	GsBase: "gs_base", Ds: "ds", Es: "es", Fs: "fs", Gs: "gs",
}

func (r Register) String() string {
	if n, ok := names[r]; ok {
		return n
	}
	return fmt.Sprintf("reg(%d)", int(r))
}

// Parse resolves a register by its ABI name ("rax", "rip", ...).
func Parse(name string) (Register, error) {
	for r, n := range names {
		if n == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown register: %s", name)
}

// UnimplementedRegisterError reports a DWARF register number this
// debugger does not (yet, or ever, for skipped ones like the segment
// selector shadow registers) map onto a machine register.
type UnimplementedRegisterError struct {
	DwarfNumber int
}

func (e *UnimplementedRegisterError) Error() string {
	return fmt.Sprintf("unimplemented DWARF register number %d", e.DwarfNumber)
}

// FromDWARF maps a DWARF register number, as used in CFI and location
// expressions, onto the machine Register it names, per the System V
// AMD64 ABI's DWARF register number assignment (gcc/gdb/lldb all agree
// on this table). Register numbers 58..=62 (tr, ldtr, mxcsr, fcw, fsw)
// and 63 (a second orig_rax-shaped slot some producers emit) have no
// corresponding ptrace register and report UnimplementedRegisterError.
func FromDWARF(n int) (Register, error) {
	switch n {
	case 0:
		return Rax, nil
	case 1:
		return Rdx, nil
	case 2:
		return Rcx, nil
	case 3:
		return Rbx, nil
	case 4:
		return Rsi, nil
	case 5:
		return Rdi, nil
	case 6:
		return Rbp, nil
	case 7:
		return Rsp, nil
	case 8:
		return R8, nil
	case 9:
		return R9, nil
	case 10:
		return R10, nil
	case 11:
		return R11, nil
	case 12:
		return R12, nil
	case 13:
		return R13, nil
	case 14:
		return R14, nil
	case 15:
		return R15, nil
	case 16:
		return Rip, nil
	case 49:
		return Eflags, nil
	case 50:
		return Es, nil
	case 51:
		return Cs, nil
	case 52:
		return Ss, nil
	case 53:
		return Ds, nil
	case 54:
		return Fs, nil
	case 55:
		return Gs, nil
	case 56:
		return FsBase, nil
	case 57:
		return GsBase, nil
	default:
		return 0, &UnimplementedRegisterError{DwarfNumber: n}
	}
}
