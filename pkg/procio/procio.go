// Package procio drives a traced process's memory and registers over
// ptrace and /proc/<pid>/mem.
// Word-granular access goes through ptrace PEEKDATA/POKEDATA; bulk
// reads and writes go through the /proc/<pid>/mem file, which avoids
// the one-word-at-a-time overhead ptrace otherwise imposes.
package procio

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"coredbg/pkg/addr"
	"coredbg/pkg/register"
)

// Process wraps a single ptrace-attached tracee.
type Process struct {
	pid  int
	mem  *os.File
	dead bool
}

// Attach opens /proc/<pid>/mem for a process already stopped under
// ptrace (typically just after TRACEME+execve, or PTRACE_ATTACH).
func Attach(pid int) (*Process, error) {
	f, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", pid), os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening /proc/%d/mem: %w", pid, err)
	}
	return &Process{pid: pid, mem: f}, nil
}

// Pid returns the tracee's process ID.
func (p *Process) Pid() int { return p.pid }

// Close releases the /proc/<pid>/mem file descriptor. It does not
// detach or kill the tracee.
func (p *Process) Close() error {
	if p.mem == nil {
		return nil
	}
	return p.mem.Close()
}

// ReadWord reads one ptrace word at a, which must be WordSize aligned
// for the result to be unambiguous to callers mixing this with
// ReadWord-based breakpoint patching.
func (p *Process) ReadWord(a addr.Addr) (addr.Word, error) {
	buf := make([]byte, addr.WordSize)
	n, err := unix.PtracePeekData(p.pid, uintptr(a.Uint64()), buf)
	if err != nil {
		return 0, fmt.Errorf("PTRACE_PEEKDATA at %s: %w", a, err)
	}
	if n != addr.WordSize {
		return 0, fmt.Errorf("PTRACE_PEEKDATA at %s: short read of %d bytes", a, n)
	}
	var arr [addr.WordSize]byte
	copy(arr[:], buf)
	return addr.WordFromBytes(arr), nil
}

// WriteWord writes one ptrace word to a.
func (p *Process) WriteWord(a addr.Addr, w addr.Word) error {
	b := w.Bytes()
	n, err := unix.PtracePokeData(p.pid, uintptr(a.Uint64()), b[:])
	if err != nil {
		return fmt.Errorf("PTRACE_POKEDATA at %s: %w", a, err)
	}
	if n != addr.WordSize {
		return fmt.Errorf("PTRACE_POKEDATA at %s: short write of %d bytes", a, n)
	}
	return nil
}

// ReadMemory reads size bytes starting at a via /proc/<pid>/mem, for
// bulk reads (disassembly windows, variable values, stack snapshots)
// that would be wasteful one word at a time.
func (p *Process) ReadMemory(a addr.Addr, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := p.mem.ReadAt(buf, int64(a.Uint64()))
	if err != nil && n != size {
		return nil, fmt.Errorf("reading %d bytes at %s: %w", size, a, err)
	}
	return buf[:n], nil
}

// WriteMemory writes data starting at a via /proc/<pid>/mem.
func (p *Process) WriteMemory(a addr.Addr, data []byte) error {
	n, err := p.mem.WriteAt(data, int64(a.Uint64()))
	if err != nil {
		return fmt.Errorf("writing %d bytes at %s: %w", len(data), a, err)
	}
	if n != len(data) {
		return fmt.Errorf("writing %d bytes at %s: short write of %d bytes", len(data), a, n)
	}
	return nil
}

// Regs is the full x86-64 register file as reported by PTRACE_GETREGS.
type Regs struct {
	raw unix.PtraceRegs
}

// GetRegs fetches the tracee's current register file.
func (p *Process) GetRegs() (*Regs, error) {
	var raw unix.PtraceRegs
	if err := unix.PtraceGetRegs(p.pid, &raw); err != nil {
		return nil, fmt.Errorf("PTRACE_GETREGS: %w", err)
	}
	return &Regs{raw: raw}, nil
}

// SetRegs writes back a (possibly modified) register file.
func (p *Process) SetRegs(r *Regs) error {
	if err := unix.PtraceSetRegs(p.pid, &r.raw); err != nil {
		return fmt.Errorf("PTRACE_SETREGS: %w", err)
	}
	return nil
}

// Get returns the value of a single register.
func (r *Regs) Get(reg register.Register) (uint64, error) {
	switch reg {
	case register.R15:
		return r.raw.R15, nil
	case register.R14:
		return r.raw.R14, nil
	case register.R13:
		return r.raw.R13, nil
	case register.R12:
		return r.raw.R12, nil
	case register.Rbp:
		return r.raw.Rbp, nil
	case register.Rbx:
		return r.raw.Rbx, nil
	case register.R11:
		return r.raw.R11, nil
	case register.R10:
		return r.raw.R10, nil
	case register.R9:
		return r.raw.R9, nil
	case register.R8:
		return r.raw.R8, nil
	case register.Rax:
		return r.raw.Rax, nil
	case register.Rcx:
		return r.raw.Rcx, nil
	case register.Rdx:
		return r.raw.Rdx, nil
	case register.Rsi:
		return r.raw.Rsi, nil
	case register.Rdi:
		return r.raw.Rdi, nil
	case register.OrigRax:
		return r.raw.Orig_rax, nil
	case register.Rip:
		return r.raw.Rip, nil
	case register.Cs:
		return r.raw.Cs, nil
	case register.Eflags:
		return r.raw.Eflags, nil
	case register.Rsp:
		return r.raw.Rsp, nil
	case register.Ss:
		return r.raw.Ss, nil
	case register.FsBase:
		return r.raw.Fs_base, nil
	case register.GsBase:
		return r.raw.Gs_base, nil
	case register.Ds:
		return r.raw.Ds, nil
	case register.Es:
		return r.raw.Es, nil
	case register.Fs:
		return r.raw.Fs, nil
	case register.Gs:
		return r.raw.Gs, nil
	default:
		return 0, fmt.Errorf("unknown register %v", reg)
	}
}

// Set assigns value to a single register.
func (r *Regs) Set(reg register.Register, value uint64) error {
	switch reg {
	case register.R15:
		r.raw.R15 = value
	case register.R14:
		r.raw.R14 = value
	case register.R13:
		r.raw.R13 = value
	case register.R12:
		r.raw.R12 = value
	case register.Rbp:
		r.raw.Rbp = value
	case register.Rbx:
		r.raw.Rbx = value
	case register.R11:
		r.raw.R11 = value
	case register.R10:
		r.raw.R10 = value
	case register.R9:
		r.raw.R9 = value
	case register.R8:
		r.raw.R8 = value
	case register.Rax:
		r.raw.Rax = value
	case register.Rcx:
		r.raw.Rcx = value
	case register.Rdx:
		r.raw.Rdx = value
	case register.Rsi:
		r.raw.Rsi = value
	case register.Rdi:
		r.raw.Rdi = value
	case register.OrigRax:
		r.raw.Orig_rax = value
	case register.Rip:
		r.raw.Rip = value
	case register.Cs:
		r.raw.Cs = value
	case register.Eflags:
		r.raw.Eflags = value
	case register.Rsp:
		r.raw.Rsp = value
	case register.Ss:
		r.raw.Ss = value
	case register.FsBase:
		r.raw.Fs_base = value
	case register.GsBase:
		r.raw.Gs_base = value
	case register.Ds:
		r.raw.Ds = value
	case register.Es:
		r.raw.Es = value
	case register.Fs:
		r.raw.Fs = value
	case register.Gs:
		r.raw.Gs = value
	default:
		return fmt.Errorf("unknown register %v", reg)
	}
	return nil
}

// PC returns the instruction pointer.
func (r *Regs) PC() addr.Addr { return addr.Addr(r.raw.Rip) }

// SetPC overwrites the instruction pointer.
func (r *Regs) SetPC(a addr.Addr) { r.raw.Rip = a.Uint64() }

// SP returns the stack pointer.
func (r *Regs) SP() addr.Addr { return addr.Addr(r.raw.Rsp) }

// BP returns the frame pointer.
func (r *Regs) BP() addr.Addr { return addr.Addr(r.raw.Rbp) }

// Cont resumes the tracee, optionally delivering signal sig (0 for none).
func (p *Process) Cont(sig int) error {
	if err := unix.PtraceCont(p.pid, sig); err != nil {
		return fmt.Errorf("PTRACE_CONT: %w", err)
	}
	return nil
}

// SingleStep executes exactly one machine instruction in the tracee.
func (p *Process) SingleStep() error {
	if err := unix.PtraceSingleStep(p.pid); err != nil {
		return fmt.Errorf("PTRACE_SINGLESTEP: %w", err)
	}
	return nil
}

// Kill terminates the tracee. x/sys/unix has no PtraceKill wrapper
// (PTRACE_KILL is deprecated and unreliable besides), so this just
// sends SIGKILL directly, the way delve's backend does.
func (p *Process) Kill() error {
	if p.dead {
		return nil
	}
	p.dead = true
	return unix.Kill(p.pid, unix.SIGKILL)
}

// GetSigInfo fetches details about the signal that most recently
// stopped the tracee. x/sys/unix has no PtraceGetSiginfo wrapper, so
// this issues PTRACE_GETSIGINFO directly via the raw ptrace syscall.
func (p *Process) GetSigInfo() (*unix.Siginfo, error) {
	var info unix.Siginfo
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_GETSIGINFO, uintptr(p.pid), 0, uintptr(unsafe.Pointer(&info)), 0, 0)
	if errno != 0 {
		return nil, fmt.Errorf("PTRACE_GETSIGINFO: %w", errno)
	}
	return &info, nil
}

// SIGTRAP si_code sub-classifications, from the kernel's siginfo ABI
// (asm-generic/siginfo.h). x/sys/unix does not export these under any
// name. SiKernel is what the kernel reports for a software breakpoint
// (an INT3 trap); TrapTrace is a single-step (TF flag) trap; the
// others cover hardware breakpoints/watchpoints this debugger doesn't
// install itself but may still observe.
const (
	SiKernel   int32 = 0x80
	TrapBrkpt  int32 = 1
	TrapTrace  int32 = 2
	TrapBranch int32 = 3
	TrapHwBkpt int32 = 4
)
