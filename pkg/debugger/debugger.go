// Package debugger implements the debugger control component:
// attaching to a freshly forked debuggee, the main command/feedback
// pump loop, resume discipline around installed breakpoints, and
// signal dispatch through the plugin extension points.
package debugger

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"

	"coredbg/pkg/addr"
	"coredbg/pkg/breakpoint"
	"coredbg/pkg/dbginfo"
	"coredbg/pkg/dwarfexpr"
	"coredbg/pkg/feedback"
	"coredbg/pkg/frame"
	"coredbg/pkg/memmap"
	"coredbg/pkg/plugin"
	"coredbg/pkg/procio"
	"coredbg/pkg/register"
	"coredbg/pkg/stack"
	"coredbg/pkg/variable"
)

// Debugger owns one traced process end to end: its ptrace file
// descriptors, installed breakpoints, loaded symbol info, and the
// plugin hooks that get a say over signal dispatch.
type Debugger struct {
	proc       *procio.Process
	cmd        *exec.Cmd
	breakpoints *breakpoint.Set
	info       *dbginfo.Info
	frameTable *frame.Table
	loadBase   addr.Addr
	hooks      *plugin.Registry
	log        *slog.Logger

	exited     bool
	exitStatus int
}

// Attach forks a fresh child, has it request tracing via
// PTRACE_TRACEME, execve's path with args, and waits for the initial
// SIGTRAP execve delivers.
func Attach(path string, args []string, info *dbginfo.Info, log *slog.Logger) (*Debugger, error) {
	if log == nil {
		log = slog.Default()
	}

	// ptrace requires every call against a tracee, including Wait4, to
	// come from the exact OS thread that attached to it. Pin this
	// goroutine to its current OS thread for the rest of the process's
	// life so the Go scheduler never migrates it elsewhere mid-session;
	// this goroutine is expected to drive this Debugger exclusively.
	runtime.LockOSThread()

	cmd := exec.Command(path, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting debuggee %s: %w", path, err)
	}

	var ws unix.WaitStatus
	if _, err := unix.Wait4(cmd.Process.Pid, &ws, 0, nil); err != nil {
		return nil, fmt.Errorf("waiting for initial stop of %s: %w", path, err)
	}
	if !ws.Stopped() {
		return nil, fmt.Errorf("debuggee %s did not stop after TRACEME+execve (status %v)", path, ws)
	}

	proc, err := procio.Attach(cmd.Process.Pid)
	if err != nil {
		return nil, err
	}

	dbg := &Debugger{
		proc:        proc,
		cmd:         cmd,
		breakpoints: breakpoint.NewSet(),
		info:        info,
		hooks:       plugin.NewRegistry(),
		log:         log,
	}

	if m, err := memmap.Read(proc.Pid()); err == nil {
		if region, ok := m.FindByPath(path); ok {
			dbg.loadBase = region.Start
		}
	} else {
		log.Warn("reading memory map after attach failed", "error", err)
	}

	if table, err := loadFrameTable(path); err != nil {
		log.Warn("loading call frame information failed, backtraces will be unavailable", "path", path, "error", err)
	} else {
		dbg.frameTable = table
	}

	log.Info("attached to debuggee", "pid", proc.Pid(), "path", path, "load_base", dbg.loadBase)
	return dbg, nil
}

// loadFrameTable reads and parses whichever of .debug_frame or
// .eh_frame the executable at path carries, preferring .debug_frame
// (DWARF CFI meant for a debugger) over .eh_frame (the C++ unwinder's
// copy, which omits some rows a debugger-only build keeps).
func loadFrameTable(path string) (*frame.Table, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ELF file %s: %w", path, err)
	}
	defer f.Close()

	if sec := f.Section(".debug_frame"); sec != nil {
		data, err := sec.Data()
		if err != nil {
			return nil, fmt.Errorf("reading .debug_frame: %w", err)
		}
		return frame.Parse(data, false)
	}
	if sec := f.Section(".eh_frame"); sec != nil {
		data, err := sec.Data()
		if err != nil {
			return nil, fmt.Errorf("reading .eh_frame: %w", err)
		}
		return frame.Parse(data, true)
	}
	return nil, fmt.Errorf("no .debug_frame or .eh_frame section in %s", path)
}

// RegisterHook adds a plugin hook to this session's signal-dispatch
// extension points.
func (d *Debugger) RegisterHook(h plugin.Hook) {
	d.hooks.Register(h)
}

// LoadBase returns the absolute address the debuggee's main module
// was mapped at.
func (d *Debugger) LoadBase() addr.Addr { return d.loadBase }

// Process exposes the underlying procio handle for packages (disasm,
// stack) that need raw memory/register access this package doesn't
// itself wrap.
func (d *Debugger) Process() *procio.Process { return d.proc }

// Breakpoints exposes the installed breakpoint set.
func (d *Debugger) Breakpoints() *breakpoint.Set { return d.breakpoints }

// Execute services a single Command and returns the resulting
// Feedback. It implements plugin.Executor so plugin hooks can drive
// the debugger through the identical vocabulary a front-end uses.
func (d *Debugger) Execute(cmd feedback.Command) feedback.Feedback {
	if d.exited {
		return feedback.Exited()
	}
	switch cmd.Kind {
	case feedback.CmdStep:
		return d.step()
	case feedback.CmdContinue:
		return d.cont()
	case feedback.CmdReadVariable:
		s, err := d.ReadVariable(cmd.VarName)
		if err != nil {
			return feedback.Errorf(err)
		}
		return feedback.Ok().WithData(s)
	case feedback.CmdWriteVariable:
		if err := d.WriteVariable(cmd.VarName, cmd.VarValue); err != nil {
			return feedback.Errorf(err)
		}
		return feedback.Ok()
	case feedback.CmdQuit:
		if err := d.proc.Kill(); err != nil {
			return feedback.Errorf(err)
		}
		d.exited = true
		return feedback.Exited()
	default:
		return feedback.Errorf(fmt.Errorf("unsupported command kind %v for Execute", cmd.Kind))
	}
}

// step resumes the debuggee for exactly one instruction, honoring
// step-over protocol if the current PC holds an installed breakpoint.
func (d *Debugger) step() feedback.Feedback {
	regs, err := d.proc.GetRegs()
	if err != nil {
		return feedback.Errorf(err)
	}
	pc := regs.PC()

	var fb feedback.Feedback
	err = d.breakpoints.StepOver(d.proc, pc, func() error {
		if err := d.proc.SingleStep(); err != nil {
			return err
		}
		fb = d.waitAndReport(true)
		return nil
	})
	if d.exited {
		return feedback.Exited()
	}
	if err != nil {
		return feedback.Errorf(err)
	}
	return fb
}

// cont resumes the debuggee until the next stop, stepping over a
// breakpoint at the current PC first if one is installed there so the
// debuggee doesn't immediately retrap on its own breakpoint byte.
func (d *Debugger) cont() feedback.Feedback {
	regs, err := d.proc.GetRegs()
	if err != nil {
		return feedback.Errorf(err)
	}
	pc := regs.PC()

	if bp, ok := d.breakpoints.At(pc); ok && bp.Enabled {
		err := d.breakpoints.StepOver(d.proc, pc, func() error {
			if err := d.proc.SingleStep(); err != nil {
				return err
			}
			var ws unix.WaitStatus
			if _, err := unix.Wait4(d.proc.Pid(), &ws, 0, nil); err != nil {
				return fmt.Errorf("waiting for single-step: %w", err)
			}
			if ws.Exited() || ws.Signaled() {
				d.exited = true
			}
			return nil
		})
		if d.exited {
			return feedback.Exited()
		}
		if err != nil {
			return feedback.Errorf(err)
		}
	}

	if err := d.proc.Cont(0); err != nil {
		return feedback.Errorf(err)
	}
	return d.waitAndReport(false)
}

// waitAndReport waits for the debuggee's next stop (or exit) and
// classifies it, consulting the registered plugin hooks before
// returning a final Feedback to the caller.
func (d *Debugger) waitAndReport(isSingleStep bool) feedback.Feedback {
	var ws unix.WaitStatus
	pid := d.proc.Pid()
	if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
		return feedback.Errorf(fmt.Errorf("waiting for debuggee: %w", err))
	}

	if ws.Exited() {
		d.exited = true
		d.exitStatus = ws.ExitStatus()
		d.log.Info("debuggee exited", "status", d.exitStatus)
		return feedback.Exited()
	}
	if ws.Signaled() {
		d.exited = true
		d.log.Info("debuggee killed by signal", "signal", ws.Signal())
		return feedback.Exited()
	}
	if !ws.Stopped() {
		return feedback.Errorf(fmt.Errorf("unexpected wait status %v", ws))
	}

	sig := ws.StopSignal()
	regs, err := d.proc.GetRegs()
	if err != nil {
		return feedback.Errorf(err)
	}

	if sig == unix.SIGTRAP {
		sigInfo, err := d.proc.GetSigInfo()
		if err != nil {
			d.log.Warn("PTRACE_GETSIGINFO failed", "error", err)
		}
		fb := d.classifyTrap(regs, isSingleStep, sigInfo)
		return d.runHooks(func(h plugin.Hook, f feedback.Feedback) (feedback.Command, feedback.Status) {
			return h.PreSigtrap(f)
		}, fb)
	}

	fb := feedback.Stopped(feedback.StopSignal, regs.PC(), int(sig))
	return d.runHooks(func(h plugin.Hook, f feedback.Feedback) (feedback.Command, feedback.Status) {
		return h.PreSignal(f)
	}, fb)
}

// classifyTrap decides whether a SIGTRAP stop landed on an installed
// breakpoint (in which case RIP, which ptrace leaves one byte past the
// INT3, is rewound to the breakpoint's own address) or was a plain
// single-step/foreign trap. sigInfo, when available, is logged at
// debug level when its si_code is neither SI_KERNEL nor TRAP_TRACE,
// flagging a SIGTRAP likely raised by the debuggee itself rather than
// by an INT3 or a single step.
func (d *Debugger) classifyTrap(regs *procio.Regs, isSingleStep bool, sigInfo *unix.Siginfo) feedback.Feedback {
	pc := regs.PC()
	bpAddr := pc.Sub(1)
	if bp, ok := d.breakpoints.At(bpAddr); ok && bp.Enabled {
		regs.SetPC(bpAddr)
		if err := d.proc.SetRegs(regs); err != nil {
			return feedback.Errorf(err)
		}
		bp.HitCount++
		return feedback.Stopped(feedback.StopBreakpoint, bpAddr, int(unix.SIGTRAP))
	}
	if isSingleStep {
		return feedback.Stopped(feedback.StopSingleStep, pc, int(unix.SIGTRAP))
	}
	if sigInfo != nil && sigInfo.Code != procio.SiKernel && sigInfo.Code != procio.TrapTrace {
		d.log.Debug("SIGTRAP with unrecognized si_code, likely debuggee-raised", "pc", pc, "si_code", sigInfo.Code)
	}
	return feedback.Stopped(feedback.StopSignal, pc, int(unix.SIGTRAP))
}

// runHooks runs every registered hook's feedback loop in turn over fb,
// re-entering call with the fresh Feedback each executed Command
// produces so a hook can inspect the result of a Command it issued
// rather than only ever seeing the stop that started the loop.
func (d *Debugger) runHooks(call func(plugin.Hook, feedback.Feedback) (feedback.Command, feedback.Status), fb feedback.Feedback) feedback.Feedback {
	result := fb
	for _, h := range d.hooks.Hooks() {
		result = plugin.RunFeedbackLoop(d, result, func(f feedback.Feedback) (feedback.Command, feedback.Status) {
			return call(h, f)
		})
		if result.Status == feedback.StatusExited || result.Status == feedback.StatusError {
			return result
		}
	}
	return result
}

// ReadRegister reads a single register's current value.
func (d *Debugger) ReadRegister(r register.Register) (uint64, error) {
	regs, err := d.proc.GetRegs()
	if err != nil {
		return 0, err
	}
	return regs.Get(r)
}

// WriteRegister assigns a single register's value.
func (d *Debugger) WriteRegister(r register.Register, value uint64) error {
	regs, err := d.proc.GetRegs()
	if err != nil {
		return err
	}
	if err := regs.Set(r, value); err != nil {
		return err
	}
	return d.proc.SetRegs(regs)
}

// ReadMemory reads size bytes of debuggee memory at a.
func (d *Debugger) ReadMemory(a addr.Addr, size int) ([]byte, error) {
	return d.proc.ReadMemory(a, size)
}

// WriteMemory writes data into debuggee memory at a.
func (d *Debugger) WriteMemory(a addr.Addr, data []byte) error {
	return d.proc.WriteMemory(a, data)
}

// SetBreakpoint installs a breakpoint at a.
func (d *Debugger) SetBreakpoint(a addr.Addr) (*breakpoint.Breakpoint, error) {
	return d.breakpoints.Add(d.proc, a)
}

// RemoveBreakpoint uninstalls the breakpoint at a, if any.
func (d *Debugger) RemoveBreakpoint(a addr.Addr) error {
	return d.breakpoints.Remove(d.proc, a)
}

// Exited reports whether the debuggee has terminated.
func (d *Debugger) Exited() (bool, int) { return d.exited, d.exitStatus }

// registerOrder lists the general-purpose registers a Snapshot
// reports, in the same order cmdRegs prints them.
var registerOrder = []register.Register{
	register.Rax, register.Rbx, register.Rcx, register.Rdx,
	register.Rsi, register.Rdi, register.Rbp, register.Rsp,
	register.Rip, register.Eflags,
}

// Snapshot builds a display-ready State: current PC/SP, the
// general-purpose register file, exit state, and, when call frame
// information is available, the current backtrace.
func (d *Debugger) Snapshot(maxFrames int) State {
	if d.exited {
		return State{Exited: true, ExitCode: d.exitStatus}
	}
	regs, err := d.proc.GetRegs()
	if err != nil {
		return State{}
	}
	s := State{PC: regs.PC(), SP: regs.SP()}
	for _, r := range registerOrder {
		if v, err := regs.Get(r); err == nil {
			s.Registers = append(s.Registers, RegisterInfo{Name: r.String(), Value: v})
		}
	}
	if bt, err := d.Backtrace(maxFrames); err == nil {
		s.Backtrace = bt
	}
	return s
}

// Backtrace unwinds the call stack starting at the current PC, using
// the CFI table built at Attach time. It fails if the executable
// carried no .debug_frame/.eh_frame section, or if no FDE covers the
// current PC.
func (d *Debugger) Backtrace(maxFrames int) (*stack.Backtrace, error) {
	if d.frameTable == nil {
		return nil, fmt.Errorf("no call frame information available")
	}
	regs, err := d.proc.GetRegs()
	if err != nil {
		return nil, err
	}
	row, ok := d.frameTable.RowForPC(addr.Addr(regs.PC().Uint64() - d.loadBase.Uint64()))
	if !ok {
		return nil, fmt.Errorf("no call frame information covers %s", regs.PC())
	}
	cfa, err := frameCFA(regs, row)
	if err != nil {
		return nil, err
	}
	return stack.Unwind(d.proc, d.frameTable, d.info, d.loadBase, regs.PC(), cfa, maxFrames)
}

// currentCFA resolves the CFA of the frame currently executing,
// looking up its unwind row the same way Backtrace does.
func (d *Debugger) currentCFA(regs *procio.Regs) (addr.Addr, error) {
	if d.frameTable == nil {
		return 0, fmt.Errorf("no call frame information available")
	}
	row, ok := d.frameTable.RowForPC(addr.Addr(regs.PC().Uint64() - d.loadBase.Uint64()))
	if !ok {
		return 0, fmt.Errorf("no call frame information covers %s", regs.PC())
	}
	return frameCFA(regs, row)
}

// frameCFA evaluates a CFI row's CFA rule (always register-relative
// in the subset this unwinder's machine produces) against the live
// register file.
func frameCFA(regs *procio.Regs, row frame.Row) (addr.Addr, error) {
	v, err := regs.Get(row.CFARule.Reg)
	if err != nil {
		return 0, fmt.Errorf("resolving CFA register %v: %w", row.CFARule.Reg, err)
	}
	return addr.Addr(uint64(int64(v) + row.CFARule.Offset)), nil
}

// regAccessAdapter exposes Debugger's register read/write as the
// variable.RegAccess interface, which names its methods differently
// than ReadRegister/WriteRegister for symmetry with variable.MemAccess.
type regAccessAdapter struct{ d *Debugger }

func (r regAccessAdapter) GetRegister(reg register.Register) (uint64, error) {
	return r.d.ReadRegister(reg)
}

func (r regAccessAdapter) SetRegister(reg register.Register, value uint64) error {
	return r.d.WriteRegister(reg, value)
}

// resolveVariable looks up name as a local or parameter of the
// function covering the current PC first, falling back to a
// name search across all compile units for globals and statics.
func (d *Debugger) resolveVariable(name string) (*dbginfo.OwnedSymbol, error) {
	if d.info == nil {
		return nil, fmt.Errorf("no debug info loaded")
	}
	regs, err := d.proc.GetRegs()
	if err != nil {
		return nil, err
	}
	if fn, _, ok := d.info.FunctionAt(regs.PC(), d.loadBase); ok {
		if sym, ok := dbginfo.FindChildByName(fn, name); ok {
			return sym, nil
		}
	}
	if syms := d.info.GetSymbolsByName(name); len(syms) > 0 {
		return syms[0], nil
	}
	return nil, fmt.Errorf("no variable named %q in scope", name)
}

// evalLocation evaluates sym's DW_AT_location expression against the
// live register file, resolving its enclosing function's
// DW_AT_frame_base first (most DW_OP_fbreg locals need it).
func (d *Debugger) evalLocation(sym *dbginfo.OwnedSymbol) (dwarfexpr.Location, error) {
	if len(sym.Location) == 0 {
		return dwarfexpr.Location{}, fmt.Errorf("variable %s has no location (optimized out or not in scope)", sym.Name)
	}
	regs, err := d.proc.GetRegs()
	if err != nil {
		return dwarfexpr.Location{}, err
	}
	getReg := func(r register.Register) (uint64, error) { return regs.Get(r) }

	var frameBase uint64
	if fn, _, ok := d.info.FunctionAt(regs.PC(), d.loadBase); ok && len(fn.FrameBase) > 0 {
		ctx := dwarfexpr.Context{GetRegister: getReg, LoadBase: d.loadBase}
		if cfa, err := d.currentCFA(regs); err == nil {
			ctx.FrameBase = cfa.Uint64()
		}
		if fbLoc, err := dwarfexpr.Eval(fn.FrameBase, ctx); err == nil {
			switch fbLoc.Kind {
			case dwarfexpr.KindAddress:
				frameBase = fbLoc.Address.Uint64()
			case dwarfexpr.KindValue:
				frameBase = fbLoc.Value
			case dwarfexpr.KindRegister:
				if v, err := regs.Get(fbLoc.Register); err == nil {
					frameBase = v
				}
			}
		}
	}

	return dwarfexpr.Eval(sym.Location, dwarfexpr.Context{
		GetRegister: getReg,
		FrameBase:   frameBase,
		LoadBase:    d.loadBase,
	})
}

// variableKind picks a scalar Kind and size to read/write sym with,
// from its DW_AT_byte_size; this debugger does not yet decode
// DW_AT_encoding, so floating-point types fall back to the same
// generic integer formatting any other odd-sized type gets.
func variableKind(sym *dbginfo.OwnedSymbol) (variable.Kind, int) {
	size := int(sym.ByteSize)
	switch size {
	case 1:
		return variable.KindU8, size
	case 2:
		return variable.KindU16, size
	case 4:
		return variable.KindU32, size
	case 8:
		return variable.KindU64, size
	default:
		return variable.KindGenericU64, size
	}
}

// ReadVariable resolves name in the current scope and returns its
// current value, formatted for display.
func (d *Debugger) ReadVariable(name string) (string, error) {
	sym, err := d.resolveVariable(name)
	if err != nil {
		return "", err
	}
	loc, err := d.evalLocation(sym)
	if err != nil {
		return "", err
	}
	kind, size := variableKind(sym)
	v, err := variable.Read(d, regAccessAdapter{d}, loc, kind, size)
	if err != nil {
		return "", err
	}
	return variable.Format(v), nil
}

// WriteVariable resolves name the same way ReadVariable does and
// writes value into it, truncated to the variable's own size.
func (d *Debugger) WriteVariable(name string, value uint64) error {
	sym, err := d.resolveVariable(name)
	if err != nil {
		return err
	}
	loc, err := d.evalLocation(sym)
	if err != nil {
		return err
	}
	kind, size := variableKind(sym)
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, value)
	if size > 0 && size < 8 {
		b = b[:size]
	}
	return variable.Write(d, regAccessAdapter{d}, loc, variable.Value{Kind: kind, Bytes: b})
}

// DebugInfo returns the loaded DWARF symbol model, if any was
// provided at Attach time.
func (d *Debugger) DebugInfo() *dbginfo.Info { return d.info }

// Close kills the debuggee (if still alive) and releases resources.
func (d *Debugger) Close() error {
	if !d.exited {
		_ = d.proc.Kill()
	}
	return d.proc.Close()
}
