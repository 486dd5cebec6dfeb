// Package feedback defines the command/feedback vocabulary the
// debugger control loop and its plugins communicate through: a
// front-end (or a plugin hook) sends a Command describing what it
// wants done, and the control loop answers with a Feedback value
// describing what happened. Plugin hooks reuse the exact same two
// types, so a hook can drive the debugger using the identical
// vocabulary a CLI or TUI front-end does.
package feedback

import (
	"coredbg/pkg/addr"
)

// CommandKind discriminates the intent a Command carries.
type CommandKind int

const (
	CmdStep CommandKind = iota
	CmdStepOver
	CmdContinue
	CmdSetBreakpoint
	CmdRemoveBreakpoint
	CmdReadRegister
	CmdWriteRegister
	CmdReadMemory
	CmdWriteMemory
	CmdReadVariable
	CmdWriteVariable
	CmdBacktrace
	CmdDisassemble
	CmdListBreakpoints
	CmdQuit
)

// Command is a single debugger operation request, carried between a
// front-end, the control loop, and plugin hooks. VarName/VarValue only
// apply to CmdReadVariable/CmdWriteVariable; every other Kind ignores
// them.
type Command struct {
	Kind     Kind
	VarName  string
	VarValue uint64
}

// Kind names the operation. It is an alias of CommandKind, so the two
// names are interchangeable; since CmdStep is the zero CommandKind, a
// zero-value Command means "step".
type Kind = CommandKind

// StepCommand requests a single machine instruction step.
func StepCommand() Command { return Command{Kind: CmdStep} }

// ContinueCommand requests the debuggee resume until the next stop.
func ContinueCommand() Command { return Command{Kind: CmdContinue} }

// SetBreakpointCommand requests a breakpoint be installed at a.
type SetBreakpointCommand struct {
	Command
	Addr addr.Addr
}

// NewSetBreakpoint builds a SetBreakpointCommand.
func NewSetBreakpoint(a addr.Addr) SetBreakpointCommand {
	return SetBreakpointCommand{Command: Command{Kind: CmdSetBreakpoint}, Addr: a}
}

// RemoveBreakpointCommand requests the breakpoint at a be removed.
type RemoveBreakpointCommand struct {
	Command
	Addr addr.Addr
}

// NewRemoveBreakpoint builds a RemoveBreakpointCommand.
func NewRemoveBreakpoint(a addr.Addr) RemoveBreakpointCommand {
	return RemoveBreakpointCommand{Command: Command{Kind: CmdRemoveBreakpoint}, Addr: a}
}

// ReadMemoryCommand requests size bytes starting at Addr.
type ReadMemoryCommand struct {
	Command
	Addr addr.Addr
	Size int
}

// NewReadMemory builds a ReadMemoryCommand.
func NewReadMemory(a addr.Addr, size int) ReadMemoryCommand {
	return ReadMemoryCommand{Command: Command{Kind: CmdReadMemory}, Addr: a, Size: size}
}

// WriteMemoryCommand requests Data be written starting at Addr.
type WriteMemoryCommand struct {
	Command
	Addr addr.Addr
	Data []byte
}

// NewWriteMemory builds a WriteMemoryCommand.
func NewWriteMemory(a addr.Addr, data []byte) WriteMemoryCommand {
	return WriteMemoryCommand{Command: Command{Kind: CmdWriteMemory}, Addr: a, Data: data}
}

// NewReadVariable requests the current value of the named in-scope
// variable.
func NewReadVariable(name string) Command { return Command{Kind: CmdReadVariable, VarName: name} }

// NewWriteVariable requests the named in-scope variable be overwritten
// with value, truncated to the variable's own size when that is under
// 8 bytes; a larger variable has only its first 8 bytes written.
func NewWriteVariable(name string, value uint64) Command {
	return Command{Kind: CmdWriteVariable, VarName: name, VarValue: value}
}

// QuitCommand requests the debugger session end.
func QuitCommand() Command { return Command{Kind: CmdQuit} }

// Status summarizes what happened while servicing a Command, in the
// small vocabulary the plugin feedback loop needs to decide whether to
// keep driving the debugger or hand control back.
type Status int

const (
	// StatusContinue means the plugin hook is done; the control loop
	// should resume its normal dispatch (typically PTRACE_CONT).
	StatusContinue Status = iota
	// StatusStopped means a breakpoint or signal left the debuggee
	// stopped and worth reporting to the front-end as-is.
	StatusStopped
	// StatusExited means the debuggee has terminated.
	StatusExited
	// StatusError means the last operation failed.
	StatusError
)

// StopReason further explains a StatusStopped Feedback.
type StopReason int

const (
	StopUnknown StopReason = iota
	StopBreakpoint
	StopSingleStep
	StopSignal
)

// Feedback is the control loop's answer to a Command (or, inside the
// plugin feedback loop, to a plugin-issued Command).
type Feedback struct {
	Status Status
	Reason StopReason

	PC     addr.Addr
	Signal int

	// Data carries a command-specific payload: register value,
	// memory bytes, variable value, backtrace, disassembly listing.
	// Front-ends type-assert it based on which Command they sent.
	Data any

	Err error
}

// Ok builds a StatusContinue Feedback carrying no payload, the usual
// answer to a command that succeeded and doesn't leave the debuggee
// freshly stopped (e.g. a successful register write).
func Ok() Feedback { return Feedback{Status: StatusContinue} }

// Stopped builds a StatusStopped Feedback.
func Stopped(reason StopReason, pc addr.Addr, signal int) Feedback {
	return Feedback{Status: StatusStopped, Reason: reason, PC: pc, Signal: signal}
}

// Exited builds a StatusExited Feedback.
func Exited() Feedback { return Feedback{Status: StatusExited} }

// Errorf builds a StatusError Feedback.
func Errorf(err error) Feedback {
	return Feedback{Status: StatusError, Err: err}
}

// WithData attaches a payload to an existing Feedback.
func (f Feedback) WithData(data any) Feedback {
	f.Data = data
	return f
}
