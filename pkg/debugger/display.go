package debugger

import (
	"coredbg/pkg/addr"
	"coredbg/pkg/stack"
)

// VariableValue is a resolved in-scope variable ready for display,
// shaped for variable-read output: a name, its DWARF type
// name, a formatted value, and the location it was read from.
type VariableValue struct {
	Name        string
	TypeName    string
	ValueString string
	Location    string
	Size        int
}

// BreakpointInfo is a breakpoint's state formatted for a front-end.
type BreakpointInfo struct {
	Addr     addr.Addr
	Enabled  bool
	HitCount int
	Symbol   string
}

// RegisterInfo is a single register's name and value formatted for a
// front-end.
type RegisterInfo struct {
	Name  string
	Value uint64
}

// State is a point-in-time snapshot of the debuggee for display.
type State struct {
	PC        addr.Addr
	SP        addr.Addr
	Registers []RegisterInfo
	Exited    bool
	ExitCode  int
	Backtrace *stack.Backtrace
}
