package ui

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"coredbg/pkg/addr"
	"coredbg/pkg/breakpoint"
	"coredbg/pkg/debugger"
	"coredbg/pkg/disasm"
	"coredbg/pkg/feedback"
	"coredbg/pkg/register"
	"coredbg/pkg/utils"
)

// CLI is the line-oriented front-end: a prompt, a bufio.Reader loop,
// blank-line repeats the last command, and a switch-based command
// dispatch.
type CLI struct {
	dbg    *debugger.Debugger
	in     *bufio.Reader
	out    io.Writer
	prompt string
	style  FormatStyle
	last   string
}

// NewCLI builds a CLI front-end for an attached Debugger.
func NewCLI(dbg *debugger.Debugger, in io.Reader, out io.Writer, colored bool) *CLI {
	style := StylePlain
	if colored {
		style = StyleColored
	}
	return &CLI{
		dbg:    dbg,
		in:     bufio.NewReader(in),
		out:    out,
		prompt: "(coredbg) ",
		style:  style,
	}
}

var (
	colorPrompt = color.New(color.FgHiCyan, color.Bold)
	colorError  = color.New(color.FgHiRed)
	colorOk     = color.New(color.FgHiGreen)
	colorInfo   = color.New(color.FgHiYellow)
)

// Run drives the REPL until the user quits or the debuggee exits.
func (c *CLI) Run() error {
	for {
		if c.style == StyleColored {
			colorPrompt.Fprint(c.out, c.prompt)
		} else {
			fmt.Fprint(c.out, c.prompt)
		}

		line, err := c.in.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading command: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			line = c.last
		} else {
			c.last = line
		}
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]

		quit, err := c.dispatch(cmd, args)
		if err != nil {
			c.showError(err)
		}
		if quit {
			return nil
		}
		if exited, code := c.dbg.Exited(); exited {
			c.showInfo(fmt.Sprintf("debuggee exited with status %d", code))
			return nil
		}
	}
}

func (c *CLI) dispatch(cmd string, args []string) (quit bool, err error) {
	switch cmd {
	case "continue", "c":
		return false, c.cmdContinue()
	case "step", "s":
		return false, c.cmdStep()
	case "break", "b":
		return false, c.cmdBreak(args)
	case "delete", "d":
		return false, c.cmdDelete(args)
	case "print", "p":
		return false, c.cmdPrint(args)
	case "set":
		return false, c.cmdSet(args)
	case "regs", "info":
		return false, c.cmdRegs()
	case "disas", "x":
		return false, c.cmdDisas(args)
	case "list", "l":
		return false, c.cmdList()
	case "flags":
		return false, c.cmdFlags()
	case "rmem":
		return false, c.cmdReadMem(args)
	case "wmem":
		return false, c.cmdWriteMem(args)
	case "bt", "stack":
		return false, c.cmdBacktrace()
	case "var", "v":
		return false, c.cmdVar(args)
	case "setvar":
		return false, c.cmdSetVar(args)
	case "quit", "q":
		return true, c.dbg.Close()
	case "help", "h":
		c.cmdHelp()
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
}

func (c *CLI) cmdContinue() error {
	return c.reportExecution(c.dbg.Execute(feedback.ContinueCommand()))
}

func (c *CLI) cmdStep() error {
	return c.reportExecution(c.dbg.Execute(feedback.StepCommand()))
}

func (c *CLI) reportExecution(fb feedback.Feedback) error {
	switch fb.Status {
	case feedback.StatusError:
		return fb.Err
	case feedback.StatusExited:
		c.showInfo("debuggee exited")
		return nil
	case feedback.StatusStopped:
		reason := "stopped"
		switch fb.Reason {
		case feedback.StopBreakpoint:
			reason = "breakpoint hit"
		case feedback.StopSingleStep:
			reason = "stepped"
		case feedback.StopSignal:
			reason = fmt.Sprintf("signal %d", fb.Signal)
		}
		c.showOk(fmt.Sprintf("%s at %s", reason, fb.PC))
		return nil
	default:
		return nil
	}
}

func (c *CLI) cmdBreak(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: break <address>")
	}
	a, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	bp, err := c.dbg.SetBreakpoint(a)
	if err != nil {
		return err
	}
	c.showOk(fmt.Sprintf("breakpoint set at %s", bp.Addr))
	return nil
}

func (c *CLI) cmdDelete(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: delete <address>")
	}
	a, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	if err := c.dbg.RemoveBreakpoint(a); err != nil {
		return err
	}
	c.showOk(fmt.Sprintf("breakpoint at %s removed", a))
	return nil
}

func (c *CLI) cmdPrint(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: print <register>")
	}
	reg, err := register.Parse(args[0])
	if err != nil {
		return err
	}
	v, err := c.dbg.ReadRegister(reg)
	if err != nil {
		return err
	}
	c.showOk(fmt.Sprintf("%s = %#x", args[0], v))
	return nil
}

func (c *CLI) cmdSet(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: set <register> <value>")
	}
	reg, err := register.Parse(args[0])
	if err != nil {
		return err
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(args[1], "0x"), 16, 64)
	if err != nil {
		return fmt.Errorf("parsing value %q: %w", args[1], err)
	}
	if err := c.dbg.WriteRegister(reg, v); err != nil {
		return err
	}
	c.showOk(fmt.Sprintf("%s = %#x", args[0], v))
	return nil
}

func (c *CLI) cmdRegs() error {
	names := []register.Register{
		register.Rax, register.Rbx, register.Rcx, register.Rdx,
		register.Rsi, register.Rdi, register.Rbp, register.Rsp,
		register.Rip, register.Eflags,
	}
	for _, r := range names {
		v, err := c.dbg.ReadRegister(r)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "  %-8s %s\n", r, utils.FormatUintHex(v, 16))
	}
	return nil
}

func (c *CLI) cmdDisas(args []string) error {
	count := 8
	startAddr, err := c.currentPC()
	if err != nil {
		return err
	}
	if len(args) >= 1 {
		a, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		startAddr = a
	}
	if len(args) >= 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("parsing count %q: %w", args[1], err)
		}
		count = n
	}

	code, err := c.dbg.ReadMemory(startAddr, count*15)
	if err != nil {
		return err
	}
	if bp, ok := c.dbg.Breakpoints().At(startAddr); ok {
		if orig, has := bp.OriginalByte(); has {
			code = disasm.RestoreBreakpointByte(code, orig)
		}
	}

	instrs, err := disasm.DecodeRange(startAddr, code, count)
	if err != nil && len(instrs) == 0 {
		return err
	}
	formatter := NewInstructionFormatter(OutputConfig{Style: c.style})
	for _, instr := range instrs {
		marker := "  "
		if _, ok := c.dbg.Breakpoints().At(instr.Addr); ok {
			marker = "* "
		}
		fmt.Fprintf(c.out, "%s%s  %s\n", marker, instr.Addr, formatter.FormatInstruction(instr.Text))
	}
	return nil
}

func (c *CLI) cmdList() error {
	infos := breakpointInfos(c.dbg.Breakpoints())
	if len(infos) == 0 {
		c.showInfo("no breakpoints set")
		return nil
	}
	lines := utils.Map(infos, func(bp debugger.BreakpointInfo) string {
		return fmt.Sprintf("  %s  enabled=%v  hits=%d", bp.Addr, bp.Enabled, bp.HitCount)
	})
	for _, line := range lines {
		fmt.Fprintln(c.out, line)
	}
	return nil
}

// eflagsBits names the general-purpose x86-64 EFLAGS bits this
// command cares about; reserved and system-only bits are left out of
// the diagram.
var eflagsBits = []utils.AsciiFrameField{
	{Name: "CF", Begin: 0, Width: 1},
	{Name: "PF", Begin: 2, Width: 1},
	{Name: "AF", Begin: 4, Width: 1},
	{Name: "ZF", Begin: 6, Width: 1},
	{Name: "SF", Begin: 7, Width: 1},
	{Name: "TF", Begin: 8, Width: 1},
	{Name: "IF", Begin: 9, Width: 1},
	{Name: "DF", Begin: 10, Width: 1},
	{Name: "OF", Begin: 11, Width: 1},
}

// cmdFlags draws the current EFLAGS register as a bit diagram and
// lists which of the named flags are currently set.
func (c *CLI) cmdFlags() error {
	v, err := c.dbg.ReadRegister(register.Eflags)
	if err != nil {
		return err
	}

	fmt.Fprint(c.out, utils.AsciiFrame(eflagsBits, 12, "bits", utils.AsciiFrameUnitLayout_RightToLeft, 0))

	view := utils.CreateBitView(&v)
	for _, f := range eflagsBits {
		if view.Read(f.Begin, f.Width) != 0 {
			fmt.Fprintf(c.out, "  %s set\n", f.Name)
		}
	}
	return nil
}

// cmdReadMem reads and hex-dumps 8 bytes of debuggee memory at an
// address.
func (c *CLI) cmdReadMem(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: rmem <address>")
	}
	a, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	data, err := c.dbg.ReadMemory(a, 8)
	if err != nil {
		return err
	}
	c.showOk(fmt.Sprintf("%s: % x", a, data))
	return nil
}

// cmdWriteMem writes a run of hex-encoded bytes into debuggee memory
// at an address.
func (c *CLI) cmdWriteMem(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: wmem <address> <hex bytes>")
	}
	a, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	raw := strings.TrimPrefix(args[1], "0x")
	if len(raw)%2 != 0 {
		raw = "0" + raw
	}
	data, err := hex.DecodeString(raw)
	if err != nil {
		return fmt.Errorf("parsing data %q: %w", args[1], err)
	}
	if err := c.dbg.WriteMemory(a, data); err != nil {
		return err
	}
	c.showOk(fmt.Sprintf("%s: wrote % x", a, data))
	return nil
}

// cmdBacktrace prints the current call stack, innermost frame first.
func (c *CLI) cmdBacktrace() error {
	bt, err := c.dbg.Backtrace(64)
	if err != nil {
		return err
	}
	for i, f := range bt.Frames {
		name := f.Function
		if name == "" {
			name = "??"
		}
		loc := ""
		if f.File != "" {
			loc = fmt.Sprintf(" (%s:%d)", f.File, f.Line)
		}
		fmt.Fprintf(c.out, "#%-2d %s in %s%s\n", i, f.PC, name, loc)
	}
	return nil
}

// cmdVar reads a named in-scope variable's current value.
func (c *CLI) cmdVar(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: var <name>")
	}
	fb := c.dbg.Execute(feedback.NewReadVariable(args[0]))
	if fb.Status == feedback.StatusError {
		return fb.Err
	}
	value, _ := fb.Data.(string)
	c.showOk(fmt.Sprintf("%s = %s", args[0], value))
	return nil
}

// cmdSetVar writes a named in-scope variable.
func (c *CLI) cmdSetVar(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: setvar <name> <hex value>")
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(args[1], "0x"), 16, 64)
	if err != nil {
		return fmt.Errorf("parsing value %q: %w", args[1], err)
	}
	fb := c.dbg.Execute(feedback.NewWriteVariable(args[0], v))
	if fb.Status == feedback.StatusError {
		return fb.Err
	}
	c.showOk(fmt.Sprintf("%s = %#x", args[0], v))
	return nil
}

func (c *CLI) cmdHelp() {
	fmt.Fprintln(c.out, "commands: continue(c) step(s) break(b) delete(d) print(p) set regs disas(x) "+
		"list(l) flags rmem wmem bt(stack) var(v) setvar quit(q)")
}

func (c *CLI) currentPC() (addr.Addr, error) {
	v, err := c.dbg.ReadRegister(register.Rip)
	if err != nil {
		return 0, err
	}
	return addr.Addr(v), nil
}

func (c *CLI) showError(err error) {
	if c.style == StyleColored {
		colorError.Fprintf(c.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "error: %v\n", err)
}

func (c *CLI) showOk(msg string) {
	if c.style == StyleColored {
		colorOk.Fprintln(c.out, msg)
		return
	}
	fmt.Fprintln(c.out, msg)
}

func (c *CLI) showInfo(msg string) {
	if c.style == StyleColored {
		colorInfo.Fprintln(c.out, msg)
		return
	}
	fmt.Fprintln(c.out, msg)
}

// parseAddress parses a user-supplied address: a hex literal, with or
// without a "0x" prefix ("0x401000"). Symbol names are not resolved.
func parseAddress(s string) (addr.Addr, error) {
	s = strings.TrimPrefix(s, "0x")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing address %q: %w", s, err)
	}
	return addr.Addr(v), nil
}

// breakpointInfos projects the raw breakpoint set into display-ready
// BreakpointInfo values.
func breakpointInfos(set *breakpoint.Set) []debugger.BreakpointInfo {
	var out []debugger.BreakpointInfo
	for _, bp := range set.All() {
		out = append(out, debugger.BreakpointInfo{Addr: bp.Addr, Enabled: bp.Enabled, HitCount: bp.HitCount})
	}
	return out
}
