package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"coredbg/pkg/addr"
	"coredbg/pkg/debugger"
	"coredbg/pkg/disasm"
	"coredbg/pkg/feedback"
	"coredbg/pkg/register"
)

// TUI is the split-pane front-end: registers, disassembly, and a
// command input line, sharing the exact command/feedback vocabulary
// the CLI and JSON adapters use. It is a pure translator over
// *debugger.Debugger; it owns no debugger state of its own.
type TUI struct {
	dbg  *debugger.Debugger
	app  *tview.Application
	regs *tview.TextView
	code *tview.TextView
	cmd  *tview.InputField
	log  *tview.TextView
}

// NewTUI builds a TUI front-end for an attached Debugger.
func NewTUI(dbg *debugger.Debugger) *TUI {
	t := &TUI{dbg: dbg, app: tview.NewApplication()}

	t.regs = tview.NewTextView().SetDynamicColors(true)
	t.regs.SetBorder(true).SetTitle("registers")

	t.code = tview.NewTextView().SetDynamicColors(true)
	t.code.SetBorder(true).SetTitle("disassembly")

	t.log = tview.NewTextView().SetDynamicColors(true)
	t.log.SetBorder(true).SetTitle("log")

	t.cmd = tview.NewInputField().SetLabel("(coredbg) ")
	t.cmd.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		line := t.cmd.GetText()
		t.cmd.SetText("")
		t.handleLine(line)
	})

	top := tview.NewFlex().
		AddItem(t.regs, 0, 1, false).
		AddItem(t.code, 0, 2, false)
	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(top, 0, 3, false).
		AddItem(t.log, 0, 1, false).
		AddItem(t.cmd, 1, 0, true)

	t.app.SetRoot(root, true).SetFocus(t.cmd)
	return t
}

// Run starts the TUI event loop. It blocks until the user quits.
func (t *TUI) Run() error {
	t.refresh()
	return t.app.Run()
}

func (t *TUI) handleLine(line string) {
	switch line {
	case "c", "continue":
		t.report(t.dbg.Execute(feedback.ContinueCommand()))
	case "s", "step":
		t.report(t.dbg.Execute(feedback.StepCommand()))
	case "q", "quit":
		t.dbg.Close()
		t.app.Stop()
		return
	default:
		fmt.Fprintf(t.log, "[red]unknown command: %s\n", line)
	}
	t.refresh()
}

func (t *TUI) report(fb feedback.Feedback) {
	switch fb.Status {
	case feedback.StatusError:
		fmt.Fprintf(t.log, "[red]error: %v\n", fb.Err)
	case feedback.StatusExited:
		fmt.Fprintln(t.log, "[yellow]debuggee exited")
	case feedback.StatusStopped:
		fmt.Fprintf(t.log, "[green]stopped at %s\n", fb.PC)
	}
}

func (t *TUI) refresh() {
	t.regs.Clear()
	names := []register.Register{
		register.Rax, register.Rbx, register.Rcx, register.Rdx,
		register.Rsi, register.Rdi, register.Rbp, register.Rsp, register.Rip,
	}
	for _, r := range names {
		if v, err := t.dbg.ReadRegister(r); err == nil {
			fmt.Fprintf(t.regs, "%-4s %#018x\n", r, v)
		}
	}

	t.code.Clear()
	pcVal, err := t.dbg.ReadRegister(register.Rip)
	if err != nil {
		return
	}
	pc := addr.Addr(pcVal)
	code, err := t.dbg.ReadMemory(pc, 15*10)
	if err != nil {
		return
	}
	instrs, _ := disasm.DecodeRange(pc, code, 10)
	for _, instr := range instrs {
		marker := " "
		if _, ok := t.dbg.Breakpoints().At(instr.Addr); ok {
			marker = "*"
		}
		fmt.Fprintf(t.code, "%s %s  %s\n", marker, instr.Addr, instr.Text)
	}
}
