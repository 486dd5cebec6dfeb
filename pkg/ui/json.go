package ui

import (
	"encoding/json"
	"fmt"
	"io"

	"coredbg/pkg/debugger"
	"coredbg/pkg/feedback"
	"coredbg/pkg/register"
)

// JSONAdapter is a machine-readable front-end: it reads one JSON
// command object per line from in, executes it against dbg, and
// writes one JSON feedback object per line to out. It exists for
// scripted or IDE-driven control, the same role a machine-facing UI
// adapter plays alongside the interactive CLI.
type JSONAdapter struct {
	dbg *debugger.Debugger
	dec *json.Decoder
	enc *json.Encoder
}

// NewJSONAdapter builds a JSONAdapter over dbg.
func NewJSONAdapter(dbg *debugger.Debugger, in io.Reader, out io.Writer) *JSONAdapter {
	return &JSONAdapter{dbg: dbg, dec: json.NewDecoder(in), enc: json.NewEncoder(out)}
}

// jsonCommand is the wire shape of one command line: a kind name plus
// whatever arguments that kind needs.
type jsonCommand struct {
	Kind string `json:"kind"`
	Addr string `json:"addr,omitempty"`
	Reg  string `json:"reg,omitempty"`
	Value uint64 `json:"value,omitempty"`
}

// jsonFeedback is the wire shape of one feedback line.
type jsonFeedback struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	PC     string `json:"pc,omitempty"`
	Signal int    `json:"signal,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Run processes commands from the input stream until it's exhausted
// or the debuggee exits.
func (j *JSONAdapter) Run() error {
	for {
		var cmd jsonCommand
		if err := j.dec.Decode(&cmd); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("decoding command: %w", err)
		}

		fb, quit := j.execute(cmd)
		if err := j.enc.Encode(toJSONFeedback(fb)); err != nil {
			return fmt.Errorf("encoding feedback: %w", err)
		}
		if quit {
			return nil
		}
		if exited, _ := j.dbg.Exited(); exited {
			return nil
		}
	}
}

func (j *JSONAdapter) execute(cmd jsonCommand) (feedback.Feedback, bool) {
	switch cmd.Kind {
	case "continue":
		return j.dbg.Execute(feedback.ContinueCommand()), false
	case "step":
		return j.dbg.Execute(feedback.StepCommand()), false
	case "quit":
		return j.dbg.Execute(feedback.QuitCommand()), true
	case "break":
		a, err := parseAddress(cmd.Addr)
		if err != nil {
			return feedback.Errorf(err), false
		}
		if _, err := j.dbg.SetBreakpoint(a); err != nil {
			return feedback.Errorf(err), false
		}
		return feedback.Ok(), false
	case "read_register":
		r, err := register.Parse(cmd.Reg)
		if err != nil {
			return feedback.Errorf(err), false
		}
		v, err := j.dbg.ReadRegister(r)
		if err != nil {
			return feedback.Errorf(err), false
		}
		return feedback.Ok().WithData(v), false
	case "write_register":
		r, err := register.Parse(cmd.Reg)
		if err != nil {
			return feedback.Errorf(err), false
		}
		if err := j.dbg.WriteRegister(r, cmd.Value); err != nil {
			return feedback.Errorf(err), false
		}
		return feedback.Ok(), false
	default:
		return feedback.Errorf(fmt.Errorf("unknown command kind %q", cmd.Kind)), false
	}
}

func toJSONFeedback(fb feedback.Feedback) jsonFeedback {
	out := jsonFeedback{Signal: fb.Signal}
	switch fb.Status {
	case feedback.StatusContinue:
		out.Status = "continue"
	case feedback.StatusStopped:
		out.Status = "stopped"
		out.PC = fb.PC.String()
		switch fb.Reason {
		case feedback.StopBreakpoint:
			out.Reason = "breakpoint"
		case feedback.StopSingleStep:
			out.Reason = "step"
		case feedback.StopSignal:
			out.Reason = "signal"
		}
	case feedback.StatusExited:
		out.Status = "exited"
	case feedback.StatusError:
		out.Status = "error"
		if fb.Err != nil {
			out.Error = fb.Err.Error()
		}
	}
	return out
}
