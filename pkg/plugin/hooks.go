package plugin

import "coredbg/pkg/feedback"

// NullHook does nothing at either extension point: it always answers
// StatusContinue with whatever Command the debugger was already about
// to run. It exists as the minimal example a new hook implementation
// can start from.
type NullHook struct {
	passthrough feedback.Command
}

// NewNullHook builds a NullHook that continues with cmd at each
// extension point it is asked about.
func NewNullHook(cmd feedback.Command) *NullHook {
	return &NullHook{passthrough: cmd}
}

func (h *NullHook) Name() string { return "null" }

func (h *NullHook) PreSignal(fb feedback.Feedback) (feedback.Command, feedback.Status) {
	return h.passthrough, feedback.StatusContinue
}

func (h *NullHook) PreSigtrap(fb feedback.Feedback) (feedback.Command, feedback.Status) {
	return h.passthrough, feedback.StatusContinue
}

// SigtrapSelfHook auto single-steps through SIGTRAPs the debuggee
// raises itself (e.g. via int3 or raise(SIGTRAP)) rather than ones
// this debugger's own breakpoint engine installed. It only consumes a
// SIGTRAP when the reported PC doesn't match a breakpoint this hook
// was told about; otherwise it defers by reporting StatusContinue
// immediately so the control loop's normal breakpoint handling runs.
type SigtrapSelfHook struct {
	isBreakpoint func(fb feedback.Feedback) bool
}

// NewSigtrapSelfHook builds a SigtrapSelfHook. isBreakpoint should
// report whether the Feedback's PC corresponds to a breakpoint the
// debugger installed; when it does, this hook steps aside.
func NewSigtrapSelfHook(isBreakpoint func(fb feedback.Feedback) bool) *SigtrapSelfHook {
	return &SigtrapSelfHook{isBreakpoint: isBreakpoint}
}

func (h *SigtrapSelfHook) Name() string { return "sigtrap_self" }

func (h *SigtrapSelfHook) PreSignal(fb feedback.Feedback) (feedback.Command, feedback.Status) {
	return feedback.ContinueCommand(), feedback.StatusContinue
}

func (h *SigtrapSelfHook) PreSigtrap(fb feedback.Feedback) (feedback.Command, feedback.Status) {
	if h.isBreakpoint == nil || h.isBreakpoint(fb) {
		return feedback.ContinueCommand(), feedback.StatusContinue
	}
	// Not one of ours: step past the debuggee's own trap instruction
	// and hand control straight back to the debuggee.
	return feedback.StepCommand(), feedback.StatusStopped
}
