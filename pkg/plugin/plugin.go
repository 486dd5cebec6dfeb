// Package plugin implements the debugger's extension point protocol: a
// hook is handed a Feedback describing what the debugger just
// observed, and answers with a Command plus a Status. If the hook's
// Status is feedback.StatusContinue, the control loop executes the
// returned Command, normally (by reinvoking ptrace), and the plugin
// loop ends; any other Status means the hook wants the control loop
// to run its Command and call the hook again with the fresh Feedback
// that produces — a nested loop that only terminates once the hook
// itself decides it is done.
package plugin

import (
	"coredbg/pkg/feedback"
)

// Hook is a single extension point implementation. Separate methods
// exist for the two moments a hook can intervene: just before a
// non-trap signal is delivered to the debuggee, and just before a
// SIGTRAP is handled (which may or may not correspond to one of this
// debugger's own breakpoints).
type Hook interface {
	// Name identifies the hook for logging.
	Name() string

	// PreSignal is invoked before a non-SIGTRAP signal is delivered
	// to the debuggee. fb describes the signal the debuggee is about
	// to receive.
	PreSignal(fb feedback.Feedback) (feedback.Command, feedback.Status)

	// PreSigtrap is invoked for a SIGTRAP after the control loop has
	// classified it: fb.Reason is StopBreakpoint when the trap landed on
	// a known breakpoint (RIP already rewound to it), StopSingleStep
	// after a single step, and StopSignal otherwise.
	PreSigtrap(fb feedback.Feedback) (feedback.Command, feedback.Status)
}

// Executor runs a single Command and reports what happened, the
// interface the control loop exposes to the plugin feedback loop so a
// hook never talks to ptrace directly.
type Executor interface {
	Execute(cmd feedback.Command) feedback.Feedback
}

// RunFeedbackLoop drives a hook to completion: it calls enter (one of
// Hook's two methods) with the current Feedback, executes whatever
// Command comes back, and if the hook's Status was not
// feedback.StatusContinue, calls enter again with the fresh Feedback —
// repeating until the hook reports StatusContinue or the executor
// reports the debuggee has exited.
func RunFeedbackLoop(exec Executor, fb feedback.Feedback, enter func(feedback.Feedback) (feedback.Command, feedback.Status)) feedback.Feedback {
	current := fb
	for {
		cmd, status := enter(current)
		result := exec.Execute(cmd)
		if status == feedback.StatusContinue {
			return result
		}
		if result.Status == feedback.StatusExited || result.Status == feedback.StatusError {
			return result
		}
		current = result
	}
}

// Registry holds the active set of hooks for a debugger session,
// invoked in registration order.
type Registry struct {
	hooks []Hook
}

// NewRegistry creates an empty hook registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a hook to the registry.
func (r *Registry) Register(h Hook) {
	r.hooks = append(r.hooks, h)
}

// Hooks returns the registered hooks in registration order.
func (r *Registry) Hooks() []Hook {
	return r.hooks
}
