package plugin

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coredbg/pkg/addr"
	"coredbg/pkg/feedback"
)

type fakeExecutor struct {
	steps int
	calls []feedback.CommandKind
}

func (f *fakeExecutor) Execute(cmd feedback.Command) feedback.Feedback {
	f.calls = append(f.calls, cmd.Kind)
	f.steps++
	if f.steps >= 3 {
		return feedback.Stopped(feedback.StopBreakpoint, addr.Addr(0x401000), 0)
	}
	return feedback.Stopped(feedback.StopSingleStep, addr.Addr(0x401000), 0)
}

func TestRunFeedbackLoopStopsOnContinue(t *testing.T) {
	exec := &fakeExecutor{}
	calls := 0
	enter := func(fb feedback.Feedback) (feedback.Command, feedback.Status) {
		calls++
		if calls >= 3 {
			return feedback.ContinueCommand(), feedback.StatusContinue
		}
		return feedback.StepCommand(), feedback.StatusStopped
	}

	result := RunFeedbackLoop(exec, feedback.Feedback{}, enter)
	require.Equal(t, 3, calls)
	require.Equal(t, 3, exec.steps)
	require.Equal(t, feedback.StopBreakpoint, result.Reason)
}

func TestNullHookAlwaysContinues(t *testing.T) {
	h := NewNullHook(feedback.ContinueCommand())
	_, status := h.PreSignal(feedback.Feedback{})
	require.Equal(t, feedback.StatusContinue, status)
	_, status = h.PreSigtrap(feedback.Feedback{})
	require.Equal(t, feedback.StatusContinue, status)
}

func TestSigtrapSelfHookStepsPastForeignTrap(t *testing.T) {
	h := NewSigtrapSelfHook(func(fb feedback.Feedback) bool { return false })
	cmd, status := h.PreSigtrap(feedback.Feedback{})
	require.Equal(t, feedback.CmdStep, cmd.Kind)
	require.Equal(t, feedback.StatusStopped, status)
}

func TestSigtrapSelfHookDefersToOwnBreakpoint(t *testing.T) {
	h := NewSigtrapSelfHook(func(fb feedback.Feedback) bool { return true })
	_, status := h.PreSigtrap(feedback.Feedback{})
	require.Equal(t, feedback.StatusContinue, status)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.Empty(t, r.Hooks())
	r.Register(NewNullHook(feedback.ContinueCommand()))
	require.Len(t, r.Hooks(), 1)
}
