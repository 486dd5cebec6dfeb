// Package debug implements coredbg's "debug" subcommand: it loads an
// ELF executable's DWARF info, attaches to it under ptrace, and hands
// control to one of the CLI, JSON, or TUI front-ends over the shared
// debugger.Debugger control loop.
package debug

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"coredbg/internal/logging"
	"coredbg/pkg/addr"
	"coredbg/pkg/dbginfo"
	"coredbg/pkg/debugger"
	"coredbg/pkg/feedback"
	"coredbg/pkg/plugin"
	"coredbg/pkg/ui"
)

var (
	flagUI       string
	flagLogFile  string
	flagLogLevel string
	flagColor    bool
	flagBreak    []string
)

// DebugCmd is the "coredbg debug <executable> [args...]" subcommand.
var DebugCmd = &cobra.Command{
	Use:   "debug <executable> [-- args...]",
	Short: "Attach to an ELF/x86-64 executable and debug it",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDebug,
}

func init() {
	DebugCmd.Flags().StringVar(&flagUI, "ui", "cli", "front-end to drive: cli, json, or tui")
	DebugCmd.Flags().StringVar(&flagLogFile, "log-file", "", "path to a JSON log file (in addition to stderr)")
	DebugCmd.Flags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, or error")
	DebugCmd.Flags().BoolVar(&flagColor, "color", true, "colorize CLI/TUI output")
	DebugCmd.Flags().StringArrayVarP(&flagBreak, "break", "b", nil, "set a breakpoint at this address before running (repeatable)")
}

func runDebug(cmd *cobra.Command, args []string) error {
	path := args[0]
	progArgs := args[1:]

	level, err := parseLevel(viperOr(cmd, flagLogLevel, "log-level"))
	if err != nil {
		return err
	}
	log, closeLog, err := logging.New(logging.Config{
		Level:    level,
		FilePath: viperOr(cmd, flagLogFile, "log-file"),
	})
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer closeLog()

	info, err := dbginfo.Load(path)
	if err != nil {
		log.Warn("loading debug info failed, continuing without symbols", "path", path, "error", err)
		info = nil
	}

	dbg, err := debugger.Attach(path, progArgs, info, log)
	if err != nil {
		return fmt.Errorf("attaching to %s: %w", path, err)
	}
	defer dbg.Close()

	dbg.RegisterHook(plugin.NewSigtrapSelfHook(func(fb feedback.Feedback) bool {
		return fb.Reason == feedback.StopBreakpoint
	}))

	for _, raw := range flagBreak {
		a, err := parseBreakAddr(raw)
		if err != nil {
			return fmt.Errorf("parsing --break %q: %w", raw, err)
		}
		if _, err := dbg.SetBreakpoint(a); err != nil {
			return fmt.Errorf("setting breakpoint at %s: %w", a, err)
		}
	}

	colored := flagColor
	if !cmd.Flags().Changed("color") && viper.IsSet("color") {
		colored = viper.GetBool("color")
	}
	switch viperOr(cmd, flagUI, "ui") {
	case "cli":
		return ui.NewCLI(dbg, os.Stdin, os.Stdout, colored).Run()
	case "json":
		return ui.NewJSONAdapter(dbg, os.Stdin, os.Stdout).Run()
	case "tui":
		return ui.NewTUI(dbg).Run()
	default:
		return fmt.Errorf("unknown --ui value %q (want cli, json, or tui)", flagUI)
	}
}

// viperOr prefers an explicitly-set cobra flag, falling back to the
// equivalent viper key so config-file and environment overrides still
// apply when the flag was left at its default.
func viperOr(cmd *cobra.Command, flagVal, key string) string {
	if cmd.Flags().Changed(key) {
		return flagVal
	}
	if v := viper.GetString(key); v != "" {
		return v
	}
	return flagVal
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

func parseBreakAddr(s string) (addr.Addr, error) {
	s = strings.TrimPrefix(s, "0x")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, err
	}
	return addr.Addr(v), nil
}
