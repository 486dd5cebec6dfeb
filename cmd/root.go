package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"coredbg/cmd/debug"
)

var cfgFile string

// RootCmd is the base command when coredbg is called without any
// subcommands.
var RootCmd = &cobra.Command{
	Use:   "coredbg",
	Short: "A native source-level debugger for ELF/x86-64 executables",
	Long: `coredbg attaches to an ELF/x86-64 executable via ptrace, resolves its
DWARF debug info, and drives breakpoint, stepping, and variable inspection
through a small command/feedback protocol shared by its CLI, JSON, and TUI
front-ends.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to
// happen once to RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.coredbg.yaml)")
	RootCmd.AddCommand(debug.DebugCmd)
	cobra.OnInitialize(initConfig)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".coredbg")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
