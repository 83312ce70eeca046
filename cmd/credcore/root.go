package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/credcore/internal/logging"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "credcore",
		Short:         "Credential and session core tooling",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	addConfigFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewCheckConfigCmd())
	cmd.AddCommand(NewHashCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewLoadTestCmd())
	cmd.AddCommand(NewScenarioCmd())

	return cmd
}

func newLogger(fc fileConfig) *slog.Logger {
	return logging.Setup(logging.Options{
		Service: "credcore",
		Version: version,
		Format:  fc.Log.Format,
		Level:   fc.Log.Level,
	})
}
