package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nkootstra/romlink/internal/logging"
	"github.com/nkootstra/romlink/internal/version"
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:     "romlink",
	Short:   "Serve a directory of ROMs over a tiny binary protocol, and fetch them",
	Version: version.String(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := logging.New(logging.Options{
			Level:  logLevel,
			Format: logFormat,
			Output: cmd.ErrOrStderr(),
		})
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format (console or json)")

	rootCmd.AddCommand(serveCmd, listCmd, fetchCmd, benchCmd, portsCmd)
}

func Execute() error {
	return rootCmd.Execute()
}
