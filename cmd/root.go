package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"messageboard/config"
	"messageboard/logger"
)

// NewRootCommand builds the CLI. Every subcommand sees the loaded config
// through the returned command tree.
func NewRootCommand() *cobra.Command {
	var cfg config.Config
	root := &cobra.Command{
		Use:           "messageboard",
		Short:         "A message board whose home page updates live",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load()
			if err != nil {
				return err
			}
			cfg = c
			return logger.Init(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
		},
	}
	get := func() config.Config { return cfg }
	root.AddCommand(
		newServeCommand(get),
		newPostCommand(get),
		newListCommand(get),
		newDeleteCommand(get),
		newMigrateCommand(get),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		logger.Error("command failed", err)
		logger.Sync()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Sync()
}
