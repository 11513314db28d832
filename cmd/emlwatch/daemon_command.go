package main

import (
	"github.com/spf13/cobra"

	"emlwatch/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var development bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the watcher daemon in the foreground",
		Long: "Watch the configured tree, process every record placed in a target directory, " +
			"and reconcile missed work periodically. Stops on SIGINT or SIGTERM after in-flight " +
			"records finish.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    ctx.logLevel(),
				Development: development,
			})
		},
	}

	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log lines")
	return cmd
}
