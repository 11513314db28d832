package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"emlwatch/internal/processor"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <record>",
		Short: "Render a single record into its artifact",
		Long: "Run the processor on one record file, waiting for its companion message when the record " +
			"names one. The file does not need to live inside the watched tree.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			candidate, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve %s: %w", args[0], err)
			}
			logger, err := ctx.commandLogger(cmd, cfg)
			if err != nil {
				return err
			}

			proc := processor.New(processor.OptionsFromConfig(cfg), logger)
			if err := proc.Process(cmd.Context(), candidate); err != nil {
				return fmt.Errorf("process %s: %w", candidate, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", proc.ArtifactPath(candidate))
			return nil
		},
	}
}
