package main

import (
	"github.com/openmined/appsync/internal/client"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newBuildCmd())
}

func newBuildCmd() *cobra.Command {
	var targets client.Targets

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Render source files into the build directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			results, err := c.Build(cmd.Context(), targets)
			if err != nil {
				return err
			}
			reportResults(cmd.OutOrStdout(), results)
			return nil
		},
	}

	cmd.Flags().StringVar(&targets.DiffRef, "diff", "", "build files changed since this git ref")
	return cmd
}
