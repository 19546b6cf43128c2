package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newDeployCmd())
}

func newDeployCmd() *cobra.Command {
	var scopeSwap bool

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Push the build directory to the instance",
		Long: `Push the build directory to the instance.

When the diff file lists changed paths only those are deployed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			results, err := c.Deploy(cmd.Context(), scopeSwap)
			if err != nil {
				return err
			}
			reportResults(cmd.OutOrStdout(), results)
			return nil
		},
	}

	cmd.Flags().BoolVar(&scopeSwap, "scope-swap", false, "switch the session to the manifest scope first")
	return cmd
}
