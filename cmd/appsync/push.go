package main

import (
	"github.com/openmined/appsync/internal/client"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newPushCmd())
}

func newPushCmd() *cobra.Command {
	var opts client.PushOptions

	cmd := &cobra.Command{
		Use:   "push [target]",
		Short: "Build and push source files to the instance",
		Long: `Build and push source files to the instance.

target is a comma separated list of files, directories or globs relative to the project
root. Without a target every source file is pushed, or only the files changed since
--diff when it is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Paths = args[0]
			}

			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			results, err := c.Push(cmd.Context(), opts)
			if err != nil {
				return err
			}
			reportResults(cmd.OutOrStdout(), results)
			return nil
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVar(&opts.DiffRef, "diff", "", "push files changed since this git ref")
	cmd.Flags().BoolVar(&opts.ScopeSwap, "scope-swap", false, "switch the session to the manifest scope first")
	cmd.Flags().StringVar(&opts.UpdateSet, "update-set", "", "create and use a new update set with this name")
	// accepted for existing CI scripts; push never prompts
	cmd.Flags().Bool("ci", false, "non-interactive mode")
	return cmd
}
