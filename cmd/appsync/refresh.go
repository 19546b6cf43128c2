package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newRefreshCmd())
}

func newRefreshCmd() *cobra.Command {
	var currentUpdateSet bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the manifest and download missing files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.CheckScope(cmd.Context(), false); err != nil {
				return err
			}
			n, err := c.Refresh(cmd.Context(), currentUpdateSet)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %d files downloaded\n", green.Render("Refresh complete!"), n)
			return nil
		},
	}

	cmd.Flags().BoolVar(&currentUpdateSet, "current-us", false, "only refresh records changed in the current update set")
	return cmd
}
