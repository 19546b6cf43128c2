package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/openmined/appsync/internal/client"
	"github.com/openmined/appsync/internal/client/manifest"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session scope and the state of the local tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			st, err := c.Status(cmd.Context())
			if errors.Is(err, manifest.ErrNoManifestLoaded) {
				printStatus(cmd.OutOrStdout(), st)
				fmt.Fprintln(cmd.OutOrStdout(), gray.Render("no manifest, run download <scope> first"))
				return nil
			} else if err != nil {
				return err
			}

			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func printStatus(w io.Writer, st *client.Status) {
	if st == nil {
		return
	}
	fmt.Fprintf(w, "Instance:       %s\n", cyan.Render(st.Instance))
	fmt.Fprintf(w, "User:           %s\n", cyan.Render(st.User))
	fmt.Fprintf(w, "Session scope:  %s\n", cyan.Render(st.SessionScope))
	if st.ManifestScope == "" {
		return
	}

	scope := green.Render(st.ManifestScope)
	if st.ManifestScope != st.SessionScope {
		scope = red.Render(st.ManifestScope)
	}
	fmt.Fprintf(w, "Manifest scope: %s\n", scope)
	fmt.Fprintf(w, "Records:        %d in %d tables\n", st.Records, st.Tables)

	missing := green.Render("0")
	if st.MissingFiles > 0 {
		missing = red.Render(fmt.Sprint(st.MissingFiles))
	}
	fmt.Fprintf(w, "Missing files:  %s\n", missing)
}
