package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/openmined/appsync/internal/client"
	"github.com/openmined/appsync/internal/client/config"
	"github.com/openmined/appsync/internal/client/sync"
	"github.com/openmined/appsync/internal/snapi"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	red   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	cyan  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

// projectDir returns the --dir flag value.
func projectDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		return "."
	}
	return dir
}

// loadProject reads the config named by --config, or discovers it from the project directory.
func loadProject(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.Load(path)
	}
	return config.Discover(projectDir(cmd))
}

// remoteConfig reads the instance credentials from the environment.
func remoteConfig() *snapi.Config {
	return &snapi.Config{
		Instance: viper.GetString("sn_instance"),
		User:     viper.GetString("sn_user"),
		Password: viper.GetString("sn_password"),
	}
}

// newClient loads the project and its .env, then connects to the instance.
func newClient(cmd *cobra.Command) (*client.Client, error) {
	project, err := loadProject(cmd)
	if err != nil {
		return nil, err
	}
	if err := config.LoadEnv(project.Root); err != nil {
		return nil, err
	}

	c, err := client.New(&client.Config{Project: project, Remote: remoteConfig()})
	if err != nil {
		return nil, err
	}
	attachLogFile(c.Workspace().LogsDir)

	cmd.SilenceUsage = true
	return c, nil
}

// printResults writes one line per record and returns the number of failures.
func printResults(w io.Writer, results []sync.Result) int {
	failed := 0
	for _, res := range results {
		head, detail, _ := strings.Cut(res.Message, "\n")
		if res.Success {
			fmt.Fprintf(w, "%s %s\n", green.Render("✓"), head)
		} else {
			failed++
			fmt.Fprintf(w, "%s %s\n", red.Render("✗"), head)
		}
		if detail == "" {
			continue
		}
		for _, line := range strings.Split(detail, "\n") {
			fmt.Fprintln(w, gray.Render(line))
		}
	}
	return failed
}

// reportResults prints results and a summary line. Failed records are reported, they do
// not fail the command.
func reportResults(w io.Writer, results []sync.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, gray.Render("nothing to do"))
		return
	}
	failed := printResults(w, results)
	fmt.Fprintf(w, "%d succeeded, %d failed\n", len(results)-failed, failed)
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", red.Render("ERROR"), err)
}
