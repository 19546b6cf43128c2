package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/openmined/appsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:     "appsync",
	Short:   "Sync a scripted application between an instance and a local source tree",
	Version: version.Short(),
	// errors are printed once by main
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadSettings(cmd)
	},
}

func init() {
	addGlobalFlags(rootCmd)
}

func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().SortFlags = false
	cmd.PersistentFlags().StringP("dir", "C", ".", "project directory")
	cmd.PersistentFlags().StringP("config", "c", "", "config file (default: discovered from the project directory)")
	cmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
}

func main() {
	setupLogging(os.Stdout)
	defer closeLogFile()

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(err)
		closeLogFile()
		os.Exit(1)
	}
}

// loadSettings binds flags and the environment into viper and applies the log level.
func loadSettings(cmd *cobra.Command) error {
	viper.BindPFlag("log_level", cmd.Flags().Lookup("log-level"))
	viper.BindEnv("log_level", "APPSYNC_LOG_LEVEL")
	viper.AutomaticEnv()

	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log_level"))); err != nil {
		return fmt.Errorf("invalid log level %q", viper.GetString("log_level"))
	}
	logLevel.Set(level)
	return nil
}
