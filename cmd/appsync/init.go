package main

import (
	"fmt"
	"path/filepath"

	"github.com/openmined/appsync/internal/client/config"
	"github.com/openmined/appsync/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	var scope string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter config and .env in the project directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := utils.ResolvePath(projectDir(cmd))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			for _, name := range config.FileNames {
				if existing := filepath.Join(dir, name); utils.FileExists(existing) && !force {
					return fmt.Errorf("already initialized: %s exists, use --force to overwrite", existing)
				}
			}

			cfgPath := filepath.Join(dir, config.FileNames[0])
			if err := config.Default().Save(cfgPath); err != nil {
				return err
			}
			fmt.Fprintf(out, "Config:   %s\n", green.Render(cfgPath))

			envPath := filepath.Join(dir, config.EnvFileName)
			if !utils.FileExists(envPath) || force {
				if err := config.WriteEnvTemplate(dir, viper.GetString("sn_instance"), viper.GetString("sn_user")); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "Env file: %s\n", green.Render(envPath))

			if scope == "" {
				return nil
			}

			if err := config.LoadEnv(dir); err != nil {
				return err
			}
			if err := remoteConfig().Validate(); err != nil {
				fmt.Fprintf(out, "%s\n", gray.Render(fmt.Sprintf("%v: fill in %s, then run download %s", err, envPath, scope)))
				return nil
			}

			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			n, err := c.Download(cmd.Context(), scope)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %d files written\n", green.Render("Download complete!"), n)
			return nil
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "download this scope after initializing")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}
