/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/acronis/go-distlimit/internal/libinfo"
)

// envVarsPrefix is the prefix of environment variables overriding configuration values
// (e.g. DISTLIMIT_BACKEND_TYPE=sqlite).
const envVarsPrefix = "DISTLIMIT"

const defaultEnvFile = ".env"

type rootFlags struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:   "distlimit-server",
		Short: "Demo service with distributed fixed-window rate limiting",
		Long: `distlimit-server serves rate-limited embedding endpoints and a WebSocket echo endpoint.

Configuration is read from the YAML or JSON file passed with --config (optional),
then overridden by environment variables with the ` + envVarsPrefix + `_ prefix.
Variables from the .env file are exported before the configuration is read.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(flags.envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env-file", defaultEnvFile, "path to the .env file")

	rootCmd.AddCommand(newServeCmd(flags), newConfigCmd(flags), newVersionCmd())
	return rootCmd
}

// loadEnvFile exports variables from the file. Variables already set in the environment win.
// A missing default file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && path == defaultEnvFile {
			return nil
		}
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags.configPath)
		},
	}
}

func newConfigCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(flags.configPath)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err = enc.Encode(cfg.redacted()); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), libinfo.Version())
			return err
		},
	}
}
