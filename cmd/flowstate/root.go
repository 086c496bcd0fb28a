package main

import (
	"fmt"
	"os"

	"github.com/aretw0/flowstate/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flowstate",
	Short: "Flowstate keeps multi-request HTTP flow state on the server",
	Long: `Flowstate correlates redirects, form posts and callbacks of a flow with an
opaque handle and keeps the flow state in a pluggable store.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML or JSON config file")
}

// loadConfig reads --config and applies flag overrides common to commands.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("store"); f != nil && f.Changed {
		cfg.Store.Driver = f.Value.String()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
