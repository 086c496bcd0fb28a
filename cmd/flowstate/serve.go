package main

import (
	"context"

	"github.com/aretw0/flowstate/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the demo HTTP server",
	Long: `Starts a demo application whose account page yields to a login flow,
with a federated sign-in served by a built-in provider. Exposes /health,
/info and /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Listen = listen
		}
		debug, _ := cmd.Flags().GetBool("debug")
		if debug {
			cfg.Log.Level = "debug"
		}

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()
		return cli.Serve(ctx, cli.ServeOptions{Config: cfg, Debug: debug})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "Address to listen on (overrides config)")
	serveCmd.Flags().String("store", "", "Store driver: session, memory, redis, bolt, file")
	serveCmd.Flags().Bool("debug", false, "Log every store operation")
}
