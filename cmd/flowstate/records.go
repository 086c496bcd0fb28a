package main

import (
	"github.com/aretw0/flowstate/internal/cli"
	"github.com/spf13/cobra"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List records kept by a persistent store",
	Long:  `Lists the flow records of the configured redis, bolt or file store, per scope.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		scope, _ := cmd.Flags().GetString("scope")
		asJSON, _ := cmd.Flags().GetBool("json")
		return cli.ListRecords(cmd.Context(), cmd.OutOrStdout(), cli.RecordsOptions{
			Config: cfg,
			Scope:  scope,
			JSON:   asJSON,
		})
	},
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.Flags().String("scope", "", "Session ID to list (default: every scope the store knows)")
	recordsCmd.Flags().Bool("json", false, "Print JSON")
	recordsCmd.Flags().String("store", "", "Store driver: redis, bolt, file")
}
