package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/flowstate"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of flowstate",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "flowstate version %s\n", strings.TrimSpace(flowstate.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
