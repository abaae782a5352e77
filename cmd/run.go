package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/zephyrpay/relayer/relayer"
)

var (
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the relayer service",
		Long: `Initialize and run the relayer.

Use --config=path-to-your-config-file. default is=./config/relayer.yaml`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := relayer.RunWithConfig(config); err != nil {
				log.Fatalf("relayer exited with error: %v", err)
			}
		},
	}
)

func init() {
	rootCmd.AddCommand(runCmd)
}
