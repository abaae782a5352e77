package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var (
	config  = "./config/relayer.yaml"
	rootCmd = &cobra.Command{
		Use:   "relayer",
		Short: "ZephyrPay account-abstraction relayer CLI",
		Long: `CLI to run and interact with the ZephyrPay relayer.

Such as "relayer run" to start the service or "relayer version".
`,
	}
)

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&config, "config", "c", "./config/relayer.yaml", "Path to config file")
}
