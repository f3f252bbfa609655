package main

import (
	"fmt"
	"os"

	"cloudvault/config"
	"cloudvault/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	verbose bool
	cfg     *config.Config
	log     = logger.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "cvctl",
	Short: "cvctl - operator tool for CloudVault conversation encryption.",
	Long: `cvctl checks the local crypto provider, issues development tokens,
inspects conversations through the API and runs the key exchange protocol
in-process.

Run 'cvctl help <command>' for more details on a specific command.
`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.LoadConfig()
		if verbose {
			log = logger.New(logger.DevelopmentMode)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(simulateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
