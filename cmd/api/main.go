package main

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
)

var log = logging.Logger("main")

func main() {
	rootCmd := &cobra.Command{
		Use:   "promptpot",
		Short: "Prompt game backend",
		Long: "promptpot runs a single-winner prompt game: participants pay an escalating\n" +
			"fee to submit a prompt, an AI oracle scores it, and a perfect score wins the pool.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(
		ServeCmd(),
		TokenCmd(),
		ResetCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
