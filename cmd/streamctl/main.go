package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/soundvault/backend/internal/logger"
)

var (
	apiURL string = "http://localhost:8787"
	apiKey string
)

var rootCmd = &cobra.Command{
	Use:   "streamctl",
	Short: "SoundVault CLI - manage API keys, tracks, and stream tokens",
	Long: `streamctl provides command-line access to a SoundVault deployment.
Key and track commands talk to the database directly; token and ingest
commands go through the HTTP API and need an API key.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if apiKey == "" {
			apiKey = os.Getenv("STREAMCTL_API_KEY")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", apiURL, "API server URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "key", "", "API key as id.secret (defaults to STREAMCTL_API_KEY)")

	rootCmd.AddCommand(secretCmd)
	rootCmd.AddCommand(apikeyCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(ingestCmd)
}

func main() {
	_ = godotenv.Load()
	logger.InitializeSilent()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
