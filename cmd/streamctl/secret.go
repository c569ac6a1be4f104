package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate secrets for server configuration",
}

var secretGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a random 32-byte secret, hex encoded",
	Long: `Generate a secret suitable for TOKEN_SIGNING_SECRET or
ENCRYPTION_ROOT_SECRET. Every server instance must share the same values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("failed to generate secret: %w", err)
		}
		fmt.Println(hex.EncodeToString(secret))
		return nil
	},
}

func init() {
	secretCmd.AddCommand(secretGenerateCmd)
}
