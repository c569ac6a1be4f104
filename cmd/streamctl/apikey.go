package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/soundvault/backend/internal/capability"
	"github.com/soundvault/backend/internal/database"
)

var (
	apikeyName   string
	apikeyScopes string
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys (direct database access)",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key and print its secret",
	Long: `Create an API key with the given scopes. The secret is printed once
and cannot be recovered; store it somewhere safe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scopes, err := capability.ParsePermissions(apikeyScopes)
		if err != nil {
			return err
		}
		if len(scopes) == 0 {
			return fmt.Errorf("at least one scope is required")
		}

		registry, err := openRegistry()
		if err != nil {
			return err
		}

		key, secret, err := registry.CreateKey(apikeyName, scopes)
		if err != nil {
			return err
		}

		fmt.Printf("id:      %s\n", key.ID)
		fmt.Printf("name:    %s\n", key.Name)
		fmt.Printf("scopes:  %s\n", key.Scopes)
		fmt.Printf("api key: %s.%s\n", key.ID, secret)
		return nil
	},
}

var apikeyDisableCmd = &cobra.Command{
	Use:   "disable <key-id>",
	Short: "Disable an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := openRegistry()
		if err != nil {
			return err
		}
		if err := registry.Disable(args[0]); err != nil {
			return err
		}
		fmt.Printf("disabled %s\n", args[0])
		return nil
	},
}

func init() {
	apikeyCreateCmd.Flags().StringVar(&apikeyName, "name", "", "Human-readable key name")
	apikeyCreateCmd.Flags().StringVar(&apikeyScopes, "scopes", "stream,issue-token", "Comma-separated scopes")
	_ = apikeyCreateCmd.MarkFlagRequired("name")

	apikeyCmd.AddCommand(apikeyCreateCmd)
	apikeyCmd.AddCommand(apikeyDisableCmd)
}

func openDB() (*gorm.DB, error) {
	return database.Connect(
		os.Getenv("DATABASE_URL"),
		envOrDefault("SQLITE_PATH", "soundvault.db"),
		envOrDefault("ENVIRONMENT", "development"),
	)
}

func openRegistry() (*capability.Registry, error) {
	db, err := openDB()
	if err != nil {
		return nil, err
	}
	registry := capability.NewRegistry(db)
	if err := registry.Migrate(); err != nil {
		return nil, err
	}
	return registry, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
