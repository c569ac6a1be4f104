package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	tokenTrack string
	tokenUser  string
	tokenPerms []string
	tokenTTL   int
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Work with stream access tokens (via the HTTP API)",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Request a time-bounded access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if apiKey == "" {
			return fmt.Errorf("an API key is required (--key or STREAMCTL_API_KEY)")
		}

		payload := map[string]any{
			"track_id": tokenTrack,
			"user_id":  tokenUser,
		}
		if len(tokenPerms) > 0 {
			payload["permissions"] = tokenPerms
		}
		if tokenTTL > 0 {
			payload["ttl_seconds"] = tokenTTL
		}

		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}

		req, err := http.NewRequest(http.MethodPost, apiURL+"/api/v1/stream/token", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", apiKey)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to make request: %w", err)
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
		}

		var out bytes.Buffer
		if err := json.Indent(&out, respBody, "", "  "); err != nil {
			fmt.Println(string(respBody))
			return nil
		}
		fmt.Println(out.String())
		return nil
	},
}

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenTrack, "track", "", "Track ID")
	tokenIssueCmd.Flags().StringVar(&tokenUser, "user", "", "User ID the token is bound to")
	tokenIssueCmd.Flags().StringSliceVar(&tokenPerms, "permissions", nil, "Token permissions (default: stream)")
	tokenIssueCmd.Flags().IntVar(&tokenTTL, "ttl", 0, "Token lifetime in seconds (default: server default)")
	_ = tokenIssueCmd.MarkFlagRequired("track")
	_ = tokenIssueCmd.MarkFlagRequired("user")

	tokenCmd.AddCommand(tokenIssueCmd)
}
