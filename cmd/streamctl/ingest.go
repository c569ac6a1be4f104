package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var (
	ingestTrack string
	ingestIndex int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <chunk-file>",
	Short: "Upload a plaintext chunk for server-side encryption and storage",
	Long: `Upload one audio chunk through the HTTP API. The server encrypts the
chunk under the track's derived key before storing it. Requires an API key
with the ingest scope.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if apiKey == "" {
			return fmt.Errorf("an API key is required (--key or STREAMCTL_API_KEY)")
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read chunk file: %w", err)
		}

		url := fmt.Sprintf("%s/api/v1/stream/%s/chunks/%d", apiURL, ingestTrack, ingestIndex)
		req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("X-API-Key", apiKey)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to make request: %w", err)
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
		}
		fmt.Printf("stored %s chunk %d (%d bytes plaintext)\n", ingestTrack, ingestIndex, len(data))
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTrack, "track", "", "Track ID")
	ingestCmd.Flags().IntVar(&ingestIndex, "index", 0, "Chunk index")
	_ = ingestCmd.MarkFlagRequired("track")
}
