package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// healthcheckCmd probes a running server, for container HEALTHCHECK use
// where no curl is available. Exit code 0 means a 2xx answer.
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck [url]",
	Short: "Probe a running server's readiness endpoint",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := "http://localhost:8080/readyz"
		if len(args) == 1 {
			url = args[0]
		}
		return probe(&http.Client{Timeout: 5 * time.Second}, url)
	},
}

func probe(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("healthcheck failed: status %d", resp.StatusCode)
}
