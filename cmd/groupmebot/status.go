package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/keepmind9/groupmebot/pkg/router"
	"github.com/spf13/cobra"
)

var (
	statusURL     string
	statusJSON    bool
	statusTimeout time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a running server's endpoints and jobs",
	Long:  "Fetch the summary served at the root path of a running groupmebot server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
		defer cancel()

		summary, err := fetchStatus(ctx, statusURL)
		if err != nil {
			return err
		}
		return outputStatus(cmd.OutOrStdout(), summary, statusJSON)
	},
}

// fetchStatus reads the summary of the server at baseURL
func fetchStatus(ctx context.Context, baseURL string) (router.Summary, error) {
	var summary router.Summary

	resp, err := resty.New().R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetResult(&summary).
		Get(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return summary, fmt.Errorf("failed to reach %s: %w", baseURL, err)
	}
	if resp.IsError() {
		return summary, fmt.Errorf("unexpected status from %s: %s", baseURL, resp.Status())
	}
	return summary, nil
}

func outputStatus(w io.Writer, summary router.Summary, jsonFormat bool) error {
	if jsonFormat {
		output, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(output))
		return nil
	}

	paths := make([]string, 0, len(summary.Endpoints))
	for p := range summary.Endpoints {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	fmt.Fprintln(w, "groupmebot status:")
	fmt.Fprintf(w, "  Scheduler running: %v\n", summary.SchedulerRunning)
	fmt.Fprintf(w, "\nEndpoints (%d):\n", len(paths))
	for _, p := range paths {
		fmt.Fprintf(w, "  %-20s %s\n", p, summary.Endpoints[p])
	}
	fmt.Fprintf(w, "\nJobs (%d):\n", len(summary.Jobs))
	for _, j := range summary.Jobs {
		fmt.Fprintf(w, "  - %s\n", j)
	}
	return nil
}

func init() {
	statusCmd.Flags().StringVarP(&statusURL, "url", "u", "http://127.0.0.1:8000", "Base URL of the running server")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 5*time.Second, "Request timeout")
}
