// Package commands implements the rangingctl CLI commands.
package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// client is the introspection API client, initialized in PersistentPreRunE.
	client *apiClient

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// serverAddr is the daemon's introspection API address (host:port).
	serverAddr string
)

// rootCmd is the top-level cobra command for rangingctl.
var rootCmd = &cobra.Command{
	Use:   "rangingctl",
	Short: "CLI client for the rangingd daemon",
	Long:  "rangingctl queries the rangingd daemon's JSON introspection API to inspect ranging sessions.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		client = newAPIClient("http://"+serverAddr, &http.Client{Timeout: 10 * time.Second})
		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:7001",
		"rangingd introspection API address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
