package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a single sync pass",
	Long: `Run one pass over the queue in the foreground and print its summary.
Offline devices exit without contacting the remote API.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if state := application.Monitor().Status(ctx); !state.Online() {
		return fmt.Errorf("device is offline")
	}

	result := application.Engine().ProcessQueue(ctx)
	if result.Err != nil {
		return fmt.Errorf("sync pass: %w", result.Err)
	}
	if result.Skipped {
		fmt.Fprintln(cmd.OutOrStdout(), "Another pass is running.")
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"Processed: %d\nSucceeded: %d\nFailed:    %d\nDropped:   %d\nDeferred:  %d\n",
		result.Processed, result.Succeeded, result.Failed, result.Dropped, result.Deferred)
	return nil
}
