package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/bissquit/inspection-sync/internal/domain"
	"github.com/bissquit/inspection-sync/internal/pkg/httputil"
	"github.com/spf13/cobra"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <inspection.json>",
	Short: "Queue an inspection for submission",
	Long: `Queue an inspection read from a JSON file ("-" reads stdin). When the
device is online a sync pass runs before the command returns.

Examples:
  inspection-sync enqueue vistoria.json
  cat vistoria.json | inspection-sync enqueue -`,
	Args: cobra.ExactArgs(1),
	RunE: runEnqueue,
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List queued inspections",
	Args:  cobra.NoArgs,
	RunE:  runPending,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue counters",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var clearForce bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every queued inspection, attempt and claim",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

func init() {
	clearCmd.Flags().BoolVarP(&clearForce, "force", "f", false, "do not ask for confirmation")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	in := cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open inspection: %w", err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	var insp domain.Inspection
	if err := json.NewDecoder(in).Decode(&insp); err != nil {
		return fmt.Errorf("decode inspection: %w", err)
	}
	if err := httputil.NewValidator().Struct(&insp); err != nil {
		return fmt.Errorf("invalid inspection: %w", err)
	}

	id, err := application.Engine().Enqueue(cmd.Context(), &insp)
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Queued %s\n", id)
	return nil
}

func runPending(cmd *cobra.Command, args []string) error {
	items, err := application.Engine().PendingItems(cmd.Context())
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "No pending inspections.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tFLEET\tATTEMPTS\tRETRY\tCREATED")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\t%s\n",
			item.ID, item.Name, item.Fleet, item.Attempts, item.CanRetry,
			item.CreatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := application.Engine().QueueStatus(cmd.Context())
	if err != nil {
		return fmt.Errorf("queue status: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pending: %d\nTotal:   %d\n", st.Pending, st.Total)
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	if !clearForce {
		return fmt.Errorf("refusing to clear the queue without --force")
	}
	if err := application.Engine().Clear(cmd.Context()); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Queue cleared.")
	return nil
}
