package cli

import (
	"github.com/spf13/cobra"
)

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "Inspect and replay failed event deliveries",
}

var failuresListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded delivery failures, newest first",
	Args:  cobra.NoArgs,
	RunE:  runFailuresList,
}

var failuresReplayCmd = &cobra.Command{
	Use:   "replay <failure-id>",
	Short: "Redeliver a failed event to the subscriber that failed it",
	Args:  cobra.ExactArgs(1),
	RunE:  runFailuresReplay,
}

var failuresLimit int

func init() {
	failuresListCmd.Flags().IntVarP(&failuresLimit, "limit", "n", 50, "maximum failures to show")
	failuresCmd.AddCommand(failuresListCmd, failuresReplayCmd)
	rootCmd.AddCommand(failuresCmd)
}

func runFailuresList(cmd *cobra.Command, _ []string) error {
	out, err := invoke(cmd, "failures", "list", userID, map[string]any{"limit": failuresLimit})
	if err != nil {
		return err
	}
	recorded, _ := out["failures"].([]map[string]any)
	if len(recorded) == 0 {
		cmd.Println("No delivery failures")
		return nil
	}
	for _, f := range recorded {
		cmd.Printf("%v\n", f["id"])
		cmd.Printf("  %v -> %v at %v\n", f["event_type"], f["subscriber"], f["failed_at"])
		cmd.Printf("  %v\n", f["error"])
	}
	return nil
}

func runFailuresReplay(cmd *cobra.Command, args []string) error {
	if _, err := invoke(cmd, "failures", "replay", userID, map[string]any{"failure_id": args[0]}); err != nil {
		return err
	}
	cmd.Printf("Replayed %s\n", args[0])
	return nil
}
