package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Show background task state",
	Args:  cobra.NoArgs,
	RunE:  runTasksList,
}

var tasksHistoryCmd = &cobra.Command{
	Use:   "history <task-id>",
	Short: "Show recent runs of a background task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksHistory,
}

var tasksLimit int

func init() {
	tasksHistoryCmd.Flags().IntVarP(&tasksLimit, "limit", "n", 20, "maximum runs to show")
	tasksCmd.AddCommand(tasksHistoryCmd)
	rootCmd.AddCommand(tasksCmd)
}

func runTasksList(cmd *cobra.Command, _ []string) error {
	out, err := invoke(cmd, "tasks", "list", userID, nil)
	if err != nil {
		return err
	}
	list, _ := out["tasks"].([]map[string]any)
	if len(list) == 0 {
		cmd.Println("No scheduled tasks; run serve with the scheduler enabled")
		return nil
	}
	for _, t := range list {
		state := styleOK.Render("enabled")
		if enabled, _ := t["enabled"].(bool); !enabled {
			state = styleWarn.Render("disabled")
		}
		cmd.Printf("%s  every %v  %s\n", styleHeading.Render(fmt.Sprint(t["id"])), t["interval"], state)
		if v, ok := t["next_run"]; ok {
			cmd.Printf("  next run: %v\n", v)
		}
		if v, ok := t["last_error"]; ok {
			cmd.Printf("  last error: %s\n", styleFail.Render(fmt.Sprint(v)))
		}
	}
	return nil
}

func runTasksHistory(cmd *cobra.Command, args []string) error {
	out, err := invoke(cmd, "tasks", "history", userID, map[string]any{"task_id": args[0], "limit": tasksLimit})
	if err != nil {
		return err
	}
	runs, _ := out["runs"].([]map[string]any)
	if len(runs) == 0 {
		cmd.Printf("No runs recorded for %s\n", args[0])
		return nil
	}
	for _, r := range runs {
		mark := styleOK.Render("ok  ")
		if success, _ := r["success"].(bool); !success {
			mark = styleFail.Render("fail")
		}
		cmd.Printf("%s %v  %v items in %v", mark, r["started_at"], r["items"], r["took"])
		if e, ok := r["error"]; ok {
			cmd.Printf("  %v", e)
		}
		cmd.Println()
	}
	return nil
}
