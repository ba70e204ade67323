package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bsakel/denbot/internal/task"
)

var (
	tasksGroup string
	tasksRuns  string
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect scheduled tasks and their run history",
	RunE:  runTasks,
}

func init() {
	tasksCmd.Flags().StringVarP(&tasksGroup, "group", "g", "home", "Group name")
	tasksCmd.Flags().StringVar(&tasksRuns, "runs", "", "Show run history for a task id")
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.close()
	ctx := context.Background()

	if tasksRuns != "" {
		return printRuns(ctx, rt.store, tasksRuns)
	}

	tasks, err := rt.store.ListByGroup(ctx, tasksGroup)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Printf("No tasks for group %q.\n", tasksGroup)
		return nil
	}
	for _, t := range tasks {
		fmt.Printf("%s  [%s]  %-10s %s\n", t.ID, t.Status, t.Kind, t.Name)
		if t.NextRunAt != nil {
			fmt.Printf("    next: %s\n", t.NextRunAt.Local().Format(time.RFC1123))
		}
		if t.LastRunAt != nil {
			fmt.Printf("    last: %s\n", t.LastRunAt.Local().Format(time.RFC1123))
		}
	}
	return nil
}

func printRuns(ctx context.Context, store task.Store, id string) error {
	runs, err := store.Runs(ctx, id, 20)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Printf("No runs recorded for task %s.\n", id)
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s  %-8s  %s\n", r.StartedAt.Local().Format(time.RFC3339), r.Status, r.Duration.Round(time.Millisecond))
		if r.Error != "" {
			fmt.Printf("    error: %s\n", r.Error)
		}
	}
	return nil
}
