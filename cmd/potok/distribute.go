package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fentz26/potok/internal/controlplane"
	"github.com/fentz26/potok/internal/report"
	"github.com/spf13/cobra"
)

var distributeCmd = &cobra.Command{
	Use:   "distribute",
	Short: "Plan pending tasks into free working time",
	RunE:  runDistribute,
}

var mitCmd = &cobra.Command{
	Use:   "mit",
	Short: "Show the Most Important Task right now",
	RunE:  runMIT,
}

var prioritizeCmd = &cobra.Command{
	Use:   "prioritize",
	Short: "Rank active tasks against the current state",
	RunE:  runPrioritize,
}

var rescheduleCmd = &cobra.Command{
	Use:   "reschedule [task-id...]",
	Short: "Propose new times for tasks that fit the current state poorly",
	RunE:  runReschedule,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent scheduling decisions",
	RunE:  runHistory,
}

var (
	outputJSON       bool
	correlationID    string
	forceRecompute   bool
	rescheduleReason string
)

func init() {
	for _, c := range []*cobra.Command{distributeCmd, mitCmd, prioritizeCmd, rescheduleCmd, historyCmd} {
		c.Flags().BoolVar(&outputJSON, "json", false, "Print the raw JSON response")
	}
	distributeCmd.Flags().StringVar(&correlationID, "correlation-id", "", "Id attached to the run and its notifications")
	prioritizeCmd.Flags().BoolVar(&forceRecompute, "force", false, "Recompute instead of using the cached ranking")
	rescheduleCmd.Flags().StringVar(&rescheduleReason, "reason", "", "Why the tasks are moved")
}

func runDistribute(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	result, err := apiClient().Distribute(cmd.Context(), userID, controlplane.DistributeRequest{CorrelationID: correlationID})
	if err != nil {
		return err
	}
	return output(result, report.Distribution(result))
}

func runMIT(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	resp, err := apiClient().MIT(cmd.Context(), userID)
	if err != nil {
		return err
	}
	return output(resp, report.MIT(resp.MIT))
}

func runPrioritize(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	c := apiClient()
	var (
		sorted *controlplane.SortedTasks
		err    error
	)
	if forceRecompute {
		sorted, err = c.Prioritize(cmd.Context(), userID)
	} else {
		sorted, err = c.SortedTasks(cmd.Context(), userID)
	}
	if err != nil {
		return err
	}
	return output(sorted, report.Prioritized(sorted.Tasks))
}

func runReschedule(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	result, err := apiClient().Reschedule(cmd.Context(), userID, controlplane.RescheduleRequest{TaskIDs: args, Reason: rescheduleReason})
	if err != nil {
		return err
	}
	return output(result, report.Rescheduled(result.Rescheduled))
}

func runHistory(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	events, err := apiClient().History(cmd.Context(), userID)
	if err != nil {
		return err
	}
	return output(events, report.History(events))
}

func output(v any, md string) error {
	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	fmt.Print(report.Render(md))
	return nil
}
