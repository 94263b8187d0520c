package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/meshctl/meshcore/internal/errs"
	"github.com/meshctl/meshcore/internal/model"
)

var (
	stopAgent   string
	stopForce   bool
	stopTimeout int
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop one agent, or every tracked process",
	Long: `stop terminates a single tracked process (--agent NAME) or, with no
--agent, every process the controller has tracked -- agents first, the
registry last -- summarizing how many stopped cleanly and how many had
issues, per spec.md §7.`,
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)

	stopCmd.Flags().StringVar(&stopAgent, "agent", "", "stop only this tracked process")
	stopCmd.Flags().BoolVar(&stopForce, "force", false, "skip the graceful phase and terminate the process tree immediately")
	stopCmd.Flags().IntVar(&stopTimeout, "timeout", 10, "deadline in seconds (plus 5) for the whole stop; each process is sent SIGTERM and killed if still running after a fixed 5s grace period")
}

func runStop(cmd *cobra.Command, args []string) error {
	_, dir, err := loadConfig()
	if err != nil {
		return err
	}
	tracker, err := openTracker(dir)
	if err != nil {
		return err
	}
	orch := newOrchestrator(tracker, dir)

	timeout := time.Duration(stopTimeout) * time.Second
	if stopForce {
		timeout = 0
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout+5*time.Second)
	defer cancel()

	if stopAgent != "" {
		if err := orch.StopAgent(ctx, stopAgent); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stopped %s\n", stopAgent)
		return nil
	}

	stopped, issues := 0, 0
	var firstErr error
	records := tracker.All()
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ServiceType != model.ServiceRegistry && records[j].ServiceType == model.ServiceRegistry
	})
	for _, rec := range records {
		if err := orch.StopAgent(ctx, rec.Name); err != nil {
			issues++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		stopped++
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d stopped, %d had issues\n", stopped, issues)
	if issues > 0 {
		return errs.Wrap(errs.TerminationFailure, "CLI", "stop", firstErr)
	}
	return nil
}
