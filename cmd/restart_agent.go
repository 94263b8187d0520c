package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/meshctl/meshcore/internal/errs"
	"github.com/meshctl/meshcore/internal/orchestrator"
)

var restartAgentTimeout int

var restartAgentCmd = &cobra.Command{
	Use:   "restart-agent NAME",
	Short: "Restart a single tracked agent and wait for it to re-register",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestartAgent,
}

func init() {
	rootCmd.AddCommand(restartAgentCmd)
	restartAgentCmd.Flags().IntVar(&restartAgentTimeout, "timeout", 15, "seconds to wait for the agent to re-register after restart")
}

func runRestartAgent(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	tracker, err := openTracker(dir)
	if err != nil {
		return err
	}
	rec, err := tracker.Get(name)
	if err != nil {
		return err
	}

	orch := newOrchestrator(tracker, dir)
	client := newRegistryClient(tracker, cfg)

	timeout := time.Duration(restartAgentTimeout) * time.Second
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout+10*time.Second)
	defer cancel()

	check := orchestrator.RegistrationChecker(func(ctx context.Context, agentName string) (bool, error) {
		health, err := client.AgentHealth(ctx, agentName)
		if err != nil {
			if errs.KindOf(err) == errs.NotFound {
				return false, nil
			}
			return false, err
		}
		return health.Status == "healthy" || health.Status == "pending", nil
	})

	spec := orchestrator.AgentSpec{Name: rec.Name, Command: rec.Command}
	if _, err := orch.RestartAgentWithRegistrationWait(ctx, spec, check, timeout); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "restarted %s\n", name)
	return nil
}
