package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/meshctl/meshcore/internal/config"
	"github.com/meshctl/meshcore/internal/model"
	"github.com/meshctl/meshcore/internal/orchestrator"
)

var (
	restartTimeout     int
	restartResetConfig bool
)

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the registry and every tracked agent",
	Long: `restart stops every tracked process (registry last... agents
first) and respawns each with its previously tracked command, optionally
resetting config.yaml to defaults first with --reset-config.`,
	RunE: runRestart,
}

func init() {
	rootCmd.AddCommand(restartCmd)

	restartCmd.Flags().IntVar(&restartTimeout, "timeout", 10, "seconds to wait for each graceful termination")
	restartCmd.Flags().BoolVar(&restartResetConfig, "reset-config", false, "reset config.yaml to defaults before restarting")
}

func runRestart(cmd *cobra.Command, args []string) error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	if restartResetConfig {
		cfg = config.Default()
		if err := config.Save(dir, cfg); err != nil {
			return err
		}
	}

	tracker, err := openTracker(dir)
	if err != nil {
		return err
	}
	orch := newOrchestrator(tracker, dir)

	records := tracker.All()
	var registryRec *model.ProcessRecord
	agentRecs := make([]*model.ProcessRecord, 0, len(records))
	for _, rec := range records {
		if rec.ServiceType == model.ServiceRegistry {
			registryRec = rec
			continue
		}
		agentRecs = append(agentRecs, rec)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(restartTimeout)*time.Second+10*time.Second)
	defer cancel()

	if err := orch.StopAll(ctx); err != nil {
		return err
	}

	if registryRec != nil {
		rs := &model.RegistryState{
			Host: cfg.Registry.Host, Port: cfg.Registry.Port, DatabasePath: cfg.Registry.DatabasePath,
			URL: fmt.Sprintf("http://%s:%d", cfg.Registry.Host, cfg.Registry.Port),
		}
		if err := orch.EnsureRegistryRunning(ctx, registryRec.Command, rs); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "registry restarted at %s\n", rs.URL)
	}

	for _, rec := range agentRecs {
		spec := orchestrator.AgentSpec{Name: rec.Name, Command: rec.Command}
		if _, err := orch.StartAgent(ctx, spec); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "restarted %s\n", rec.Name)
	}
	return nil
}
