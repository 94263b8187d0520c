package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/meshctl/meshcore/internal/cliclient"
	"github.com/meshctl/meshcore/internal/errs"
	"github.com/meshctl/meshcore/internal/model"
)

var (
	statusJSON    bool
	statusVerbose bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show registry health and the health of every tracked agent",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "emit machine-readable JSON instead of a table")
	statusCmd.Flags().BoolVar(&statusVerbose, "verbose", false, "include per-agent heartbeat timing detail")
}

type agentStatusRow struct {
	Record *model.ProcessRecord
	Health *cliclient.AgentHealth
	Err    error
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	tracker, err := openTracker(dir)
	if err != nil {
		return err
	}
	client := newRegistryClient(tracker, cfg)

	ctx := cmd.Context()
	svcHealth, svcErr := client.ServiceHealth(ctx)

	var rows []agentStatusRow
	for _, rec := range tracker.All() {
		if rec.ServiceType == model.ServiceRegistry {
			continue
		}
		h, herr := client.AgentHealth(ctx, rec.Name)
		rows = append(rows, agentStatusRow{Record: rec, Health: h, Err: herr})
	}

	if statusJSON {
		return printStatusJSON(cmd, svcHealth, svcErr, rows)
	}

	out := cmd.OutOrStdout()
	if svcErr != nil {
		fmt.Fprintf(out, "registry: unreachable (%s)\n\n", svcErr)
	} else {
		fmt.Fprintf(out, "registry: %s (%d agents, %d watchers)\n\n", svcHealth.Status, svcHealth.Agents, svcHealth.Watchers)
	}
	fmt.Fprintln(out, renderStatusTable(rows, statusVerbose))
	return nil
}

func renderStatusTable(rows []agentStatusRow, verbose bool) string {
	t := newMeshTable()
	header := table.Row{text.FgHiCyan.Sprint("NAME"), text.FgHiCyan.Sprint("PID"), text.FgHiCyan.Sprint("STATUS")}
	if verbose {
		header = append(header, text.FgHiCyan.Sprint("LAST HEARTBEAT"), text.FgHiCyan.Sprint("TIME SINCE"), text.FgHiCyan.Sprint("DETAIL"))
	}
	t.AppendHeader(header)

	for _, r := range rows {
		if r.Err != nil {
			row := table.Row{r.Record.Name, r.Record.PID, text.FgHiRed.Sprint(errs.KindOf(r.Err))}
			if verbose {
				row = append(row, "-", "-", r.Err.Error())
			}
			t.AppendRow(row)
			continue
		}
		row := table.Row{r.Record.Name, r.Record.PID, formatHealthStatusString(r.Health.Status)}
		if verbose {
			hb := "-"
			if r.Health.LastHeartbeat != nil {
				hb = *r.Health.LastHeartbeat
			}
			row = append(row, hb, fmt.Sprintf("%.0fs", r.Health.TimeSinceHeartbeat), r.Health.Message)
		}
		t.AppendRow(row)
	}
	return t.Render()
}

func formatHealthStatusString(s string) string {
	switch s {
	case "healthy":
		return text.FgHiGreen.Sprint(s)
	case "pending":
		return text.FgHiYellow.Sprint(s)
	case "degraded":
		return text.FgYellow.Sprint(s)
	case "expired", "offline":
		return text.FgHiRed.Sprint(s)
	default:
		return s
	}
}

func printStatusJSON(cmd *cobra.Command, svcHealth *cliclient.ServiceHealth, svcErr error, rows []agentStatusRow) error {
	type agentOut struct {
		Name   string                  `json:"name"`
		PID    int                     `json:"pid"`
		Health *cliclient.AgentHealth  `json:"health,omitempty"`
		Error  string                  `json:"error,omitempty"`
	}
	payload := struct {
		Registry      *cliclient.ServiceHealth `json:"registry,omitempty"`
		RegistryError string                   `json:"registry_error,omitempty"`
		Agents        []agentOut               `json:"agents"`
	}{Registry: svcHealth}
	if svcErr != nil {
		payload.RegistryError = svcErr.Error()
	}
	for _, r := range rows {
		ao := agentOut{Name: r.Record.Name, PID: r.Record.PID, Health: r.Health}
		if r.Err != nil {
			ao.Error = r.Err.Error()
		}
		payload.Agents = append(payload.Agents, ao)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
