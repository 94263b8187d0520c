package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/meshctl/meshcore/internal/model"
)

var (
	listAgents   bool
	listServices bool
	listFilter   string
	listJSON     bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked agents and/or processes",
	Long: `list shows registered agents (queried from the running registry)
and tracked processes (read from the local process tracker state). With
neither --agents nor --services, both are shown.`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolVar(&listAgents, "agents", false, "list registered agents only")
	listCmd.Flags().BoolVar(&listServices, "services", false, "list tracked processes only")
	listCmd.Flags().StringVar(&listFilter, "filter", "", "only show names containing this substring")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "emit machine-readable JSON instead of a table")
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	tracker, err := openTracker(dir)
	if err != nil {
		return err
	}

	showAgents, showServices := listAgents, listServices
	if !showAgents && !showServices {
		showAgents, showServices = true, true
	}

	var agents []*model.AgentRegistration
	if showAgents {
		client := newRegistryClient(tracker, cfg)
		agents, err = client.ListAgents(cmd.Context(), map[string]string{"name": listFilter})
		if err != nil {
			return err
		}
		agents = filterAgents(agents, listFilter)
	}

	var procs []*model.ProcessRecord
	if showServices {
		procs = filterProcesses(tracker.All(), listFilter)
	}

	if listJSON {
		return printListJSON(cmd, agents, procs)
	}

	out := cmd.OutOrStdout()
	if showAgents {
		fmt.Fprintln(out, renderAgentTable(agents))
	}
	if showServices {
		fmt.Fprintln(out, renderProcessTable(procs))
	}
	return nil
}

func filterAgents(agents []*model.AgentRegistration, filter string) []*model.AgentRegistration {
	if filter == "" {
		return agents
	}
	out := make([]*model.AgentRegistration, 0, len(agents))
	for _, a := range agents {
		if strings.Contains(a.Name, filter) {
			out = append(out, a)
		}
	}
	return out
}

func filterProcesses(procs []*model.ProcessRecord, filter string) []*model.ProcessRecord {
	if filter == "" {
		return procs
	}
	out := make([]*model.ProcessRecord, 0, len(procs))
	for _, p := range procs {
		if strings.Contains(p.Name, filter) {
			out = append(out, p)
		}
	}
	return out
}

func printListJSON(cmd *cobra.Command, agents []*model.AgentRegistration, procs []*model.ProcessRecord) error {
	payload := struct {
		Agents    []*model.AgentRegistration `json:"agents,omitempty"`
		Processes []*model.ProcessRecord     `json:"processes,omitempty"`
	}{Agents: agents, Processes: procs}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func newMeshTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

func renderAgentTable(agents []*model.AgentRegistration) string {
	t := newMeshTable()
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("NAME"), text.FgHiCyan.Sprint("NAMESPACE"),
		text.FgHiCyan.Sprint("STATUS"), text.FgHiCyan.Sprint("ENDPOINT"),
		text.FgHiCyan.Sprint("CAPABILITIES"),
	})
	for _, a := range agents {
		t.AppendRow(table.Row{a.Name, a.Namespace, formatAgentStatus(a.Status), a.Endpoint, strings.Join(a.CapabilityNames(), ", ")})
	}
	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d agents", len(agents))})
	return t.Render()
}

func renderProcessTable(procs []*model.ProcessRecord) string {
	t := newMeshTable()
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("NAME"), text.FgHiCyan.Sprint("PID"),
		text.FgHiCyan.Sprint("TYPE"), text.FgHiCyan.Sprint("HEALTH"),
		text.FgHiCyan.Sprint("STARTED"),
	})
	for _, p := range procs {
		t.AppendRow(table.Row{p.Name, p.PID, string(p.ServiceType), formatProcessHealth(p.LastHealth), p.StartedAt.Format("2006-01-02 15:04:05")})
	}
	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d processes", len(procs))})
	return t.Render()
}

func formatAgentStatus(s model.AgentStatus) string {
	switch s {
	case model.StatusHealthy:
		return text.FgHiGreen.Sprint(s)
	case model.StatusPending:
		return text.FgHiYellow.Sprint(s)
	case model.StatusDegraded:
		return text.FgYellow.Sprint(s)
	case model.StatusExpired, model.StatusOffline:
		return text.FgHiRed.Sprint(s)
	default:
		return string(s)
	}
}

func formatProcessHealth(h model.HealthState) string {
	switch h {
	case model.ProcessHealthRunning:
		return text.FgHiGreen.Sprint(h)
	case model.ProcessHealthUnhealthy:
		return text.FgYellow.Sprint(h)
	case model.ProcessHealthDead:
		return text.FgHiRed.Sprint(h)
	default:
		return string(h)
	}
}
