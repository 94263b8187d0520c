package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/meshctl/meshcore/internal/errs"
	"github.com/meshctl/meshcore/internal/model"
	"github.com/meshctl/meshcore/internal/orchestrator"
)

var (
	startRegistryOnly    bool
	startBackground      bool
	startRegistryHost    string
	startRegistryPort    int
	startDBPath          string
	startLogLevel        string
	startDebug           bool
	startStartupTimeout  int
)

var startCmd = &cobra.Command{
	Use:   "start [agent_files...]",
	Short: "Start the registry, and optionally one or more agent processes",
	Long: `start ensures a registry is running, then spawns each named agent
file as a subprocess pointed at it via the MCP_MESH_REGISTRY_* environment
variables. Pass --registry-only to only bring up the registry.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().BoolVar(&startRegistryOnly, "registry-only", false, "only start the registry, do not spawn any agents")
	startCmd.Flags().BoolVar(&startBackground, "background", true, "leave spawned processes running after meshctl exits")
	startCmd.Flags().StringVar(&startRegistryHost, "registry-host", "localhost", "registry listen host")
	startCmd.Flags().IntVar(&startRegistryPort, "registry-port", 8080, "registry listen port")
	startCmd.Flags().StringVar(&startDBPath, "db-path", "", "embedded database path (defaults to <config-dir>/meshcore.db)")
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "info", "log level for spawned processes")
	startCmd.Flags().BoolVar(&startDebug, "debug", false, "enable MCP_MESH_DEBUG for spawned agents")
	startCmd.Flags().IntVar(&startStartupTimeout, "startup-timeout", 30, "seconds to wait for the registry to accept connections")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	tracker, err := openTracker(dir)
	if err != nil {
		return err
	}

	host := cfg.Registry.Host
	if cmd.Flags().Changed("registry-host") {
		host = startRegistryHost
	}
	port := cfg.Registry.Port
	if cmd.Flags().Changed("registry-port") {
		port = startRegistryPort
	}
	dbPath := cfg.Registry.DatabasePath
	if cmd.Flags().Changed("db-path") {
		dbPath = startDBPath
	}
	if dbPath == "" {
		dbPath = filepath.Join(dir, "meshcore.db")
	}

	exe, err := selfExecutable()
	if err != nil {
		return errs.Wrap(errs.StartupFailure, "CLI", "registry", err)
	}

	registryCmd := []string{
		exe, "__serve-registry",
		"--host", host,
		"--port", strconv.Itoa(port),
		"--db-path", dbPath,
		"--log-level", startLogLevel,
		"--redis-addr", cfg.Registry.RedisAddr,
		"--cache-ttl-seconds", strconv.Itoa(firstNonZero(cfg.Registry.CacheTTLSecs, 30)),
	}
	rs := &model.RegistryState{
		URL: fmt.Sprintf("http://%s:%d", host, port), Host: host, Port: port, DatabasePath: dbPath,
	}

	orch := newOrchestrator(tracker, dir)
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(startStartupTimeout)*time.Second)
	defer cancel()

	if err := orch.EnsureRegistryRunning(ctx, registryCmd, rs); err != nil {
		return err
	}
	client := newRegistryClient(tracker, cfg)
	for {
		if _, err := client.ServiceHealth(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return errs.Wrap(errs.RegistryTimeout, "CLI", rs.URL, ctx.Err())
		case <-time.After(200 * time.Millisecond):
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "registry running at %s\n", rs.URL)
	orch.ReapOrphans()

	if startRegistryOnly || len(args) == 0 {
		return nil
	}

	specs := make([]orchestrator.AgentSpec, 0, len(args))
	for _, file := range args {
		command, err := agentCommand(file)
		if err != nil {
			return err
		}
		specs = append(specs, orchestrator.AgentSpec{
			Name:    agentName(file),
			Command: command,
			Env:     agentEnv(rs, startLogLevel, startDebug),
		})
	}

	started, err := orch.StartMany(cmd.Context(), specs)
	for _, rec := range started {
		fmt.Fprintf(cmd.OutOrStdout(), "started %s (pid %d)\n", rec.Name, rec.PID)
	}
	return err
}

// agentEnv builds the MCP_MESH_* environment variables injected into every
// spawned agent, per spec.md §6.
func agentEnv(rs *model.RegistryState, logLevel string, debug bool) map[string]string {
	debugVal := "0"
	if debug {
		debugVal = "1"
	}
	return map[string]string{
		"MCP_MESH_REGISTRY_URL":  rs.URL,
		"MCP_MESH_REGISTRY_HOST": rs.Host,
		"MCP_MESH_REGISTRY_PORT": strconv.Itoa(rs.Port),
		"MCP_MESH_DATABASE_URL":  rs.DatabasePath,
		"MCP_MESH_DEBUG":         debugVal,
		"MCP_MESH_LOG_LEVEL":     logLevel,
		"MCP_MESH_AUTO_PROCESS":  "true",
		"MCP_MESH_AUTO_ENHANCE":  "true",
	}
}

// agentCommand validates file per the spawn contract (§4.9 step 1: exists,
// readable, expected extension) and picks the interpreter for it.
func agentCommand(file string) ([]string, error) {
	info, err := os.Stat(file)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidInput, "Orchestrator", file, err)
	}
	if info.IsDir() {
		return nil, errs.New(errs.InvalidInput, "Orchestrator", file+": is a directory")
	}
	if f, err := os.Open(file); err != nil {
		return nil, errs.Wrap(errs.InvalidInput, "Orchestrator", file, err)
	} else {
		f.Close()
	}

	switch filepath.Ext(file) {
	case ".py":
		return []string{"python3", file}, nil
	case ".js":
		return []string{"node", file}, nil
	case "":
		if info.Mode()&0o111 != 0 {
			if abs, err := filepath.Abs(file); err == nil {
				return []string{abs}, nil
			}
			return []string{file}, nil
		}
		return nil, errs.New(errs.InvalidInput, "Orchestrator", file+": agent file must have a recognized extension or be directly executable")
	default:
		abs, err := filepath.Abs(file)
		if err != nil {
			abs = file
		}
		return []string{abs}, nil
	}
}

func agentName(file string) string {
	base := filepath.Base(file)
	return base[:len(base)-len(filepath.Ext(base))]
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
