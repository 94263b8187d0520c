package cmd

import (
	"fmt"
	"os"

	"github.com/meshctl/meshcore/internal/cliclient"
	"github.com/meshctl/meshcore/internal/config"
	"github.com/meshctl/meshcore/internal/orchestrator"
	"github.com/meshctl/meshcore/internal/proctracker"
)

// resolveConfigDir returns --config-dir if set, else the default
// ~/.config/meshcore directory used by every other command.
func resolveConfigDir() (string, error) {
	if configDirFlag != "" {
		return configDirFlag, nil
	}
	return config.DefaultConfigDir()
}

// loadConfig resolves the config directory and loads config.yaml plus
// environment overrides from it.
func loadConfig() (config.Config, string, error) {
	dir, err := resolveConfigDir()
	if err != nil {
		return config.Config{}, "", err
	}
	cfg, err := config.Load(dir)
	return cfg, dir, err
}

// openTracker opens the process tracker's state file under dir.
func openTracker(dir string) (*proctracker.Tracker, error) {
	return proctracker.Open(config.StatePath(dir))
}

// newOrchestrator wires an Orchestrator over tracker, directing spawned
// process output to <dir>/logs so `meshctl logs` has somewhere to read.
func newOrchestrator(tracker *proctracker.Tracker, dir string) *orchestrator.Orchestrator {
	return orchestrator.New(tracker).WithLogDir(logDir(dir))
}

func logDir(configDir string) string {
	return configDir + string(os.PathSeparator) + "logs"
}

// registryBaseURL resolves the URL meshctl should send registry queries to:
// the live RegistryState persisted by the process tracker when valid,
// falling back to the statically configured host/port from config.yaml.
func registryBaseURL(tracker *proctracker.Tracker, cfg config.Config) string {
	if rs := tracker.RegistryState(); rs != nil {
		return rs.URL
	}
	return fmt.Sprintf("http://%s:%d", cfg.Registry.Host, cfg.Registry.Port)
}

// newRegistryClient builds a cliclient.Client pointed at the currently
// known registry.
func newRegistryClient(tracker *proctracker.Tracker, cfg config.Config) *cliclient.Client {
	return cliclient.New(registryBaseURL(tracker, cfg))
}

// selfExecutable returns the path to re-exec this same binary, used to spawn
// the registry as a subprocess of the running meshctl.
func selfExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return exe, nil
}
