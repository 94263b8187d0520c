// Package cmd implements the meshctl command-line surface: start, stop,
// restart, restart-agent, status, list, logs, and config, each a thin
// wrapper around internal/orchestrator, internal/proctracker, and
// internal/cliclient, following the teacher's one-subcommand-per-file
// cmd/ layout and its cobra root command with injected build version.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meshctl/meshcore/internal/errs"
)

// Exit codes, per spec.md §6: "exit 0 = success, 1 = failure, 130 =
// interrupted".
const (
	ExitCodeSuccess     = 0
	ExitCodeError       = 1
	ExitCodeInterrupted = 130
)

var rootCmd = &cobra.Command{
	Use:   "meshctl",
	Short: "Control plane for a mesh of MCP agent processes",
	Long: `meshctl spawns, monitors, and discovers a fleet of MCP agent
subprocesses behind a local registry service: start it, point agent
files at it, and query it for status, capabilities, and health.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// configDirFlag overrides internal/config.DefaultConfigDir when set,
// mirroring the teacher's --config-path override on muster's own commands.
var configDirFlag string

// SetVersion sets the version reported by `meshctl --version`, injected
// from main at build time.
func SetVersion(v string) { rootCmd.Version = v }

func init() {
	rootCmd.PersistentFlags().StringVar(&configDirFlag, "config-dir", "", "override the default config/state directory (~/.config/meshcore)")
	rootCmd.SetVersionTemplate("meshctl version {{.Version}}\n")
}

// Execute runs the root command and converts any returned error into the
// appropriate process exit code. It is the sole entry point called from
// main.main.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		os.Exit(ExitCodeSuccess)
	}

	if errors.Is(err, context.Canceled) || errs.KindOf(err) == errs.Cancelled {
		fmt.Fprintln(os.Stderr, "interrupted")
		os.Exit(ExitCodeInterrupted)
	}

	fmt.Fprintln(os.Stderr, formatFailure(err))
	os.Exit(ExitCodeError)
}

// formatFailure renders an error the way §7 requires: the component, the
// affected target, and a short cause, all on one line.
func formatFailure(err error) string {
	var e *errs.Error
	if errors.As(err, &e) {
		return fmt.Sprintf("error: [%s] %s", e.Component, e.Error())
	}
	return "error: " + err.Error()
}
