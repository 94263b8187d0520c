// Package orchestrator implements the Lifecycle Orchestrator (C9): the
// component that actually spawns, tracks, and tears down agent
// subprocesses and the registry process itself, using the process tracker
// (C7) for bookkeeping and the process tree controller (C8) for spawn and
// termination mechanics.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/meshctl/meshcore/internal/errs"
	"github.com/meshctl/meshcore/internal/model"
	"github.com/meshctl/meshcore/internal/proctracker"
	"github.com/meshctl/meshcore/internal/proctree"
	"github.com/meshctl/meshcore/pkg/logging"
)

const component = "Orchestrator"

// settleDelay is how long a freshly spawned process is given to exit on
// its own (e.g. because of a missing dependency or bad arguments) before
// the orchestrator considers startup successful.
const settleDelay = 500 * time.Millisecond

// AgentSpec describes one agent process to spawn.
type AgentSpec struct {
	Name         string
	Command      []string
	Env          map[string]string
	Dependencies []string
}

// RegistrationChecker reports whether name has appeared in the registry,
// used by RestartAgentWithRegistrationWait to confirm a restarted agent
// actually completed its self-registration pipeline rather than merely
// staying alive.
type RegistrationChecker func(ctx context.Context, name string) (bool, error)

// Orchestrator spawns and tears down the registry and agent processes,
// recording every one through a Tracker.
type Orchestrator struct {
	tracker *proctracker.Tracker
	logDir  string
}

// New builds an Orchestrator backed by tracker.
func New(tracker *proctracker.Tracker) *Orchestrator {
	return &Orchestrator{tracker: tracker}
}

// WithLogDir directs every spawned process's stdout/stderr to
// <dir>/<name>.log instead of the controller's own, so the CLI's logs
// command has something to tail per agent. Returns the receiver for
// chaining after New.
func (o *Orchestrator) WithLogDir(dir string) *Orchestrator {
	o.logDir = dir
	return o
}

// EnsureRegistryRunning starts the registry process described by cmd unless
// a live registry is already tracked, and records its connection details.
func (o *Orchestrator) EnsureRegistryRunning(ctx context.Context, cmd []string, rs *model.RegistryState) error {
	if existing := o.tracker.RegistryState(); existing != nil {
		if rec, err := o.tracker.Get("registry"); err == nil && processAlive(rec) {
			logging.Info(component, "registry already running at %s", existing.URL)
			return nil
		}
	}

	if _, err := o.spawn(ctx, AgentSpec{Name: "registry", Command: cmd}, model.ServiceRegistry); err != nil {
		return err
	}
	return o.tracker.SetRegistryState(rs)
}

// StartAgent spawns one agent process and tracks it. It returns an error if
// the process exits within settleDelay, since that almost always means a
// misconfiguration rather than a transient failure.
func (o *Orchestrator) StartAgent(ctx context.Context, spec AgentSpec) (*model.ProcessRecord, error) {
	if missing, ok := o.tracker.DependencySatisfied(spec.Dependencies); !ok {
		return nil, errs.New(errs.StartupFailure, component,
			fmt.Sprintf("agent %s depends on %s, which is not running", spec.Name, missing))
	}
	return o.spawn(ctx, spec, model.ServiceAgent)
}

// StartMany starts every spec in order, stopping at the first failure and
// returning the records started so far alongside the error so the caller
// can decide whether to roll them back.
func (o *Orchestrator) StartMany(ctx context.Context, specs []AgentSpec) ([]*model.ProcessRecord, error) {
	started := make([]*model.ProcessRecord, 0, len(specs))
	for _, spec := range specs {
		rec, err := o.StartAgent(ctx, spec)
		if err != nil {
			return started, err
		}
		started = append(started, rec)
	}
	return started, nil
}

func (o *Orchestrator) spawn(ctx context.Context, spec AgentSpec, serviceType model.ServiceType) (*model.ProcessRecord, error) {
	if len(spec.Command) == 0 {
		return nil, errs.New(errs.InvalidInput, component, spec.Name+": empty command")
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Env = mergeEnv(os.Environ(), spec.Env)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if o.logDir != "" {
		logFile, err := o.openLogFile(spec.Name)
		if err != nil {
			return nil, errs.Wrap(errs.StartupFailure, component, spec.Name, err)
		}
		defer logFile.Close()
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := proctree.Spawn(cmd); err != nil {
		return nil, err
	}

	rec := &model.ProcessRecord{
		Name: spec.Name, PID: cmd.Process.Pid, Command: spec.Command,
		ServiceType: serviceType, StartedAt: time.Now().UTC(),
		Metadata: map[string]string{"dependencies": fmt.Sprint(spec.Dependencies)},
	}

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	select {
	case err := <-exited:
		return nil, errs.Wrap(errs.StartupFailure, component, spec.Name,
			fmt.Errorf("process exited during settle period: %w", err))
	case <-time.After(settleDelay):
	}

	if err := o.tracker.Track(rec); err != nil {
		return nil, err
	}
	logging.Info(component, "started %s (pid %d)", spec.Name, rec.PID)
	return rec, nil
}

// StopAgent terminates and untracks a single process.
func (o *Orchestrator) StopAgent(ctx context.Context, name string) error {
	rec, err := o.tracker.Get(name)
	if err != nil {
		return err
	}
	if err := proctree.Terminate(ctx, rec.PID); err != nil {
		return err
	}
	if err := o.tracker.Untrack(name); err != nil {
		return err
	}
	if rec.ServiceType == model.ServiceRegistry {
		return o.tracker.ClearRegistryState()
	}
	return nil
}

// StopAll terminates and untracks every process the tracker knows about,
// then reaps any untracked descendant left over from a crashed controller.
func (o *Orchestrator) StopAll(ctx context.Context) error {
	var firstErr error
	records := o.tracker.All()
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ServiceType != model.ServiceRegistry && records[j].ServiceType == model.ServiceRegistry
	})
	for _, rec := range records {
		if err := o.StopAgent(ctx, rec.Name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	o.ReapOrphans()
	return firstErr
}

// ReapOrphans finds descendants of the controller process that the tracker
// doesn't know about but whose command line matches the mesh's process
// signatures (§4.8), and terminates them. It is best-effort: a platform
// error walking the process tree simply yields no pids and is neither
// logged nor returned; a failure terminating an orphan is logged.
func (o *Orchestrator) ReapOrphans() []int {
	known := make(map[int]struct{})
	for _, rec := range o.tracker.All() {
		known[rec.PID] = struct{}{}
	}
	reaped := proctree.CleanupOrphaned(context.Background(), known)
	if len(reaped) > 0 {
		logging.Warn(component, "reaped %d orphaned process(es) untracked by the controller: %v", len(reaped), reaped)
	}
	return reaped
}

// RestartAgent stops spec.Name if it is tracked, then starts it again. The
// tracked command is reused when spec.Command is empty; the environment
// comes from spec.Env only, since the tracker does not record it.
func (o *Orchestrator) RestartAgent(ctx context.Context, spec AgentSpec) (*model.ProcessRecord, error) {
	if rec, err := o.tracker.Get(spec.Name); err == nil {
		if len(spec.Command) == 0 {
			spec.Command = rec.Command
		}
		if err := o.StopAgent(ctx, spec.Name); err != nil {
			return nil, err
		}
	}
	return o.StartAgent(ctx, spec)
}

// RestartAgentWithRegistrationWait restarts an agent and then polls check
// until the agent reappears in the registry or timeout elapses.
func (o *Orchestrator) RestartAgentWithRegistrationWait(ctx context.Context, spec AgentSpec, check RegistrationChecker, timeout time.Duration) (*model.ProcessRecord, error) {
	rec, err := o.RestartAgent(ctx, spec)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		registered, err := check(ctx, spec.Name)
		if err != nil {
			return rec, errs.Wrap(errs.RegistryConnection, component, spec.Name, err)
		}
		if registered {
			return rec, nil
		}
		select {
		case <-ctx.Done():
			return rec, errs.Wrap(errs.Cancelled, component, spec.Name, ctx.Err())
		case <-time.After(200 * time.Millisecond):
		}
	}
	return rec, errs.New(errs.RegistryTimeout, component,
		fmt.Sprintf("%s restarted but did not re-register within %s", spec.Name, timeout))
}

// LogPath returns the path a spawned agent's output is captured to, or ""
// if WithLogDir was never called.
func (o *Orchestrator) LogPath(name string) string {
	if o.logDir == "" {
		return ""
	}
	return filepath.Join(o.logDir, name+".log")
}

func (o *Orchestrator) openLogFile(name string) (*os.File, error) {
	if err := os.MkdirAll(o.logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", o.logDir, err)
	}
	return os.OpenFile(o.LogPath(name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func processAlive(rec *model.ProcessRecord) bool {
	return rec != nil && rec.LastHealth != model.ProcessHealthDead
}

func mergeEnv(base []string, overrides map[string]string) []string {
	out := append([]string(nil), base...)
	for k, v := range overrides {
		out = append(out, k+"="+v)
	}
	return out
}
