// Package proctracker implements the Process Tracker (C7): a JSON state
// file recording every subprocess the controller has spawned, independent
// of the registry's own view of agent health. It answers "what did I start
// and is it still alive" even after the controller process restarts.
package proctracker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/meshctl/meshcore/internal/errs"
	"github.com/meshctl/meshcore/internal/model"
	"github.com/meshctl/meshcore/pkg/logging"
)

const component = "ProcessTracker"

// state is the on-disk shape of the tracker's JSON file.
type state struct {
	Processes map[string]*model.ProcessRecord `json:"processes"`
	Registry  *model.RegistryState            `json:"registry,omitempty"`
}

// Tracker owns one state file on disk plus an in-memory mirror of it,
// guarded by a mutex so concurrent calls within one process never race on
// it. Separate processes opening the same file are not coordinated.
type Tracker struct {
	mu   sync.Mutex
	path string
	st   state
}

// Open loads path if it exists, or starts from an empty state. Every
// mutating method persists back to path before returning.
func Open(path string) (*Tracker, error) {
	t := &Tracker{path: path, st: state{Processes: make(map[string]*model.ProcessRecord)}}

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return t, nil
	case err != nil:
		return nil, errs.Wrap(errs.StoreFailure, component, path, err)
	}

	if err := json.Unmarshal(raw, &t.st); err != nil {
		return nil, errs.Wrap(errs.StoreFailure, component, path, err)
	}
	if t.st.Processes == nil {
		t.st.Processes = make(map[string]*model.ProcessRecord)
	}

	t.validateLiveness()
	return t, nil
}

// validateLiveness drops any record whose pid is no longer running, so a
// reload after a crash doesn't report a stale process as alive. Per §3, a
// RegistryState is only valid while its "registry" ProcessRecord is live;
// if that record is missing or was just dropped, the RegistryState is
// cleared too.
func (t *Tracker) validateLiveness() {
	registryLive := false
	for name, rec := range t.st.Processes {
		if !pidAlive(rec.PID) {
			delete(t.st.Processes, name)
			continue
		}
		if rec.ServiceType == model.ServiceRegistry {
			registryLive = true
		}
	}
	if !registryLive {
		t.st.Registry = nil
	}
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	return err == nil && exists
}

func (t *Tracker) save() error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return errs.Wrap(errs.StoreFailure, component, t.path, err)
	}
	raw, err := json.MarshalIndent(t.st, "", "  ")
	if err != nil {
		return errs.Wrap(errs.StoreFailure, component, t.path, err)
	}
	if err := os.WriteFile(t.path, raw, 0o644); err != nil {
		return errs.Wrap(errs.StoreFailure, component, t.path, err)
	}
	return nil
}

// Track records a newly spawned process.
func (t *Tracker) Track(rec *model.ProcessRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec = rec.Clone()
	rec.LastHealth = model.ProcessHealthRunning
	rec.LastHealthAt = time.Now().UTC()
	t.st.Processes[rec.Name] = rec

	logging.Info(component, "tracking %s (pid %d, type %s)", rec.Name, rec.PID, rec.ServiceType)
	return t.save()
}

// Untrack removes a process record, e.g. after a clean stop.
func (t *Tracker) Untrack(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.st.Processes[name]; !ok {
		return errs.New(errs.NotFound, component, name)
	}
	delete(t.st.Processes, name)
	return t.save()
}

// Get returns a single tracked process record.
func (t *Tracker) Get(name string) (*model.ProcessRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.st.Processes[name]
	if !ok {
		return nil, errs.New(errs.NotFound, component, name)
	}
	return rec.Clone(), nil
}

// All returns every tracked record, sorted by name.
func (t *Tracker) All() []*model.ProcessRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*model.ProcessRecord, 0, len(t.st.Processes))
	for _, rec := range t.st.Processes {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Running returns every tracked record whose pid is currently alive.
func (t *Tracker) Running() []*model.ProcessRecord {
	all := t.All()
	out := all[:0]
	for _, rec := range all {
		if pidAlive(rec.PID) {
			out = append(out, rec)
		}
	}
	return out
}

// MarkHealth updates a record's last-observed health without touching its
// pid or command.
func (t *Tracker) MarkHealth(name string, health model.HealthState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.st.Processes[name]
	if !ok {
		return errs.New(errs.NotFound, component, name)
	}
	rec.LastHealth = health
	rec.LastHealthAt = time.Now().UTC()
	return t.save()
}

// CleanupDead drops every tracked record whose pid is no longer alive,
// returning the names removed.
func (t *Tracker) CleanupDead() ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []string
	for name, rec := range t.st.Processes {
		if !pidAlive(rec.PID) {
			removed = append(removed, name)
			delete(t.st.Processes, name)
		}
	}
	if len(removed) == 0 {
		return nil, nil
	}
	sort.Strings(removed)
	if err := t.save(); err != nil {
		return nil, err
	}
	logging.Info(component, "cleaned up %d dead process record(s)", len(removed))
	return removed, nil
}

// SetRegistryState persists the currently running registry's connection
// details, read back by agent processes and the CLI to find it.
func (t *Tracker) SetRegistryState(rs *model.RegistryState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rs.LastUpdated = time.Now().UTC()
	t.st.Registry = rs
	return t.save()
}

// RegistryState returns the last-persisted registry connection details, or
// nil if none are set: never set, cleared by ClearRegistryState, or
// dropped on Open because the registry process was no longer alive.
func (t *Tracker) RegistryState() *model.RegistryState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.st.Registry == nil {
		return nil
	}
	cp := *t.st.Registry
	return &cp
}

// ClearRegistryState removes the persisted registry connection details,
// called once the registry process has been stopped.
func (t *Tracker) ClearRegistryState() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.Registry = nil
	return t.save()
}

// DependencySatisfied reports whether every one of deps is both tracked and
// currently alive, used by Orchestrator.StartAgent before spawning (or
// respawning) a dependent agent.
func (t *Tracker) DependencySatisfied(deps []string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, dep := range deps {
		rec, ok := t.st.Processes[dep]
		if !ok || !pidAlive(rec.PID) {
			return dep, false
		}
	}
	return "", true
}

// Path returns the backing file path, mostly useful for logging/tests.
func (t *Tracker) Path() string { return t.path }
