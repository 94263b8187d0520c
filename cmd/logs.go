package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/meshctl/meshcore/internal/errs"
	"github.com/meshctl/meshcore/internal/model"
)

var (
	logsAgent  string
	logsFollow bool
	logsLevel  string
	logsLines  int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show captured stdout/stderr for a tracked agent",
	Long: `logs reads the per-process log file the orchestrator captured each
spawned agent's output to (<config-dir>/logs/<name>.log). With --agent it
reads one agent's log; with no --agent it reads every tracked agent's log,
most recently started first.`,
	RunE: runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsAgent, "agent", "", "show only this agent's log")
	logsCmd.Flags().BoolVar(&logsFollow, "follow", false, "keep reading new output as it is appended")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "only show lines at or matching this level (DEBUG|INFO|WARNING|ERROR)")
	logsCmd.Flags().IntVar(&logsLines, "lines", 100, "number of trailing lines to show before following")
}

func runLogs(cmd *cobra.Command, args []string) error {
	_, dir, err := loadConfig()
	if err != nil {
		return err
	}
	tracker, err := openTracker(dir)
	if err != nil {
		return err
	}
	orch := newOrchestrator(tracker, dir)

	names := []string{logsAgent}
	if logsAgent == "" {
		records := tracker.All()
		sort.SliceStable(records, func(i, j int) bool { return records[i].StartedAt.After(records[j].StartedAt) })
		names = names[:0]
		for _, rec := range records {
			if rec.ServiceType == model.ServiceAgent {
				names = append(names, rec.Name)
			}
		}
	} else if _, err := tracker.Get(logsAgent); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, name := range names {
		path := orch.LogPath(name)
		if path == "" {
			continue
		}
		if len(names) > 1 {
			fmt.Fprintf(out, "==> %s <==\n", name)
		}
		if err := tailLogFile(cmd.Context(), out, path, logsLines, logsLevel, logsFollow && len(names) == 1); err != nil {
			return err
		}
	}
	if logsFollow && len(names) != 1 {
		return errs.New(errs.InvalidInput, "CLI", "logs --follow requires a single --agent")
	}
	return nil
}

// tailLogFile prints the last n matching lines of path, then (if follow)
// polls for newly appended lines until ctx is cancelled.
func tailLogFile(ctx context.Context, out io.Writer, path string, n int, level string, follow bool) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.Wrap(errs.NotFound, "CLI", path, err)
	}
	defer f.Close()

	lines, err := readLastLines(f, n)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if matchesLevel(line, level) {
			fmt.Fprintln(out, line)
		}
	}

	if !follow {
		return nil
	}

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if info.Size() <= offset {
				continue
			}
			if _, err := f.Seek(offset, io.SeekStart); err != nil {
				return err
			}
			scanner := bufio.NewScanner(f)
			for scanner.Scan() {
				if matchesLevel(scanner.Text(), level) {
					fmt.Fprintln(out, scanner.Text())
				}
			}
			offset, _ = f.Seek(0, io.SeekCurrent)
		}
	}
}

func readLastLines(f *os.File, n int) ([]string, error) {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var all []string
	for scanner.Scan() {
		all = append(all, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if n <= 0 || len(all) <= n {
		return all, nil
	}
	return all[len(all)-n:], nil
}

func matchesLevel(line, level string) bool {
	if level == "" {
		return true
	}
	want := strings.ToUpper(level)
	if want == "WARNING" {
		want = "WARN"
	}
	return strings.Contains(strings.ToUpper(line), "LEVEL="+want)
}
