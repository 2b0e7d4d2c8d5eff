// Package discovery finds the process a project already declares for
// deployment (Procfile, railway.toml, an existing Dockerfile) so the entry
// command can be inferred rather than configured.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/railwayapp/stevedore/internal/discovery/signals"
	"github.com/railwayapp/stevedore/internal/discovery/types"
	"github.com/railwayapp/stevedore/internal/filesystems"
)

type ProcessSignal interface {
	// Called for each entry of the context root
	ObserveEntry(ctx context.Context, rootPath string, entry filesystems.DirEntry) error

	// Called after all entries have been observed
	GenerateProcesses(ctx context.Context) ([]types.Process, error)

	Reset()

	// Confidence level for conflict resolution, 0-100
	Confidence() int
}

type ProcessDiscovery struct {
	signals    []ProcessSignal
	filesystem filesystems.FileSystem
}

func NewProcessDiscovery(filesystem filesystems.FileSystem, signals ...ProcessSignal) *ProcessDiscovery {
	if len(signals) == 0 {
		signals = DefaultSignals(filesystem)
	}
	return &ProcessDiscovery{signals: signals, filesystem: filesystem}
}

func DefaultSignals(filesystem filesystems.FileSystem) []ProcessSignal {
	return []ProcessSignal{
		signals.NewRailwaySignal(filesystem),
		signals.NewProcfileSignal(filesystem),
		signals.NewDockerfileSignal(filesystem),
	}
}

type signalResult struct {
	processes  []types.Process
	confidence int
}

// Discover observes the entries of rootPath. Only the root is inspected:
// an entry command is relative to the build context.
func (pd *ProcessDiscovery) Discover(ctx context.Context, rootPath string) ([]types.Process, error) {
	for _, signal := range pd.signals {
		signal.Reset()
	}

	for entry, err := range pd.filesystem.ReadDir(rootPath) {
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", rootPath, err)
		}
		for _, signal := range pd.signals {
			if err := signal.ObserveEntry(ctx, rootPath, entry); err != nil {
				return nil, err
			}
		}
	}

	var results []signalResult
	var errs []error
	for _, signal := range pd.signals {
		processes, err := signal.GenerateProcesses(ctx)
		if err != nil {
			// one unreadable config should not hide the others
			errs = append(errs, err)
			continue
		}
		if len(processes) > 0 {
			results = append(results, signalResult{processes: processes, confidence: signal.Confidence()})
		}
	}

	if len(results) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("process discovery failed: %w", errors.Join(errs...))
	}
	return triangulateProcesses(results), nil
}

// triangulateProcesses merges processes of the same name. The highest
// confidence declaration wins and every source is kept.
func triangulateProcesses(results []signalResult) []types.Process {
	type best struct {
		process    types.Process
		confidence int
	}
	byName := make(map[string]*best)
	var order []string

	for _, result := range results {
		for _, p := range result.processes {
			b, ok := byName[p.Name]
			if !ok {
				byName[p.Name] = &best{process: p, confidence: result.confidence}
				order = append(order, p.Name)
				continue
			}
			configs := append(b.process.Configs, p.Configs...)
			if result.confidence > b.confidence {
				b.process = p
				b.confidence = result.confidence
			}
			b.process.Configs = configs
		}
	}

	sort.Strings(order)
	merged := make([]types.Process, 0, len(order))
	for _, name := range order {
		merged = append(merged, byName[name].process)
	}
	return merged
}

// ErrNoEntry is returned when no declared process can serve as the entry.
var ErrNoEntry = errors.New("no entry process declared")

// Entry is a process command split into interpreter and program.
type Entry struct {
	Process     string
	Interpreter string
	// Program is relative to the working directory.
	Program string
	Network types.Network
	Source  types.ConfigRef
}

var interpreterPattern = regexp.MustCompile(`^python(3(\.[0-9]+)?)?$`)

// preferredProcesses lists process names in the order they are chosen.
var preferredProcesses = []string{"worker", "bot", "main", "web"}

// EntryOf picks the entry process and splits its command. The command must
// be a plain "<python> <script.py>" invocation.
func EntryOf(processes []types.Process) (Entry, error) {
	if len(processes) == 0 {
		return Entry{}, ErrNoEntry
	}

	chosen := processes[0]
	for _, name := range preferredProcesses {
		found := false
		for _, p := range processes {
			if p.Name == name {
				chosen, found = p, true
				break
			}
		}
		if found {
			break
		}
	}

	cmd := chosen.Command
	if len(cmd) > 0 && cmd[0] == "exec" {
		cmd = cmd[1:]
	}
	if len(cmd) != 2 || !interpreterPattern.MatchString(path.Base(cmd[0])) || !strings.HasSuffix(cmd[1], ".py") {
		return Entry{}, fmt.Errorf("process %s runs %q, expected <python> <script.py>", chosen.Name, strings.Join(chosen.Command, " "))
	}

	e := Entry{
		Process:     chosen.Name,
		Interpreter: cmd[0],
		Program:     strings.TrimPrefix(cmd[1], "./"),
		Network:     chosen.Network,
	}
	if len(chosen.Configs) > 0 {
		e.Source = chosen.Configs[0]
	}
	return e, nil
}
