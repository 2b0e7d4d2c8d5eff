package signals

import (
	"bufio"
	"context"
	"strings"

	"github.com/railwayapp/stevedore/internal/discovery/types"
	"github.com/railwayapp/stevedore/internal/filesystems"
)

type ProcfileSignal struct {
	filesystem filesystems.FileSystem
	procfiles  []string
}

func NewProcfileSignal(filesystem filesystems.FileSystem) *ProcfileSignal {
	return &ProcfileSignal{filesystem: filesystem}
}

func (p *ProcfileSignal) Confidence() int {
	return 85 // Procfiles name process types explicitly
}

func (p *ProcfileSignal) Reset() {
	p.procfiles = nil
}

func (p *ProcfileSignal) ObserveEntry(ctx context.Context, rootPath string, entry filesystems.DirEntry) error {
	if !entry.IsDir() && strings.EqualFold(entry.Name(), "Procfile") {
		p.procfiles = append(p.procfiles, p.filesystem.Join(rootPath, entry.Name()))
	}
	return nil
}

func (p *ProcfileSignal) GenerateProcesses(ctx context.Context) ([]types.Process, error) {
	var processes []types.Process
	for _, configPath := range p.procfiles {
		entries, err := p.parseProcfile(configPath)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			processes = append(processes, types.Process{
				Name:    e.name,
				Command: strings.Fields(e.command),
				Network: networkFromProcessType(e.name),
				Configs: []types.ConfigRef{{Type: "procfile", Path: configPath}},
			})
		}
	}
	return processes, nil
}

type procfileEntry struct {
	name    string
	command string
}

// parseProcfile keeps declaration order so the first process wins ties.
func (p *ProcfileSignal) parseProcfile(configPath string) ([]procfileEntry, error) {
	content, err := p.filesystem.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var entries []procfileEntry
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		processType, command, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		entries = append(entries, procfileEntry{
			name:    strings.TrimSpace(processType),
			command: strings.TrimSpace(command),
		})
	}
	return entries, scanner.Err()
}

func networkFromProcessType(processType string) types.Network {
	if processType == "web" {
		return types.NetworkPublic
	}
	// Workers poll or consume; nothing connects to them
	return types.NetworkNone
}
