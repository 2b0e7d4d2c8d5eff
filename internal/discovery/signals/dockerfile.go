package signals

import (
	"context"
	"strings"

	"github.com/railwayapp/stevedore/internal/discovery/types"
	"github.com/railwayapp/stevedore/internal/filesystems"
	"github.com/railwayapp/stevedore/internal/parser"
)

type DockerfileSignal struct {
	filesystem  filesystems.FileSystem
	dockerfiles []string
}

func NewDockerfileSignal(filesystem filesystems.FileSystem) *DockerfileSignal {
	return &DockerfileSignal{filesystem: filesystem}
}

func (d *DockerfileSignal) Confidence() int {
	return 70 // A hand-written CMD may predate the project's current layout
}

func (d *DockerfileSignal) Reset() {
	d.dockerfiles = nil
}

func (d *DockerfileSignal) ObserveEntry(ctx context.Context, rootPath string, entry filesystems.DirEntry) error {
	if !entry.IsDir() && strings.EqualFold(entry.Name(), "Dockerfile") {
		d.dockerfiles = append(d.dockerfiles, d.filesystem.Join(rootPath, entry.Name()))
	}
	return nil
}

func (d *DockerfileSignal) GenerateProcesses(ctx context.Context) ([]types.Process, error) {
	var processes []types.Process
	for _, dockerfilePath := range d.dockerfiles {
		content, err := d.filesystem.ReadFile(dockerfilePath)
		if err != nil {
			return nil, err
		}
		df, err := parser.ParseDockerfile(dockerfilePath, content)
		if err != nil {
			return nil, err
		}

		var cmd []string
		network := types.NetworkNone
		for _, inst := range df.Instructions {
			switch inst.Command {
			case "CMD":
				cmd = inst.Args
				if !inst.JSON {
					cmd = strings.Fields(strings.Join(inst.Args, " "))
				}
			case "EXPOSE":
				network = types.NetworkPublic
			}
		}
		if len(cmd) == 0 {
			continue
		}

		processes = append(processes, types.Process{
			Name:    "worker",
			Command: cmd,
			Network: network,
			Configs: []types.ConfigRef{{Type: "dockerfile", Path: dockerfilePath}},
		})
	}
	return processes, nil
}
