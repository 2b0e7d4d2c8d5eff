package signals

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/railwayapp/stevedore/internal/discovery/types"
	"github.com/railwayapp/stevedore/internal/filesystems"
)

type RailwaySignal struct {
	filesystem filesystems.FileSystem
	configs    []string
}

func NewRailwaySignal(filesystem filesystems.FileSystem) *RailwaySignal {
	return &RailwaySignal{filesystem: filesystem}
}

func (r *RailwaySignal) Confidence() int {
	return 95 // Railway configs are explicit production deployment specs
}

func (r *RailwaySignal) Reset() {
	r.configs = nil
}

func (r *RailwaySignal) ObserveEntry(ctx context.Context, rootPath string, entry filesystems.DirEntry) error {
	if entry.IsDir() {
		return nil
	}
	name := strings.ToLower(entry.Name())
	if name == "railway.json" || name == "railway.toml" {
		r.configs = append(r.configs, r.filesystem.Join(rootPath, entry.Name()))
	}
	return nil
}

func (r *RailwaySignal) GenerateProcesses(ctx context.Context) ([]types.Process, error) {
	var processes []types.Process
	for _, configPath := range r.configs {
		config, err := r.parseRailwayConfig(configPath)
		if err != nil {
			return nil, err
		}
		if config.Deploy == nil || config.Deploy.StartCommand == "" {
			continue
		}

		network := types.NetworkNone
		if config.Deploy.HealthcheckPath != "" {
			network = types.NetworkPublic
		}
		processes = append(processes, types.Process{
			Name:    "worker",
			Command: strings.Fields(config.Deploy.StartCommand),
			Network: network,
			Configs: []types.ConfigRef{{Type: "railway", Path: configPath}},
		})
	}
	return processes, nil
}

// RailwayConfig is the subset of the Railway config-as-code schema that
// describes how the service starts.
type RailwayConfig struct {
	Deploy *RailwayDeploy `json:"deploy,omitempty" toml:"deploy,omitempty"`
}

type RailwayDeploy struct {
	StartCommand    string `json:"startCommand,omitempty" toml:"startCommand,omitempty"`
	HealthcheckPath string `json:"healthcheckPath,omitempty" toml:"healthcheckPath,omitempty"`
}

func (r *RailwaySignal) parseRailwayConfig(configPath string) (*RailwayConfig, error) {
	data, err := r.filesystem.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var config RailwayConfig
	if strings.HasSuffix(strings.ToLower(configPath), ".json") {
		err = json.Unmarshal(data, &config)
	} else {
		err = toml.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, err
	}
	return &config, nil
}
