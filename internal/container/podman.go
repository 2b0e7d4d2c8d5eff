package container

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// PodmanEngine implements Engine using the Podman CLI.
type PodmanEngine struct {
	*BaseCLIEngine
}

// NewPodmanEngine creates a new Podman engine.
func NewPodmanEngine(opts ...BaseCLIEngineOption) *PodmanEngine {
	path, _ := exec.LookPath("podman")
	return &PodmanEngine{BaseCLIEngine: NewBaseCLIEngine(string(EngineTypePodman), path, opts...)}
}

// Version returns the Podman version.
func (e *PodmanEngine) Version(ctx context.Context) (string, error) {
	out, err := e.RunCommand(ctx, "version", "--format", "{{.Client.Version}}")
	if err != nil {
		return "", fmt.Errorf("failed to get podman version: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
