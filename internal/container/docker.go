package container

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// DockerEngine implements Engine using the Docker CLI.
type DockerEngine struct {
	*BaseCLIEngine
}

// NewDockerEngine creates a new Docker engine.
func NewDockerEngine(opts ...BaseCLIEngineOption) *DockerEngine {
	path, _ := exec.LookPath("docker")
	return &DockerEngine{BaseCLIEngine: NewBaseCLIEngine(string(EngineTypeDocker), path, opts...)}
}

// Version returns the Docker server version.
func (e *DockerEngine) Version(ctx context.Context) (string, error) {
	out, err := e.RunCommand(ctx, "version", "--format", "{{.Server.Version}}")
	if err != nil {
		return "", fmt.Errorf("failed to get docker version: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
