// Package container drives a local container engine (Docker or Podman)
// through its command line.
package container

import (
	"context"
	"fmt"
	"io"
)

// Engine defines the container operations stevedore needs.
type Engine interface {
	// Name returns the engine name (docker or podman)
	Name() string
	// Available checks if the engine is installed and its daemon answers
	Available() bool
	// Version returns the engine server version
	Version(ctx context.Context) (string, error)

	// Build builds an image from a Dockerfile
	Build(ctx context.Context, opts BuildOptions) error
	// Run runs a container in the foreground and waits for it to exit
	Run(ctx context.Context, opts RunOptions) (*RunResult, error)
	// Pull fetches an image from its registry
	Pull(ctx context.Context, image string) error
	// ImageExists checks if an image is present locally
	ImageExists(ctx context.Context, image string) (bool, error)
	// Inspect returns the metadata of a local image
	Inspect(ctx context.Context, image string) (*ImageInfo, error)
	// RemoveImage removes a local image
	RemoveImage(ctx context.Context, image string, force bool) error
}

// BuildOptions contains options for building an image
type BuildOptions struct {
	// ContextDir is the build context directory
	ContextDir string
	// Dockerfile is the path to the Dockerfile (relative to ContextDir)
	Dockerfile string
	// Tag is the image tag
	Tag string
	// Labels are attached to the built image
	Labels map[string]string
	// NoCache disables the engine's build cache
	NoCache bool
	Stdout  io.Writer
	Stderr  io.Writer
}

// RunOptions contains options for running a container
type RunOptions struct {
	Image string
	// Command overrides the image CMD when non-empty
	Command []string
	WorkDir string
	// Env is passed with -e; nothing else from the host is inherited
	Env map[string]string
	// Ports are port mappings in "host:container" format
	Ports  []string
	Remove bool
	Name   string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// RunResult contains the result of running a container
type RunResult struct {
	ExitCode int
	// Error is set when the engine could not start the container at all
	Error error
}

// ImageInfo is the subset of image metadata stevedore reads back.
type ImageInfo struct {
	ID           string
	RepoDigests  []string
	Env          []string
	Cmd          []string
	WorkingDir   string
	ExposedPorts map[string]struct{}
}

// EngineType identifies the container engine type
type EngineType string

const (
	EngineTypePodman EngineType = "podman"
	EngineTypeDocker EngineType = "docker"
)

// ErrEngineNotAvailable is returned when a container engine is not available
type ErrEngineNotAvailable struct {
	Engine string
	Reason string
}

func (e *ErrEngineNotAvailable) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// NewEngine creates a container engine of the preferred type, falling back
// to the other one when the preferred engine is not available.
func NewEngine(preferredType EngineType, opts ...BaseCLIEngineOption) (Engine, error) {
	var first, second Engine
	switch preferredType {
	case EngineTypeDocker:
		first, second = NewDockerEngine(opts...), NewPodmanEngine(opts...)
	case EngineTypePodman:
		first, second = NewPodmanEngine(opts...), NewDockerEngine(opts...)
	default:
		return nil, fmt.Errorf("unknown container engine type: %s", preferredType)
	}

	if first.Available() {
		return first, nil
	}
	if second.Available() {
		return second, nil
	}
	return nil, &ErrEngineNotAvailable{
		Engine: string(preferredType),
		Reason: fmt.Sprintf("%s is not installed or not accessible, and %s fallback is also not available", first.Name(), second.Name()),
	}
}

// AutoDetectEngine returns the first available engine, trying Docker first.
func AutoDetectEngine(opts ...BaseCLIEngineOption) (Engine, error) {
	for _, engine := range []Engine{NewDockerEngine(opts...), NewPodmanEngine(opts...)} {
		if engine.Available() {
			return engine, nil
		}
	}
	return nil, &ErrEngineNotAvailable{
		Engine: "any",
		Reason: "no container engine (docker or podman) is available on this system",
	}
}
