package launch

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/railwayapp/stevedore/internal/artifact"
	"github.com/railwayapp/stevedore/internal/container"
	envtypes "github.com/railwayapp/stevedore/internal/environment/types"
)

// EngineLauncher runs the artifact's image with a container engine. The
// image already carries the working directory, baked variables and entry
// command; only secrets and an optional port are added.
type EngineLauncher struct {
	engine container.Engine
	logger *log.Logger
}

func NewEngineLauncher(engine container.Engine, logger *log.Logger) *EngineLauncher {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &EngineLauncher{engine: engine, logger: logger}
}

func (l *EngineLauncher) Launch(ctx context.Context, a *artifact.Artifact, opts Options) (*Result, error) {
	if len(a.Config.Cmd) == 0 {
		return nil, ErrNoEntry
	}
	// validates required secrets before anything starts
	if _, err := environmentMap(a, opts.Secrets); err != nil {
		return nil, err
	}

	image := a.ImageTag()
	exists, err := l.engine.ImageExists(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("failed to check image %s: %w", image, err)
	}
	if !exists {
		return nil, fmt.Errorf("image %s is not built; run stevedore build --engine first", image)
	}

	ports, err := publish(a, opts.Port)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(opts.Secrets))
	for name := range opts.Secrets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		l.logger.Debug("secret", "name", name, "value", envtypes.Redact(name, opts.Secrets[name]))
	}
	l.logger.Info("launching", "engine", l.engine.Name(), "image", image, "ports", strings.Join(ports, ","))

	result, err := l.engine.Run(ctx, container.RunOptions{
		Image:  image,
		Env:    opts.Secrets,
		Ports:  ports,
		Remove: true,
		Name:   opts.Name,
		Stdin:  opts.Stdin,
		Stdout: writerOr(opts.Stdout, os.Stdout),
		Stderr: writerOr(opts.Stderr, os.Stderr),
	})
	if err != nil {
		return nil, err
	}
	if result.Error != nil && result.ExitCode == 0 {
		return nil, result.Error
	}
	return &Result{ExitCode: result.ExitCode}, nil
}

// publish maps the host port onto the artifact's declared port. Nothing is
// published unless both exist.
func publish(a *artifact.Artifact, hostPort int) ([]string, error) {
	if hostPort == 0 {
		return nil, nil
	}
	if len(a.Config.ExposedPorts) == 0 {
		return nil, fmt.Errorf("artifact %s declares no port to publish", a.Name)
	}
	target, proto, _ := strings.Cut(a.Config.ExposedPorts[0], "/")
	mapping := fmt.Sprintf("%d:%s", hostPort, target)
	if proto != "" && proto != "tcp" {
		mapping += "/" + proto
	}
	return []string{mapping}, nil
}
