package parser

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	composetypes "github.com/compose-spec/compose-go/v2/types"

	"github.com/railwayapp/stevedore/internal/schema"
)

// ComposeParser reads the service that builds the image from a compose
// file. Only ports and environment are recovered; build steps live in the
// Dockerfile.
type ComposeParser struct{}

func NewComposeParser() *ComposeParser {
	return &ComposeParser{}
}

func (p *ComposeParser) CanParse(filename string) bool {
	name := strings.ToLower(path.Base(filename))
	return strings.Contains(name, "compose") && (strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml"))
}

func (p *ComposeParser) Parse(ctx context.Context, filename string, content []byte) (Fragment, error) {
	details := composetypes.ConfigDetails{
		WorkingDir: ".",
		ConfigFiles: []composetypes.ConfigFile{
			{Filename: filename, Content: content},
		},
		Environment: composetypes.Mapping{},
	}

	project, err := loader.LoadWithContext(ctx, details, func(options *loader.Options) {
		options.SetProjectName("stevedore", true)
		options.SkipConsistencyCheck = true
		options.SkipResolveEnvironment = true
	})
	if err != nil {
		return Fragment{}, fmt.Errorf("failed to load compose file %s: %w", filename, err)
	}

	svc, err := buildService(project)
	if err != nil {
		return Fragment{}, fmt.Errorf("%s: %w", filename, err)
	}

	r := schema.NewRecipe(svc.Name)

	names := make([]string, 0, len(svc.Environment))
	for name := range svc.Environment {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := svc.Environment[name]
		if value == nil {
			// passed through from the host at launch, never baked
			r.Secrets = append(r.Secrets, name)
			continue
		}
		r.Env = append(r.Env, schema.NewEnvVar(name, *value))
	}

	for _, port := range svc.Ports {
		r.Ports = append(r.Ports, schema.Port{Number: int(port.Target), Protocol: protocol(port.Protocol)})
	}
	for _, expose := range svc.Expose {
		num, proto, _ := strings.Cut(expose, "/")
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		r.Ports = append(r.Ports, schema.Port{Number: n, Protocol: protocol(proto)})
	}

	return Fragment{Recipe: r, Source: filename}, nil
}

// buildService picks the service with a build section, or the only service.
func buildService(project *composetypes.Project) (composetypes.ServiceConfig, error) {
	names := make([]string, 0, len(project.Services))
	for name := range project.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if svc := project.Services[name]; svc.Build != nil {
			return svc, nil
		}
	}
	if len(names) == 1 {
		return project.Services[names[0]], nil
	}
	return composetypes.ServiceConfig{}, fmt.Errorf("no service with a build section among %d services", len(names))
}

func protocol(p string) string {
	if p == "" {
		return "tcp"
	}
	return p
}
