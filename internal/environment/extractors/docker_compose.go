package extractors

import (
	"context"
	"fmt"
	"strings"

	"github.com/railwayapp/stevedore/internal/environment/types"
	"github.com/railwayapp/stevedore/internal/parser"
)

// DockerComposeExtractor reads the environment of the service that builds
// the image. Entries without a value are passed through at launch.
type DockerComposeExtractor struct {
	parser *parser.ComposeParser
}

func NewDockerComposeExtractor() *DockerComposeExtractor {
	return &DockerComposeExtractor{parser: parser.NewComposeParser()}
}

func (d *DockerComposeExtractor) CanHandle(filename string) bool {
	return d.parser.CanParse(filename)
}

func (d *DockerComposeExtractor) Confidence() int {
	return 80
}

func (d *DockerComposeExtractor) Extract(ctx context.Context, filename string, content []byte) ([]types.EnvResult, error) {
	frag, err := d.parser.Parse(ctx, filename, content)
	if err != nil {
		return nil, err
	}

	var results []types.EnvResult
	source := fmt.Sprintf("docker-compose:%s", filename)
	for _, v := range frag.Recipe.Env {
		if types.ShouldIgnore(v.Name) {
			continue
		}
		results = append(results, result(v.Name, v.Value, types.OriginDeclared, source, d.Confidence()))
	}
	for _, name := range frag.Recipe.Secrets {
		if types.ShouldIgnore(name) || strings.TrimSpace(name) == "" {
			continue
		}
		results = append(results, result(name, "", types.OriginRequired, source, d.Confidence()))
	}
	return results, nil
}
