package extractors

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/railwayapp/stevedore/internal/environment/types"
	"github.com/railwayapp/stevedore/internal/parser"
)

type DockerfileExtractor struct{}

func NewDockerfileExtractor() *DockerfileExtractor {
	return &DockerfileExtractor{}
}

func (d *DockerfileExtractor) CanHandle(filename string) bool {
	name := strings.ToLower(filepath.Base(filename))
	return strings.Contains(name, "dockerfile") || name == "containerfile"
}

func (d *DockerfileExtractor) Confidence() int {
	return 95 // ENV lines are exactly what the image carries
}

func (d *DockerfileExtractor) Extract(ctx context.Context, filename string, content []byte) ([]types.EnvResult, error) {
	df, err := parser.ParseDockerfile(filename, content)
	if err != nil {
		return nil, err
	}

	var results []types.EnvResult
	source := fmt.Sprintf("dockerfile:%s", filename)
	for _, v := range df.Env() {
		if types.ShouldIgnore(v.Name) {
			continue
		}
		results = append(results, result(v.Name, v.Value, types.OriginBaked, source, d.Confidence()))
	}
	return results, nil
}
