package extractors

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/railwayapp/stevedore/internal/environment/types"
)

type DotEnvExtractor struct{}

func NewDotEnvExtractor() *DotEnvExtractor {
	return &DotEnvExtractor{}
}

func (d *DotEnvExtractor) CanHandle(filename string) bool {
	base := strings.ToLower(filepath.Base(filename))
	return strings.HasPrefix(base, ".env")
}

func (d *DotEnvExtractor) Confidence() int {
	return 85 // High confidence for explicit env files
}

func (d *DotEnvExtractor) Extract(ctx context.Context, filename string, content []byte) ([]types.EnvResult, error) {
	env, err := godotenv.Unmarshal(string(content))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)

	var results []types.EnvResult
	confidence := d.getFileConfidence(filepath.Base(filename))
	source := fmt.Sprintf("dotenv:%s", filename)

	for _, name := range names {
		origin := types.OriginDeclared
		if env[name] == "" {
			origin = types.OriginRequired
		}
		results = append(results, result(name, env[name], origin, source, confidence))
	}

	return results, nil
}

func (d *DotEnvExtractor) getFileConfidence(filename string) int {
	switch {
	case filename == ".env":
		return 85
	case strings.Contains(filename, "production"):
		return 90
	case strings.Contains(filename, "example"):
		return 30 // templates list names, not values
	default:
		return 75
	}
}
