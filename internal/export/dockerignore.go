package export

import (
	"strings"

	"github.com/railwayapp/stevedore/internal/schema"
)

// defaultIgnores keep local state, caches and secrets out of the image.
var defaultIgnores = []string{
	".git",
	".env",
	".env.*",
	"**/__pycache__",
	"**/*.py[cod]",
	".venv",
	"venv",
	".pytest_cache",
	".mypy_cache",
	"Dockerfile",
	".dockerignore",
	"stevedore.toml",
}

// DockerignoreExporter renders the .dockerignore written next to a
// generated Dockerfile.
type DockerignoreExporter struct{}

func (e *DockerignoreExporter) Name() string {
	return "dockerignore"
}

func (e *DockerignoreExporter) Export(recipe *schema.Recipe) ([]byte, error) {
	return []byte(strings.Join(defaultIgnores, "\n") + "\n"), nil
}

func NewDockerignoreExporter() Exporter {
	return &DockerignoreExporter{}
}

// DefaultIgnores returns the patterns every build context excludes.
func DefaultIgnores() []string {
	return append([]string(nil), defaultIgnores...)
}
