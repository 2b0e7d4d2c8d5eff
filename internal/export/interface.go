package export

import (
	"fmt"
	"sort"

	"github.com/railwayapp/stevedore/internal/schema"
)

// Exporter defines the interface for rendering recipes to various formats
type Exporter interface {
	// Export converts a recipe to the target format
	Export(recipe *schema.Recipe) ([]byte, error)

	// Name returns the exporter name (e.g., "dockerfile", "json", "compose")
	Name() string
}

var registry = map[string]func() Exporter{
	"dockerfile":   NewDockerfileExporter,
	"dockerignore": NewDockerignoreExporter,
	"json":         NewJSONExporter,
	"yaml":         NewYAMLExporter,
	"compose":      NewComposeExporter,
}

// Lookup returns the exporter registered under name.
func Lookup(name string) (Exporter, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown export format %q (valid: %v)", name, Names())
	}
	return ctor(), nil
}

// Names lists the registered formats, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
