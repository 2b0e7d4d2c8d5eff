package extractors

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/railwayapp/stevedore/internal/environment/types"
)

// PythonSourceExtractor finds environment variables read by Python code.
// The values are unknown; every hit is something the process expects to
// receive at launch.
type PythonSourceExtractor struct{}

func NewPythonSourceExtractor() *PythonSourceExtractor {
	return &PythonSourceExtractor{}
}

func (p *PythonSourceExtractor) CanHandle(filename string) bool {
	return strings.ToLower(filepath.Ext(filename)) == ".py" && !isTestFile(filename)
}

func (p *PythonSourceExtractor) Confidence() int {
	return 50 // usage patterns, not declarations
}

var pythonEnvPatterns = []*regexp.Regexp{
	// os.getenv('VAR'), getenv("VAR", default)
	regexp.MustCompile(`\bgetenv\(\s*['"]([A-Za-z_][A-Za-z0-9_]*)['"]`),

	// os.environ['VAR']
	regexp.MustCompile(`\benviron\[\s*['"]([A-Za-z_][A-Za-z0-9_]*)['"]\s*\]`),

	// os.environ.get('VAR')
	regexp.MustCompile(`\benviron\.get\(\s*['"]([A-Za-z_][A-Za-z0-9_]*)['"]`),
}

func (p *PythonSourceExtractor) Extract(ctx context.Context, filename string, content []byte) ([]types.EnvResult, error) {
	var results []types.EnvResult
	found := make(map[string]bool)
	source := fmt.Sprintf("usage:%s", filename)

	for _, line := range strings.Split(string(content), "\n") {
		code := stripPythonComment(line)
		if code == "" {
			continue
		}
		for _, pattern := range pythonEnvPatterns {
			for _, match := range pattern.FindAllStringSubmatch(code, -1) {
				name := match[1]
				if found[name] || types.ShouldIgnore(name) {
					continue
				}
				found[name] = true
				results = append(results, result(name, "", types.OriginRequired, source, p.Confidence()))
			}
		}
	}
	return results, nil
}

func stripPythonComment(line string) string {
	inQuote := byte(0)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inQuote != 0 && c == '\\':
			i++
		case inQuote != 0 && c == inQuote:
			inQuote = 0
		case inQuote == 0 && (c == '\'' || c == '"'):
			inQuote = c
		case inQuote == 0 && c == '#':
			return strings.TrimSpace(line[:i])
		}
	}
	return strings.TrimSpace(line)
}

func isTestFile(filename string) bool {
	name := strings.ToLower(filepath.Base(filename))
	return strings.HasPrefix(name, "test_") ||
		strings.HasSuffix(name, "_test.py") ||
		name == "conftest.py" ||
		strings.Contains(filepath.ToSlash(filename), "/tests/")
}
