package export

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/railwayapp/stevedore/internal/schema"
)

// DockerfileExporter renders a recipe as a Dockerfile.
type DockerfileExporter struct{}

func (e *DockerfileExporter) Name() string {
	return "dockerfile"
}

func (e *DockerfileExporter) Export(recipe *schema.Recipe) ([]byte, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n", recipe.Name)

	for _, step := range recipe.Steps {
		line, err := renderStep(step)
		if err != nil {
			return nil, err
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return []byte(sb.String()), nil
}

func NewDockerfileExporter() Exporter {
	return &DockerfileExporter{}
}

func renderStep(step schema.Step) (string, error) {
	if step.NoOp() {
		return "# no dependencies to install", nil
	}
	if len(step.Args) == 0 {
		return "", fmt.Errorf("step %s has no arguments", step.Kind)
	}

	switch step.Instruction {
	case "FROM", "WORKDIR", "EXPOSE":
		return step.Instruction + " " + strings.Join(step.Args, " "), nil
	case "COPY":
		return "COPY " + strings.Join(step.Args, " "), nil
	case "RUN":
		quoted := make([]string, len(step.Args))
		for i, a := range step.Args {
			quoted[i] = shellQuote(a)
		}
		return "RUN " + strings.Join(quoted, " "), nil
	case "ENV":
		pairs := make([]string, len(step.Args))
		for i, a := range step.Args {
			name, value, _ := strings.Cut(a, "=")
			pairs[i] = name + "=" + envQuote(value)
		}
		return "ENV " + strings.Join(pairs, " "), nil
	case "CMD":
		argv, err := json.Marshal(step.Args)
		if err != nil {
			return "", err
		}
		return "CMD " + strings.ReplaceAll(string(argv), `","`, `", "`), nil
	}
	return "", fmt.Errorf("unsupported instruction %s", step.Instruction)
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// shellQuote single-quotes args that the shell would otherwise interpret,
// such as version constraints containing < or >.
func shellQuote(s string) string {
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func envQuote(s string) string {
	if s != "" && shellSafe.MatchString(s) {
		return s
	}
	return strconv.Quote(s)
}
