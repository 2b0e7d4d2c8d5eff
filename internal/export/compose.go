package export

import (
	"strconv"

	composeTypes "github.com/compose-spec/compose-go/v2/types"

	"github.com/railwayapp/stevedore/internal/schema"
)

// ComposeExporter renders a single-service compose file that builds the
// recipe's Dockerfile. Secrets are passed through from the invoking
// environment by name; nothing else is added to the baked environment.
type ComposeExporter struct{}

func (e *ComposeExporter) Name() string {
	return "compose"
}

func (e *ComposeExporter) Export(recipe *schema.Recipe) ([]byte, error) {
	service := composeTypes.ServiceConfig{
		Name:  recipe.Name,
		Image: recipe.Name + ":latest",
		Build: &composeTypes.BuildConfig{
			Context:    ".",
			Dockerfile: "Dockerfile",
		},
		Restart: composeTypes.RestartPolicyUnlessStopped,
	}

	if len(recipe.Secrets) > 0 {
		service.Environment = composeTypes.MappingWithEquals{}
		for _, name := range recipe.Secrets {
			service.Environment[name] = nil
		}
	}

	for _, p := range recipe.Ports {
		service.Expose = append(service.Expose, strconv.Itoa(p.Number))
	}

	project := &composeTypes.Project{
		Name:     recipe.Name,
		Services: composeTypes.Services{recipe.Name: service},
	}
	return project.MarshalYAML()
}

func NewComposeExporter() Exporter {
	return &ComposeExporter{}
}
