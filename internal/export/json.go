package export

import (
	"encoding/json"

	"github.com/railwayapp/stevedore/internal/schema"
)

type JSONExporter struct{}

func (e *JSONExporter) Name() string {
	return "json"
}

func (e *JSONExporter) Export(recipe *schema.Recipe) ([]byte, error) {
	out, err := json.MarshalIndent(recipe, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func NewJSONExporter() Exporter {
	return &JSONExporter{}
}
