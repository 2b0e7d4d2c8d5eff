package parser

import (
	"context"

	"github.com/railwayapp/stevedore/internal/schema"
)

// Fragment is the partial recipe recovered from a single file
type Fragment struct {
	Recipe *schema.Recipe // fields the source could express; the rest are zero
	Source string         // file the fragment came from
}

// Parser reads one kind of build file back into a recipe fragment
type Parser interface {
	// Parse takes the file content and returns what it describes
	Parse(ctx context.Context, filename string, content []byte) (Fragment, error)

	// CanParse returns true if this parser understands the given file name
	CanParse(filename string) bool
}

// Aggregator combines fragments into one recipe
type Aggregator interface {
	Aggregate(name string, fragments []Fragment) (*schema.Recipe, error)
}
