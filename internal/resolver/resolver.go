// Package resolver turns declared requirements into pinned versions.
//
// Resolution is an external collaborator of the build: the pipeline only
// relies on the Resolver contract, and fails the build with a
// ResolutionError when a requirement cannot be satisfied.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/railwayapp/stevedore/internal/manifest"
)

// Pinned is a requirement resolved to an installable version.
type Pinned struct {
	Name string `json:"name"`
	// Version is empty when the resolver does not pin exact versions.
	Version    string `json:"version,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	URL        string `json:"url,omitempty"`
}

func (p Pinned) String() string {
	switch {
	case p.URL != "":
		return p.Name + " @ " + p.URL
	case p.Version != "":
		return p.Name + "==" + p.Version
	default:
		return p.Name + p.Constraint
	}
}

// Resolver resolves requirements in declared order. Name identifies the
// resolver and its source; resolvers with equal names pin identically.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, reqs []manifest.Requirement) ([]Pinned, error)
}

// ResolutionError reports a requirement that cannot be located or whose
// constraint cannot be satisfied.
type ResolutionError struct {
	Name       string
	Constraint string
	Reason     string
}

func (e *ResolutionError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("cannot resolve %s%s: %s", e.Name, e.Constraint, e.Reason)
	}
	return fmt.Sprintf("cannot resolve %s: %s", e.Name, e.Reason)
}

// Offline checks requirements without contacting an index. Exact "=="
// pins are reported as versions; everything else keeps its constraint.
type Offline struct{}

func NewOffline() *Offline {
	return &Offline{}
}

func (o *Offline) Name() string {
	return "offline"
}

func (o *Offline) Resolve(ctx context.Context, reqs []manifest.Requirement) ([]Pinned, error) {
	pinned := make([]Pinned, 0, len(reqs))
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p := Pinned{Name: req.Name, Constraint: req.Constraint, URL: req.URL}
		if req.URL == "" && req.Constraint != "" {
			if _, err := manifest.Constraint(req.Constraint); err != nil {
				return nil, &ResolutionError{Name: req.Name, Constraint: req.Constraint, Reason: err.Error()}
			}
			if v, ok := exactPin(req.Constraint); ok {
				p.Version = v
			}
		}
		pinned = append(pinned, p)
	}
	return pinned, nil
}

func exactPin(constraint string) (string, bool) {
	if strings.Contains(constraint, ",") {
		return "", false
	}
	v, ok := strings.CutPrefix(constraint, "==")
	if !ok || strings.HasPrefix(v, "=") || strings.HasSuffix(v, ".*") {
		return "", false
	}
	return v, true
}
