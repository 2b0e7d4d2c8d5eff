// Package baseimage selects and validates the base runtime image.
package baseimage

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/distribution/reference"
)

// Default is the base image used when a project does not choose one.
const Default = "python:3.11-slim"

// ErrUnpinned is returned for references without a tag or digest.
var ErrUnpinned = errors.New("base image must be pinned by tag or digest")

var tagVersionPattern = regexp.MustCompile(`^([0-9]+)\.([0-9]+)(\.([0-9]+))?([^0-9.]|$)`)

// Ref is a parsed base image reference.
type Ref struct {
	// Name is the fully qualified repository, e.g. docker.io/library/python
	Name   string `json:"name"`
	Tag    string `json:"tag,omitempty"`
	Digest string `json:"digest,omitempty"`
	// RuntimeVersion is the interpreter version encoded in the tag ("3.11"
	// or "3.11.4"), or empty when the tag carries none.
	RuntimeVersion string `json:"runtimeVersion,omitempty"`

	named reference.Named
}

// Parse normalizes an image reference such as "python:3.11-slim".
func Parse(s string) (Ref, error) {
	named, err := reference.ParseNormalizedNamed(s)
	if err != nil {
		return Ref{}, fmt.Errorf("invalid base image %q: %w", s, err)
	}

	ref := Ref{Name: named.Name(), named: named}
	if tagged, ok := named.(reference.Tagged); ok {
		ref.Tag = tagged.Tag()
		if m := tagVersionPattern.FindStringSubmatch(ref.Tag); m != nil {
			ref.RuntimeVersion = m[1] + "." + m[2]
			if m[4] != "" {
				ref.RuntimeVersion += "." + m[4]
			}
		}
	}
	if digested, ok := named.(reference.Digested); ok {
		ref.Digest = digested.Digest().String()
	}

	if ref.Tag == "" && ref.Digest == "" {
		return Ref{}, fmt.Errorf("%w: %s", ErrUnpinned, s)
	}
	return ref, nil
}

// String returns the short form, e.g. "python:3.11-slim".
func (r Ref) String() string {
	if r.named == nil {
		return r.joined()
	}
	return reference.FamiliarString(r.named)
}

// Canonical returns the fully qualified form, e.g.
// "docker.io/library/python:3.11-slim".
func (r Ref) Canonical() string {
	if r.named == nil {
		return r.joined()
	}
	return r.named.String()
}

// Repository returns the short repository name, e.g. "python".
func (r Ref) Repository() string {
	if r.named == nil {
		return r.Name
	}
	return reference.FamiliarName(r.named)
}

// Variant returns the tag suffix after the version, e.g. "slim" for
// "3.11-slim".
func (r Ref) Variant() string {
	return strings.TrimPrefix(strings.TrimPrefix(r.Tag, r.RuntimeVersion), "-")
}

func (r Ref) joined() string {
	s := r.Name
	if r.Tag != "" {
		s += ":" + r.Tag
	}
	if r.Digest != "" {
		s += "@" + r.Digest
	}
	return s
}
