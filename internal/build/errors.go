package build

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/railwayapp/stevedore/internal/manifest"
	"github.com/railwayapp/stevedore/internal/schema"
)

// Kind classifies a build failure.
type Kind int

const (
	KindInvalid Kind = iota
	KindBaseImage
	KindRuntimeMismatch
	KindCopy
	KindResolution
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindBaseImage:
		return "base image"
	case KindRuntimeMismatch:
		return "runtime mismatch"
	case KindCopy:
		return "copy"
	case KindResolution:
		return "resolution"
	case KindCanceled:
		return "canceled"
	}
	return "invalid recipe"
}

var (
	ErrMissingManifest = manifest.ErrNotFound
	ErrMissingSource   = errors.New("source tree not found")
)

// StepError reports the pipeline step that aborted a build. Nothing is
// published when a build returns one.
type StepError struct {
	Step schema.StepKind
	Kind Kind
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step failed (%s): %v", e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or false if err did not come
// from a pipeline step.
func KindOf(err error) (Kind, bool) {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

func stepError(step schema.StepKind, kind Kind, err error) *StepError {
	return &StepError{Step: step, Kind: kind, Err: err}
}

// ManifestError reports a manifest that could not be found or read as a
// copy-manifest failure, and any other manifest problem as a resolution
// failure of the install step. Errors that already name a step are
// returned as is.
func ManifestError(path string, err error) error {
	if err == nil {
		return nil
	}
	var se *StepError
	if errors.As(err, &se) {
		return err
	}
	switch {
	case errors.Is(err, ErrMissingManifest):
		return stepError(schema.StepCopyManifest, KindCopy, err)
	case errors.Is(err, fs.ErrNotExist):
		return stepError(schema.StepCopyManifest, KindCopy, fmt.Errorf("%w: %s", ErrMissingManifest, path))
	}
	return stepError(schema.StepInstall, KindResolution, err)
}
