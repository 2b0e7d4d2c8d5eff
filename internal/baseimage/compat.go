package baseimage

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/railwayapp/stevedore/internal/manifest"
)

// MismatchError reports a base image whose interpreter cannot satisfy the
// manifest's requires-python constraint.
type MismatchError struct {
	Image          string
	RuntimeVersion string
	Constraint     string
}

func (e *MismatchError) Error() string {
	if e.RuntimeVersion == "" {
		return fmt.Sprintf("base image %s does not declare a runtime version in its tag, manifest requires python %s", e.Image, e.Constraint)
	}
	return fmt.Sprintf("base image %s provides python %s, manifest requires %s", e.Image, e.RuntimeVersion, e.Constraint)
}

// CheckCompatible verifies the image's runtime version satisfies the PEP 440
// constraint. An empty constraint accepts any image. A tag that pins only
// major.minor is accepted when some patch release of that line satisfies
// the constraint.
func CheckCompatible(ref Ref, requiresPython string) error {
	if strings.TrimSpace(requiresPython) == "" {
		return nil
	}

	constraints, err := manifest.Constraint(requiresPython)
	if err != nil {
		return err
	}

	mismatch := &MismatchError{Image: ref.String(), RuntimeVersion: ref.RuntimeVersion, Constraint: requiresPython}
	if ref.RuntimeVersion == "" {
		return mismatch
	}

	if strings.Count(ref.RuntimeVersion, ".") == 2 {
		v, err := semver.StrictNewVersion(ref.RuntimeVersion)
		if err != nil {
			return fmt.Errorf("invalid runtime version %q: %w", ref.RuntimeVersion, err)
		}
		if constraints.Check(v) {
			return nil
		}
		return mismatch
	}

	for patch := 0; patch < 100; patch++ {
		v, err := semver.StrictNewVersion(fmt.Sprintf("%s.%d", ref.RuntimeVersion, patch))
		if err != nil {
			return fmt.Errorf("invalid runtime version %q: %w", ref.RuntimeVersion, err)
		}
		if constraints.Check(v) {
			return nil
		}
	}
	return mismatch
}
