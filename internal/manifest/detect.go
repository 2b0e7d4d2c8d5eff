package manifest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/railwayapp/stevedore/internal/filesystems"
)

// ErrNotFound is returned by Detect when the context root holds no manifest.
var ErrNotFound = errors.New("no dependency manifest found")

// Detector recognizes one manifest format by file name.
type Detector interface {
	Format() Format
	Detect(filename string) bool
}

type requirementsDetector struct{}

func (requirementsDetector) Format() Format { return FormatRequirements }

func (requirementsDetector) Detect(filename string) bool {
	return strings.EqualFold(filename, "requirements.txt")
}

type pyProjectDetector struct{}

func (pyProjectDetector) Format() Format { return FormatPyProject }

func (pyProjectDetector) Detect(filename string) bool {
	return strings.EqualFold(filename, "pyproject.toml")
}

type pipfileDetector struct{}

func (pipfileDetector) Format() Format { return FormatPipfile }

func (pipfileDetector) Detect(filename string) bool {
	return filename == "Pipfile"
}

// Scanner finds manifests at a context root. Detectors registered first win.
type Scanner struct {
	detectors []Detector
}

// NewScanner returns a scanner with the default priority:
// requirements.txt, pyproject.toml, Pipfile.
func NewScanner() *Scanner {
	return NewScannerWithDetectors([]Detector{
		requirementsDetector{},
		pyProjectDetector{},
		pipfileDetector{},
	})
}

func NewScannerWithDetectors(detectors []Detector) *Scanner {
	s := &Scanner{}
	for _, d := range detectors {
		s.RegisterDetector(d)
	}
	return s
}

func (s *Scanner) RegisterDetector(detector Detector) {
	s.detectors = append(s.detectors, detector)
}

// Detect returns the path of the highest priority manifest directly under
// root. Subdirectories are not searched.
func (s *Scanner) Detect(fsys filesystems.FileSystem, root string) (string, error) {
	found := make(map[int]string)
	for entry, err := range fsys.ReadDir(root) {
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", root, err)
		}
		if entry.IsDir() {
			continue
		}
		for i, d := range s.detectors {
			if d.Detect(entry.Name()) {
				if _, ok := found[i]; !ok {
					found[i] = fsys.Join(root, entry.Name())
				}
				break
			}
		}
	}

	for i := range s.detectors {
		if p, ok := found[i]; ok {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNotFound, root)
}

// Detect locates the manifest under root using the default scanner.
func Detect(fsys filesystems.FileSystem, root string) (string, error) {
	return NewScanner().Detect(fsys, root)
}

// Load reads and parses the manifest at name. When the manifest does not
// constrain the interpreter, a runtime.txt next to it is consulted.
func Load(fsys filesystems.FileSystem, name string) (*Manifest, error) {
	content, err := fsys.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := Parse(name, content)
	if err != nil {
		return nil, err
	}

	if m.RequiresPython == "" {
		runtimePath := fsys.Join(fsys.Dir(name), RuntimeFile)
		if ok, _ := filesystems.Exists(fsys, runtimePath); ok {
			data, err := fsys.ReadFile(runtimePath)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", runtimePath, err)
			}
			constraint, err := ParseRuntime(data)
			if err != nil {
				return nil, err
			}
			m.RequiresPython = constraint
		}
	}

	return m, nil
}
