package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/opencontainers/go-digest"
)

// ErrNotFound is returned when no artifact matches.
var ErrNotFound = errors.New("artifact not found")

// Store keeps published artifacts. Publish is the only way an artifact
// becomes current; a failed build never calls it.
type Store interface {
	Publish(ctx context.Context, a *Artifact) error
	Latest(ctx context.Context, name string) (*Artifact, error)
	Get(ctx context.Context, id digest.Digest) (*Artifact, error)
}

// MemoryStore is a Store for tests and single-process use.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[digest.Digest]*Artifact
	byName map[string]digest.Digest
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[digest.Digest]*Artifact),
		byName: make(map[string]digest.Digest),
	}
}

func (s *MemoryStore) Publish(ctx context.Context, a *Artifact) error {
	if err := validate(a); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cp := clone(a)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[cp.ID] = cp
	s.byName[cp.Name] = cp.ID
	return nil
}

func (s *MemoryStore) Latest(ctx context.Context, name string) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return clone(s.byID[id]), nil
}

func (s *MemoryStore) Get(ctx context.Context, id digest.Digest) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(a), nil
}

// DiskStore keeps artifacts as JSON under a directory:
//
//	<dir>/artifacts/<algorithm>/<hex>.json
//	<dir>/latest/<name>
//
// Files are written to a temporary name and renamed into place.
type DiskStore struct {
	dir string
	mu  sync.Mutex
}

func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

func (s *DiskStore) Publish(ctx context.Context, a *Artifact) error {
	if err := validate(a); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomic(s.artifactPath(a.ID), data); err != nil {
		return err
	}
	// the pointer moves only after the artifact itself is on disk
	return writeAtomic(s.latestPath(a.Name), []byte(a.ID.String()+"\n"))
}

func (s *DiskStore) Latest(ctx context.Context, name string) (*Artifact, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.latestPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest artifact for %s: %w", name, err)
	}

	id, err := digest.Parse(string(trimNewline(data)))
	if err != nil {
		return nil, fmt.Errorf("corrupt latest pointer for %s: %w", name, err)
	}
	return s.Get(ctx, id)
}

func (s *DiskStore) Get(ctx context.Context, id digest.Digest) (*Artifact, error) {
	if err := id.Validate(); err != nil {
		return nil, fmt.Errorf("invalid artifact id %q: %w", id, err)
	}
	data, err := os.ReadFile(s.artifactPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", id, err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode artifact %s: %w", id, err)
	}
	return &a, nil
}

func (s *DiskStore) artifactPath(id digest.Digest) string {
	return filepath.Join(s.dir, "artifacts", string(id.Algorithm()), id.Encoded()+".json")
}

func (s *DiskStore) latestPath(name string) string {
	return filepath.Join(s.dir, "latest", name)
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

func validate(a *Artifact) error {
	if a == nil {
		return errors.New("nil artifact")
	}
	if err := a.ID.Validate(); err != nil {
		return fmt.Errorf("invalid artifact id %q: %w", a.ID, err)
	}
	return validateName(a.Name)
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	return nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func clone(a *Artifact) *Artifact {
	cp := *a
	cp.Layers = make([]Layer, len(a.Layers))
	for i, l := range a.Layers {
		l.Args = append([]string(nil), l.Args...)
		l.Outputs = append([]string(nil), l.Outputs...)
		cp.Layers[i] = l
	}
	cp.Config.Env = append(cp.Config.Env[:0:0], a.Config.Env...)
	cp.Config.Cmd = append([]string(nil), a.Config.Cmd...)
	cp.Config.ExposedPorts = append([]string(nil), a.Config.ExposedPorts...)
	cp.Secrets = append([]string(nil), a.Secrets...)
	cp.Dependencies = append([]string(nil), a.Dependencies...)
	return &cp
}
