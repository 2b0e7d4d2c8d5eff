package build

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/opencontainers/go-digest"

	"github.com/railwayapp/stevedore/internal/artifact"
)

// LayerCache memoizes completed pipeline steps by layer key. Entries are
// written whole once a step has finished and are never modified.
type LayerCache interface {
	Get(ctx context.Context, key digest.Digest) (artifact.Layer, bool, error)
	Put(ctx context.Context, layer artifact.Layer) error
}

// MemoryCache is a process-local LayerCache.
type MemoryCache struct {
	mu     sync.RWMutex
	layers map[digest.Digest]artifact.Layer
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{layers: make(map[digest.Digest]artifact.Layer)}
}

func (c *MemoryCache) Get(ctx context.Context, key digest.Digest) (artifact.Layer, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.layers[key]
	if !ok {
		return artifact.Layer{}, false, nil
	}
	l.Outputs = append([]string(nil), l.Outputs...)
	return l, true, nil
}

func (c *MemoryCache) Put(ctx context.Context, layer artifact.Layer) error {
	layer.Outputs = append([]string(nil), layer.Outputs...)
	layer.CacheHit = false

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.layers[layer.Key]; exists {
		return nil
	}
	c.layers[layer.Key] = layer
	return nil
}

// Len returns the number of cached layers.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.layers)
}

// DiskCache stores one JSON file per layer under
// <dir>/layers/<algorithm>/<hex>.json.
type DiskCache struct {
	dir string
}

func NewDiskCache(dir string) *DiskCache {
	return &DiskCache{dir: dir}
}

func (c *DiskCache) path(key digest.Digest) string {
	return filepath.Join(c.dir, "layers", string(key.Algorithm()), key.Encoded()+".json")
}

func (c *DiskCache) Get(ctx context.Context, key digest.Digest) (artifact.Layer, bool, error) {
	if err := key.Validate(); err != nil {
		return artifact.Layer{}, false, fmt.Errorf("invalid layer key %q: %w", key, err)
	}
	data, err := os.ReadFile(c.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return artifact.Layer{}, false, nil
	}
	if err != nil {
		return artifact.Layer{}, false, fmt.Errorf("failed to read cached layer %s: %w", key, err)
	}

	var l artifact.Layer
	if err := json.Unmarshal(data, &l); err != nil || l.Key != key {
		// an unreadable entry is a miss; the step runs again and replaces it
		return artifact.Layer{}, false, nil
	}
	return l, true, nil
}

func (c *DiskCache) Put(ctx context.Context, layer artifact.Layer) error {
	if err := layer.Key.Validate(); err != nil {
		return fmt.Errorf("invalid layer key %q: %w", layer.Key, err)
	}
	layer.CacheHit = false
	data, err := json.Marshal(layer)
	if err != nil {
		return fmt.Errorf("failed to encode layer %s: %w", layer.Key, err)
	}

	path := c.path(layer.Key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create cache entry: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
