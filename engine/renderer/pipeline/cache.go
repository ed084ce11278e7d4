package pipeline

import (
	"fmt"
	"sync"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/shader"
)

// BuildFunc creates the backend pipeline object for an unbuilt pipeline.
type BuildFunc func(p Pipeline) (native any, err error)

// ReleaseFunc destroys a backend pipeline object.
type ReleaseFunc func(native any)

type cacheEntry struct {
	hash     uint64
	pipeline *pipeline
}

// cache is the implementation of the Cache interface.
type cache struct {
	mu      *sync.Mutex
	entries []cacheEntry
	build   BuildFunc
	release ReleaseFunc
	options []PipelineBuilderOption
	builds  int
}

// Cache maps pipeline keys to built pipelines. Pipelines live until Destroy.
//
// The set of distinct keys in a frame is small, so lookup is a linear scan comparing the hash first and the
// full key second.
type Cache interface {
	// GetOrCreate returns the pipeline for the key, building it on a miss.
	//
	// Parameters:
	//   - key: the structural key; key.Shader must equal s.ID()
	//   - s: the shader to build from on a miss
	//
	// Returns:
	//   - Pipeline: the cached pipeline, identical for equal keys
	//   - error: the build error; failed builds are not cached
	GetOrCreate(key Key, s shader.Shader) (Pipeline, error)

	// Len returns the number of cached pipelines.
	//
	// Returns:
	//   - int: the cache size
	Len() int

	// Builds returns how many times the build func has succeeded.
	//
	// Returns:
	//   - int: the build count
	Builds() int

	// Destroy releases every cached pipeline object and empties the cache.
	Destroy()
}

var _ Cache = &cache{}

// NewCache creates a pipeline cache.
//
// Parameters:
//   - build: creates backend pipeline objects on a miss
//   - release: destroys backend pipeline objects on Destroy, may be nil
//   - options: options applied to every pipeline the cache creates
//
// Returns:
//   - Cache: the cache
func NewCache(build BuildFunc, release ReleaseFunc, options ...PipelineBuilderOption) Cache {
	return &cache{
		mu:      &sync.Mutex{},
		build:   build,
		release: release,
		options: options,
	}
}

func (c *cache) GetOrCreate(key Key, s shader.Shader) (Pipeline, error) {
	if s == nil {
		return nil, fmt.Errorf("pipeline: nil shader for %s", key)
	}
	if !common.Assert(key.Shader == s.ID(), "pipeline key shader mismatch", "key", key.Shader, "shader", s.ID()) {
		key.Shader = s.ID()
	}

	hash := key.Hash()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if e.hash == hash && e.pipeline.key == key {
			return e.pipeline, nil
		}
	}

	p := NewPipeline(key, s, c.options...).(*pipeline)
	native, err := c.build(p)
	if err != nil {
		return nil, fmt.Errorf("pipeline: build %s (%s): %w", key, s.Name(), err)
	}
	p.native = native
	c.entries = append(c.entries, cacheEntry{hash: hash, pipeline: p})
	c.builds++
	common.Logger().Debug("pipeline built", "shader", s.Name(), "key", key.String(), "cached", len(c.entries))
	return p, nil
}

func (c *cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *cache) Builds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builds
}

func (c *cache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.entries) - 1; i >= 0; i-- {
		if c.release != nil && c.entries[i].pipeline.native != nil {
			c.release(c.entries[i].pipeline.native)
		}
	}
	c.entries = nil
}
