package loader

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/bioglaze/aether3d-sub000/engine/renderer"
)

// ErrNoRenderer is returned by Load and LoadReader on a Loader created without WithRenderer.
var ErrNoRenderer = errors.New("loader: no renderer to upload to")

// LoaderBackendType identifies the model file format backend to use.
type LoaderBackendType int

const (
	// BackendTypeGLTF selects the glTF/GLB loader backend.
	BackendTypeGLTF LoaderBackendType = iota
)

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	renderer renderer.Renderer

	modelCache map[string]*Model

	backend loaderBackend
}

// Loader imports model files, uploads them to a Renderer and caches the resulting Models. Safe for
// concurrent use; uploads go through the renderer, so they must not overlap a frame on another goroutine.
type Loader interface {
	// Load imports and uploads a model file and caches the result by path.
	// If the model is already cached, the cached version is returned.
	//
	// Parameters:
	//   - path: the file path to the model file
	//
	// Returns:
	//   - *Model: the loaded and cached model
	//   - error: error if the format is unsupported, decoding fails or the upload fails
	Load(path string) (*Model, error)

	// LoadReader imports and uploads a self-contained model stream and caches it by the given name.
	//
	// Parameters:
	//   - name: the cache key for the loaded model
	//   - r: the reader providing model data
	//
	// Returns:
	//   - *Model: the loaded model
	//   - error: error if loading fails
	LoadReader(name string, r io.Reader) (*Model, error)

	// Import decodes a model file into CPU-side meshes and materials without uploading or caching it.
	//
	// Parameters:
	//   - path: the file path to the model file
	//
	// Returns:
	//   - *ImportedModel: the imported data
	//   - error: error if loading fails
	Import(path string) (*ImportedModel, error)

	// Get retrieves a cached model by name. Returns nil if not found.
	Get(name string) *Model

	// Models returns a copy of the model cache.
	//
	// Returns:
	//   - map[string]*Model: all cached models keyed by name
	Models() map[string]*Model

	// Destroy releases every cached model and empties the cache.
	Destroy()
}

var _ Loader = &loader{}

// NewLoader creates a new Loader instance with the specified backend type and options applied.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeGLTF)
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader configured with the provided backend and options
func NewLoader(backendType LoaderBackendType, options ...LoaderBuilderOption) Loader {
	l := &loader{
		mu:         sync.RWMutex{},
		modelCache: make(map[string]*Model),
	}

	switch backendType {
	case BackendTypeGLTF:
		l.backend = newGLTFLoaderBackend()
	}

	for _, option := range options {
		option(l)
	}
	return l
}

func (l *loader) Load(path string) (*Model, error) {
	if cached := l.Get(path); cached != nil {
		return cached, nil
	}
	if l.renderer == nil {
		return nil, ErrNoRenderer
	}

	imported, err := l.Import(path)
	if err != nil {
		return nil, err
	}
	return l.store(path, imported)
}

func (l *loader) LoadReader(name string, r io.Reader) (*Model, error) {
	if cached := l.Get(name); cached != nil {
		return cached, nil
	}
	if l.renderer == nil {
		return nil, ErrNoRenderer
	}

	imported, err := l.backend.LoadReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to load from reader %q: %w", name, err)
	}
	if imported.Name == "" {
		imported.Name = name
	}
	return l.store(name, imported)
}

func (l *loader) Import(path string) (*ImportedModel, error) {
	backend, err := l.resolveBackend(path)
	if err != nil {
		return nil, err
	}
	imported, err := backend.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return imported, nil
}

// store uploads an imported model and caches it. When two goroutines load the same key the first
// stored model wins and the other upload is released.
func (l *loader) store(key string, imported *ImportedModel) (*Model, error) {
	m, err := Upload(l.renderer, imported)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.modelCache[key]; ok {
		m.Destroy()
		return existing, nil
	}
	l.modelCache[key] = m
	return m, nil
}

func (l *loader) Get(name string) *Model {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.modelCache[name]
}

func (l *loader) Models() map[string]*Model {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make(map[string]*Model, len(l.modelCache))
	for k, v := range l.modelCache {
		result[k] = v
	}
	return result
}

func (l *loader) Destroy() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, m := range l.modelCache {
		m.Destroy()
		delete(l.modelCache, key)
	}
}

// resolveBackend selects the loader backend reading the file extension.
func (l *loader) resolveBackend(path string) (loaderBackend, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if l.backend == nil || !slices.Contains(l.backend.Extensions(), ext) {
		return nil, fmt.Errorf("unsupported model format: %q", ext)
	}
	return l.backend, nil
}
