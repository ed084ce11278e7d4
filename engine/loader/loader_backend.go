package loader

import (
	"io"
)

// loaderBackend is one model file format. Concrete implementations (e.g., gltfLoaderBackend) handle the
// format-specific decoding.
type loaderBackend interface {
	// Load imports the file at path.
	//
	// Parameters:
	//   - path: the file path to load
	//
	// Returns:
	//   - *ImportedModel: the imported model data
	//   - error: error if loading fails
	Load(path string) (*ImportedModel, error)

	// LoadReader imports a model from a reader stream.
	//
	// Parameters:
	//   - r: the reader providing model data
	//
	// Returns:
	//   - *ImportedModel: the imported model data
	//   - error: error if loading fails
	LoadReader(r io.Reader) (*ImportedModel, error)

	// Extensions returns the lower-case file extensions, dot included, the backend reads.
	Extensions() []string
}
