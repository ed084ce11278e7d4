package loader

import (
	"github.com/bioglaze/aether3d-sub000/engine/renderer"
)

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithRenderer is an option builder that sets the Renderer models are uploaded to. Without one the
// Loader can only Import.
//
// Parameters:
//   - r: the renderer instance
//
// Returns:
//   - LoaderBuilderOption: a function that applies the renderer option to a loader
func WithRenderer(r renderer.Renderer) LoaderBuilderOption {
	return func(l *loader) {
		l.renderer = r
	}
}

// WithModel is an option builder that pre-populates the model cache, e.g. with procedural geometry.
//
// Parameters:
//   - key: the cache key for the model
//   - m: the model to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the model option to a loader
func WithModel(key string, m *Model) LoaderBuilderOption {
	return func(l *loader) {
		l.modelCache[key] = m
	}
}
