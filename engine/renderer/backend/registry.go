package backend

import (
	"errors"
	"fmt"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/gogpu/gpucontext"
)

// Factory opens a backend.
type Factory func(cfg Config) (RendererBackend, error)

// ErrBackendUnavailable reports that no registered backend could be opened.
var ErrBackendUnavailable = errors.New("backend: no usable backend")

// priority is the order BackendTypeAuto tries backends in.
var priority = []BackendType{BackendTypeD3D12, BackendTypeMetal, BackendTypeVulkan, BackendTypeWGPU, BackendTypeNoop}

var registry = func() *gpucontext.Registry[Factory] {
	names := make([]string, len(priority))
	for i, t := range priority {
		names[i] = t.String()
	}
	return gpucontext.NewRegistry[Factory](gpucontext.WithPriority(names...))
}()

// Register makes a backend available to Open. Backends register themselves from init.
//
// Parameters:
//   - t: the backend type
//   - f: opens the backend
func Register(t BackendType, f Factory) {
	registry.Register(t.String(), func() Factory { return f })
}

// Registered reports whether a backend type has been registered.
func Registered(t BackendType) bool {
	return registry.Has(t.String())
}

// Open opens a backend. BackendTypeAuto tries every registered backend in priority order and returns
// the first that opens.
//
// Parameters:
//   - t: the backend type, or BackendTypeAuto
//   - cfg: startup settings
//
// Returns:
//   - RendererBackend: the opened backend
//   - error: ErrBackendUnavailable (wrapped) or the open error of an explicit type
func Open(t BackendType, cfg Config) (RendererBackend, error) {
	if t != BackendTypeAuto {
		if !registry.Has(t.String()) {
			return nil, fmt.Errorf("%w: %s is not registered", ErrBackendUnavailable, t)
		}
		b, err := registry.Get(t.String())(cfg)
		if err != nil {
			return nil, fmt.Errorf("backend: open %s: %w", t, err)
		}
		return b, nil
	}

	var errs []error
	for _, candidate := range priority {
		if !registry.Has(candidate.String()) {
			continue
		}
		b, err := registry.Get(candidate.String())(cfg)
		if err != nil {
			common.Logger().Debug("backend unavailable", "backend", candidate.String(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", candidate, err))
			continue
		}
		common.Logger().Info("backend selected", "backend", candidate.String(), "adapter", b.AdapterInfo().Name)
		return b, nil
	}
	if len(errs) == 0 {
		return nil, ErrBackendUnavailable
	}
	return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, errors.Join(errs...))
}
