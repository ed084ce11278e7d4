package shader

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bioglaze/aether3d-sub000/common"
)

//go:embed assets/fallback_render.wgsl
var fallbackRenderSource string

//go:embed assets/fallback_compute.wgsl
var fallbackComputeSource string

// Fallback returns a no-op shader of the given type. The render fallback places every vertex
// outside the clip volume, so draws with it produce no fragments.
//
// Parameters:
//   - shaderType: render or compute
//
// Returns:
//   - Shader: the fallback shader
func Fallback(shaderType ShaderType) Shader {
	src := fallbackRenderSource
	if shaderType == ShaderTypeCompute {
		src = fallbackComputeSource
	}
	s, err := NewShader("fallback-"+shaderType.String(), shaderType, Source{Format: SourceWGSL, WGSL: src})
	if err != nil {
		// The embedded sources are fixed; a failure here means the validator itself is broken.
		panic(fmt.Sprintf("shader: fallback %s shader invalid: %v", shaderType, err))
	}
	s.(*shader).fallback = true
	return s
}

// Load reads a shader from disk. Files ending in ".spv" are SPIR-V; anything else is WGSL.
// Read and validation failures are soft: the error is logged and the no-op fallback is returned
// together with the error.
//
// Parameters:
//   - name: debug name
//   - shaderType: render or compute
//   - path: file path
//   - options: functional options forwarded to NewShader
//
// Returns:
//   - Shader: the loaded shader, or the fallback on failure
//   - error: the load error, nil on success
func Load(name string, shaderType ShaderType, path string, options ...ShaderBuilderOption) (Shader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		common.Logger().Warn("shader load failed, using fallback", "shader", name, "path", path, "err", err)
		return Fallback(shaderType), fmt.Errorf("shader %q: %w", name, err)
	}

	var src Source
	if strings.EqualFold(filepath.Ext(path), ".spv") {
		if len(data)%4 != 0 {
			err := fmt.Errorf("shader %q: spir-v size %d is not a multiple of 4", name, len(data))
			common.Logger().Warn("shader load failed, using fallback", "shader", name, "path", path, "err", err)
			return Fallback(shaderType), err
		}
		words := make([]uint32, len(data)/4)
		for i := range words {
			words[i] = binary.LittleEndian.Uint32(data[i*4:])
		}
		src = Source{Format: SourceSPIRV, SPIRV: words}
	} else {
		src = Source{Format: SourceWGSL, WGSL: string(data)}
	}

	s, err := NewShader(name, shaderType, src, options...)
	if err != nil {
		common.Logger().Warn("shader invalid, using fallback", "shader", name, "path", path, "err", err)
		return Fallback(shaderType), err
	}
	return s, nil
}

// Compile validates WGSL source and returns the fallback on failure, logging the error.
//
// Parameters:
//   - name: debug name
//   - shaderType: render or compute
//   - wgsl: WGSL source
//   - options: functional options forwarded to NewShader
//
// Returns:
//   - Shader: the compiled shader, or the fallback on failure
//   - error: the validation error, nil on success
func Compile(name string, shaderType ShaderType, wgsl string, options ...ShaderBuilderOption) (Shader, error) {
	s, err := NewShader(name, shaderType, Source{Format: SourceWGSL, WGSL: wgsl}, options...)
	if err != nil {
		common.Logger().Warn("shader invalid, using fallback", "shader", name, "err", err)
		return Fallback(shaderType), err
	}
	return s, nil
}
