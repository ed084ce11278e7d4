package shader

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

// BindingKind classifies a shader resource binding.
type BindingKind int

const (
	BindingTexture BindingKind = iota
	BindingDepthTexture
	BindingStorageTexture
	BindingSampler
	BindingReadBuffer
	BindingStorageBuffer
	BindingUniformBuffer
)

var bindingKindNames = [...]string{
	BindingTexture:        "texture",
	BindingDepthTexture:   "depth-texture",
	BindingStorageTexture: "storage-texture",
	BindingSampler:        "sampler",
	BindingReadBuffer:     "read-buffer",
	BindingStorageBuffer:  "storage-buffer",
	BindingUniformBuffer:  "uniform-buffer",
}

func (k BindingKind) String() string {
	if k < 0 || int(k) >= len(bindingKindNames) {
		return fmt.Sprintf("BindingKind(%d)", int(k))
	}
	return bindingKindNames[k]
}

// IsBuffer reports whether the binding is backed by a buffer.
func (k BindingKind) IsBuffer() bool {
	return k == BindingReadBuffer || k == BindingStorageBuffer || k == BindingUniformBuffer
}

// Binding is one @group/@binding resource declared by a shader.
type Binding struct {
	Group   uint32
	Binding uint32
	Kind    BindingKind
	Name    string
	// Cube is set for cube texture bindings.
	Cube bool
}

const spirvMagic = 0x07230203

func checkSPIRV(words []uint32) error {
	if len(words) < 5 {
		return fmt.Errorf("spir-v blob too short: %d words", len(words))
	}
	if words[0] != spirvMagic {
		return fmt.Errorf("bad spir-v magic 0x%08x", words[0])
	}
	return nil
}

// reflectWGSL parses, lowers and validates the WGSL source, then records the entry point
// workgroup size and the declared bindings.
func (s *shader) reflectWGSL() error {
	ast, err := naga.Parse(s.source.WGSL)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	module, err := naga.LowerWithSource(ast, s.source.WGSL)
	if err != nil {
		return fmt.Errorf("lower: %w", err)
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if len(verrs) > 0 {
		msgs := make([]string, 0, len(verrs))
		for _, ve := range verrs {
			msgs = append(msgs, ve.Error())
		}
		return fmt.Errorf("validate: %s", strings.Join(msgs, "; "))
	}

	if err := s.checkEntryPoints(module); err != nil {
		return err
	}
	s.bindings = reflectBindings(module)
	return nil
}

func (s *shader) checkEntryPoints(module *ir.Module) error {
	find := func(name string, stage ir.ShaderStage) *ir.EntryPoint {
		for i := range module.EntryPoints {
			ep := &module.EntryPoints[i]
			if ep.Name == name && ep.Stage == stage {
				return ep
			}
		}
		return nil
	}

	var errs []error
	switch s.shaderType {
	case ShaderTypeCompute:
		ep := find(s.computeEntry, ir.StageCompute)
		if ep == nil {
			errs = append(errs, fmt.Errorf("missing @compute entry point %q", s.computeEntry))
		} else {
			s.workgroupSize = ep.Workgroup
		}
	default:
		if find(s.vertexEntry, ir.StageVertex) == nil {
			errs = append(errs, fmt.Errorf("missing @vertex entry point %q", s.vertexEntry))
		}
		if find(s.fragmentEntry, ir.StageFragment) == nil {
			errs = append(errs, fmt.Errorf("missing @fragment entry point %q", s.fragmentEntry))
		}
	}
	return errors.Join(errs...)
}

func reflectBindings(module *ir.Module) []Binding {
	var out []Binding
	for _, gv := range module.GlobalVariables {
		if gv.Binding == nil {
			continue
		}
		b := Binding{Group: gv.Binding.Group, Binding: gv.Binding.Binding, Name: gv.Name}
		switch gv.Space {
		case ir.SpaceUniform:
			b.Kind = BindingUniformBuffer
		case ir.SpaceStorage:
			if gv.Access == ir.StorageRead {
				b.Kind = BindingReadBuffer
			} else {
				b.Kind = BindingStorageBuffer
			}
		case ir.SpaceHandle:
			if int(gv.Type) >= len(module.Types) {
				continue
			}
			switch inner := module.Types[gv.Type].Inner.(type) {
			case ir.SamplerType:
				b.Kind = BindingSampler
			case ir.ImageType:
				b.Cube = inner.Dim == ir.DimCube
				switch inner.Class {
				case ir.ImageClassDepth:
					b.Kind = BindingDepthTexture
				case ir.ImageClassStorage:
					b.Kind = BindingStorageTexture
				default:
					b.Kind = BindingTexture
				}
			default:
				continue
			}
		default:
			continue
		}
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b Binding) int {
		if c := cmp.Compare(a.Group, b.Group); c != 0 {
			return c
		}
		return cmp.Compare(a.Binding, b.Binding)
	})
	return out
}

// BindingsInGroup filters bindings to a single bind group.
//
// Parameters:
//   - bindings: the shader bindings
//   - group: the bind group index
//
// Returns:
//   - []Binding: bindings in the group, in binding order
func BindingsInGroup(bindings []Binding, group uint32) []Binding {
	var out []Binding
	for _, b := range bindings {
		if b.Group == group {
			out = append(out, b)
		}
	}
	return out
}
