package renderer

import (
	"fmt"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/backend"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/resource"
	"github.com/bioglaze/aether3d-sub000/engine/renderer/shader"
)

// Binding indices render shaders use for the resources Draw binds. The group a binding lives in is up to
// the shader; bindings that change per draw (the uniform block) are best kept in their own group so the
// others are shared across draws. A group holding only the uniform block needs one bind group per ring slot
// and layout, which the heap keeps for the life of the renderer.
const (
	// BindingDrawUniforms is the per-draw uniform block (shader.UniformsSource).
	BindingDrawUniforms = 0
	// BindingTexture is the draw's texture, Uniforms.Texture or a white texel.
	BindingTexture = 1
	// BindingSampler is a linear repeat sampler.
	BindingSampler = 2
	// BindingPointLights is the point light array of the last CullLights.
	BindingPointLights = 3
	// BindingSpotLights is the spot light array of the last CullLights.
	BindingSpotLights = 4
	// BindingTileLights is the per-tile light index buffer of the last CullLights.
	BindingTileLights = 5
	// BindingCullUniforms is the cull uniform block holding the view matrix and grid size.
	BindingCullUniforms = 6

	drawBindings = 7
)

var drawBindingKinds = [drawBindings]shader.BindingKind{
	BindingDrawUniforms: shader.BindingUniformBuffer,
	BindingTexture:      shader.BindingTexture,
	BindingSampler:      shader.BindingSampler,
	BindingPointLights:  shader.BindingReadBuffer,
	BindingSpotLights:   shader.BindingReadBuffer,
	BindingTileLights:   shader.BindingReadBuffer,
	BindingCullUniforms: shader.BindingUniformBuffer,
}

// drawGroupKey identifies a draw bind group by layout and bound objects. Shaders with equal group layouts
// share bind groups.
type drawGroupKey struct {
	layout string
	bound  [drawBindings]any
}

// bindDraw resolves every binding of s to its draw resource, transitions the resources to the states the
// shader reads them in and returns the bind groups by group index.
func (r *renderContext) bindDraw(s shader.Shader) ([]any, error) {
	bindings := s.Bindings()
	if len(bindings) == 0 {
		return nil, nil
	}

	var bound [drawBindings]any
	var slot resource.Resource
	for _, b := range bindings {
		if b.Binding >= drawBindings || drawBindingKinds[b.Binding] != b.Kind {
			return nil, fmt.Errorf("renderer: %q binding %d (%s) is not a draw binding", s.Name(), b.Binding, b.Kind)
		}
		switch b.Binding {
		case BindingDrawUniforms:
			var err error
			if slot, err = r.writeUniforms(s); err != nil {
				return nil, err
			}
			bound[b.Binding] = slot
		case BindingTexture:
			bound[b.Binding] = r.drawTexture(s.Uniforms().Texture)
		case BindingSampler:
			bound[b.Binding] = r.sampler
		case BindingPointLights:
			bound[b.Binding] = r.tiler.PointLightBuffer()
		case BindingSpotLights:
			bound[b.Binding] = r.tiler.SpotLightBuffer()
		case BindingTileLights:
			bound[b.Binding] = r.tiler.IndexBuffer()
		case BindingCullUniforms:
			bound[b.Binding] = r.tiler.UniformBuffer()
		}
	}

	for _, b := range bindings {
		res, ok := bound[b.Binding].(resource.Resource)
		if !ok {
			continue
		}
		switch b.Kind {
		case shader.BindingUniformBuffer:
			r.transition(res, resource.StateUniform)
		default:
			r.transition(res, resource.StateShaderRead)
		}
	}

	groups := make([]any, backend.GroupCount(bindings))
	for g := range groups {
		inGroup := shader.BindingsInGroup(bindings, uint32(g))
		if len(inGroup) == 0 {
			continue
		}
		var err error
		if groups[g], err = r.drawGroup(s, uint32(g), inGroup, &bound); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

// writeUniforms acquires the next ring slot and copies the shader's uniform block into it, with the light
// grid state of the tiler.
func (r *renderContext) writeUniforms(s shader.Shader) (resource.Resource, error) {
	buf, _, err := r.ring.Acquire(r.frameCtx)
	if err != nil {
		return nil, fmt.Errorf("renderer: draw %q: %w", s.Name(), err)
	}
	u := *s.Uniforms()
	info := r.tiler.LightInfo()
	u.TileCountX = info.TileCountX
	u.LightCounts = info.LightCounts
	u.MaxLightsPerTile = info.MaxLightsPerTile
	_, height := r.backend.BackBufferSize()
	u.WindowHeight = uint32(height)
	if err := r.backend.WriteBuffer(buf, 0, u.Marshal()); err != nil {
		return nil, fmt.Errorf("renderer: draw %q uniforms: %w", s.Name(), err)
	}
	return buf, nil
}

func (r *renderContext) drawTexture(tex resource.Resource) resource.Resource {
	switch {
	case tex == nil:
		return r.white
	case tex.Destroyed():
		common.Logger().Debug("draw texture destroyed, using fallback", "texture", tex.Label())
		return r.magenta
	}
	return tex
}

func (r *renderContext) drawGroup(s shader.Shader, group uint32, bindings []shader.Binding, bound *[drawBindings]any) (any, error) {
	key := drawGroupKey{layout: backend.LayoutKey(shader.ShaderTypeRender, bindings)}
	entries := make([]backend.BindingEntry, len(bindings))
	for i, b := range bindings {
		key.bound[b.Binding] = bound[b.Binding]
		entries[i] = backend.BindingEntry{Binding: b, Layer: -1}
		switch v := bound[b.Binding].(type) {
		case resource.Resource:
			if b.Kind.IsBuffer() {
				entries[i].Buffer = v
			} else {
				entries[i].Texture = v
			}
		default:
			entries[i].Sampler = v
		}
	}

	if hs, ok := r.drawBG[key]; ok {
		if g, ok := r.groups.Get(hs); ok {
			return g, nil
		}
	}
	g, err := r.backend.CreateBindGroup(fmt.Sprintf("%s group %d", s.Name(), group), shader.ShaderTypeRender, entries)
	if err != nil {
		return nil, fmt.Errorf("renderer: bind group %d of %q: %w", group, s.Name(), err)
	}
	hs, err := r.groups.Allocate(g)
	if err != nil {
		r.backend.Release(g)
		return nil, fmt.Errorf("renderer: bind group %d of %q: %w", group, s.Name(), err)
	}
	r.drawBG[key] = hs
	return g, nil
}

// evictBindGroups retires the cached bind groups that reference destroyed resources. Their heap slots stay
// consumed.
func (r *renderContext) evictBindGroups() int {
	n := 0
	for key, hs := range r.drawBG {
		for _, v := range key.bound {
			if res, ok := v.(resource.Resource); ok && res.Destroyed() {
				r.groups.Retire(hs)
				delete(r.drawBG, key)
				n++
				break
			}
		}
	}
	return n + r.compute.EvictDestroyed()
}
