package scene

import "github.com/bioglaze/aether3d-sub000/engine/light"

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithActive sets whether the scene is active for rendering. Scenes start active.
//
// Parameters:
//   - active: whether the scene is active
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithActive(active bool) SceneBuilderOption {
	return func(s *scene) {
		s.active = active
	}
}

// WithObjects adds initial objects to the scene in order.
//
// Parameters:
//   - objects: the objects to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithObjects(objects ...Object) SceneBuilderOption {
	return func(s *scene) {
		for _, obj := range objects {
			if obj == nil || obj.ID() != 0 {
				continue
			}
			obj.setID(s.nextID)
			s.byID[s.nextID] = obj
			s.objects = append(s.objects, obj)
			s.nextID++
		}
	}
}

// WithLights adds initial lights to the scene.
func WithLights(lights ...light.Light) SceneBuilderOption {
	return func(s *scene) {
		for _, l := range lights {
			if l != nil {
				s.lights = append(s.lights, l)
			}
		}
	}
}

// WithClearColor sets the back buffer clear color of the shaded pass.
func WithClearColor(r, g, b, a float64) SceneBuilderOption {
	return func(s *scene) {
		s.clearColor = [4]float64{r, g, b, a}
	}
}

// WithCullingDisabled turns off frustum culling of objects.
func WithCullingDisabled(disabled bool) SceneBuilderOption {
	return func(s *scene) {
		s.cullingDisabled = disabled
	}
}
