package main

import (
	"math"
	"math/rand/v2"

	"github.com/bioglaze/aether3d-sub000/common"
	"github.com/bioglaze/aether3d-sub000/engine/light"
	"github.com/charmbracelet/harmonica"
)

const (
	// swarmStepsPerSecond is the fixed rate the light springs are integrated at.
	swarmStepsPerSecond = 60
	// swarmRetargetDistance is how close a light gets to its target before it picks a new one.
	swarmRetargetDistance = 0.5
)

// swarmLight is one light moving towards a target on a critically damped spring per axis.
type swarmLight struct {
	light    light.Light
	position [3]float64
	velocity [3]float64
	target   [3]float64
}

// lightSwarm moves a set of lights between random points inside a box above the ground.
// Not safe for concurrent use; step it from the goroutine that renders the scene.
type lightSwarm struct {
	spring harmonica.Spring
	rng    *rand.Rand
	lights []*swarmLight
	// half extent of the box on X and Z, height range on Y.
	half       float64
	minY, maxY float64
	// accumulated time not yet integrated.
	pending float64
}

// newLightSwarm creates points point lights and spots spot lights at random positions.
//
// Parameters:
//   - points, spots: how many lights of each type to create
//   - half: half extent of the box the lights wander in on X and Z
//   - lightRange: attenuation radius of every light
//   - seed: random seed, so runs are reproducible
//
// Returns:
//   - *lightSwarm: the swarm
func newLightSwarm(points, spots int, half, lightRange float32, seed uint64) *lightSwarm {
	s := &lightSwarm{
		spring: harmonica.NewSpring(harmonica.FPS(swarmStepsPerSecond), 1.5, 1.0),
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		half:   float64(half),
		minY:   0.5,
		maxY:   3,
	}
	for i := range points + spots {
		start := s.randomPoint()
		var l light.Light
		if i < points {
			l = light.NewLight(light.LightTypePoint,
				light.WithPosition(float32(start[0]), float32(start[1]), float32(start[2])),
				light.WithColor(s.randomColor()),
				light.WithIntensity(2),
				light.WithRange(lightRange),
			)
		} else {
			// Spots hang higher and shine straight down.
			start[1] += 2
			l = light.NewLight(light.LightTypeSpot,
				light.WithPosition(float32(start[0]), float32(start[1]), float32(start[2])),
				light.WithDirection(0, -1, 0),
				light.WithColor(s.randomColor()),
				light.WithIntensity(4),
				light.WithRange(lightRange*2),
				light.WithSpotCone(20, 30),
			)
		}
		s.lights = append(s.lights, &swarmLight{light: l, position: start, target: s.randomPoint()})
	}
	return s
}

func (s *lightSwarm) randomPoint() [3]float64 {
	return [3]float64{
		(s.rng.Float64()*2 - 1) * s.half,
		s.minY + s.rng.Float64()*(s.maxY-s.minY),
		(s.rng.Float64()*2 - 1) * s.half,
	}
}

// randomColor returns a saturated hue.
func (s *lightSwarm) randomColor() (float32, float32, float32) {
	h := s.rng.Float64() * 6
	x := float32(1 - math.Abs(math.Mod(h, 2)-1))
	switch int(h) {
	case 0:
		return 1, x, 0
	case 1:
		return x, 1, 0
	case 2:
		return 0, 1, x
	case 3:
		return 0, x, 1
	case 4:
		return x, 0, 1
	}
	return 1, 0, x
}

// Lights returns every light of the swarm.
func (s *lightSwarm) Lights() []light.Light {
	out := make([]light.Light, len(s.lights))
	for i, l := range s.lights {
		out[i] = l.light
	}
	return out
}

// Step advances the springs by dt seconds in fixed increments and moves the lights.
//
// Parameters:
//   - dt: elapsed time in seconds
//
// Returns:
//   - int: the number of fixed steps taken
func (s *lightSwarm) Step(dt float32) int {
	const step = 1.0 / swarmStepsPerSecond
	// Long stalls (window drags, breakpoints) do not replay seconds of motion.
	s.pending = min(s.pending+float64(dt), 0.25)
	steps := int(s.pending * swarmStepsPerSecond)
	s.pending -= float64(steps) * step
	for range steps {
		for _, l := range s.lights {
			s.advance(l)
		}
	}
	if steps > 0 {
		for _, l := range s.lights {
			p := l.position
			l.light.SetPosition(float32(p[0]), float32(p[1]), float32(p[2]))
		}
	}
	return steps
}

func (s *lightSwarm) advance(l *swarmLight) {
	var distSq float64
	for axis := range 3 {
		l.position[axis], l.velocity[axis] = s.spring.Update(l.position[axis], l.velocity[axis], l.target[axis])
		d := l.target[axis] - l.position[axis]
		distSq += d * d
	}
	if distSq < swarmRetargetDistance*swarmRetargetDistance {
		l.target = s.randomPoint()
		if l.light.Type() == light.LightTypeSpot {
			l.target[1] += 2
		}
	}
}

// position returns the current position of light i.
func (s *lightSwarm) position(i int) common.Vec3 {
	p := s.lights[i].position
	return common.Vec3{float32(p[0]), float32(p[1]), float32(p[2])}
}
