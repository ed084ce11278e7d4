package light

import (
	"math"
	"testing"

	"github.com/bioglaze/aether3d-sub000/common"
)

func TestTileCounts(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		wantX, wantY  uint32
	}{
		{"1080p", 1920, 1080, 120, 68},
		{"one pixel over", 1921, 1080, 121, 68},
		{"vga", 640, 480, 40, 30},
		{"single pixel", 1, 1, 1, 1},
		{"empty", 0, 0, 0, 0},
		{"negative", -16, 32, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := TileCounts(tt.width, tt.height)
			if x != tt.wantX || y != tt.wantY {
				t.Errorf("TileCounts(%d, %d) = %d, %d, want %d, %d", tt.width, tt.height, x, y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestPackLightCountsRoundTrip(t *testing.T) {
	tests := []struct {
		point, spot int
	}{
		{0, 0},
		{3, 0},
		{0, 7},
		{2048, 2048},
		{0xFFFF, 1},
		{1, 0xFFFF},
	}
	for _, tt := range tests {
		packed := PackLightCounts(tt.point, tt.spot)
		if want := uint32(tt.spot)<<16 | uint32(tt.point); packed != want {
			t.Errorf("PackLightCounts(%d, %d) = %#x, want %#x", tt.point, tt.spot, packed, want)
		}
		p, s := UnpackLightCounts(packed)
		if p != tt.point || s != tt.spot {
			t.Errorf("UnpackLightCounts(%#x) = %d, %d, want %d, %d", packed, p, s, tt.point, tt.spot)
		}
	}
}

func TestPackLightCountsSaturates(t *testing.T) {
	packed := PackLightCounts(70000, 0x10000)
	p, s := UnpackLightCounts(packed)
	if p != 0xFFFF || s != 0xFFFF {
		t.Errorf("saturated counts = %d, %d, want 65535, 65535", p, s)
	}
	if got := PackLightCounts(-1, 2); got != 2<<16 {
		t.Errorf("negative point count packed to %#x", got)
	}
}

func TestConeBoundingSphere(t *testing.T) {
	apex := common.Vec3{1, 2, 3}
	axis := common.Vec3{0, 0, -1}
	tests := []struct {
		name     string
		angleDeg float64
	}{
		{"narrow", 20},
		{"right", 45},
		{"wide", 70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const length = 4
			cos := float32(math.Cos(tt.angleDeg * math.Pi / 180))
			sin := float32(math.Sin(tt.angleDeg * math.Pi / 180))
			center, r := ConeBoundingSphere(apex, axis, length, cos)

			// The apex and every point of the cap rim must be inside the sphere.
			rimCenter := apex.Add(axis.Scale(length * cos))
			rim := rimCenter.Add(common.Vec3{1, 0, 0}.Scale(length * sin))
			for _, p := range []common.Vec3{apex, rim} {
				if d := p.Sub(center).Length(); d > r+1e-4 {
					t.Errorf("point %v at %v from center, radius %v", p, d, r)
				}
			}
			if r > length+1e-4 {
				t.Errorf("radius %v exceeds the cone length", r)
			}
		})
	}
}

func TestTileFrustumContainsTileRay(t *testing.T) {
	proj := common.Perspective(math.Pi/3, 640.0/480.0, 0.1, 100)
	invProj, ok := proj.Inverse()
	if !ok {
		t.Fatal("projection not invertible")
	}
	f := TileFrustum(invProj, 3, 5, 640, 480, 0.1, 100)

	// A point on the ray through the tile center at depth 10 is inside; the same depth at the far screen
	// corner is not.
	inside := invProj.Unproject(2*(3*TileSize+8)/640.0-1, 1-2*(5*TileSize+8)/480.0, 1)
	inside = inside.Scale(10 / -inside[2])
	if !f.IntersectsSphere(inside, 0) {
		t.Errorf("tile center point %v outside its slab", inside)
	}
	outside := invProj.Unproject(0.99, -0.99, 1)
	outside = outside.Scale(10 / -outside[2])
	if f.IntersectsSphere(outside, 0.01) {
		t.Errorf("screen corner point %v inside tile slab", outside)
	}
	if f.IntersectsSphere(common.Vec3{inside[0], inside[1], 50}, 1) {
		t.Error("point behind the eye inside slab")
	}
}
