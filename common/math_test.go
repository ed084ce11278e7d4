package common

import (
	"math"
	"testing"
)

func approx(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

func TestMat4Inverse(t *testing.T) {
	tests := []struct {
		name string
		m    Mat4
	}{
		{"identity", Identity()},
		{"model", ModelMatrix(Vec3{1, 2, 3}, Vec3{0.3, 1.1, -0.4}, Vec3{2, 2, 2})},
		{"view", LookAt(Vec3{0, 5, 10}, Vec3{}, Vec3{0, 1, 0})},
		{"projection", Perspective(1.0, 16.0/9.0, 0.1, 100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, ok := tt.m.Inverse()
			if !ok {
				t.Fatal("expected invertible matrix")
			}
			got := tt.m.Mul(inv)
			want := Identity()
			for i := range got {
				if !approx(got[i], want[i]) {
					t.Fatalf("m * inverse(m) [%d] = %f, want %f", i, got[i], want[i])
				}
			}
		})
	}
}

func TestPerspectiveDepthRange(t *testing.T) {
	near, far := PerspectiveDepthRange(Perspective(1.2, 1.5, 0.5, 250))
	if !approx(near, 0.5) || math.Abs(float64(far-250)) > 0.05 {
		t.Fatalf("depth range = (%f, %f), want (0.5, 250)", near, far)
	}
}

func TestPerspectiveMapsNearAndFarToClipDepth(t *testing.T) {
	p := Perspective(1.0, 1.0, 1, 10)
	nearClip := p.MulVec4([4]float32{0, 0, -1, 1})
	farClip := p.MulVec4([4]float32{0, 0, -10, 1})
	if !approx(nearClip[2]/nearClip[3], 0) {
		t.Fatalf("near depth = %f, want 0", nearClip[2]/nearClip[3])
	}
	if !approx(farClip[2]/farClip[3], 1) {
		t.Fatalf("far depth = %f, want 1", farClip[2]/farClip[3])
	}
}

func TestLookAtMovesEyeToOrigin(t *testing.T) {
	eye := Vec3{3, 4, 5}
	v := LookAt(eye, Vec3{0, 0, 0}, Vec3{0, 1, 0})
	got := v.TransformPoint(eye)
	for i := range got {
		if !approx(got[i], 0) {
			t.Fatalf("eye in view space = %v, want origin", got)
		}
	}
	// The target lies straight ahead on -Z.
	target := v.TransformPoint(Vec3{})
	if !approx(target[0], 0) || !approx(target[1], 0) || target[2] >= 0 {
		t.Fatalf("target in view space = %v, want (0, 0, -d)", target)
	}
}

func TestFrustumIntersectsSphere(t *testing.T) {
	proj := Perspective(1.0, 1.0, 0.1, 50)
	view := LookAt(Vec3{0, 0, 10}, Vec3{}, Vec3{0, 1, 0})
	f := ExtractFrustum(proj.Mul(view))

	tests := []struct {
		name   string
		center Vec3
		radius float32
		want   bool
	}{
		{"in front", Vec3{0, 0, 0}, 1, true},
		{"behind camera", Vec3{0, 0, 20}, 1, false},
		{"far left", Vec3{-100, 0, 0}, 1, false},
		{"straddling far plane", Vec3{0, 0, -40}, 1, true},
		{"beyond far plane", Vec3{0, 0, -60}, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.IntersectsSphere(tt.center, tt.radius); got != tt.want {
				t.Fatalf("IntersectsSphere(%v, %f) = %v, want %v", tt.center, tt.radius, got, tt.want)
			}
		})
	}
}

func TestClampIndex(t *testing.T) {
	if DebugBuild {
		t.Skip("contract violations panic in debug builds")
	}
	tests := []struct {
		v, n, want int
	}{
		{3, 5, 3},
		{-1, 5, 0},
		{7, 5, 4},
	}
	for _, tt := range tests {
		if got := ClampIndex(tt.v, tt.n, "test"); got != tt.want {
			t.Fatalf("ClampIndex(%d, %d) = %d, want %d", tt.v, tt.n, got, tt.want)
		}
	}
}

func TestCoalesce(t *testing.T) {
	if got := Coalesce("", "b", "c"); got != "b" {
		t.Fatalf("Coalesce = %q, want %q", got, "b")
	}
	if got := Coalesce(0, 0); got != 0 {
		t.Fatalf("Coalesce = %d, want 0", got)
	}
}
