package vecmath

import (
	"math"
	"testing"
)

func TestDot(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0.5, 0.5, 0}
	got := Dot(a, b)
	if math.Abs(float64(got)-0.5) > 1e-6 {
		t.Errorf("expected dot 0.5, got %f", got)
	}
	if Dot(a, b) != Dot(b, a) {
		t.Error("dot product should be symmetric")
	}
}

func TestNormalizeUnitVector(t *testing.T) {
	v := []float32{1, 0, 0}
	Normalize(v)
	if math.Abs(Norm(v)-1) > 1e-6 {
		t.Errorf("expected unit norm, got %f", Norm(v))
	}
	// Normalizing an already-unit vector must be a no-op within tolerance.
	before := append([]float32(nil), v...)
	Normalize(v)
	for i := range v {
		if math.Abs(float64(v[i]-before[i])) > 1e-6 {
			t.Errorf("component %d changed from %f to %f", i, before[i], v[i])
		}
	}
}

func TestNormalizeScales(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("expected [0.6 0.8], got %v", v)
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	Normalize(v)
	for i, x := range v {
		if x != 0 {
			t.Errorf("component %d should stay zero, got %f", i, x)
		}
	}
	if !IsZero(v) {
		t.Error("zero vector should report IsZero")
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 2},
		{"length mismatch", []float32{1}, []float32{1, 0}, 2},
		{"empty", nil, nil, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineDistance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestCosineDistanceScaleInvariant(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{2, 4, 6} // same direction, different magnitude
	if d := CosineDistance(a, b); math.Abs(d) > 1e-6 {
		t.Errorf("expected distance 0 for parallel vectors, got %f", d)
	}
}
