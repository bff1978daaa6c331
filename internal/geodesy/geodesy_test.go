package geodesy

import (
	"math"
	"testing"
)

func TestDistance_Zero(t *testing.T) {
	if d := Distance(40.0, -105.0, 40.0, -105.0); d != 0 {
		t.Errorf("expected 0 for identical points, got %f", d)
	}
}

func TestDistance_Symmetric(t *testing.T) {
	pairs := [][4]float64{
		{39.7392, -104.9903, 39.7817, -104.9715}, // Denver downtown to north
		{0, 0, 0.001, 0.001},
		{-33.8688, 151.2093, 51.5074, -0.1278}, // Sydney to London
		{89.9, 0, -89.9, 180},
	}
	for _, p := range pairs {
		ab := Distance(p[0], p[1], p[2], p[3])
		ba := Distance(p[2], p[3], p[0], p[1])
		if math.Abs(ab-ba) > 1e-9 {
			t.Errorf("asymmetric: %f vs %f for %v", ab, ba, p)
		}
	}
}

func TestDistance_KnownValues(t *testing.T) {
	// One degree of latitude is ~111.2 km on a 6371 km sphere.
	d := Distance(40.0, -105.0, 41.0, -105.0)
	if math.Abs(d-111195) > 100 {
		t.Errorf("one degree latitude: got %f, want ~111195", d)
	}

	// ~100 m north of a point.
	d = Distance(39.7392, -104.9903, 39.7401, -104.9903)
	if d < 90 || d > 110 {
		t.Errorf("expected ~100m, got %f", d)
	}
}

func TestDistance_NonNegative(t *testing.T) {
	coords := [][2]float64{{0, 0}, {90, 180}, {-90, -180}, {12.34, -56.78}}
	for _, a := range coords {
		for _, b := range coords {
			if d := Distance(a[0], a[1], b[0], b[1]); d < 0 {
				t.Errorf("negative distance %f for %v -> %v", d, a, b)
			}
		}
	}
}

func TestEncodeGeohash_KnownValue(t *testing.T) {
	// Reference hash for 57.64911, 10.40744 is "u4pruydqqvj".
	if h := EncodeGeohash(57.64911, 10.40744, 11); h != "u4pruydqqvj" {
		t.Errorf("got %q, want u4pruydqqvj", h)
	}
}

func TestEncodeGeohash_Deterministic(t *testing.T) {
	a := EncodeGeohash(39.7392, -104.9903, 9)
	b := EncodeGeohash(39.7392, -104.9903, 9)
	if a != b {
		t.Errorf("non-deterministic: %q vs %q", a, b)
	}
	if len(a) != 9 {
		t.Errorf("expected precision 9, got %d", len(a))
	}
}

func TestEncodeGeohash_PrefixProperty(t *testing.T) {
	long := EncodeGeohash(39.7392, -104.9903, 12)
	short := EncodeGeohash(39.7392, -104.9903, 5)
	if long[:5] != short {
		t.Errorf("shorter hash %q is not a prefix of %q", short, long)
	}
}

func TestEncodeGeohash_PrecisionClamped(t *testing.T) {
	if h := EncodeGeohash(0, 0, 0); len(h) != 1 {
		t.Errorf("precision 0 should clamp to 1, got len %d", len(h))
	}
	if h := EncodeGeohash(0, 0, 50); len(h) != 12 {
		t.Errorf("precision 50 should clamp to 12, got len %d", len(h))
	}
}
