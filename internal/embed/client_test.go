package embed

import "testing"

func TestNormalizeVector_ProducesUnitVector(t *testing.T) {
	v := normalizeVector([]float32{3, 4})
	want := []float32{0.6, 0.8}
	for i := range v {
		diff := v[i] - want[i]
		if diff < -0.0001 || diff > 0.0001 {
			t.Fatalf("expected %v, got %v", want, v)
		}
	}
}

func TestNormalizeVector_ZeroVectorUnchanged(t *testing.T) {
	v := normalizeVector([]float32{0, 0, 0})
	for _, x := range v {
		if x != 0 {
			t.Fatalf("expected zero vector to stay zero, got %v", v)
		}
	}
}

func TestEncodeDecodeVector_RoundTrips(t *testing.T) {
	v := []float32{0.1, -0.2, 3.5, 0}
	decoded, err := decodeVector(encodeVector(v))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range v {
		if decoded[i] != v[i] {
			t.Fatalf("round trip mismatch at %d: got %f want %f", i, decoded[i], v[i])
		}
	}
}
