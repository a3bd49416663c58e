package aggregate

import (
	"math"
	"testing"
)

func TestWeightedMean(t *testing.T) {
	m, ok := WeightedMean([]float64{1, 0, -1}, []float64{1, 1, 1})
	if !ok {
		t.Fatal("expected ok")
	}
	if math.Abs(m-0) > 1e-9 {
		t.Fatalf("want 0, got %f", m)
	}

	m, ok = WeightedMean([]float64{1, -1}, []float64{3, 1})
	if !ok {
		t.Fatal("expected ok")
	}
	if math.Abs(m-0.5) > 1e-9 {
		t.Fatalf("want 0.5, got %f", m)
	}
}

func TestWeightedMean_ZeroWeight(t *testing.T) {
	if _, ok := WeightedMean([]float64{1, 2}, []float64{0, 0}); ok {
		t.Fatal("expected not ok when total weight is zero")
	}
	if _, ok := WeightedMean(nil, nil); ok {
		t.Fatal("expected not ok for empty input")
	}
}

func TestSaturate(t *testing.T) {
	cases := []struct{ v, min, max, want float64 }{
		{-2, -1, 1, -1},
		{2, -1, 1, 1},
		{0.3, -1, 1, 0.3},
	}
	for _, c := range cases {
		if got := Saturate(c.v, c.min, c.max); got != c.want {
			t.Errorf("Saturate(%v,%v,%v)=%v want %v", c.v, c.min, c.max, got, c.want)
		}
	}
}

func TestWeightedDistribution(t *testing.T) {
	dists := []map[string]float64{
		{"joy": 1.0},
		{"sadness": 1.0},
	}
	out := WeightedDistribution(dists, []float64{3, 1})
	if math.Abs(out["joy"]-0.75) > 1e-9 {
		t.Fatalf("want joy=0.75, got %f", out["joy"])
	}
	if math.Abs(out["sadness"]-0.25) > 1e-9 {
		t.Fatalf("want sadness=0.25, got %f", out["sadness"])
	}
}

func TestWeightedDistribution_AllZeroWeight(t *testing.T) {
	out := WeightedDistribution([]map[string]float64{{"a": 1}}, []float64{0})
	if len(out) != 0 {
		t.Fatalf("expected empty distribution, got %v", out)
	}
}

func TestTopK(t *testing.T) {
	dist := map[string]float64{"a": 0.1, "b": 0.5, "c": 0.3, "d": 0.9}
	out := TopK(dist, 2)
	if len(out) != 2 {
		t.Fatalf("want 2 keys, got %d", len(out))
	}
	if _, ok := out["d"]; !ok {
		t.Error("expected d in top 2")
	}
	if _, ok := out["b"]; !ok {
		t.Error("expected b in top 2")
	}
}

func TestTopK_KLargerThanDist(t *testing.T) {
	dist := map[string]float64{"a": 1}
	out := TopK(dist, 5)
	if len(out) != 1 {
		t.Fatalf("want 1, got %d", len(out))
	}
}

func TestMeanVector(t *testing.T) {
	vecs := [][]float32{{1, 0}, {0, 1}}
	out := MeanVector(vecs)
	var norm float64
	for _, x := range out {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1.0) > 1e-6 {
		t.Fatalf("expected unit norm, got %f", norm)
	}
	if math.Abs(float64(out[0])-float64(out[1])) > 1e-6 {
		t.Fatalf("expected symmetric components, got %v", out)
	}
}

func TestMeanVector_Empty(t *testing.T) {
	if MeanVector(nil) != nil {
		t.Fatal("expected nil for no vectors")
	}
}
