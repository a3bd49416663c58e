// Package aggregate provides the weighted-fold primitives shared by the
// signal aggregator and the analytics aggregator, generalized from the
// Reciprocal-Rank-Fusion weighting math in the teacher's
// internal/rag/retrieve/fusion.go (there: blending two ranked result sets
// by a configurable weight; here: blending N weighted observations of a
// scalar or a distribution).
package aggregate

import "math"

// WeightedMean folds scalar observations into a single value using
// per-observation weights, then the caller saturates to the declared range.
// Returns (0, false) if the total weight is zero (no usable observations).
func WeightedMean(values []float64, weights []float64) (float64, bool) {
	if len(values) != len(weights) || len(values) == 0 {
		return 0, false
	}
	var sum, wsum float64
	for i, v := range values {
		w := weights[i]
		sum += v * w
		wsum += w
	}
	if wsum == 0 {
		return 0, false
	}
	return sum / wsum, true
}

// Saturate clamps v into [min, max].
func Saturate(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// WeightedDistribution folds per-observation distributions (key -> weight)
// into a single renormalized distribution, weighting each observation's
// distribution by its own observation weight before summing.
func WeightedDistribution(dists []map[string]float64, weights []float64) map[string]float64 {
	out := make(map[string]float64)
	var total float64
	for i, d := range dists {
		w := weights[i]
		if w <= 0 {
			continue
		}
		for k, v := range d {
			out[k] += v * w
			total += v * w
		}
	}
	if total == 0 {
		return out
	}
	for k := range out {
		out[k] /= total
	}
	return out
}

// TopK returns the top-k keys of dist by descending value.
func TopK(dist map[string]float64, k int) map[string]float64 {
	if k <= 0 || len(dist) <= k {
		return dist
	}
	type kv struct {
		key string
		val float64
	}
	items := make([]kv, 0, len(dist))
	for key, val := range dist {
		items = append(items, kv{key, val})
	}
	// simple selection sort for top-k; k is small (typical config 5-10)
	for i := 0; i < k && i < len(items); i++ {
		maxIdx := i
		for j := i + 1; j < len(items); j++ {
			if items[j].val > items[maxIdx].val {
				maxIdx = j
			}
		}
		items[i], items[maxIdx] = items[maxIdx], items[i]
	}
	out := make(map[string]float64, k)
	for i := 0; i < k && i < len(items); i++ {
		out[items[i].key] = items[i].val
	}
	return out
}

// MeanVector averages per-observation vectors weighted equally, then
// re-normalizes to unit length — the embedding aggregation rule in spec
// §4.3 ("mean of per-chunk embeddings, re-normalized").
func MeanVector(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	dim := len(vecs[0])
	sum := make([]float64, dim)
	for _, v := range vecs {
		for i, x := range v {
			if i < dim {
				sum[i] += float64(x)
			}
		}
	}
	n := float64(len(vecs))
	var sq float64
	out := make([]float32, dim)
	for i := range sum {
		out[i] = float32(sum[i] / n)
		sq += float64(out[i]) * float64(out[i])
	}
	if sq > 0 {
		inv := float32(1.0 / math.Sqrt(sq))
		for i := range out {
			out[i] *= inv
		}
	}
	return out
}
