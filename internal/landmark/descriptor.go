package landmark

import (
	"math"
	"math/rand"

	"github.com/bamot-go/bamot/internal/track"
	"gonum.org/v1/gonum/floats"
)

// DescriptorMode selects the §4.5 median-descriptor strategy.
type DescriptorMode int

const (
	// ModeSampledMedian draws a random subsample of a landmark's
	// observations and picks the one with the smallest summed distance to
	// the rest of the sample — the original implementation's approach,
	// which avoids an O(n^2) pass over every observation a long-lived
	// landmark accumulates.
	ModeSampledMedian DescriptorMode = iota
	// ModeElementwiseMedian takes the per-dimension median across every
	// observation's descriptor, a cheaper (but less robust to descriptor
	// bimodality) alternative.
	ModeElementwiseMedian
)

// MedianDescriptor picks a single representative descriptor for a
// landmark's accumulated observations, using a fresh rng for
// ModeSampledMedian's subsampling so callers can make selection
// deterministic in tests.
func MedianDescriptor(lm *track.Landmark, mode DescriptorMode, sampleSize int, rng *rand.Rand) []float64 {
	if len(lm.Observations) == 0 {
		return nil
	}
	if len(lm.Observations) == 1 {
		return lm.Observations[0].Descriptor
	}
	switch mode {
	case ModeElementwiseMedian:
		return elementwiseMedian(lm.Observations)
	default:
		return sampledMedian(lm.Observations, sampleSize, rng)
	}
}

func elementwiseMedian(obs []track.Observation) []float64 {
	dims := len(obs[0].Descriptor)
	out := make([]float64, dims)
	column := make([]float64, len(obs))
	for d := 0; d < dims; d++ {
		for i, o := range obs {
			column[i] = o.Descriptor[d]
		}
		floats.Sort(column)
		out[d] = column[len(column)/2]
	}
	return out
}

func sampledMedian(obs []track.Observation, sampleSize int, rng *rand.Rand) []float64 {
	if sampleSize <= 0 || sampleSize > len(obs) {
		sampleSize = len(obs)
	}
	perm := rng.Perm(len(obs))[:sampleSize]
	sample := make([]track.Observation, sampleSize)
	for i, idx := range perm {
		sample[i] = obs[idx]
	}

	bestIdx := 0
	bestSum := math.Inf(1)
	for i := range sample {
		sum := 0.0
		for j := range sample {
			if i == j {
				continue
			}
			sum += descriptorDistance(sample[i].Descriptor, sample[j].Descriptor)
		}
		if sum < bestSum {
			bestSum = sum
			bestIdx = i
		}
	}
	return sample[bestIdx].Descriptor
}

func descriptorDistance(a, b []float64) float64 {
	sum := 0.0
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
