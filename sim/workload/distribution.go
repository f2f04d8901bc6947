package workload

import (
	"math"
	"math/rand"
)

// DurationSampler generates service and patience times.
type DurationSampler interface {
	// Sample returns a non-negative duration, possibly +Inf.
	Sample(rng *rand.Rand) float64
}

// ExpSampler produces exponentially-distributed durations.
type ExpSampler struct {
	mean float64
}

// NewExpSampler returns an exponential sampler with the given mean.
func NewExpSampler(mean float64) *ExpSampler { return &ExpSampler{mean: mean} }

func (s *ExpSampler) Sample(rng *rand.Rand) float64 {
	return rng.ExpFloat64() * s.mean
}

// Mean returns the distribution mean.
func (s *ExpSampler) Mean() float64 { return s.mean }

// ConstantSampler always returns the same duration and draws nothing.
type ConstantSampler struct {
	value float64
}

func (s *ConstantSampler) Sample(*rand.Rand) float64 { return s.value }

// GammaDurationSampler produces Gamma-distributed durations with a given mean and CV.
type GammaDurationSampler struct {
	shape, scale float64
}

func (s *GammaDurationSampler) Sample(rng *rand.Rand) float64 {
	return gammaRand(rng, s.shape, s.scale)
}

// NewDurationSampler creates a DurationSampler from a validated spec.
// An empty spec yields a constant +Inf (a contact that never abandons).
func NewDurationSampler(spec DurationSpec) DurationSampler {
	switch spec.Type {
	case "":
		return &ConstantSampler{value: math.Inf(1)}
	case "constant":
		return &ConstantSampler{value: spec.Mean}
	case "gamma":
		cv := 1.0
		if spec.CV != nil {
			cv = *spec.CV
		}
		return &GammaDurationSampler{shape: 1.0 / (cv * cv), scale: spec.Mean * cv * cv}
	default:
		return &ExpSampler{mean: spec.Mean}
	}
}
