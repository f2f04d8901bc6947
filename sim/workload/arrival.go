package workload

import (
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// ArrivalSampler generates inter-arrival times for one contact type.
type ArrivalSampler interface {
	// SampleIAT returns the next inter-arrival time in simulation time units.
	// Always returns a positive value.
	SampleIAT(rng *rand.Rand) float64
}

// minIAT keeps two arrivals of the same stream from sharing a timestamp.
const minIAT = 1e-9

// PoissonSampler generates exponentially-distributed inter-arrival times (CV=1).
type PoissonSampler struct {
	rate float64 // contacts per time unit
}

func (s *PoissonSampler) SampleIAT(rng *rand.Rand) float64 {
	return math.Max(rng.ExpFloat64()/s.rate, minIAT)
}

// Rate returns the arrival rate.
func (s *PoissonSampler) Rate() float64 { return s.rate }

// GammaSampler draws Gamma inter-arrival times with a chosen CV around the
// mean 1/rate: CV > 1 gives bursts of calls, CV < 1 a steadier stream.
type GammaSampler struct {
	shape float64 // 1/CV²
	scale float64 // mean·CV²
}

func (s *GammaSampler) SampleIAT(rng *rand.Rand) float64 {
	return math.Max(gammaRand(rng, s.shape, s.scale), minIAT)
}

// gammaRand draws from Gamma(shape, scale) with the Marsaglia-Tsang method.
// A shape below 1 is boosted by one and corrected with U^(1/shape).
func gammaRand(rng *rand.Rand, shape, scale float64) float64 {
	if shape < 1 {
		boost := math.Pow(rng.Float64(), 1/shape)
		return gammaRand(rng, shape+1, scale) * boost
	}
	d := shape - 1.0/3
	c := 1 / math.Sqrt(9*d)
	for {
		x, v := marsagliaCandidate(rng, c)
		u := rng.Float64()
		x2 := x * x
		if u < 1-0.0331*x2*x2 || math.Log(u) < 0.5*x2+d*(1-v+math.Log(v)) {
			return d * v * scale
		}
	}
}

// marsagliaCandidate returns a standard normal x with 1+c·x > 0 and v = (1+c·x)³.
func marsagliaCandidate(rng *rand.Rand, c float64) (x, v float64) {
	for {
		x = rng.NormFloat64()
		if t := 1 + c*x; t > 0 {
			return x, t * t * t
		}
	}
}

// ConstantArrivalSampler spaces arrivals exactly 1/rate apart.
type ConstantArrivalSampler struct {
	iat float64
}

func (s *ConstantArrivalSampler) SampleIAT(*rand.Rand) float64 { return s.iat }

// WeibullSampler draws Weibull inter-arrival times by inverting the CDF.
type WeibullSampler struct {
	shape float64 // k
	scale float64 // λ
}

func (s *WeibullSampler) SampleIAT(rng *rand.Rand) float64 {
	// 1-U lies in (0,1], so the logarithm stays finite.
	e := -math.Log1p(-rng.Float64())
	return math.Max(s.scale*math.Pow(e, 1/s.shape), minIAT)
}

// NewArrivalSampler creates an ArrivalSampler for the given process and rate
// (contacts per time unit). Call ArrivalSpec.Validate first.
func NewArrivalSampler(spec ArrivalSpec) ArrivalSampler {
	rate := math.Max(spec.Rate, 1e-15)
	mean := 1 / rate
	cv := 1.0
	if spec.CV != nil && *spec.CV > 0 {
		cv = *spec.CV
	}

	switch spec.Process {
	case "constant":
		return &ConstantArrivalSampler{iat: mean}
	case "gamma":
		shape := 1 / (cv * cv)
		if shape < 0.01 {
			logrus.Warnf("gamma arrivals with CV=%.1f have shape %.4f; using Poisson arrivals instead", cv, shape)
			return &PoissonSampler{rate: rate}
		}
		return &GammaSampler{shape: shape, scale: mean * cv * cv}
	case "weibull":
		k := weibullShapeFromCV(cv)
		return &WeibullSampler{shape: k, scale: mean / math.Gamma(1+1/k)}
	default:
		return &PoissonSampler{rate: rate}
	}
}

// weibullShapeFromCV returns the Weibull shape k whose coefficient of
// variation is targetCV, searched in [0.1, 100].
func weibullShapeFromCV(targetCV float64) float64 {
	k, ok := bisectDecreasing(weibullCV, targetCV, 0.1, 100, 1e-3)
	if !ok {
		logrus.Warnf("weibull shape search did not reach CV=%.3f; using k=%.3f", targetCV, k)
	}
	return k
}

// weibullCV is the coefficient of variation of Weibull(k):
// sqrt(Γ(1+2/k)/Γ(1+1/k)² - 1). It decreases as k grows.
func weibullCV(k float64) float64 {
	g1 := math.Gamma(1 + 1/k)
	return math.Sqrt(math.Gamma(1+2/k)/(g1*g1) - 1)
}

// bisectDecreasing finds x in [lo, hi] with |f(x)-target| < tol for a
// decreasing f. It reports false, with the last midpoint, after 100 halvings.
func bisectDecreasing(f func(float64) float64, target, lo, hi, tol float64) (float64, bool) {
	for n := 0; n < 100; n++ {
		mid := (lo + hi) / 2
		y := f(mid)
		switch {
		case math.Abs(y-target) < tol:
			return mid, true
		case y > target:
			lo = mid
		default:
			hi = mid
		}
	}
	return (lo + hi) / 2, false
}
