package workload

import (
	"math"
	"math/rand"
	"testing"
)

func TestPoissonSampler_MeanIAT_MatchesRate(t *testing.T) {
	// GIVEN a Poisson sampler at 10 contacts per time unit
	rng := rand.New(rand.NewSource(42))
	sampler := NewArrivalSampler(ArrivalSpec{Process: "poisson", Rate: 10})

	// WHEN 10000 IATs are sampled
	n := 10000
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += sampler.SampleIAT(rng)
	}
	meanIAT := sum / float64(n)

	// THEN mean IAT ≈ 1/rate = 0.1 (within 5%)
	expected := 0.1
	if math.Abs(meanIAT-expected)/expected > 0.05 {
		t.Errorf("mean IAT = %.4f, want ≈ %.4f (within 5%%)", meanIAT, expected)
	}
}

func TestGammaSampler_HighCV_ProducesBurstierArrivals(t *testing.T) {
	// GIVEN a Gamma sampler with CV=3.5 and a Poisson sampler at same rate
	rng1 := rand.New(rand.NewSource(42))
	rng2 := rand.New(rand.NewSource(42))
	cv := 3.5
	gamma := NewArrivalSampler(ArrivalSpec{Process: "gamma", Rate: 10, CV: &cv})
	poisson := NewArrivalSampler(ArrivalSpec{Process: "poisson", Rate: 10})

	// WHEN 10000 IATs sampled from each
	n := 10000
	gammaIATs := make([]float64, n)
	poissonIATs := make([]float64, n)
	for i := 0; i < n; i++ {
		gammaIATs[i] = gamma.SampleIAT(rng1)
		poissonIATs[i] = poisson.SampleIAT(rng2)
	}

	// THEN Gamma CV > 2.0 and Poisson CV ≈ 1.0
	gammaCV := coefficientOfVariation(gammaIATs)
	poissonCV := coefficientOfVariation(poissonIATs)
	if gammaCV < 2.0 {
		t.Errorf("gamma CV = %.2f, want > 2.0", gammaCV)
	}
	if poissonCV < 0.8 || poissonCV > 1.2 {
		t.Errorf("poisson CV = %.2f, want ≈ 1.0", poissonCV)
	}
}

func TestGammaSampler_MeanAndVariance_MatchTheoretical(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	cv := 2.0
	sampler := NewArrivalSampler(ArrivalSpec{Process: "gamma", Rate: 10, CV: &cv})

	n := 50000
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		vals[i] = sampler.SampleIAT(rng)
	}
	// Theoretical: mean = 1/rate, variance = mean² * CV²
	mean, variance := meanAndVariance(vals)
	expectedMean := 0.1
	expectedVar := expectedMean * expectedMean * cv * cv
	if math.Abs(mean-expectedMean)/expectedMean > 0.05 {
		t.Errorf("gamma mean = %.4f, want ≈ %.4f (within 5%%)", mean, expectedMean)
	}
	if math.Abs(variance-expectedVar)/expectedVar > 0.15 {
		t.Errorf("gamma variance = %.5f, want ≈ %.5f (within 15%%)", variance, expectedVar)
	}
}

func TestGammaSampler_TinyShape_FallsBackToPoisson(t *testing.T) {
	cv := 20.0
	sampler := NewArrivalSampler(ArrivalSpec{Process: "gamma", Rate: 2, CV: &cv})

	p, ok := sampler.(*PoissonSampler)
	if !ok {
		t.Fatalf("sampler = %T, want *PoissonSampler", sampler)
	}
	if p.Rate() != 2 {
		t.Errorf("rate = %v, want 2", p.Rate())
	}
}

func TestWeibullSampler_MeanAndCV(t *testing.T) {
	// GIVEN a Weibull sampler with CV=0.5 at 4 contacts per time unit
	rng := rand.New(rand.NewSource(7))
	cv := 0.5
	sampler := NewArrivalSampler(ArrivalSpec{Process: "weibull", Rate: 4, CV: &cv})

	n := 20000
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		vals[i] = sampler.SampleIAT(rng)
	}

	// THEN mean ≈ 0.25 and CV ≈ 0.5
	mean, _ := meanAndVariance(vals)
	if math.Abs(mean-0.25)/0.25 > 0.03 {
		t.Errorf("weibull mean = %.4f, want ≈ 0.25", mean)
	}
	if got := coefficientOfVariation(vals); math.Abs(got-cv) > 0.05 {
		t.Errorf("weibull CV = %.3f, want ≈ %.3f", got, cv)
	}
}

func TestWeibullShapeFromCV_OneIsExponential(t *testing.T) {
	k := weibullShapeFromCV(1.0)
	if math.Abs(k-1.0) > 0.01 {
		t.Errorf("k = %.4f, want ≈ 1", k)
	}
}

func TestConstantArrivalSampler_EvenSpacing(t *testing.T) {
	sampler := NewArrivalSampler(ArrivalSpec{Process: "constant", Rate: 4})

	for i := 0; i < 3; i++ {
		if got := sampler.SampleIAT(nil); got != 0.25 {
			t.Errorf("IAT = %v, want 0.25", got)
		}
	}
}

func TestArrivalSamplers_AlwaysPositive(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cv := 0.2
	samplers := []ArrivalSampler{
		NewArrivalSampler(ArrivalSpec{Process: "poisson", Rate: 1e6}),
		NewArrivalSampler(ArrivalSpec{Process: "gamma", Rate: 1e6, CV: &cv}),
		NewArrivalSampler(ArrivalSpec{Process: "weibull", Rate: 1e6, CV: &cv}),
	}
	for _, s := range samplers {
		for i := 0; i < 1000; i++ {
			if iat := s.SampleIAT(rng); iat <= 0 {
				t.Fatalf("%T returned non-positive IAT %g", s, iat)
			}
		}
	}
}

func meanAndVariance(vals []float64) (mean, variance float64) {
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	for _, v := range vals {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(vals))
	return mean, variance
}

func coefficientOfVariation(vals []float64) float64 {
	mean, variance := meanAndVariance(vals)
	if mean == 0 {
		return 0
	}
	return math.Sqrt(variance) / mean
}

func TestBisectDecreasing(t *testing.T) {
	neg := func(x float64) float64 { return -x }

	if x, ok := bisectDecreasing(neg, -0.3, 0, 1, 1e-9); !ok || math.Abs(x-0.3) > 1e-6 {
		t.Errorf("bisect = (%v, %v), want (≈0.3, true)", x, ok)
	}
	// Target outside the range: the search ends at the boundary without success.
	if x, ok := bisectDecreasing(neg, -5, 0, 1, 1e-9); ok || math.Abs(x-1) > 1e-6 {
		t.Errorf("bisect = (%v, %v), want (≈1, false)", x, ok)
	}
}
