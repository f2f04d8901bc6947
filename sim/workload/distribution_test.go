package workload

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDurationSampler(t *testing.T) {
	cv := 0.5
	tests := []struct {
		name     string
		spec     DurationSpec
		wantMean float64
		wantCV   float64
	}{
		{"exponential", DurationSpec{Type: "exponential", Mean: 3}, 3, 1},
		{"gamma", DurationSpec{Type: "gamma", Mean: 2, CV: &cv}, 2, 0.5},
		{"gamma without cv is exponential-like", DurationSpec{Type: "gamma", Mean: 2}, 2, 1},
		{"constant", DurationSpec{Type: "constant", Mean: 4}, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN a sampler built from the duration spec
			rng := rand.New(rand.NewSource(42))
			s := NewDurationSampler(tt.spec)

			// WHEN 20000 durations are drawn
			vals := make([]float64, 20000)
			for i := range vals {
				vals[i] = s.Sample(rng)
				assert.GreaterOrEqual(t, vals[i], 0.0)
			}

			// THEN mean and CV match within a few percent
			mean, _ := meanAndVariance(vals)
			assert.InDelta(t, tt.wantMean, mean, 0.04*tt.wantMean)
			assert.InDelta(t, tt.wantCV, coefficientOfVariation(vals), 0.05)
		})
	}
}

func TestNewDurationSampler_NoneNeverAbandons(t *testing.T) {
	s := NewDurationSampler(DurationSpec{})

	assert.True(t, math.IsInf(s.Sample(nil), 1))
	assert.True(t, DurationSpec{}.IsNone())
}

func TestExpSampler_Mean(t *testing.T) {
	assert.Equal(t, 1.5, NewExpSampler(1.5).Mean())
}
