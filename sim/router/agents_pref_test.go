package router

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/ccsim/sim"
)

func TestAgentsPref_RankTieResolvedByLongestIdle(t *testing.T) {
	// GIVEN two equally ranked groups, group 1's agent idle since t=0 and
	// group 0's agent since t=5
	s := sim.NewSimulator()
	g1 := sim.NewAgentGroup(s, "g1", 1)
	s.Run(5)
	g0 := sim.NewAgentGroup(s, "g0", 1)
	p, err := NewAgentsPref(AgentsPrefConfig{RanksTG: [][]float64{{1, 1}}, AgentScoring: AgentScoreLongestIdle})
	require.NoError(t, err)
	r, err := New(s, Config{NumTypes: 1, NumQueues: 1, NumGroups: 2}, p)
	require.NoError(t, err)
	require.NoError(t, r.BindQueue(0, sim.NewWaitingQueue(s, "q")))
	require.NoError(t, r.BindGroup(0, g0))
	require.NoError(t, r.BindGroup(1, g1))

	// WHEN a contact arrives
	require.NoError(t, r.NewContact(contact(1, 0, 1)))

	// THEN the longest idle agent serves it
	assert.Equal(t, 1, g1.NumBusy())
	assert.Equal(t, 0, g0.NumBusy())
}

func TestAgentsPref_AgentSelection(t *testing.T) {
	tests := []struct {
		name    string
		ranks   [][]float64
		weights [][]float64
		scoring AgentScoring
		agents  []int
		want    int
	}{
		{"lowest rank wins", [][]float64{{2, 1}}, nil, AgentScoreWeight, []int{1, 1}, 1},
		{"equal scores keep lowest index", [][]float64{{1, 1}}, nil, AgentScoreWeight, []int{1, 1}, 0},
		{"higher weight wins a rank tie", [][]float64{{1, 1}}, [][]float64{{1, 2}}, AgentScoreWeight, []int{1, 1}, 1},
		{"more free agents win a rank tie", [][]float64{{1, 1}}, nil, AgentScoreFreeAgents, []int{1, 3}, 1},
		{"busy best group skipped", [][]float64{{1, 2}}, nil, AgentScoreWeight, []int{0, 1}, 1},
		{"unlinked group ignored", [][]float64{{inf, 5}}, nil, AgentScoreWeight, []int{2, 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewAgentsPref(AgentsPrefConfig{RanksTG: tt.ranks, WeightsTG: tt.weights, AgentScoring: tt.scoring})
			require.NoError(t, err)
			f := newFixture(t, p, 1, 1, tt.agents)

			require.NoError(t, f.r.NewContact(contact(1, 0, 1)))

			assert.Equal(t, tt.want, f.servingGroup(1))
		})
	}
}

func TestAgentsPref_RandomSelectionSkipsZeroScores(t *testing.T) {
	p, err := NewAgentsPref(AgentsPrefConfig{
		RanksTG:              [][]float64{{1, 1}},
		WeightsTG:            [][]float64{{0, 1}},
		AgentScoring:         AgentScoreWeight,
		RandomAgentSelection: true,
		Rng:                  rand.New(rand.NewSource(11)),
	})
	require.NoError(t, err)
	f := newFixture(t, p, 1, 1, []int{5, 5})

	for n := int64(1); n <= 5; n++ {
		require.NoError(t, f.r.NewContact(contact(n, 0, 1)))
	}

	assert.Equal(t, 0, f.groups[0].NumBusy())
	assert.Equal(t, 5, f.groups[1].NumBusy())
}

func TestAgentsPref_ContactSelection(t *testing.T) {
	// One group serving two types. At t=5 its agent frees up with a type-0
	// contact queued at t=1 and type-1 contacts queued at t=2 (and t=3).
	tests := []struct {
		name     string
		ranksGT  [][]float64
		scoring  ContactScoring
		extra    bool
		wantNext int64
	}{
		{"best rank wins", [][]float64{{2, 1}}, ContactScoreWeight, false, 2},
		{"tie goes to the longest wait", [][]float64{{1, 1}}, ContactScoreWaitingTime, false, 1},
		{"tie goes to the longest queue", [][]float64{{1, 1}}, ContactScoreQueueSize, true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewAgentsPref(AgentsPrefConfig{
				RanksTG:        [][]float64{{1}, {1}},
				RanksGT:        tt.ranksGT,
				ContactScoring: tt.scoring,
			})
			require.NoError(t, err)
			f := newFixture(t, p, 2, 2, []int{1})
			f.arriveAt(t, 0, contact(10, 0, 5))
			f.arriveAt(t, 1, contact(1, 0, 1))
			f.arriveAt(t, 2, contact(2, 1, 1))
			if tt.extra {
				f.arriveAt(t, 3, contact(3, 1, 1))
			}

			f.sim.Run(inf)

			require.GreaterOrEqual(t, len(f.rec.served), 3)
			assert.Equal(t, tt.wantNext, f.rec.served[1].Contact.ID)
		})
	}
}

func TestAgentsPref_UnlinkedTypeCannotQueue(t *testing.T) {
	p, err := NewAgentsPref(AgentsPrefConfig{RanksTG: [][]float64{{1}, {inf}}})
	require.NoError(t, err)
	f := newFixture(t, p, 2, 2, []int{0})

	require.NoError(t, f.r.NewContact(contact(1, 1, 1)))
	require.NoError(t, f.r.NewContact(contact(2, 0, 1)))

	require.Len(t, f.rec.blocked, 1)
	assert.Equal(t, BlockedCannotQueue, f.rec.blocked[0].reason)
	assert.Equal(t, 1, f.queues[0].Size())
	assert.True(t, p.ServesQueue(0, 0))
	assert.False(t, p.ServesQueue(0, 1))
}

func TestNewAgentsPref_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  AgentsPrefConfig
		want error
	}{
		{"missing ranks", AgentsPrefConfig{}, ErrInvalidTable},
		{"ragged ranks", AgentsPrefConfig{RanksTG: [][]float64{{1, 2}, {1}}}, ErrDimension},
		{"links disagree", AgentsPrefConfig{RanksTG: [][]float64{{1, inf}}, RanksGT: [][]float64{{1}, {1}}}, ErrInvalidTable},
		{"random without source", AgentsPrefConfig{RanksTG: [][]float64{{1}}, RandomContactSelection: true}, ErrInvalidConfig},
		{"bad weights", AgentsPrefConfig{RanksTG: [][]float64{{1}}, WeightsTG: [][]float64{{1, 1}}}, ErrDimension},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAgentsPref(tt.cfg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAgentsPref_AttachChecksDimensions(t *testing.T) {
	p, err := NewAgentsPref(AgentsPrefConfig{RanksTG: [][]float64{{1, 1}}})
	require.NoError(t, err)

	_, err = New(newSim(), Config{NumTypes: 1, NumQueues: 1, NumGroups: 3}, p)

	assert.ErrorIs(t, err, ErrDimension)
}
