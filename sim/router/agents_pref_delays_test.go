package router

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/ccsim/sim/trace"
)

func newDelays(t *testing.T, cfg AgentsPrefWithDelaysConfig) *AgentsPrefWithDelays {
	t.Helper()
	p, err := NewAgentsPrefWithDelays(cfg)
	require.NoError(t, err)
	return p
}

func TestAgentsPrefWithDelays_ServedAfterDelayWithOneReroute(t *testing.T) {
	// GIVEN group 0 (delay 0) busy and group 1 (delay 5) free
	p := newDelays(t, AgentsPrefWithDelaysConfig{
		AgentsPrefConfig: AgentsPrefConfig{RanksTG: [][]float64{{1, 2}}},
		Delays:           [][]float64{{0}, {5}},
	})
	f := newFixture(t, p, 1, 1, []int{1, 1})
	st := trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions}, "delays")
	f.r.SetTrace(st)
	f.arriveAt(t, 0, contact(1, 0, 100))
	f.arriveAt(t, 0, contact(2, 0, 1))

	// WHEN the second contact waits
	f.sim.Run(1)

	// THEN it is queued with one rerouting pending at its delay
	rs, ok := f.r.ContactReroutingState(2)
	require.True(t, ok)
	assert.Equal(t, ReroutingState{NumReroutings: 0, NextReroutingTime: 5}, rs)
	assert.Equal(t, []float64{5}, p.Thresholds(0))

	// AND group 1 takes it exactly at t=5, on the first rerouting
	f.sim.Run(5.5)
	assert.Equal(t, 1, f.servingGroup(2))
	assert.Equal(t, 5.0, f.groups[1].Agents()[0].Service().BeginTime)
	last := st.Routings[len(st.Routings)-1]
	assert.Equal(t, int64(2), last.ContactID)
	assert.Equal(t, 1, last.Retry)
	assert.Equal(t, trace.OutcomeAgent, last.Outcome)
	c, a := f.r.NumPendingReroutes()
	assert.Zero(t, c)
	assert.Zero(t, a)
}

func TestAgentsPrefWithDelays_IdleAgentReroutedWhenContactBecomesEligible(t *testing.T) {
	// Type 1 only goes to group 1; type 0 reaches group 1 after waiting 5.
	p := newDelays(t, AgentsPrefWithDelaysConfig{
		AgentsPrefConfig: AgentsPrefConfig{RanksTG: [][]float64{{1, 2}, {inf, 1}}},
		Delays:           [][]float64{{0, inf}, {5, 0}},
	})
	f := newFixture(t, p, 2, 2, []int{1, 1})
	f.arriveAt(t, 0, contact(1, 0, 100))
	f.arriveAt(t, 0, contact(3, 1, 2))
	f.arriveAt(t, 1, contact(2, 0, 1))

	// WHEN group 1 frees up at t=2 while contact 2 has waited only 1
	f.sim.Run(3)

	// THEN the idle agent waits for the moment contact 2 becomes eligible
	ars, ok := f.r.AgentReroutingState(1, f.groups[1].Agents()[0].Index())
	require.True(t, ok)
	assert.Equal(t, 6.0, ars.NextReroutingTime)
	c, a := f.r.NumPendingReroutes()
	assert.Equal(t, 1, c)
	assert.Equal(t, 1, a)

	f.sim.Run(6.5)
	assert.Equal(t, 1, f.servingGroup(2))
	c, a = f.r.NumPendingReroutes()
	assert.Zero(t, c)
	assert.Zero(t, a)
}

func TestAgentsPrefWithDelays_StaffedAgentGetsReroutingTimer(t *testing.T) {
	// GIVEN group 1 unstaffed, reachable by type 0 after waiting 5
	p := newDelays(t, AgentsPrefWithDelaysConfig{
		AgentsPrefConfig: AgentsPrefConfig{RanksTG: [][]float64{{1, 2}}},
		Delays:           [][]float64{{0}, {5}},
	})
	f := newFixture(t, p, 1, 1, []int{1, 0})
	f.arriveAt(t, 0, contact(1, 0, 100))
	f.arriveAt(t, 1, contact(2, 0, 1))

	// WHEN an agent joins group 1 at t=2, while contact 2 has waited only 1
	f.at(2, func() { f.groups[1].SetNumAgents(1) })
	f.sim.Run(3)

	// THEN the new agent is idle with a timer at contact 2's delay
	require.Equal(t, 1, f.groups[1].NumFree())
	ars, ok := f.r.AgentReroutingState(1, f.groups[1].Agents()[0].Index())
	require.True(t, ok)
	assert.Equal(t, 6.0, ars.NextReroutingTime)
	_, a := f.r.NumPendingReroutes()
	assert.Equal(t, 1, a)

	f.sim.Run(6.5)
	assert.Equal(t, 1, f.servingGroup(2))
}

func TestAgentsPrefWithDelays_Eligible(t *testing.T) {
	cfg := AgentsPrefWithDelaysConfig{
		AgentsPrefConfig: AgentsPrefConfig{RanksTG: [][]float64{{1, 2}}},
		Delays:           [][]float64{{0}, {3}},
	}
	promotion := newDelays(t, cfg)
	cfg.OverflowTransfer = true
	transfer := newDelays(t, cfg)

	assert.True(t, promotion.Eligible(0, 0, 1))
	assert.False(t, promotion.Eligible(1, 0, 1))
	assert.True(t, promotion.Eligible(0, 0, 4))
	assert.True(t, promotion.Eligible(1, 0, 4))
	assert.True(t, promotion.Eligible(1, 0, 3-1e-12))

	assert.True(t, transfer.Eligible(0, 0, 1))
	assert.False(t, transfer.Eligible(0, 0, 4))
	assert.True(t, transfer.Eligible(1, 0, 4))
}

func TestAgentsPrefWithDelays_DelayedRanksSwitchPreference(t *testing.T) {
	// One group preferring type 0, except for type-1 contacts that waited 4.
	// At t=5 its agent frees up with a type-1 contact queued at t=0.5 and a
	// type-0 contact queued at t=2.
	tests := []struct {
		name     string
		delayed  []DelayedRanks
		wantNext int64
	}{
		{"base ranks", nil, 2},
		{"delayed ranks", []DelayedRanks{{MinWait: 4, RanksTG: [][]float64{{1}, {1}}, RanksGT: [][]float64{{1, 0.5}}}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newDelays(t, AgentsPrefWithDelaysConfig{
				AgentsPrefConfig: AgentsPrefConfig{RanksTG: [][]float64{{1}, {1}}, RanksGT: [][]float64{{1, 2}}},
				Delays:           [][]float64{{0, 0}},
				DelayedRanks:     tt.delayed,
			})
			f := newFixture(t, p, 2, 2, []int{1})
			f.arriveAt(t, 0, contact(10, 0, 5))
			f.arriveAt(t, 0.5, contact(1, 1, 1))
			f.arriveAt(t, 2, contact(2, 0, 1))

			f.sim.Run(inf)

			require.Len(t, f.rec.served, 3)
			assert.Equal(t, tt.wantNext, f.rec.served[1].Contact.ID)
		})
	}
}

func TestAgentsPrefWithDelays_ThresholdsIncludeMinWaits(t *testing.T) {
	p := newDelays(t, AgentsPrefWithDelaysConfig{
		AgentsPrefConfig: AgentsPrefConfig{RanksTG: [][]float64{{1, 2}}},
		Delays:           [][]float64{{0}, {2}},
		DelayedRanks:     []DelayedRanks{{MinWait: 4, RanksTG: [][]float64{{2, 1}}}, {MinWait: 2, RanksTG: [][]float64{{1, 1}}}},
	})

	assert.Equal(t, []float64{2, 4}, p.Thresholds(0))
}

func TestNewAgentsPrefWithDelays_Validation(t *testing.T) {
	base := AgentsPrefConfig{RanksTG: [][]float64{{1, 2}}}
	tests := []struct {
		name string
		cfg  AgentsPrefWithDelaysConfig
		want error
	}{
		{"missing delays", AgentsPrefWithDelaysConfig{AgentsPrefConfig: base}, ErrDimension},
		{"negative delay", AgentsPrefWithDelaysConfig{AgentsPrefConfig: base, Delays: [][]float64{{0}, {-1}}}, ErrInvalidConfig},
		{"infinite min wait", AgentsPrefWithDelaysConfig{
			AgentsPrefConfig: base,
			Delays:           [][]float64{{0}, {1}},
			DelayedRanks:     []DelayedRanks{{MinWait: inf, RanksTG: [][]float64{{1, 1}}}},
		}, ErrInvalidConfig},
		{"delayed ranks shape", AgentsPrefWithDelaysConfig{
			AgentsPrefConfig: base,
			Delays:           [][]float64{{0}, {1}},
			DelayedRanks:     []DelayedRanks{{MinWait: 1, RanksTG: [][]float64{{1}}}},
		}, ErrDimension},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAgentsPrefWithDelays(tt.cfg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

type exitKey struct {
	id    int64
	kind  string
	group int
	at    float64
}

// runDelaysScenario replays one random workload under p and returns the
// exits in order.
func runDelaysScenario(t *testing.T, p *AgentsPrefWithDelays, seed int64, agents []int) []exitKey {
	t.Helper()
	f := newFixture(t, p, 2, 2, agents)
	rng := rand.New(rand.NewSource(seed))
	now := 0.0
	for n := int64(0); n < 80; n++ {
		now += rng.ExpFloat64() * 0.5
		c := contact(n, rng.Intn(2), 0.5+rng.Float64()*2)
		if rng.Intn(4) == 0 {
			c.PatienceTime = rng.Float64() * 6
		}
		f.arriveAt(t, now, c)
	}
	f.sim.Run(inf)

	var out []exitKey
	for _, b := range f.rec.blocked {
		out = append(out, exitKey{b.contact.ID, "blocked", -1, b.contact.ArrivalTime})
	}
	for _, ev := range f.rec.dequeued {
		out = append(out, exitKey{ev.Contact.ID, ev.DequeueType().String(), -1, ev.DequeueTime()})
	}
	for _, ev := range f.rec.served {
		out = append(out, exitKey{ev.Contact.ID, "served", ev.Group.ID(), ev.BeginTime})
	}
	assert.Zero(t, f.r.NumContacts())
	return out
}

// TestAgentsPrefWithDelays_HeadCheckMatchesFullScan compares head-only
// contact selection with a full queue scan on random workloads: with fixed
// ranks and cumulative eligibility both must make the same decisions.
func TestAgentsPrefWithDelays_HeadCheckMatchesFullScan(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	levels := []float64{0, 0, 1, 2.5, inf}
	for trial := 0; trial < 20; trial++ {
		ranks := NewRankMatrix(2, 3)
		delays := NewRankMatrix(3, 2)
		for k := 0; k < 2; k++ {
			for i := 0; i < 3; i++ {
				if rng.Intn(4) > 0 {
					ranks[k][i] = float64(1 + rng.Intn(3))
				}
				delays[i][k] = levels[rng.Intn(len(levels))]
			}
		}
		agents := []int{1 + rng.Intn(2), 1 + rng.Intn(2), 1 + rng.Intn(2)}
		cfg := AgentsPrefWithDelaysConfig{AgentsPrefConfig: AgentsPrefConfig{RanksTG: ranks}, Delays: delays}
		head := runDelaysScenario(t, newDelays(t, cfg), int64(trial), agents)
		cfg.ScanQueues = true
		scan := runDelaysScenario(t, newDelays(t, cfg), int64(trial), agents)

		require.Equal(t, scan, head, "trial %d: ranks %v delays %v", trial, ranks, delays)
	}
}

func TestLocalSpec_LocalFirstThenRemoteAfterOverflowDelay(t *testing.T) {
	// GIVEN type k originating in region k, group i located in region i
	p, err := NewLocalSpec(LocalSpecConfig{
		AgentsPrefConfig: AgentsPrefConfig{RanksTG: [][]float64{{1, 1}, {1, 1}}},
		TypeRegion:       []int{0, 1},
		GroupRegion:      []int{0, 1},
		OverflowDelay:    []float64{3, 3},
	})
	require.NoError(t, err)
	assert.Equal(t, "local-spec", p.Name())
	assert.True(t, p.IsLocal(0, 0))
	assert.False(t, p.IsLocal(1, 0))

	f := newFixture(t, p, 2, 2, []int{1, 1})
	// WHEN two type-0 contacts arrive with both groups free
	f.arriveAt(t, 0, contact(1, 0, 100))
	f.arriveAt(t, 0, contact(2, 0, 1))
	f.sim.Run(2)

	// THEN the first takes the local group and the second waits for the remote one
	assert.Equal(t, 0, f.servingGroup(1))
	assert.Equal(t, -1, f.servingGroup(2))
	assert.Equal(t, 0, f.groups[1].NumBusy())

	f.sim.Run(3.5)
	assert.Equal(t, 1, f.servingGroup(2))
	assert.Equal(t, 3.0, f.groups[1].Agents()[0].Service().BeginTime)
}

func TestNewLocalSpec_Validation(t *testing.T) {
	base := AgentsPrefConfig{RanksTG: [][]float64{{1, 1}}}

	_, err := NewLocalSpec(LocalSpecConfig{AgentsPrefConfig: base, TypeRegion: []int{0}, GroupRegion: []int{0, 1}, OverflowDelay: []float64{1}})
	assert.ErrorIs(t, err, ErrDimension)

	_, err = NewLocalSpec(LocalSpecConfig{AgentsPrefConfig: base, TypeRegion: []int{0}, GroupRegion: []int{0}, OverflowDelay: []float64{-1}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
