package center

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inference-sim/ccsim/sim/router"
	"github.com/inference-sim/ccsim/sim/workload"
)

// smallScenario has one contact every time unit from t=1 to t=5, one agent,
// constant service 1.5 and constant patience 1.5. It drains after the horizon.
//
// Hand trace: c1 served 1-2.5; c2 waits 0.5, served 2.5-4; c3 waits 1,
// served 4-5.5; c4 waits 1.5 (served at its abandonment time, service first),
// served 5.5-7; c5 abandons at 6.5.
func smallScenario() *Scenario {
	return &Scenario{
		Name:         "small",
		Horizon:      5,
		Seed:         1,
		Drain:        true,
		ServiceLevel: 1,
		Types: []TypeConfig{{
			Name:     "calls",
			Arrival:  workload.ArrivalSpec{Process: "constant", Rate: 1},
			Service:  workload.DurationSpec{Type: "constant", Mean: 1.5},
			Patience: workload.DurationSpec{Type: "constant", Mean: 1.5},
		}},
		Groups: []GroupConfig{{Name: "agents", Agents: 1}},
		Router: router.PolicyConfig{
			Name:  "single-fifo",
			Table: router.RoutingTable{TypeToGroup: [][]int{{0}}},
		},
	}
}

func mustBuild(t *testing.T, sc *Scenario) *Center {
	t.Helper()
	c, err := Build(sc)
	require.NoError(t, err)
	return c
}

func intPtr(v int) *int { return &v }
