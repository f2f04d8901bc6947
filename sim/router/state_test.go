package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/ccsim/sim"
)

func checkpointPolicy(t *testing.T) *AgentsPrefWithDelays {
	t.Helper()
	return newDelays(t, AgentsPrefWithDelaysConfig{
		AgentsPrefConfig: AgentsPrefConfig{RanksTG: [][]float64{{1, 2}}},
		Delays:           [][]float64{{0}, {4}},
	})
}

// endTimes returns the completion times of the served contacts relative to base.
func endTimes(rec *exitRecorder, base float64) map[int64]float64 {
	out := make(map[int64]float64, len(rec.served))
	for _, ev := range rec.served {
		out[ev.Contact.ID] = ev.EndTime() - base
	}
	return out
}

func TestRouter_SaveRestoreResumesSameHistory(t *testing.T) {
	// GIVEN one contact in service and two waiting for the delayed group,
	// one of them impatient
	f := newFixture(t, checkpointPolicy(t), 1, 1, []int{1, 1})
	f.arriveAt(t, 0, contact(1, 0, 10))
	f.arriveAt(t, 1, contact(2, 0, 3))
	c3 := contact(3, 0, 3)
	c3.PatienceTime = 6
	f.arriveAt(t, 2, c3)
	f.sim.Run(3)

	// WHEN the router is saved, encoded and decoded
	data, err := EncodeState(f.r.SaveState())
	require.NoError(t, err)
	st, err := DecodeState(data)
	require.NoError(t, err)
	assert.Equal(t, 3.0, st.Time)
	assert.Equal(t, "agents-pref-delays", st.Policy)
	assert.Len(t, st.ContactReroutings, 2)

	// AND restored at t=10 into fresh queues and groups
	restored := newFixture(t, checkpointPolicy(t), 1, 1, []int{1, 1})
	restored.sim.Run(10)
	require.NoError(t, restored.r.RestoreState(st))

	// THEN the restored router holds the same contacts and timers, shifted
	assert.Equal(t, 3, restored.r.NumContacts())
	assert.Equal(t, 2, restored.r.TotalQueueSize())
	assert.Equal(t, 0, restored.servingGroup(1))
	rs, ok := restored.r.ContactReroutingState(2)
	require.True(t, ok)
	assert.Equal(t, ReroutingState{NumReroutings: 0, NextReroutingTime: 12}, rs)

	// AND both continuations produce the same exits relative to the snapshot
	f.sim.Run(inf)
	restored.sim.Run(inf)
	want := map[int64]float64{2: 5, 1: 7, 3: 8}
	assert.Equal(t, want, endTimes(f.rec, 3))
	assert.Equal(t, want, endTimes(restored.rec, 10))
	assert.Empty(t, restored.rec.dequeued)
	assert.Zero(t, restored.r.NumContacts())
}

func TestRouter_RestoreStateDiscardsCurrentContents(t *testing.T) {
	empty := newFixture(t, checkpointPolicy(t), 1, 1, []int{1, 1})
	st := empty.r.SaveState()

	f := newFixture(t, checkpointPolicy(t), 1, 1, []int{1, 1})
	f.arriveAt(t, 0, contact(1, 0, 10))
	f.arriveAt(t, 0, contact(2, 0, 10))
	f.sim.Run(1)
	require.Equal(t, 1, f.r.TotalQueueSize())

	require.NoError(t, f.r.RestoreState(st))

	assert.Zero(t, f.r.NumContacts())
	assert.Zero(t, f.r.TotalQueueSize())
	assert.Equal(t, 0, f.groups[0].NumBusy())
	c, a := f.r.NumPendingReroutes()
	assert.Zero(t, c)
	assert.Zero(t, a)
	f.sim.Run(inf)
	assert.Empty(t, f.rec.served)
}

func TestRouter_RestoreStateDimensionMismatch(t *testing.T) {
	f := newFixture(t, checkpointPolicy(t), 1, 1, []int{1, 1})
	st := f.r.SaveState()

	p := newDelays(t, AgentsPrefWithDelaysConfig{
		AgentsPrefConfig: AgentsPrefConfig{RanksTG: [][]float64{{1, 2, 3}}},
		Delays:           [][]float64{{0}, {4}, {4}},
	})
	other := newFixture(t, p, 1, 1, []int{1, 1, 1})

	assert.ErrorIs(t, other.r.RestoreState(st), ErrDimension)
}

func TestRouter_RestoreStateIntoEmptySlot(t *testing.T) {
	f := newFixture(t, checkpointPolicy(t), 1, 1, []int{1, 1})
	st := f.r.SaveState()

	r, err := New(sim.NewSimulator(), Config{NumTypes: 1, NumQueues: 1, NumGroups: 2}, checkpointPolicy(t))
	require.NoError(t, err)

	assert.ErrorIs(t, r.RestoreState(st), ErrDimension)
}

func TestDecodeState_RejectsGarbage(t *testing.T) {
	_, err := DecodeState([]byte{0xff, 0x00})

	assert.Error(t, err)
}

func TestDiagnoseState(t *testing.T) {
	data, err := EncodeState(&RouterState{Time: 2, Policy: "queue-priority"})
	require.NoError(t, err)

	diag, err := DiagnoseState(data)

	require.NoError(t, err)
	assert.Contains(t, diag, `"policy": "queue-priority"`)

	_, err = DiagnoseState([]byte{0xff, 0x00})
	assert.Error(t, err)
}
