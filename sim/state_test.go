package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resolverFor shares contacts by id, like a router restoring several queues.
func resolverFor(shift float64) (ContactResolver, map[int64]*Contact) {
	seen := make(map[int64]*Contact)
	return func(st ContactState) *Contact {
		if c := seen[st.ID]; c != nil {
			return c
		}
		c := NewContactFromState(st, shift)
		seen[st.ID] = c
		return c
	}, seen
}

func TestWaitingQueue_SaveRestoreShiftsTimes(t *testing.T) {
	// GIVEN an impatient contact queued at t=1 and a patient one at t=2
	s := NewSimulator()
	q := NewWaitingQueue(s, "q")
	q.SetDiscipline(PriorityOrder)
	s.Run(1)
	c1 := NewContact(1, 0, 1)
	c1.PatienceTime = 4
	q.Add(c1, 2)
	s.Run(2)
	q.Add(NewContact(2, 1, 2), 1)
	st := q.SaveState()

	// WHEN restored at t=10 in another simulator
	s2 := NewSimulator()
	s2.Run(10)
	q2 := NewWaitingQueue(s2, "q")
	resolve, seen := resolverFor(10 - 2)
	restored := q2.RestoreState(st, 8, resolve)

	// THEN order, discipline and shifted times survive
	require.Len(t, restored, 2)
	assert.Equal(t, PriorityOrder, q2.Discipline())
	assert.Equal(t, []int64{2, 1}, ids(q2))
	assert.Equal(t, 9.0, q2.Last().EnqueueTime())
	assert.Equal(t, 13.0, q2.Last().AbandonTime())
	first, ok := seen[1].FirstQueueTime()
	assert.True(t, ok)
	assert.Equal(t, 9.0, first)

	s2.Run(math.Inf(1))
	assert.Equal(t, []int64{2}, ids(q2))
	assert.Equal(t, 13.0, s2.Now())
}

func TestAgentGroup_SaveRestoreReschedulesService(t *testing.T) {
	s := NewSimulator()
	g := NewAgentGroup(s, "g", 2)
	c := NewContact(1, 0, 0)
	c.ServiceTime = 5
	g.ServeWith(c, g.Agents()[1])
	s.Run(2)
	st := g.SaveState()

	s2 := NewSimulator()
	s2.Run(20)
	g2 := NewAgentGroup(s2, "g", 0)
	resolve, _ := resolverFor(18)
	services := g2.RestoreState(st, 18, resolve)

	require.Len(t, services, 1)
	assert.Equal(t, 2, g2.NumAgents())
	assert.Equal(t, 1, g2.NumBusy())
	assert.Equal(t, 18.0, services[0].BeginTime)
	assert.Equal(t, 23.0, services[0].EndTime())
	assert.Equal(t, 18.0, g2.AgentByIndex(0).IdleSince())

	s2.Run(math.Inf(1))
	assert.True(t, services[0].Done())
	assert.Equal(t, 0, g2.NumBusy())

	// New agents keep getting fresh indices.
	g2.SetNumAgents(3)
	assert.Equal(t, 2, g2.Agents()[2].Index())
}

func TestAgentGroup_RestoreKeepsLeavingAgents(t *testing.T) {
	s := NewSimulator()
	g := NewAgentGroup(s, "g", 1)
	c := NewContact(1, 0, 0)
	c.ServiceTime = 3
	g.ServeWith(c, nil)
	g.SetNumAgents(0)
	st := g.SaveState()

	g2 := NewAgentGroup(s, "g2", 0)
	resolve, _ := resolverFor(0)
	g2.RestoreState(st, 0, resolve)

	assert.Equal(t, 0, g2.NumAgents())
	assert.Equal(t, 1, g2.NumBusy())
	s.Run(math.Inf(1))
	assert.Empty(t, g2.Agents())
}

func TestContactState_RoundTrip(t *testing.T) {
	c := NewContact(4, 2, 1)
	c.Priority = 3
	c.ServiceTime = 7
	c.PatienceTime = 9
	c.markQueued(2)

	got := NewContactFromState(c.State(), 10)

	assert.Equal(t, int64(4), got.ID)
	assert.Equal(t, 2, got.TypeID)
	assert.Equal(t, 11.0, got.ArrivalTime)
	assert.Equal(t, 3.0, got.Priority)
	assert.Equal(t, 7.0, got.ServiceTime)
	assert.Equal(t, 9.0, got.PatienceTime)
	first, ok := got.FirstQueueTime()
	assert.True(t, ok)
	assert.Equal(t, 12.0, first)
}
