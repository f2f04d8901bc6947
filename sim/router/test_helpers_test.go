package router

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inference-sim/ccsim/sim"
)

// exitRecorder collects every exit notification of a router.
type exitRecorder struct {
	blocked  []blockedExit
	dequeued []*sim.DequeueEvent
	served   []*sim.EndServiceEvent
}

type blockedExit struct {
	contact *sim.Contact
	reason  BlockReason
}

func (rec *exitRecorder) Blocked(_ *Router, c *sim.Contact, reason BlockReason) {
	rec.blocked = append(rec.blocked, blockedExit{contact: c, reason: reason})
}

func (rec *exitRecorder) Dequeued(_ *Router, ev *sim.DequeueEvent) {
	rec.dequeued = append(rec.dequeued, ev)
}

func (rec *exitRecorder) Served(_ *Router, ev *sim.EndServiceEvent) {
	rec.served = append(rec.served, ev)
}

// servedIDs returns the served contact ids in completion order.
func (rec *exitRecorder) servedIDs() []int64 {
	ids := make([]int64, len(rec.served))
	for j, ev := range rec.served {
		ids[j] = ev.Contact.ID
	}
	return ids
}

// fixture is a router with every slot bound.
type fixture struct {
	sim    *sim.Simulator
	r      *Router
	queues []*sim.WaitingQueue
	groups []*sim.AgentGroup
	rec    *exitRecorder
}

// newFixture builds a router for policy with numTypes types, numQueues queues
// and one group per entry of agents (holding that many agents).
func newFixture(t *testing.T, policy Policy, numTypes, numQueues int, agents []int) *fixture {
	t.Helper()
	s := sim.NewSimulator()
	r, err := New(s, Config{NumTypes: numTypes, NumQueues: numQueues, NumGroups: len(agents)}, policy)
	require.NoError(t, err)
	f := &fixture{sim: s, r: r, rec: &exitRecorder{}}
	for q := 0; q < numQueues; q++ {
		wq := sim.NewWaitingQueue(s, "queue")
		require.NoError(t, r.BindQueue(q, wq))
		f.queues = append(f.queues, wq)
	}
	for i, n := range agents {
		g := sim.NewAgentGroup(s, "group", n)
		require.NoError(t, r.BindGroup(i, g))
		f.groups = append(f.groups, g)
	}
	require.NoError(t, r.AddExitedContactListener(f.rec))
	return f
}

// contact creates a type-k contact with the given service time and infinite patience.
func contact(id int64, k int, service float64) *sim.Contact {
	c := sim.NewContact(id, k, 0)
	c.ServiceTime = service
	return c
}

// arriveAt schedules the arrival of c at time at.
func (f *fixture) arriveAt(t *testing.T, at float64, c *sim.Contact) {
	t.Helper()
	f.sim.ScheduleAt(at, sim.PriorityArrival, sim.EventFunc(func(s *sim.Simulator) {
		c.ArrivalTime = s.Now()
		require.NoError(t, f.r.NewContact(c))
	}))
}

// at schedules fn at time at.
func (f *fixture) at(at float64, fn func()) {
	f.sim.ScheduleAt(at, sim.PriorityDefault, sim.EventFunc(func(*sim.Simulator) { fn() }))
}

// servingGroup returns the slot of the group serving contact id, or -1.
func (f *fixture) servingGroup(id int64) int {
	for i, g := range f.groups {
		for _, a := range g.Agents() {
			if ev := a.Service(); ev != nil && ev.Contact.ID == id {
				return i
			}
		}
	}
	return -1
}

var inf = math.Inf(1)

func newSim() *sim.Simulator { return sim.NewSimulator() }
