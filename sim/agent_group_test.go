package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// groupRecorder counts AgentGroup notifications.
type groupRecorder struct {
	changed int
	begins  []*EndServiceEvent
	ends    []*EndServiceEvent
}

func (r *groupRecorder) AgentGroupChanged(*AgentGroup)   { r.changed++ }
func (r *groupRecorder) BeginService(ev *EndServiceEvent) { r.begins = append(r.begins, ev) }
func (r *groupRecorder) EndService(ev *EndServiceEvent)   { r.ends = append(r.ends, ev) }

func serviceContact(id int64, service float64) *Contact {
	c := NewContact(id, 0, 0)
	c.ServiceTime = service
	return c
}

func TestAgentGroup_ServeAndEndService(t *testing.T) {
	s := NewSimulator()
	g := NewAgentGroup(s, "sales", 2)
	rec := &groupRecorder{}
	g.AddListener(rec)
	g.AddListener(rec)

	ev := g.ServeWith(serviceContact(1, 4), nil)

	assert.Equal(t, 1, g.NumBusy())
	assert.Equal(t, 1, g.NumFree())
	assert.Equal(t, 4.0, ev.EndTime())
	assert.Same(t, ev, ev.Agent.Service())
	require.Len(t, rec.begins, 1)

	s.Run(math.Inf(1))

	assert.True(t, ev.Done())
	assert.Equal(t, 0, g.NumBusy())
	assert.Nil(t, ev.Agent.Service())
	assert.Equal(t, 4.0, ev.Agent.IdleSince())
	require.Len(t, rec.ends, 1)
}

func TestAgentGroup_LongestIdleAgent(t *testing.T) {
	s := NewSimulator()
	g := NewAgentGroup(s, "g", 3)
	agents := append([]*Agent(nil), g.Agents()...)

	// All idle since 0: the lowest index wins.
	assert.Same(t, agents[0], g.LongestIdleAgent())

	g.ServeWith(serviceContact(1, 2), agents[0])
	g.ServeWith(serviceContact(2, 1), agents[1])
	s.Run(5)

	// Agent 2 idle since 0, agent 1 since 1, agent 0 since 2.
	assert.Same(t, agents[2], g.LongestIdleAgent())
	assert.Equal(t, 5.0, g.LongestIdleDuration())
	assert.Equal(t, 4.0, agents[1].IdleDuration(s.Now()))

	g.ServeWith(serviceContact(3, 1), nil)
	assert.True(t, agents[2].Busy())
	assert.Zero(t, agents[2].IdleDuration(s.Now()))
	assert.Same(t, agents[1], g.LongestIdleAgent())
}

func TestAgentGroup_SetNumAgents(t *testing.T) {
	// GIVEN three agents, two of them busy
	s := NewSimulator()
	g := NewAgentGroup(s, "g", 3)
	rec := &groupRecorder{}
	g.AddListener(rec)
	a := g.Agents()
	g.ServeWith(serviceContact(1, 10), a[0])
	g.ServeWith(serviceContact(2, 10), a[1])

	// WHEN staffing drops to one
	g.SetNumAgents(1)

	// THEN the idle agent leaves now and one busy agent leaves after service
	assert.Equal(t, 1, g.NumAgents())
	assert.True(t, a[2].Removed())
	assert.Len(t, g.Agents(), 2)
	assert.Equal(t, 1, rec.changed)

	s.Run(math.Inf(1))
	assert.Len(t, g.Agents(), 1)
	assert.Equal(t, 1, g.NumFree())

	// AND raising staffing adds fresh agents with new indices
	g.SetNumAgents(3)
	assert.Equal(t, 3, g.NumAgents())
	assert.Equal(t, 3, g.Agents()[1].Index())
	assert.Equal(t, 2, rec.changed)

	g.SetNumAgents(3)
	assert.Equal(t, 2, rec.changed)
}

func TestAgentGroup_IncreaseCancelsPendingDeparture(t *testing.T) {
	s := NewSimulator()
	g := NewAgentGroup(s, "g", 1)
	a := g.Agents()[0]
	g.ServeWith(serviceContact(1, 5), a)
	g.SetNumAgents(0)
	require.Equal(t, 0, g.NumAgents())

	g.SetNumAgents(1)
	s.Run(math.Inf(1))

	assert.False(t, a.Removed())
	assert.Equal(t, 1, g.NumFree())
	assert.Same(t, a, g.AgentByIndex(0))
}

func TestAgentGroup_ServiceTimeOverride(t *testing.T) {
	s := NewSimulator()
	g := NewAgentGroup(s, "g", 1)
	g.ServiceTime = func(c *Contact, _ *AgentGroup) float64 { return 2 * c.ServiceTime }

	ev := g.ServeWith(serviceContact(1, 3), nil)

	assert.Equal(t, 6.0, ev.EndTime())
}

func TestAgentGroup_ServeWithPanics(t *testing.T) {
	s := NewSimulator()
	g := NewAgentGroup(s, "g", 1)
	other := NewAgentGroup(s, "other", 1)

	assert.Panics(t, func() { g.ServeWith(serviceContact(1, 1), other.Agents()[0]) })
	assert.Panics(t, func() { g.ServeWith(serviceContact(1, -1), nil) })
	g.ServeWith(serviceContact(1, 1), nil)
	assert.Panics(t, func() { g.ServeWith(serviceContact(2, 1), nil) })
	assert.Panics(t, func() { NewAgentGroup(s, "bad", -1) })
}

func TestAgentGroup_RemoveListener(t *testing.T) {
	s := NewSimulator()
	g := NewAgentGroup(s, "g", 1)
	rec := &groupRecorder{}
	g.AddListener(rec)
	g.RemoveListener(rec)

	g.SetNumAgents(2)

	assert.Zero(t, rec.changed)
	assert.Len(t, g.FreeAgents(), 2)
}
