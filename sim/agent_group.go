package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// AgentGroupListener receives state changes of an AgentGroup.
// Callbacks run synchronously inside the event that caused the change.
type AgentGroupListener interface {
	// AgentGroupChanged is called after the number of agents changed.
	AgentGroupChanged(g *AgentGroup)
	// BeginService is called after an agent started serving a contact.
	BeginService(ev *EndServiceEvent)
	// EndService is called after an agent finished serving a contact and is idle again
	// (or left the group, if it was scheduled to leave).
	EndService(ev *EndServiceEvent)
}

// Agent is one member of an AgentGroup.
type Agent struct {
	group     *AgentGroup
	index     int
	busy      bool
	leaving   bool
	removed   bool
	idleSince float64
	service   *EndServiceEvent
}

// Group returns the agent's group.
func (a *Agent) Group() *AgentGroup { return a.group }

// Index returns the agent's index, unique within its group for the group's lifetime.
func (a *Agent) Index() int { return a.index }

// Busy reports whether the agent is serving a contact.
func (a *Agent) Busy() bool { return a.busy }

// Removed reports whether the agent left its group.
func (a *Agent) Removed() bool { return a.removed }

// IdleSince returns the time the agent last became idle.
func (a *Agent) IdleSince() float64 { return a.idleSince }

// IdleDuration returns how long the agent has been idle at time now, or 0 if busy.
func (a *Agent) IdleDuration(now float64) float64 {
	if a.busy {
		return 0
	}
	return now - a.idleSince
}

// Service returns the in-progress service, or nil when idle.
func (a *Agent) Service() *EndServiceEvent { return a.service }

// EndServiceEvent represents one service in progress and fires when it ends.
type EndServiceEvent struct {
	Contact   *Contact
	Group     *AgentGroup
	Agent     *Agent
	BeginTime float64
	handle    *EventHandle
	done      bool
}

// EndTime returns the scheduled end of service.
func (ev *EndServiceEvent) EndTime() float64 { return ev.handle.Time() }

// Done reports whether the service completed.
func (ev *EndServiceEvent) Done() bool { return ev.done }

// Execute completes the service.
func (ev *EndServiceEvent) Execute(sim *Simulator) {
	ev.Group.endService(ev)
}

// AgentGroup is a pool of interchangeable agents. It tracks every agent
// individually so that idle durations are available to routing policies.
type AgentGroup struct {
	id        int
	name      string
	sim       *Simulator
	agents    []*Agent // current members, busy and idle, in index order
	nextIndex int
	numBusy   int
	numLeave  int
	listeners []AgentGroupListener

	// ServiceTime overrides Contact.ServiceTime when set.
	ServiceTime func(c *Contact, g *AgentGroup) float64
}

// NewAgentGroup creates a group of n idle agents, idle since the current time.
func NewAgentGroup(sim *Simulator, name string, n int) *AgentGroup {
	if n < 0 {
		panic(fmt.Sprintf("NewAgentGroup: negative number of agents %d", n))
	}
	g := &AgentGroup{id: -1, name: name, sim: sim}
	for i := 0; i < n; i++ {
		g.addAgent()
	}
	return g
}

// ID returns the slot index assigned by the router, or -1 when unbound.
func (g *AgentGroup) ID() int { return g.id }

// SetID assigns the slot index. Routers call this on bind and reset it to -1 on unbind.
func (g *AgentGroup) SetID(id int) { g.id = id }

// Name returns the group's name.
func (g *AgentGroup) Name() string { return g.name }

// Simulator returns the simulator driving the group.
func (g *AgentGroup) Simulator() *Simulator { return g.sim }

// NumAgents returns the number of agents, excluding busy agents scheduled to leave.
func (g *AgentGroup) NumAgents() int { return len(g.agents) - g.numLeave }

// NumBusy returns the number of agents serving a contact (including leaving ones).
func (g *AgentGroup) NumBusy() int { return g.numBusy }

// NumFree returns the number of idle agents.
func (g *AgentGroup) NumFree() int { return len(g.agents) - g.numBusy }

// Agents returns the current members in index order. Callers must not modify the slice.
func (g *AgentGroup) Agents() []*Agent { return g.agents }

// AgentByIndex returns the member with the given index, or nil if it left.
func (g *AgentGroup) AgentByIndex(index int) *Agent {
	for _, a := range g.agents {
		if a.index == index {
			return a
		}
	}
	return nil
}

// FreeAgents returns the idle agents in index order.
func (g *AgentGroup) FreeAgents() []*Agent {
	free := make([]*Agent, 0, g.NumFree())
	for _, a := range g.agents {
		if !a.busy {
			free = append(free, a)
		}
	}
	return free
}

// LongestIdleAgent returns the idle agent with the earliest idle-since time.
// Ties are broken by lowest index. Returns nil when no agent is idle.
func (g *AgentGroup) LongestIdleAgent() *Agent {
	var best *Agent
	for _, a := range g.agents {
		if a.busy {
			continue
		}
		if best == nil || a.idleSince < best.idleSince {
			best = a
		}
	}
	return best
}

// LongestIdleDuration returns the idle duration of the longest idle agent at
// the current time, or 0 when no agent is idle.
func (g *AgentGroup) LongestIdleDuration() float64 {
	a := g.LongestIdleAgent()
	if a == nil {
		return 0
	}
	return a.IdleDuration(g.sim.Now())
}

// AddListener registers l. Registering the same listener twice is a no-op.
func (g *AgentGroup) AddListener(l AgentGroupListener) {
	for _, x := range g.listeners {
		if x == l {
			return
		}
	}
	g.listeners = append(g.listeners, l)
}

// RemoveListener unregisters l.
func (g *AgentGroup) RemoveListener(l AgentGroupListener) {
	for i, x := range g.listeners {
		if x == l {
			g.listeners = append(g.listeners[:i:i], g.listeners[i+1:]...)
			return
		}
	}
}

// SetNumAgents changes the staffing level. Added agents are idle from now.
// Reductions first cancel pending departures in reverse, then remove idle
// agents (most recently idle first), then mark busy agents to leave at the end
// of their service. Listeners are notified once.
func (g *AgentGroup) SetNumAgents(n int) {
	if n < 0 {
		panic(fmt.Sprintf("AgentGroup.SetNumAgents: negative number of agents %d", n))
	}
	cur := g.NumAgents()
	switch {
	case n > cur:
		need := n - cur
		for _, a := range g.agents {
			if need == 0 {
				break
			}
			if a.leaving {
				a.leaving = false
				g.numLeave--
				need--
			}
		}
		for ; need > 0; need-- {
			g.addAgent()
		}
	case n < cur:
		drop := cur - n
		for drop > 0 {
			a := g.mostRecentlyIdle()
			if a == nil {
				break
			}
			g.removeAgent(a)
			drop--
		}
		for i := len(g.agents) - 1; i >= 0 && drop > 0; i-- {
			a := g.agents[i]
			if a.busy && !a.leaving {
				a.leaving = true
				g.numLeave++
				drop--
			}
		}
	default:
		return
	}
	logrus.Debugf("[t=%.4f] group %q staffing %d -> %d", g.sim.Now(), g.name, cur, n)
	for _, l := range g.copyListeners() {
		l.AgentGroupChanged(g)
	}
}

// ServeWith starts serving c with agent a, or with the longest idle agent when
// a is nil. Panics when no agent is idle or a is busy: routers must only
// request service after checking for a free agent.
func (g *AgentGroup) ServeWith(c *Contact, a *Agent) *EndServiceEvent {
	if a == nil {
		a = g.LongestIdleAgent()
	}
	if a == nil {
		panic(fmt.Sprintf("AgentGroup.ServeWith: group %q has no free agent for contact %d", g.name, c.ID))
	}
	if a.busy || a.removed || a.group != g {
		panic(fmt.Sprintf("AgentGroup.ServeWith: agent %d of group %q cannot serve", a.index, g.name))
	}
	duration := c.ServiceTime
	if g.ServiceTime != nil {
		duration = g.ServiceTime(c, g)
	}
	if duration < 0 || math.IsNaN(duration) {
		panic(fmt.Sprintf("AgentGroup.ServeWith: invalid service time %g for contact %d", duration, c.ID))
	}
	ev := &EndServiceEvent{Contact: c, Group: g, Agent: a, BeginTime: g.sim.Now()}
	a.busy = true
	a.service = ev
	g.numBusy++
	ev.handle = g.sim.ScheduleWithPriority(duration, PriorityEndService, ev)
	for _, l := range g.copyListeners() {
		l.BeginService(ev)
	}
	return ev
}

func (g *AgentGroup) endService(ev *EndServiceEvent) {
	a := ev.Agent
	ev.done = true
	a.busy = false
	a.service = nil
	a.idleSince = g.sim.Now()
	g.numBusy--
	if a.leaving {
		a.leaving = false
		g.numLeave--
		g.removeAgent(a)
	}
	for _, l := range g.copyListeners() {
		l.EndService(ev)
	}
}

func (g *AgentGroup) addAgent() *Agent {
	a := &Agent{group: g, index: g.nextIndex, idleSince: g.now()}
	g.nextIndex++
	g.agents = append(g.agents, a)
	return a
}

func (g *AgentGroup) removeAgent(a *Agent) {
	for i, x := range g.agents {
		if x == a {
			g.agents = append(g.agents[:i], g.agents[i+1:]...)
			a.removed = true
			return
		}
	}
}

func (g *AgentGroup) mostRecentlyIdle() *Agent {
	var best *Agent
	for _, a := range g.agents {
		if a.busy {
			continue
		}
		if best == nil || a.idleSince >= best.idleSince {
			best = a
		}
	}
	return best
}

func (g *AgentGroup) now() float64 {
	if g.sim == nil {
		return 0
	}
	return g.sim.Now()
}

// copyListeners snapshots the listener list so callbacks may (un)register listeners.
func (g *AgentGroup) copyListeners() []AgentGroupListener {
	return append([]AgentGroupListener(nil), g.listeners...)
}
