package router

import (
	"math"

	"github.com/inference-sim/ccsim/sim"
	"github.com/inference-sim/ccsim/sim/trace"
)

// contactRerouting retries the routing of a queued contact. It references the
// contact by id; the arena entry must still point at this exact timer for it
// to act.
type contactRerouting struct {
	r         *Router
	contactID int64
	retry     int // rerouting number performed when the timer fires, 1-based
	handle    *sim.EventHandle
}

func (ev *contactRerouting) Execute(_ *sim.Simulator) {
	e := ev.r.contacts[ev.contactID]
	if ev.obsolete(e) {
		return
	}
	e.reroute = nil
	ev.r.rerouteContact(e, ev.retry)
}

// obsolete reports whether the contact left, is being served, is not queued
// anymore, or was given a newer timer since this one was scheduled.
func (ev *contactRerouting) obsolete(e *contactEntry) bool {
	return e == nil || e.reroute != ev || e.service != nil || e.info.NumQueued() == 0
}

// rerouteContact performs the retry-th rerouting of a queued contact.
func (r *Router) rerouteContact(e *contactEntry, retry int) {
	c := e.contact
	if g, a := r.policy.SelectAgent(c, e.info, retry); g != nil {
		r.startService(e, g, a, retry, trace.OutcomeAgent)
		return
	}
	before := e.info.QueuedIn()
	targets := r.policy.SelectWaitingQueue(c, e.info, retry)
	r.applyQueueTargets(e, targets)
	if after := e.info.QueuedIn(); !equalInts(before, after) {
		r.recordRouting(e, retry, trace.OutcomeQueue, -1, "")
		r.logf("contact %d rerouted (retry %d) to queues %v", c.ID, retry, after)
	} else {
		r.recordRouting(e, retry, trace.OutcomeKeep, -1, "")
	}
	if e.info.NumQueued() > 0 {
		r.scheduleContactRerouting(e, retry)
	}
}

// scheduleContactRerouting asks the policy for the delay before the next
// retry. retry is the number of reroutings already performed.
func (r *Router) scheduleContactRerouting(e *contactEntry, retry int) {
	rp, ok := r.policy.(ReroutingPolicy)
	if !ok {
		return
	}
	d := rp.ContactReroutingDelay(e.contact, e.info, retry)
	if !validDelay(d) {
		return
	}
	if e.reroute != nil {
		e.reroute.handle.Cancel()
	}
	ev := &contactRerouting{r: r, contactID: e.contact.ID, retry: retry + 1}
	ev.handle = r.sim.ScheduleWithPriority(d, sim.PriorityReroute, ev)
	e.reroute = ev
}

// agentRerouting retries contact selection for an idle agent.
type agentRerouting struct {
	r      *Router
	key    agentKey
	retry  int
	handle *sim.EventHandle
}

func (ev *agentRerouting) Execute(_ *sim.Simulator) {
	r := ev.r
	if r.agentReroutes[ev.key] != ev {
		return
	}
	delete(r.agentReroutes, ev.key)
	g := r.Group(ev.key.group)
	if g == nil {
		return
	}
	a := g.AgentByIndex(ev.key.agent)
	if a == nil || a.Busy() {
		return
	}
	r.checkFreeAgents(g, a, ev.retry)
}

// scheduleAgentRerouting replaces any pending timer of agent a.
func (r *Router) scheduleAgentRerouting(g *sim.AgentGroup, a *sim.Agent, retry int) {
	rp, ok := r.policy.(ReroutingPolicy)
	if !ok {
		return
	}
	d := rp.AgentReroutingDelay(g, a, retry)
	if !validDelay(d) {
		return
	}
	key := agentKey{group: g.ID(), agent: a.Index()}
	if old := r.agentReroutes[key]; old != nil {
		old.handle.Cancel()
	}
	ev := &agentRerouting{r: r, key: key, retry: retry + 1}
	ev.handle = r.sim.ScheduleWithPriority(d, sim.PriorityReroute, ev)
	r.agentReroutes[key] = ev
}

// pruneAgentReroutes drops the timers of agents that left g.
func (r *Router) pruneAgentReroutes(g *sim.AgentGroup) {
	for key, ev := range r.agentReroutes {
		if key.group != g.ID() {
			continue
		}
		if a := g.AgentByIndex(key.agent); a == nil || a.Busy() {
			ev.handle.Cancel()
			delete(r.agentReroutes, key)
		}
	}
}

func (r *Router) cancelAgentReroutes(group int) {
	for key, ev := range r.agentReroutes {
		if key.group == group {
			ev.handle.Cancel()
			delete(r.agentReroutes, key)
		}
	}
}

// NumPendingReroutes returns the number of contact and agent rerouting timers
// waiting to fire.
func (r *Router) NumPendingReroutes() (contacts, agents int) {
	for _, e := range r.contacts {
		if e.reroute != nil && e.reroute.handle.Pending() {
			contacts++
		}
	}
	for _, ev := range r.agentReroutes {
		if ev.handle.Pending() {
			agents++
		}
	}
	return contacts, agents
}

// ContactReroutingState returns the retry count and next firing time of the
// contact's pending rerouting.
func (r *Router) ContactReroutingState(contactID int64) (ReroutingState, bool) {
	e := r.contacts[contactID]
	if e == nil || e.reroute == nil || !e.reroute.handle.Pending() {
		return ReroutingState{}, false
	}
	return ReroutingState{NumReroutings: e.reroute.retry - 1, NextReroutingTime: e.reroute.handle.Time()}, true
}

// AgentReroutingState returns the retry count and next firing time of an
// agent's pending rerouting.
func (r *Router) AgentReroutingState(group, agent int) (ReroutingState, bool) {
	ev := r.agentReroutes[agentKey{group: group, agent: agent}]
	if ev == nil || !ev.handle.Pending() {
		return ReroutingState{}, false
	}
	return ReroutingState{NumReroutings: ev.retry - 1, NextReroutingTime: ev.handle.Time()}, true
}

func validDelay(d float64) bool {
	return d >= 0 && !math.IsInf(d, 1) && !math.IsNaN(d)
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
