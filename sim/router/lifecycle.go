package router

import (
	"fmt"

	"github.com/inference-sim/ccsim/sim"
	"github.com/inference-sim/ccsim/sim/trace"
)

// NewContact routes an arriving contact: trunk line, then agent selection,
// then queue selection. Refused contacts exit as blocked; errors are reserved
// for contacts that cannot be routed at all.
func (r *Router) NewContact(c *sim.Contact) error {
	if c.Owner() != 0 {
		return fmt.Errorf("%w: contact %d is owned by router %d", ErrAlreadyRouted, c.ID, c.Owner())
	}
	if c.Exited() {
		return fmt.Errorf("%w: contact %d", ErrContactExited, c.ID)
	}
	if _, dup := r.contacts[c.ID]; dup {
		return fmt.Errorf("%w: another contact with id %d is routed", ErrAlreadyRouted, c.ID)
	}
	if c.TypeID < 0 || c.TypeID >= r.numTypes {
		return fmt.Errorf("%w: contact type %d not in [0,%d)", ErrSlotRange, c.TypeID, r.numTypes)
	}
	c.SetOwner(r.id)
	e := &contactEntry{contact: c, info: newRoutingInfo(len(r.queues))}
	r.contacts[c.ID] = e

	if c.Trunk != nil && !c.Trunk.Take(c) {
		r.recordRouting(e, 0, trace.OutcomeBlocked, -1, BlockedNoLine.String())
		r.exitBlocked(e, BlockedNoLine)
		return nil
	}
	if g, a := r.policy.SelectAgent(c, e.info, 0); g != nil {
		r.startService(e, g, a, 0, trace.OutcomeAgent)
		return nil
	}
	if r.totalQueueSize >= r.queueCapacity {
		r.recordRouting(e, 0, trace.OutcomeBlocked, -1, BlockedQueueFull.String())
		r.exitBlocked(e, BlockedQueueFull)
		return nil
	}
	if !r.applyQueueTargets(e, r.policy.SelectWaitingQueue(c, e.info, 0)) {
		r.recordRouting(e, 0, trace.OutcomeBlocked, -1, BlockedCannotQueue.String())
		r.exitBlocked(e, BlockedCannotQueue)
		return nil
	}
	r.recordRouting(e, 0, trace.OutcomeQueue, -1, "")
	r.logf("contact %d (type %d) queued in %v", c.ID, c.TypeID, e.info.QueuedIn())
	r.scheduleContactRerouting(e, 0)
	return nil
}

// startService removes every queued copy of the contact and hands it to the group.
func (r *Router) startService(e *contactEntry, g *sim.AgentGroup, a *sim.Agent, retry int, outcome string) {
	if g.ID() < 0 || r.groups[g.ID()] != g {
		panic(fmt.Sprintf("router %d: policy %s selected unbound group %q", r.id, r.policy.Name(), g.Name()))
	}
	if g.NumFree() == 0 {
		panic(fmt.Sprintf("router %d: policy %s selected group %d with no free agent", r.id, r.policy.Name(), g.ID()))
	}
	if a != nil && (a.Busy() || a.Group() != g) {
		panic(fmt.Sprintf("router %d: policy %s selected unavailable agent %d of group %d", r.id, r.policy.Name(), a.Index(), g.ID()))
	}
	if e.reroute != nil {
		e.reroute.handle.Cancel()
		e.reroute = nil
	}
	if evs := e.info.QueuedEvents(); len(evs) > 0 {
		// Siblings of the first copy leave with it.
		evs[0].Queue().Remove(evs[0], sim.DequeueServed)
	}
	if e.info.NumQueued() != 0 {
		panic(fmt.Sprintf("router %d: contact %d still has %d queued copies at service start", r.id, e.contact.ID, e.info.NumQueued()))
	}
	r.recordRouting(e, retry, outcome, g.ID(), "")
	r.logf("contact %d (type %d) served by group %d", e.contact.ID, e.contact.TypeID, g.ID())
	e.service = g.ServeWith(e.contact, a)
}

// applyQueueTargets makes the contact's queue membership match targets:
// missing copies are added within the capacity, kept copies take the new
// priority, and copies not targeted anymore are transferred out. When no
// copy could be placed the membership is left untouched. Returns whether the
// contact is queued afterwards.
func (r *Router) applyQueueTargets(e *contactEntry, targets []QueueTarget) bool {
	if len(targets) == 0 {
		return e.info.NumQueued() > 0
	}
	want := make(map[int]bool, len(targets))
	for _, t := range targets {
		if r.Queue(t.Queue) == nil {
			panic(fmt.Sprintf("router %d: policy %s selected unbound queue %d", r.id, r.policy.Name(), t.Queue))
		}
		want[t.Queue] = true
	}
	var drop []*sim.DequeueEvent
	for _, ev := range e.info.QueuedEvents() {
		if !want[ev.Queue().ID()] {
			drop = append(drop, ev)
		}
	}
	kept := e.info.NumQueued() - len(drop)
	room := r.queueCapacity - r.totalQueueSize + len(drop)
	var added []int
	seen := make(map[int]bool, len(targets))
	for _, t := range targets {
		if seen[t.Queue] {
			continue
		}
		seen[t.Queue] = true
		if ev := e.info.Queued(t.Queue); ev != nil {
			ev.Queue().SetPriority(ev, t.Priority)
			continue
		}
		if room <= 0 {
			continue
		}
		r.queues[t.Queue].Add(e.contact, t.Priority)
		added = append(added, t.Queue)
		room--
	}
	if kept == 0 && len(added) == 0 {
		return e.info.NumQueued() > 0
	}
	for _, ev := range drop {
		ev.Queue().Remove(ev, sim.DequeueTransfer)
	}
	return true
}

// exitBlocked, exitDequeued and exitServed end a contact's stay in the router.
func (r *Router) exitBlocked(e *contactEntry, reason BlockReason) {
	r.detach(e)
	r.logf("contact %d (type %d) blocked: %s", e.contact.ID, e.contact.TypeID, reason)
	r.recordExit(e, trace.ExitBlocked, reason.String(), -1, 0)
	r.notifyBlocked(e.contact, reason)
}

func (r *Router) exitDequeued(e *contactEntry, ev *sim.DequeueEvent) {
	r.detach(e)
	outcome := trace.ExitAbandoned
	if ev.DequeueType() == sim.DequeueNoAgent {
		outcome = trace.ExitDisconnected
	}
	r.logf("contact %d (type %d) left queue %d: %s", e.contact.ID, e.contact.TypeID, ev.Queue().ID(), ev.DequeueType())
	r.recordExit(e, outcome, ev.DequeueType().String(), -1, e.contact.WaitingTime(r.sim.Now()))
	r.notifyDequeued(ev)
}

func (r *Router) exitServed(e *contactEntry, ev *sim.EndServiceEvent) {
	r.detach(e)
	r.recordExit(e, trace.ExitServed, "", ev.Group.ID(), e.contact.WaitingTime(ev.BeginTime))
	r.notifyServed(ev)
}

func (r *Router) detach(e *contactEntry) {
	c := e.contact
	if c.Trunk != nil {
		c.Trunk.Release(c)
	}
	if e.reroute != nil {
		e.reroute.handle.Cancel()
		e.reroute = nil
	}
	c.SetOwner(0)
	c.MarkExited()
	delete(r.contacts, c.ID)
}

// entryOf returns the arena entry of a queued copy handled by this router.
func (r *Router) entryOf(c *sim.Contact) *contactEntry {
	if e := r.contacts[c.ID]; e != nil && e.contact == c {
		return e
	}
	return nil
}

// Enqueued keeps the total queue size and the contact's membership current.
func (r *Router) Enqueued(ev *sim.DequeueEvent) {
	r.totalQueueSize++
	if e := r.entryOf(ev.Contact); e != nil {
		e.info.setQueued(ev.Queue().ID(), ev)
	}
}

// Dequeued keeps the bookkeeping exact and completes the contact's exit.
// A copy leaving for service or abandonment takes its siblings along; a
// cleared copy only exits the contact when it was the last one.
func (r *Router) Dequeued(ev *sim.DequeueEvent) {
	r.totalQueueSize--
	if r.totalQueueSize < 0 {
		panic(fmt.Sprintf("router %d: negative total queue size", r.id))
	}
	e := r.entryOf(ev.Contact)
	if e == nil {
		return
	}
	if q := ev.Queue().ID(); e.info.Queued(q) == ev {
		e.info.clearQueued(q)
	}
	switch ev.DequeueType() {
	case sim.DequeueServed:
		r.removeSiblings(e)
	case sim.DequeueAbandoned:
		r.removeSiblings(e)
		r.exitDequeued(e, ev)
	case sim.DequeueNoAgent:
		if e.info.NumQueued() == 0 {
			r.exitDequeued(e, ev)
		}
	}
}

func (r *Router) removeSiblings(e *contactEntry) {
	for _, s := range e.info.QueuedEvents() {
		s.Queue().Remove(s, sim.DequeueSibling)
	}
}

// BeginService cancels the agent's pending rerouting.
func (r *Router) BeginService(ev *sim.EndServiceEvent) {
	if ev.Group.ID() < 0 {
		return
	}
	key := agentKey{group: ev.Group.ID(), agent: ev.Agent.Index()}
	if ar := r.agentReroutes[key]; ar != nil {
		ar.handle.Cancel()
		delete(r.agentReroutes, key)
	}
}

// EndService exits the served contact and offers queued contacts to the
// agent that became free.
func (r *Router) EndService(ev *sim.EndServiceEvent) {
	if e := r.entryOf(ev.Contact); e != nil && e.service == ev {
		r.exitServed(e, ev)
	}
	g := ev.Group
	if g.ID() < 0 || r.groups[g.ID()] != g || g.NumFree() == 0 {
		return
	}
	a := ev.Agent
	if a.Removed() {
		a = nil
	}
	r.CheckFreeAgents(g, a)
}

// AgentGroupChanged reacts to staffing changes: new agents look for queued
// contacts and those left idle get an agent rerouting timer; a group without
// agents may leave queues unreachable.
func (r *Router) AgentGroupChanged(g *sim.AgentGroup) {
	if g.ID() < 0 || r.groups[g.ID()] != g {
		return
	}
	r.pruneAgentReroutes(g)
	if g.NumAgents() == 0 {
		r.CheckWaitingQueues(g)
		return
	}
	if g.NumFree() > 0 {
		r.CheckFreeAgents(g, nil)
		r.scheduleIdleAgents(g)
	}
}

// scheduleIdleAgents starts the first rerouting timer of every idle agent of
// g that has none pending.
func (r *Router) scheduleIdleAgents(g *sim.AgentGroup) {
	for _, a := range g.Agents() {
		if a.Busy() || a.Removed() {
			continue
		}
		if _, ok := r.agentReroutes[agentKey{group: g.ID(), agent: a.Index()}]; ok {
			continue
		}
		r.scheduleAgentRerouting(g, a, 0)
	}
}

// CheckFreeAgents offers queued contacts to the free agents of g, preferring
// agent a when not nil. Returns whether an agent became busy.
func (r *Router) CheckFreeAgents(g *sim.AgentGroup, a *sim.Agent) bool {
	return r.checkFreeAgents(g, a, 0)
}

func (r *Router) checkFreeAgents(g *sim.AgentGroup, a *sim.Agent, retry int) bool {
	if fc, ok := r.policy.(FreeAgentsChecker); ok {
		busy := fc.CheckFreeAgents(g, a, retry)
		r.dial(g)
		return busy
	}
	busy := r.DefaultCheckFreeAgents(g, a, retry)
	r.dial(g)
	return busy
}

// DefaultCheckFreeAgents asks the policy for a contact while g has free
// agents and serves each one found. A still-idle agent a may then get an
// agent rerouting timer.
func (r *Router) DefaultCheckFreeAgents(g *sim.AgentGroup, a *sim.Agent, retry int) bool {
	busy := false
	for g.NumFree() > 0 {
		if a != nil && (a.Busy() || a.Removed()) {
			a = nil
		}
		ev := r.policy.SelectContact(g, a, retry)
		if ev == nil {
			break
		}
		r.ServeQueued(ev, g, a)
		busy = true
	}
	if a != nil && !a.Busy() && !a.Removed() {
		r.scheduleAgentRerouting(g, a, retry)
	}
	return busy
}

// ServeQueued takes a queued copy out of its queue and starts its service in
// g (by agent a, or the longest idle agent when a is nil).
func (r *Router) ServeQueued(ev *sim.DequeueEvent, g *sim.AgentGroup, a *sim.Agent) {
	e := r.entryOf(ev.Contact)
	if e == nil || ev.Dequeued() {
		panic(fmt.Sprintf("router %d: policy %s selected contact %d that is not queued here", r.id, r.policy.Name(), ev.Contact.ID))
	}
	retry := 0
	if e.reroute != nil {
		retry = e.reroute.retry - 1
	}
	ev.Queue().Remove(ev, sim.DequeueServed)
	r.startService(e, g, a, retry, trace.OutcomePulled)
}

func (r *Router) dial(g *sim.AgentGroup) {
	for _, d := range r.dialers[g.ID()] {
		d.Dial()
	}
}

// CheckWaitingQueues clears the auto-clear queues that g could serve and that
// no group with agents can serve anymore. Cleared contacts leave with
// DequeueNoAgent.
func (r *Router) CheckWaitingQueues(g *sim.AgentGroup) {
	if qc, ok := r.policy.(QueueClearer); ok {
		qc.CheckWaitingQueues(g)
		return
	}
	for q, wq := range r.queues {
		if wq == nil || wq.IsEmpty() || !r.autoClear[q] || !r.policy.ServesQueue(g.ID(), q) {
			continue
		}
		if r.queueReachable(q) {
			continue
		}
		n := wq.Clear(sim.DequeueNoAgent)
		r.logf("cleared %d contacts from unreachable queue %d", n, q)
	}
}

// queueReachable reports whether a group with agents pulls from queue q.
func (r *Router) queueReachable(q int) bool {
	for i, g := range r.groups {
		if g != nil && g.NumAgents() > 0 && r.policy.ServesQueue(i, q) {
			return true
		}
	}
	return false
}

// ClearQueue removes every contact of queue q with DequeueNoAgent,
// regardless of the auto-clear flag. Returns the number removed.
func (r *Router) ClearQueue(q int) int {
	wq := r.Queue(q)
	if wq == nil {
		return 0
	}
	return wq.Clear(sim.DequeueNoAgent)
}

func (r *Router) recordRouting(e *contactEntry, retry int, outcome string, group int, reason string) {
	if !r.trace.Enabled() {
		return
	}
	r.trace.RecordRouting(trace.RoutingRecord{
		ContactID:   e.contact.ID,
		ContactType: e.contact.TypeID,
		Clock:       r.sim.Now(),
		Retry:       retry,
		Outcome:     outcome,
		Group:       group,
		Queues:      e.info.QueuedIn(),
		Reason:      reason,
	})
}

func (r *Router) recordExit(e *contactEntry, outcome, reason string, group int, wait float64) {
	if !r.trace.Enabled() {
		return
	}
	r.trace.RecordExit(trace.ExitRecord{
		ContactID:   e.contact.ID,
		ContactType: e.contact.TypeID,
		Clock:       r.sim.Now(),
		Outcome:     outcome,
		Reason:      reason,
		Group:       group,
		WaitingTime: wait,
	})
}
