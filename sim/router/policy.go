package router

import "github.com/inference-sim/ccsim/sim"

// QueueTarget asks the router to hold a contact in queue slot Queue with the
// given in-queue priority (lower is served first in priority queues).
type QueueTarget struct {
	Queue    int
	Priority float64
}

// AgentSelector chooses an agent for a contact. retry is 0 at arrival and n
// on the n-th rerouting.
type AgentSelector interface {
	// SelectAgent returns the group and, optionally, the agent that should
	// serve c now. A nil group means no agent is available; a nil agent lets
	// the group pick its longest idle agent. The returned group must have a
	// free agent.
	SelectAgent(c *sim.Contact, info *RoutingInfo, retry int) (*sim.AgentGroup, *sim.Agent)
}

// QueueSelector chooses the queues a contact waits in.
type QueueSelector interface {
	// SelectWaitingQueue returns the queues c should occupy. An empty result
	// blocks the contact at arrival and keeps the current queues on rerouting.
	SelectWaitingQueue(c *sim.Contact, info *RoutingInfo, retry int) []QueueTarget
}

// ContactSelector chooses a queued contact for a free agent.
type ContactSelector interface {
	// SelectContact returns the queued copy that agent a of group g (or any
	// free agent of g when a is nil) should serve, or nil.
	SelectContact(g *sim.AgentGroup, a *sim.Agent, retry int) *sim.DequeueEvent
}

// QueueReachability tells which groups pull from which queues. The default
// queue clearing uses it to find queues nobody can serve anymore.
type QueueReachability interface {
	ServesQueue(group, queue int) bool
}

// QueueClearer replaces the default clearing done when a group loses its
// last agent.
type QueueClearer interface {
	CheckWaitingQueues(g *sim.AgentGroup)
}

// FreeAgentsChecker replaces the default free-agent loop. Implementations
// usually call Router.DefaultCheckFreeAgents for part of the work.
type FreeAgentsChecker interface {
	CheckFreeAgents(g *sim.AgentGroup, a *sim.Agent, retry int) bool
}

// ReroutingPolicy schedules retries. A negative, infinite or NaN delay means
// no retry. retry counts the reroutings already performed.
type ReroutingPolicy interface {
	ContactReroutingDelay(c *sim.Contact, info *RoutingInfo, retry int) float64
	AgentReroutingDelay(g *sim.AgentGroup, a *sim.Agent, retry int) float64
}

// Policy is a complete routing policy. Optional behaviors are detected with
// type assertions: QueueClearer, FreeAgentsChecker, ReroutingPolicy.
type Policy interface {
	AgentSelector
	QueueSelector
	ContactSelector
	QueueReachability

	// Name returns the policy's registry name.
	Name() string
	// Attach is called once by New. Policies validate their tables against the
	// router dimensions and keep the router for queue and group lookups.
	Attach(r *Router) error
	// QueueDiscipline is applied to every queue bound to the router.
	QueueDiscipline() sim.Discipline
}

// Dialer is notified after a group's free agents were offered queued contacts.
type Dialer interface {
	Dial()
}

// ExitedContactListener is notified of every contact leaving a router.
type ExitedContactListener interface {
	Blocked(r *Router, c *sim.Contact, reason BlockReason)
	Dequeued(r *Router, ev *sim.DequeueEvent)
	Served(r *Router, ev *sim.EndServiceEvent)
}
