package sim

import (
	"fmt"
	"math"
)

// ContactState is the serializable part of a Contact.
// Times are absolute at the moment the state was saved.
type ContactState struct {
	ID             int64   `cbor:"id"`
	TypeID         int     `cbor:"type"`
	ArrivalTime    float64 `cbor:"arrival"`
	Priority       float64 `cbor:"priority"`
	ServiceTime    float64 `cbor:"service"`
	PatienceTime   float64 `cbor:"patience"`
	Queued         bool    `cbor:"queued"`
	FirstQueueTime float64 `cbor:"first_queued"`
}

// State captures the contact's serializable fields.
func (c *Contact) State() ContactState {
	return ContactState{
		ID:             c.ID,
		TypeID:         c.TypeID,
		ArrivalTime:    c.ArrivalTime,
		Priority:       c.Priority,
		ServiceTime:    c.ServiceTime,
		PatienceTime:   c.PatienceTime,
		Queued:         c.queued,
		FirstQueueTime: c.firstQueued,
	}
}

// NewContactFromState rebuilds a contact, shifting its absolute times by shift.
func NewContactFromState(st ContactState, shift float64) *Contact {
	c := &Contact{
		ID:           st.ID,
		TypeID:       st.TypeID,
		ArrivalTime:  st.ArrivalTime + shift,
		Priority:     st.Priority,
		ServiceTime:  st.ServiceTime,
		PatienceTime: st.PatienceTime,
		queued:       st.Queued,
	}
	if st.Queued {
		c.firstQueued = st.FirstQueueTime + shift
	}
	return c
}

// ContactResolver returns the live contact for a saved state. Restoring
// several queues with the same resolver keeps copies of one contact shared.
type ContactResolver func(st ContactState) *Contact

// QueuedContactState is one entry of a WaitingQueueState.
type QueuedContactState struct {
	Contact     ContactState `cbor:"contact"`
	EnqueueTime float64      `cbor:"enqueued"`
	Priority    float64      `cbor:"priority"`
	AbandonTime float64      `cbor:"abandon"`
}

// WaitingQueueState is the serializable content of a WaitingQueue.
type WaitingQueueState struct {
	Discipline Discipline           `cbor:"discipline"`
	Entries    []QueuedContactState `cbor:"entries"`
}

// SaveState captures the queue contents in service order.
func (q *WaitingQueue) SaveState() WaitingQueueState {
	st := WaitingQueueState{Discipline: q.discipline, Entries: make([]QueuedContactState, len(q.items))}
	for i, ev := range q.items {
		st.Entries[i] = QueuedContactState{
			Contact:     ev.Contact.State(),
			EnqueueTime: ev.enqueueTime,
			Priority:    ev.priority,
			AbandonTime: ev.abandonTime,
		}
	}
	return st
}

// RestoreState replaces the queue contents with st without notifying
// listeners. Current contents are discarded and their abandonment events
// cancelled. Saved times are shifted by shift; abandonment events are
// rescheduled accordingly (an already-due abandonment fires at the current time).
func (q *WaitingQueue) RestoreState(st WaitingQueueState, shift float64, resolve ContactResolver) []*DequeueEvent {
	for _, ev := range q.items {
		ev.abandon.Cancel()
		ev.dequeued = true
		ev.dqType = DequeueTransfer
		ev.dqTime = q.sim.Now()
	}
	q.items = q.items[:0]
	q.discipline = st.Discipline
	restored := make([]*DequeueEvent, 0, len(st.Entries))
	for _, e := range st.Entries {
		c := resolve(e.Contact)
		ev := &DequeueEvent{
			Contact:     c,
			queue:       q,
			enqueueTime: e.EnqueueTime + shift,
			priority:    e.Priority,
			abandonTime: e.AbandonTime + shift,
		}
		q.seq++
		ev.seq = q.seq
		q.items = append(q.items, ev)
		if !math.IsInf(ev.abandonTime, 1) && !math.IsNaN(ev.abandonTime) {
			ev.abandon = q.sim.ScheduleAt(math.Max(ev.abandonTime, q.sim.Now()), PriorityAbandon, &abandonEvent{ev: ev})
		}
		restored = append(restored, ev)
	}
	return restored
}

// AgentState is the serializable state of one agent.
type AgentState struct {
	Index     int           `cbor:"index"`
	Busy      bool          `cbor:"busy"`
	Leaving   bool          `cbor:"leaving"`
	IdleSince float64       `cbor:"idle_since"`
	Contact   *ContactState `cbor:"contact,omitempty"`
	BeginTime float64       `cbor:"begin"`
	EndTime   float64       `cbor:"end"`
}

// AgentGroupState is the serializable state of an AgentGroup.
type AgentGroupState struct {
	NextIndex int          `cbor:"next_index"`
	Agents    []AgentState `cbor:"agents"`
}

// SaveState captures every agent and the service it performs.
func (g *AgentGroup) SaveState() AgentGroupState {
	st := AgentGroupState{NextIndex: g.nextIndex, Agents: make([]AgentState, len(g.agents))}
	for i, a := range g.agents {
		as := AgentState{Index: a.index, Busy: a.busy, Leaving: a.leaving, IdleSince: a.idleSince}
		if a.service != nil {
			cs := a.service.Contact.State()
			as.Contact = &cs
			as.BeginTime = a.service.BeginTime
			as.EndTime = a.service.EndTime()
		}
		st.Agents[i] = as
	}
	return st
}

// RestoreState replaces the group's agents with st without notifying
// listeners. Pending services are cancelled; saved services are rescheduled
// to end at their saved end time shifted by shift.
func (g *AgentGroup) RestoreState(st AgentGroupState, shift float64, resolve ContactResolver) []*EndServiceEvent {
	for _, a := range g.agents {
		if a.service != nil {
			a.service.handle.Cancel()
		}
		a.removed = true
	}
	g.agents = g.agents[:0]
	g.numBusy = 0
	g.numLeave = 0
	g.nextIndex = st.NextIndex
	var services []*EndServiceEvent
	for _, as := range st.Agents {
		if as.Index >= g.nextIndex {
			panic(fmt.Sprintf("AgentGroup.RestoreState: agent index %d >= next index %d", as.Index, g.nextIndex))
		}
		a := &Agent{group: g, index: as.Index, idleSince: as.IdleSince + shift}
		g.agents = append(g.agents, a)
		if !as.Busy || as.Contact == nil {
			continue
		}
		ev := &EndServiceEvent{Contact: resolve(*as.Contact), Group: g, Agent: a, BeginTime: as.BeginTime + shift}
		a.busy = true
		a.leaving = as.Leaving
		a.service = ev
		g.numBusy++
		if a.leaving {
			g.numLeave++
		}
		ev.handle = g.sim.ScheduleAt(math.Max(as.EndTime+shift, g.sim.Now()), PriorityEndService, ev)
		services = append(services, ev)
	}
	return services
}
