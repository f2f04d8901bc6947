package router

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/ccsim/sim"
	"github.com/inference-sim/ccsim/sim/internal/codec"
)

// ReroutingState is the progress of one rerouting chain: how many retries
// happened and when the next one fires (absolute time at save).
type ReroutingState struct {
	NumReroutings     int     `cbor:"n"`
	NextReroutingTime float64 `cbor:"next"`
}

// AgentReroutingState is the ReroutingState of one idle agent.
type AgentReroutingState struct {
	Group int            `cbor:"group"`
	Agent int            `cbor:"agent"`
	State ReroutingState `cbor:"state"`
}

// RoutingInfoState is the policy-owned part of a RoutingInfo. Queue
// membership is rebuilt from the queue states.
type RoutingInfoState struct {
	Stage        int       `cbor:"stage"`
	AgentRanks   []float64 `cbor:"agent_ranks,omitempty"`
	ContactRanks []float64 `cbor:"contact_ranks,omitempty"`
}

// RouterState is a snapshot of a router, its bound queues and groups, and its
// pending rerouting timers. Nil queue or group entries stand for empty slots.
type RouterState struct {
	Time              float64                    `cbor:"time"`
	Policy            string                     `cbor:"policy"`
	QueueCapacity     int                        `cbor:"capacity"`
	Queues            []*sim.WaitingQueueState   `cbor:"queues"`
	Groups            []*sim.AgentGroupState     `cbor:"groups"`
	ContactReroutings map[int64]ReroutingState   `cbor:"contact_reroutings"`
	AgentReroutings   []AgentReroutingState      `cbor:"agent_reroutings"`
	RoutingInfos      map[int64]RoutingInfoState `cbor:"routing_infos"`
}

// SaveState captures the router. The result shares no memory with the router.
func (r *Router) SaveState() *RouterState {
	st := &RouterState{
		Time:              r.sim.Now(),
		Policy:            r.policy.Name(),
		QueueCapacity:     r.queueCapacity,
		Queues:            make([]*sim.WaitingQueueState, len(r.queues)),
		Groups:            make([]*sim.AgentGroupState, len(r.groups)),
		ContactReroutings: make(map[int64]ReroutingState),
		RoutingInfos:      make(map[int64]RoutingInfoState, len(r.contacts)),
	}
	for q, wq := range r.queues {
		if wq != nil {
			qs := wq.SaveState()
			st.Queues[q] = &qs
		}
	}
	for i, g := range r.groups {
		if g != nil {
			gs := g.SaveState()
			st.Groups[i] = &gs
		}
	}
	for id, e := range r.contacts {
		if rs, ok := r.ContactReroutingState(id); ok {
			st.ContactReroutings[id] = rs
		}
		st.RoutingInfos[id] = RoutingInfoState{
			Stage:        e.info.Stage,
			AgentRanks:   append([]float64(nil), e.info.AgentRanks...),
			ContactRanks: append([]float64(nil), e.info.ContactRanks...),
		}
	}
	for key := range r.agentReroutes {
		if rs, ok := r.AgentReroutingState(key.group, key.agent); ok {
			st.AgentReroutings = append(st.AgentReroutings, AgentReroutingState{Group: key.group, Agent: key.agent, State: rs})
		}
	}
	sort.Slice(st.AgentReroutings, func(a, b int) bool {
		x, y := st.AgentReroutings[a], st.AgentReroutings[b]
		if x.Group != y.Group {
			return x.Group < y.Group
		}
		return x.Agent < y.Agent
	})
	return st
}

// RestoreState replaces the router's contents with st. Every saved time is
// shifted so that the snapshot time maps to the current simulation time;
// pending services, abandonments and reroutings are rescheduled accordingly.
// The current contents are discarded without notifying listeners.
func (r *Router) RestoreState(st *RouterState) error {
	if len(st.Queues) != len(r.queues) || len(st.Groups) != len(r.groups) {
		return fmt.Errorf("%w: snapshot has %d queues and %d groups, router has %d and %d",
			ErrDimension, len(st.Queues), len(st.Groups), len(r.queues), len(r.groups))
	}
	for q, qs := range st.Queues {
		if qs != nil && r.queues[q] == nil {
			return fmt.Errorf("%w: snapshot holds queue %d but the slot is empty", ErrDimension, q)
		}
	}
	for i, gs := range st.Groups {
		if gs != nil && r.groups[i] == nil {
			return fmt.Errorf("%w: snapshot holds group %d but the slot is empty", ErrDimension, i)
		}
	}
	if st.Policy != "" && st.Policy != r.policy.Name() {
		logrus.Warnf("router %d: restoring a %q snapshot under policy %q", r.id, st.Policy, r.policy.Name())
	}

	now := r.sim.Now()
	shift := now - st.Time
	for _, e := range r.contacts {
		if e.reroute != nil {
			e.reroute.handle.Cancel()
		}
		e.contact.SetOwner(0)
	}
	for _, ev := range r.agentReroutes {
		ev.handle.Cancel()
	}
	r.contacts = make(map[int64]*contactEntry)
	r.agentReroutes = make(map[agentKey]*agentRerouting)
	r.totalQueueSize = 0

	entry := func(c *sim.Contact) *contactEntry {
		e := r.contacts[c.ID]
		if e == nil {
			e = &contactEntry{contact: c, info: newRoutingInfo(len(r.queues))}
			r.contacts[c.ID] = e
		}
		return e
	}
	resolve := func(cs sim.ContactState) *sim.Contact {
		if e := r.contacts[cs.ID]; e != nil {
			return e.contact
		}
		c := sim.NewContactFromState(cs, shift)
		c.SetOwner(r.id)
		entry(c)
		return c
	}

	for q, wq := range r.queues {
		if wq == nil {
			continue
		}
		qs := sim.WaitingQueueState{Discipline: r.policy.QueueDiscipline()}
		if st.Queues[q] != nil {
			qs = *st.Queues[q]
		}
		for _, ev := range wq.RestoreState(qs, shift, resolve) {
			entry(ev.Contact).info.setQueued(q, ev)
			r.totalQueueSize++
		}
	}
	for i, g := range r.groups {
		if g == nil {
			continue
		}
		var gs sim.AgentGroupState
		if st.Groups[i] != nil {
			gs = *st.Groups[i]
		}
		for _, ev := range g.RestoreState(gs, shift, resolve) {
			entry(ev.Contact).service = ev
		}
	}
	r.queueCapacity = st.QueueCapacity
	if r.queueCapacity < r.totalQueueSize {
		r.queueCapacity = r.totalQueueSize
	}

	for id, is := range st.RoutingInfos {
		if e := r.contacts[id]; e != nil {
			e.info.Stage = is.Stage
			e.info.AgentRanks = append([]float64(nil), is.AgentRanks...)
			e.info.ContactRanks = append([]float64(nil), is.ContactRanks...)
		}
	}
	for id, rs := range st.ContactReroutings {
		e := r.contacts[id]
		if e == nil || e.service != nil || e.info.NumQueued() == 0 {
			continue
		}
		ev := &contactRerouting{r: r, contactID: id, retry: rs.NumReroutings + 1}
		ev.handle = r.sim.ScheduleAt(math.Max(rs.NextReroutingTime+shift, now), sim.PriorityReroute, ev)
		e.reroute = ev
	}
	for _, ars := range st.AgentReroutings {
		g := r.Group(ars.Group)
		if g == nil {
			continue
		}
		if a := g.AgentByIndex(ars.Agent); a == nil || a.Busy() {
			continue
		}
		key := agentKey{group: ars.Group, agent: ars.Agent}
		ev := &agentRerouting{r: r, key: key, retry: ars.State.NumReroutings + 1}
		ev.handle = r.sim.ScheduleAt(math.Max(ars.State.NextReroutingTime+shift, now), sim.PriorityReroute, ev)
		r.agentReroutes[key] = ev
	}
	logrus.Debugf("[t=%.4f] router %d: restored %d contacts (%d queued copies) from snapshot at t=%.4f",
		now, r.id, len(r.contacts), r.totalQueueSize, st.Time)
	return nil
}

// EncodeState serializes a snapshot as deterministic CBOR.
func EncodeState(st *RouterState) ([]byte, error) {
	data, err := codec.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode router state: %w", err)
	}
	return data, nil
}

// DiagnoseState renders an encoded snapshot in CBOR diagnostic notation.
func DiagnoseState(data []byte) (string, error) {
	diag, err := codec.Diagnose(data)
	if err != nil {
		return "", fmt.Errorf("diagnose router state: %w", err)
	}
	return diag, nil
}

// DecodeState parses a snapshot produced by EncodeState.
func DecodeState(data []byte) (*RouterState, error) {
	var st RouterState
	if err := codec.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode router state: %w", err)
	}
	return &st, nil
}
