package router

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/ccsim/sim"
	"github.com/inference-sim/ccsim/sim/trace"
)

// Unbounded is the default total queue capacity.
const Unbounded = math.MaxInt

// BlockReason tells why a contact was refused at arrival.
type BlockReason int

const (
	// BlockedNoLine: the contact's trunk group had no free line.
	BlockedNoLine BlockReason = iota
	// BlockedQueueFull: no agent was free and the total queue capacity was reached.
	BlockedQueueFull
	// BlockedCannotQueue: no agent was free and the policy chose no queue.
	BlockedCannotQueue
)

func (b BlockReason) String() string {
	switch b {
	case BlockedNoLine:
		return "no-line"
	case BlockedQueueFull:
		return "queue-full"
	case BlockedCannotQueue:
		return "cannot-queue"
	default:
		return fmt.Sprintf("BlockReason(%d)", int(b))
	}
}

// SlotKind selects the slot family for Bind.
type SlotKind int

const (
	SlotQueue SlotKind = iota
	SlotGroup
)

// Config declares a router's dimensions.
type Config struct {
	NumTypes  int // K, contact types
	NumQueues int // Q, waiting queues
	NumGroups int // I, agent groups
}

// routerIDs hands out router identifiers; 0 means "no router" on a contact.
var routerIDs atomic.Int64

// contactEntry is the arena record of one routed contact.
type contactEntry struct {
	contact *sim.Contact
	info    *RoutingInfo
	reroute *contactRerouting     // pending contact rerouting, if any
	service *sim.EndServiceEvent // set once the contact is being served
}

// agentKey identifies an agent across staffing changes.
type agentKey struct {
	group int
	agent int
}

// Router matches contacts with agents for one set of queues and agent groups,
// delegating every choice to its Policy. It is single-threaded: all methods
// must run inside simulation events or before the simulation starts.
type Router struct {
	id     int
	sim    *sim.Simulator
	policy Policy

	numTypes int
	queues   []*sim.WaitingQueue
	groups   []*sim.AgentGroup

	autoClear      []bool
	totalQueueSize int
	queueCapacity  int

	contacts      map[int64]*contactEntry
	agentReroutes map[agentKey]*agentRerouting

	listeners    []ExitedContactListener
	broadcasting int
	dialers      [][]Dialer

	trace *trace.SimulationTrace
}

// New creates a router with empty slots and attaches the policy.
func New(s *sim.Simulator, cfg Config, policy Policy) (*Router, error) {
	if cfg.NumTypes < 0 || cfg.NumQueues < 0 || cfg.NumGroups < 0 {
		return nil, fmt.Errorf("%w: negative dimension in %+v", ErrDimension, cfg)
	}
	if policy == nil {
		return nil, fmt.Errorf("%w: nil policy", ErrInvalidConfig)
	}
	r := &Router{
		id:            int(routerIDs.Add(1)),
		sim:           s,
		policy:        policy,
		numTypes:      cfg.NumTypes,
		queues:        make([]*sim.WaitingQueue, cfg.NumQueues),
		groups:        make([]*sim.AgentGroup, cfg.NumGroups),
		autoClear:     make([]bool, cfg.NumQueues),
		queueCapacity: Unbounded,
		contacts:      make(map[int64]*contactEntry),
		agentReroutes: make(map[agentKey]*agentRerouting),
		dialers:       make([][]Dialer, cfg.NumGroups),
	}
	for q := range r.autoClear {
		r.autoClear[q] = true
	}
	if err := policy.Attach(r); err != nil {
		return nil, fmt.Errorf("attach policy %q: %w", policy.Name(), err)
	}
	return r, nil
}

// ID returns the router identifier stored on the contacts it owns.
func (r *Router) ID() int { return r.id }

// Policy returns the routing policy.
func (r *Router) Policy() Policy { return r.policy }

// Simulator returns the simulator driving the router.
func (r *Router) Simulator() *sim.Simulator { return r.sim }

// Now returns the current simulation time.
func (r *Router) Now() float64 { return r.sim.Now() }

func (r *Router) NumTypes() int  { return r.numTypes }
func (r *Router) NumQueues() int { return len(r.queues) }
func (r *Router) NumGroups() int { return len(r.groups) }

// Queue returns the queue bound to slot q, or nil.
func (r *Router) Queue(q int) *sim.WaitingQueue { return queueAt(r.queues, q) }

// Group returns the group bound to slot i, or nil.
func (r *Router) Group(i int) *sim.AgentGroup { return groupAt(r.groups, i) }

// Queues returns the queue slots. Callers must not modify the slice.
func (r *Router) Queues() []*sim.WaitingQueue { return r.queues }

// Groups returns the group slots. Callers must not modify the slice.
func (r *Router) Groups() []*sim.AgentGroup { return r.groups }

// Bind binds obj (a *sim.WaitingQueue or *sim.AgentGroup) to a slot.
func (r *Router) Bind(kind SlotKind, index int, obj any) error {
	switch kind {
	case SlotQueue:
		q, ok := obj.(*sim.WaitingQueue)
		if !ok && obj != nil {
			return fmt.Errorf("%w: queue slot %d cannot hold %T", ErrInvalidConfig, index, obj)
		}
		return r.BindQueue(index, q)
	case SlotGroup:
		g, ok := obj.(*sim.AgentGroup)
		if !ok && obj != nil {
			return fmt.Errorf("%w: group slot %d cannot hold %T", ErrInvalidConfig, index, obj)
		}
		return r.BindGroup(index, g)
	default:
		return fmt.Errorf("%w: unknown slot kind %d", ErrInvalidConfig, kind)
	}
}

// BindQueue binds wq to queue slot q, replacing (and unbinding) the previous
// occupant. A nil wq empties the slot. The queue takes the policy's discipline.
func (r *Router) BindQueue(q int, wq *sim.WaitingQueue) error {
	if q < 0 || q >= len(r.queues) {
		return fmt.Errorf("%w: queue %d not in [0,%d)", ErrSlotRange, q, len(r.queues))
	}
	if wq != nil {
		if wq.ID() != -1 {
			return fmt.Errorf("%w: queue %q already has index %d", ErrSlotConflict, wq.Name(), wq.ID())
		}
		if !wq.IsEmpty() {
			return fmt.Errorf("%w: queue %q holds %d contacts", ErrSlotConflict, wq.Name(), wq.Size())
		}
	}
	if old := r.queues[q]; old != nil {
		if !old.IsEmpty() {
			return fmt.Errorf("%w: queue slot %d holds %d contacts", ErrSlotConflict, q, old.Size())
		}
		old.RemoveListener(r)
		old.SetID(-1)
		r.queues[q] = nil
	}
	if wq == nil {
		return nil
	}
	wq.SetID(q)
	wq.SetDiscipline(r.policy.QueueDiscipline())
	wq.AddListener(r)
	r.queues[q] = wq
	return nil
}

// BindGroup binds g to group slot i, replacing (and unbinding) the previous
// occupant. A nil g empties the slot. A group with busy agents cannot be unbound.
func (r *Router) BindGroup(i int, g *sim.AgentGroup) error {
	if i < 0 || i >= len(r.groups) {
		return fmt.Errorf("%w: group %d not in [0,%d)", ErrSlotRange, i, len(r.groups))
	}
	if g != nil && g.ID() != -1 {
		return fmt.Errorf("%w: group %q already has index %d", ErrSlotConflict, g.Name(), g.ID())
	}
	if old := r.groups[i]; old != nil {
		if old.NumBusy() > 0 {
			return fmt.Errorf("%w: group slot %d has %d busy agents", ErrSlotConflict, i, old.NumBusy())
		}
		r.cancelAgentReroutes(i)
		old.RemoveListener(r)
		old.SetID(-1)
		r.groups[i] = nil
	}
	if g == nil {
		return nil
	}
	g.SetID(i)
	g.AddListener(r)
	r.groups[i] = g
	if g.NumFree() > 0 && r.totalQueueSize > 0 {
		r.CheckFreeAgents(g, nil)
	}
	return nil
}

// TotalQueueSize returns the number of contact copies in all bound queues.
func (r *Router) TotalQueueSize() int { return r.totalQueueSize }

// QueueCapacity returns the total queue capacity (Unbounded by default).
func (r *Router) QueueCapacity() int { return r.queueCapacity }

// SetQueueCapacity changes the total queue capacity.
func (r *Router) SetQueueCapacity(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeCapacity, n)
	}
	if n < r.totalQueueSize {
		return fmt.Errorf("%w: capacity %d, %d contacts queued", ErrCapacityBelowOccupancy, n, r.totalQueueSize)
	}
	r.queueCapacity = n
	return nil
}

// AutoClear reports whether queue q is cleared when no agent can serve it.
func (r *Router) AutoClear(q int) bool { return r.autoClear[q] }

// SetAutoClear enables or disables clearing of queue q.
func (r *Router) SetAutoClear(q int, on bool) { r.autoClear[q] = on }

// AddDialer registers a dialer triggered after group i's free agents were
// offered queued contacts.
func (r *Router) AddDialer(i int, d Dialer) {
	r.dialers[i] = append(r.dialers[i], d)
}

// SetTrace records routing decisions and exits into st (nil disables).
func (r *Router) SetTrace(st *trace.SimulationTrace) { r.trace = st }

// RoutingInfo returns the routing context of a contact the router currently
// handles, or nil.
func (r *Router) RoutingInfo(contactID int64) *RoutingInfo {
	if e := r.contacts[contactID]; e != nil {
		return e.info
	}
	return nil
}

// NumContacts returns the number of contacts the router is handling (queued
// or in service).
func (r *Router) NumContacts() int { return len(r.contacts) }

// AddExitedContactListener registers l. Fails during a broadcast.
func (r *Router) AddExitedContactListener(l ExitedContactListener) error {
	if r.broadcasting > 0 {
		return fmt.Errorf("add exited-contact listener: %w", ErrBroadcasting)
	}
	for _, x := range r.listeners {
		if x == l {
			return nil
		}
	}
	r.listeners = append(r.listeners, l)
	return nil
}

// RemoveExitedContactListener unregisters l. Fails during a broadcast.
func (r *Router) RemoveExitedContactListener(l ExitedContactListener) error {
	if r.broadcasting > 0 {
		return fmt.Errorf("remove exited-contact listener: %w", ErrBroadcasting)
	}
	for i, x := range r.listeners {
		if x == l {
			r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
			return nil
		}
	}
	return nil
}

// ExitedContactListeners returns a copy of the registered listeners.
func (r *Router) ExitedContactListeners() []ExitedContactListener {
	return append([]ExitedContactListener(nil), r.listeners...)
}

func (r *Router) notifyBlocked(c *sim.Contact, reason BlockReason) {
	r.broadcasting++
	defer func() { r.broadcasting-- }()
	for _, l := range r.listeners {
		l.Blocked(r, c, reason)
	}
}

func (r *Router) notifyDequeued(ev *sim.DequeueEvent) {
	r.broadcasting++
	defer func() { r.broadcasting-- }()
	for _, l := range r.listeners {
		l.Dequeued(r, ev)
	}
}

func (r *Router) notifyServed(ev *sim.EndServiceEvent) {
	r.broadcasting++
	defer func() { r.broadcasting-- }()
	for _, l := range r.listeners {
		l.Served(r, ev)
	}
}

func (r *Router) String() string {
	return fmt.Sprintf("Router(%d, policy=%s, K=%d, Q=%d, I=%d, queued=%d)",
		r.id, r.policy.Name(), r.numTypes, len(r.queues), len(r.groups), r.totalQueueSize)
}

func (r *Router) logf(format string, args ...any) {
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		logrus.Debugf("[t=%.4f] router %d: %s", r.sim.Now(), r.id, fmt.Sprintf(format, args...))
	}
}
