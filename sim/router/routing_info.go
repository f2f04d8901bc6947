package router

import "github.com/inference-sim/ccsim/sim"

// RoutingInfo is the router-owned context of one routed contact. The router
// keeps the queue membership exact; policies own Stage and the rank vectors.
type RoutingInfo struct {
	// Stage is the index of the routing stage the contact reached, for
	// multi-stage policies.
	Stage int
	// AgentRanks holds the contact's current rank of each group.
	AgentRanks []float64
	// ContactRanks holds the contact's current rank in each queue, as seen by
	// the agents pulling from it.
	ContactRanks []float64

	queued    []*sim.DequeueEvent // one slot per queue, nil when absent
	numQueued int
}

func newRoutingInfo(numQueues int) *RoutingInfo {
	return &RoutingInfo{queued: make([]*sim.DequeueEvent, numQueues)}
}

// Queued returns the contact's copy in queue q, or nil.
func (ri *RoutingInfo) Queued(q int) *sim.DequeueEvent {
	if q < 0 || q >= len(ri.queued) {
		return nil
	}
	return ri.queued[q]
}

// NumQueued returns the number of queues holding a copy of the contact.
func (ri *RoutingInfo) NumQueued() int { return ri.numQueued }

// QueuedIn returns the slots of the queues holding the contact, ascending.
func (ri *RoutingInfo) QueuedIn() []int {
	out := make([]int, 0, ri.numQueued)
	for q, ev := range ri.queued {
		if ev != nil {
			out = append(out, q)
		}
	}
	return out
}

// QueuedEvents returns the contact's copies in queue order.
func (ri *RoutingInfo) QueuedEvents() []*sim.DequeueEvent {
	out := make([]*sim.DequeueEvent, 0, ri.numQueued)
	for _, ev := range ri.queued {
		if ev != nil {
			out = append(out, ev)
		}
	}
	return out
}

func (ri *RoutingInfo) setQueued(q int, ev *sim.DequeueEvent) {
	if ri.queued[q] == nil {
		ri.numQueued++
	}
	ri.queued[q] = ev
}

func (ri *RoutingInfo) clearQueued(q int) {
	if ri.queued[q] != nil {
		ri.numQueued--
		ri.queued[q] = nil
	}
}
