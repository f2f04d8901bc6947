package sim

// Event defines the interface for all simulation events.
// Execute advances simulation state when the Simulator reaches the event's
// scheduled time. The time itself lives on the EventHandle returned by Schedule.
type Event interface {
	Execute(*Simulator)
}

// EventFunc adapts a plain function to the Event interface.
type EventFunc func(*Simulator)

// Execute calls f(sim).
func (f EventFunc) Execute(sim *Simulator) { f(sim) }

// Event priorities used to order events sharing a timestamp.
// Lower values are processed first; equal priorities run in scheduling order.
const (
	PriorityEndService = 0 // agents free up before anything else looks at them
	PriorityAbandon    = 1
	PriorityArrival    = 2
	PriorityReroute    = 3
	PriorityDefault    = 4
)

// EventHandle is the scheduling record of one Event. It stays valid after the
// event fired or was cancelled so callers can inspect Time and Pending.
type EventHandle struct {
	event    Event
	time     float64
	priority int
	seq      int64
	index    int // position in the heap, -1 when not scheduled
	sim      *Simulator
}

// Event returns the scheduled event body.
func (h *EventHandle) Event() Event { return h.event }

// Time returns the (last) scheduled execution time.
func (h *EventHandle) Time() float64 { return h.time }

// Pending reports whether the event is still waiting in the event queue.
func (h *EventHandle) Pending() bool { return h != nil && h.index >= 0 }

// Cancel removes the event from the queue.
// Returns false if the event already fired or was cancelled.
func (h *EventHandle) Cancel() bool {
	if !h.Pending() {
		return false
	}
	h.sim.remove(h)
	return true
}

// Reschedule moves the event to now+delay, whether or not it is still pending.
// The event gets a fresh sequence number, so it runs after events already
// scheduled for the same time and priority.
func (h *EventHandle) Reschedule(delay float64) {
	if h.Pending() {
		h.sim.remove(h)
	}
	h.sim.push(h, h.sim.clock+checkDelay(delay))
}

// eventQueue is a min-heap ordered by (time, priority, seq).
// Implements heap.Interface and keeps EventHandle.index current.
type eventQueue []*EventHandle

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].time != q[j].time {
		return q[i].time < q[j].time
	}
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	h := x.(*EventHandle)
	h.index = len(*q)
	*q = append(*q, h)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	h := old[n-1]
	old[n-1] = nil
	h.index = -1
	*q = old[:n-1]
	return h
}
