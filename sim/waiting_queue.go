// Implements the WaitingQueue, which holds contacts waiting for an agent.
// Contacts are added by routers and leave on service, abandonment, clearing or transfer.

package sim

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Discipline is the ordering of a WaitingQueue.
type Discipline int

const (
	// FIFO keeps contacts in enqueue order.
	FIFO Discipline = iota
	// PriorityOrder keeps contacts by increasing priority value, then enqueue order.
	PriorityOrder
)

func (d Discipline) String() string {
	switch d {
	case FIFO:
		return "fifo"
	case PriorityOrder:
		return "priority"
	default:
		return fmt.Sprintf("Discipline(%d)", int(d))
	}
}

// DequeueType tells why a contact left a queue.
type DequeueType int

const (
	// DequeueServed: removed to begin service.
	DequeueServed DequeueType = iota
	// DequeueAbandoned: the contact ran out of patience.
	DequeueAbandoned
	// DequeueNoAgent: the queue was cleared because no agent can serve it anymore.
	DequeueNoAgent
	// DequeueTransfer: moved to another queue by the router.
	DequeueTransfer
	// DequeueSibling: another copy of the same contact left its queue first.
	DequeueSibling
)

func (t DequeueType) String() string {
	switch t {
	case DequeueServed:
		return "served"
	case DequeueAbandoned:
		return "abandoned"
	case DequeueNoAgent:
		return "no-agent"
	case DequeueTransfer:
		return "transfer"
	case DequeueSibling:
		return "sibling"
	default:
		return fmt.Sprintf("DequeueType(%d)", int(t))
	}
}

// WaitingQueueListener receives enqueue and dequeue notifications.
type WaitingQueueListener interface {
	Enqueued(ev *DequeueEvent)
	Dequeued(ev *DequeueEvent)
}

// DequeueEvent is the handle of one contact's presence in one queue.
// It records the enqueue time, the scheduled abandonment, and, once removed,
// the dequeue type and time.
type DequeueEvent struct {
	Contact *Contact

	queue       *WaitingQueue
	enqueueTime float64
	priority    float64
	seq         int64
	abandon     *EventHandle
	abandonTime float64
	dequeued    bool
	dqType      DequeueType
	dqTime      float64
}

// Queue returns the queue the contact was added to.
func (ev *DequeueEvent) Queue() *WaitingQueue { return ev.queue }

// EnqueueTime returns when the contact entered the queue.
func (ev *DequeueEvent) EnqueueTime() float64 { return ev.enqueueTime }

// Priority returns the contact's priority inside the queue.
func (ev *DequeueEvent) Priority() float64 { return ev.priority }

// AbandonTime returns the scheduled abandonment time, +Inf if none.
func (ev *DequeueEvent) AbandonTime() float64 { return ev.abandonTime }

// Dequeued reports whether the contact left the queue.
func (ev *DequeueEvent) Dequeued() bool { return ev.dequeued }

// DequeueType returns why the contact left. Meaningless until Dequeued.
func (ev *DequeueEvent) DequeueType() DequeueType { return ev.dqType }

// DequeueTime returns when the contact left. Meaningless until Dequeued.
func (ev *DequeueEvent) DequeueTime() float64 { return ev.dqTime }

// WaitingTime returns the time spent in this queue up to now (or up to the dequeue time).
func (ev *DequeueEvent) WaitingTime(now float64) float64 {
	if ev.dequeued {
		return ev.dqTime - ev.enqueueTime
	}
	return now - ev.enqueueTime
}

// abandonEvent fires when a queued contact runs out of patience.
type abandonEvent struct {
	ev *DequeueEvent
}

func (e *abandonEvent) Execute(sim *Simulator) {
	if e.ev.dequeued {
		return
	}
	logrus.Debugf("[t=%.4f] contact %d abandons queue %q", sim.Now(), e.ev.Contact.ID, e.ev.queue.name)
	e.ev.queue.Remove(e.ev, DequeueAbandoned)
}

// WaitingQueue holds DequeueEvents in FIFO or priority order.
type WaitingQueue struct {
	id         int
	name       string
	sim        *Simulator
	discipline Discipline
	items      []*DequeueEvent
	seq        int64
	listeners  []WaitingQueueListener
}

// NewWaitingQueue creates an empty FIFO queue.
func NewWaitingQueue(sim *Simulator, name string) *WaitingQueue {
	return &WaitingQueue{id: -1, name: name, sim: sim, discipline: FIFO}
}

// ID returns the slot index assigned by the router, or -1 when unbound.
func (q *WaitingQueue) ID() int { return q.id }

// SetID assigns the slot index. Routers call this on bind and reset it to -1 on unbind.
func (q *WaitingQueue) SetID(id int) { q.id = id }

// Name returns the queue's name.
func (q *WaitingQueue) Name() string { return q.name }

// Discipline returns the ordering discipline.
func (q *WaitingQueue) Discipline() Discipline { return q.discipline }

// SetDiscipline changes the ordering discipline and reorders current contents.
func (q *WaitingQueue) SetDiscipline(d Discipline) {
	if q.discipline == d {
		return
	}
	q.discipline = d
	sort.SliceStable(q.items, func(i, j int) bool { return q.before(q.items[i], q.items[j]) })
}

// Size returns the number of contacts in the queue.
func (q *WaitingQueue) Size() int { return len(q.items) }

// IsEmpty reports whether the queue holds no contact.
func (q *WaitingQueue) IsEmpty() bool { return len(q.items) == 0 }

// First returns the head of the queue, or nil.
func (q *WaitingQueue) First() *DequeueEvent {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// Last returns the tail of the queue, or nil.
func (q *WaitingQueue) Last() *DequeueEvent {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[len(q.items)-1]
}

// Items returns the queue contents in service order.
// The returned slice is the queue's internal storage: callers MUST NOT modify it
// and must not hold it across calls that add or remove contacts.
func (q *WaitingQueue) Items() []*DequeueEvent { return q.items }

// HeadWaitingTime returns the waiting time of the head at the current time, or 0 if empty.
func (q *WaitingQueue) HeadWaitingTime() float64 {
	if len(q.items) == 0 {
		return 0
	}
	return q.sim.Now() - q.items[0].enqueueTime
}

// AddListener registers l. Registering the same listener twice is a no-op.
func (q *WaitingQueue) AddListener(l WaitingQueueListener) {
	for _, x := range q.listeners {
		if x == l {
			return
		}
	}
	q.listeners = append(q.listeners, l)
}

// RemoveListener unregisters l.
func (q *WaitingQueue) RemoveListener(l WaitingQueueListener) {
	for i, x := range q.listeners {
		if x == l {
			q.listeners = append(q.listeners[:i:i], q.listeners[i+1:]...)
			return
		}
	}
}

// Add enqueues c with the given queue priority. Abandonment is scheduled at
// first-queue time + patience, measured across all queues the contact visited.
func (q *WaitingQueue) Add(c *Contact, priority float64) *DequeueEvent {
	now := q.sim.Now()
	c.markQueued(now)
	ev := &DequeueEvent{
		Contact:     c,
		queue:       q,
		enqueueTime: now,
		priority:    priority,
		abandonTime: math.Inf(1),
	}
	q.insert(ev)
	if deadline := c.firstQueued + c.PatienceTime; !math.IsInf(deadline, 1) && !math.IsNaN(deadline) {
		ev.abandonTime = math.Max(deadline, now)
		ev.abandon = q.sim.ScheduleAt(ev.abandonTime, PriorityAbandon, &abandonEvent{ev: ev})
	}
	for _, l := range q.copyListeners() {
		l.Enqueued(ev)
	}
	return ev
}

// SetPriority moves ev to its new position without notifying listeners:
// the contact does not leave the queue and keeps its enqueue time.
func (q *WaitingQueue) SetPriority(ev *DequeueEvent, priority float64) {
	if ev.dequeued || ev.queue != q || ev.priority == priority {
		return
	}
	q.unlink(ev)
	ev.priority = priority
	q.insert(ev)
}

// Remove takes ev out of the queue with the given dequeue type.
// Returns false if ev is not (or no longer) in this queue.
func (q *WaitingQueue) Remove(ev *DequeueEvent, t DequeueType) bool {
	if ev == nil || ev.dequeued || ev.queue != q {
		return false
	}
	if !q.unlink(ev) {
		return false
	}
	ev.abandon.Cancel()
	ev.dequeued = true
	ev.dqType = t
	ev.dqTime = q.sim.Now()
	for _, l := range q.copyListeners() {
		l.Dequeued(ev)
	}
	return true
}

// RemoveFirst removes and returns the head, or nil if the queue is empty.
func (q *WaitingQueue) RemoveFirst(t DequeueType) *DequeueEvent {
	ev := q.First()
	if ev == nil {
		return nil
	}
	q.Remove(ev, t)
	return ev
}

// Clear removes every contact with the given dequeue type, head first.
// Returns the number of contacts removed.
func (q *WaitingQueue) Clear(t DequeueType) int {
	n := 0
	for _, ev := range append([]*DequeueEvent(nil), q.items...) {
		if q.Remove(ev, t) {
			n++
		}
	}
	return n
}

func (q *WaitingQueue) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, ev := range q.items {
		sb.WriteString(fmt.Sprint(ev.Contact.ID))
		if i < len(q.items)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}

func (q *WaitingQueue) before(a, b *DequeueEvent) bool {
	if q.discipline == PriorityOrder && a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.seq < b.seq
}

func (q *WaitingQueue) insert(ev *DequeueEvent) {
	if ev.seq == 0 {
		q.seq++
		ev.seq = q.seq
	}
	pos := sort.Search(len(q.items), func(i int) bool { return q.before(ev, q.items[i]) })
	q.items = append(q.items, nil)
	copy(q.items[pos+1:], q.items[pos:])
	q.items[pos] = ev
}

func (q *WaitingQueue) unlink(ev *DequeueEvent) bool {
	for i, x := range q.items {
		if x == ev {
			copy(q.items[i:], q.items[i+1:])
			q.items[len(q.items)-1] = nil
			q.items = q.items[:len(q.items)-1]
			return true
		}
	}
	return false
}

func (q *WaitingQueue) copyListeners() []WaitingQueueListener {
	return append([]WaitingQueueListener(nil), q.listeners...)
}
