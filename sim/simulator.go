// sim/simulator.go
package sim

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Simulator is the discrete-event clock: it holds the current simulation time
// and executes scheduled events one at a time, in (time, priority, sequence)
// order. Every event body runs to completion before the next one starts.
//
// Thread-safety: NOT thread-safe. A Simulator and everything attached to it
// must be driven from a single goroutine.
type Simulator struct {
	clock    float64
	queue    eventQueue
	seq      int64
	stopped  bool
	executed int64
}

// NewSimulator creates a Simulator with the clock at zero and no events.
func NewSimulator() *Simulator {
	return &Simulator{queue: make(eventQueue, 0)}
}

// Now returns the current simulation time.
func (sim *Simulator) Now() float64 {
	return sim.clock
}

// Executed returns the number of events processed so far.
func (sim *Simulator) Executed() int64 {
	return sim.executed
}

// Pending returns the number of events waiting in the queue.
func (sim *Simulator) Pending() int {
	return len(sim.queue)
}

// PeekTime returns the time of the next event, or +Inf when the queue is empty.
func (sim *Simulator) PeekTime() float64 {
	if len(sim.queue) == 0 {
		return math.Inf(1)
	}
	return sim.queue[0].time
}

// Schedule runs ev after delay time units with the default priority.
// Panics if delay is negative or NaN.
func (sim *Simulator) Schedule(delay float64, ev Event) *EventHandle {
	return sim.ScheduleWithPriority(delay, PriorityDefault, ev)
}

// ScheduleWithPriority runs ev after delay time units. At equal timestamps,
// lower priority values run first.
func (sim *Simulator) ScheduleWithPriority(delay float64, priority int, ev Event) *EventHandle {
	if ev == nil {
		panic("Simulator.Schedule: event must not be nil")
	}
	h := &EventHandle{event: ev, priority: priority, index: -1, sim: sim}
	sim.push(h, sim.clock+checkDelay(delay))
	return h
}

// ScheduleAt runs ev at absolute time t. Panics if t is in the past.
func (sim *Simulator) ScheduleAt(t float64, priority int, ev Event) *EventHandle {
	if t < sim.clock {
		panic(fmt.Sprintf("Simulator.ScheduleAt: time %g is before the clock %g", t, sim.clock))
	}
	return sim.ScheduleWithPriority(t-sim.clock, priority, ev)
}

// Stop makes the current Run return after the executing event completes.
func (sim *Simulator) Stop() {
	sim.stopped = true
}

// Step executes the next event. Returns false when the queue is empty.
func (sim *Simulator) Step() bool {
	if len(sim.queue) == 0 {
		return false
	}
	h := heap.Pop(&sim.queue).(*EventHandle)
	sim.clock = h.time
	sim.executed++
	logrus.Tracef("[t=%.4f] Executing %T", sim.clock, h.event)
	h.event.Execute(sim)
	return true
}

// Run processes events until the queue drains, Stop is called, or the next
// event lies beyond horizon. When the horizon is finite and was reached, the
// clock is left at the horizon so that follow-up scheduling is relative to it.
func (sim *Simulator) Run(horizon float64) {
	sim.stopped = false
	for !sim.stopped && len(sim.queue) > 0 && sim.queue[0].time <= horizon {
		sim.Step()
	}
	if !sim.stopped && !math.IsInf(horizon, 1) && sim.clock < horizon {
		sim.clock = horizon
	}
	logrus.Debugf("[t=%.4f] Run returned after %d events, %d pending", sim.clock, sim.executed, len(sim.queue))
}

// Reset drops every pending event and moves the clock back to zero.
func (sim *Simulator) Reset() {
	for _, h := range sim.queue {
		h.index = -1
	}
	sim.queue = sim.queue[:0]
	sim.clock = 0
	sim.executed = 0
	sim.stopped = false
}

func (sim *Simulator) push(h *EventHandle, t float64) {
	h.time = t
	sim.seq++
	h.seq = sim.seq
	heap.Push(&sim.queue, h)
}

func (sim *Simulator) remove(h *EventHandle) {
	heap.Remove(&sim.queue, h.index)
}

func checkDelay(delay float64) float64 {
	if delay < 0 || math.IsNaN(delay) {
		panic(fmt.Sprintf("Simulator: invalid delay %g", delay))
	}
	return delay
}
