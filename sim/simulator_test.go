package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordEvent appends its label to a shared log when executed.
type recordEvent struct {
	label string
	log   *[]string
}

func (e *recordEvent) Execute(*Simulator) { *e.log = append(*e.log, e.label) }

func TestSimulator_OrdersByTimePriorityThenSequence(t *testing.T) {
	s := NewSimulator()
	var log []string
	add := func(at float64, prio int, label string) {
		s.ScheduleAt(at, prio, &recordEvent{label: label, log: &log})
	}
	add(2, PriorityDefault, "t2")
	add(1, PriorityReroute, "reroute")
	add(1, PriorityArrival, "arrival-a")
	add(1, PriorityEndService, "end")
	add(1, PriorityArrival, "arrival-b")
	add(1, PriorityAbandon, "abandon")

	s.Run(math.Inf(1))

	assert.Equal(t, []string{"end", "abandon", "arrival-a", "arrival-b", "reroute", "t2"}, log)
	assert.Equal(t, 2.0, s.Now())
	assert.Equal(t, int64(6), s.Executed())
	assert.Zero(t, s.Pending())
}

func TestSimulator_RunHorizon(t *testing.T) {
	tests := []struct {
		name      string
		horizon   float64
		wantClock float64
		wantRan   int64
	}{
		{"horizon before events", 0.5, 0.5, 0},
		{"horizon on an event", 1, 1, 1},
		{"horizon between events", 2.5, 2.5, 2},
		{"infinite horizon", math.Inf(1), 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSimulator()
			for _, at := range []float64{1, 2, 3} {
				s.ScheduleAt(at, PriorityDefault, EventFunc(func(*Simulator) {}))
			}

			s.Run(tt.horizon)

			assert.Equal(t, tt.wantClock, s.Now())
			assert.Equal(t, tt.wantRan, s.Executed())
		})
	}
}

func TestSimulator_StopEndsRunAfterCurrentEvent(t *testing.T) {
	s := NewSimulator()
	s.Schedule(1, EventFunc(func(s *Simulator) { s.Stop() }))
	s.Schedule(2, EventFunc(func(*Simulator) {}))

	s.Run(10)

	assert.Equal(t, 1.0, s.Now())
	assert.Equal(t, 1, s.Pending())
	assert.Equal(t, 2.0, s.PeekTime())

	// A new Run resumes.
	s.Run(10)
	assert.Equal(t, 10.0, s.Now())
	assert.Equal(t, int64(2), s.Executed())
}

func TestEventHandle_CancelAndReschedule(t *testing.T) {
	s := NewSimulator()
	var log []string
	a := s.Schedule(1, &recordEvent{label: "a", log: &log})
	b := s.Schedule(2, &recordEvent{label: "b", log: &log})
	c := s.Schedule(3, &recordEvent{label: "c", log: &log})

	require.True(t, a.Cancel())
	assert.False(t, a.Cancel())
	assert.False(t, a.Pending())
	b.Reschedule(3) // after c: same time and priority, fresh sequence

	s.Run(math.Inf(1))

	assert.Equal(t, []string{"c", "b"}, log)
	assert.Equal(t, 3.0, b.Time())
	assert.False(t, c.Pending())

	// Rescheduling a fired event puts it back.
	c.Reschedule(1)
	assert.True(t, c.Pending())
	assert.Equal(t, 4.0, c.Time())
}

func TestEventHandle_NilIsNotPending(t *testing.T) {
	var h *EventHandle
	assert.False(t, h.Pending())
}

func TestSimulator_EventsScheduledDuringExecution(t *testing.T) {
	s := NewSimulator()
	var times []float64
	var tick EventFunc
	tick = func(s *Simulator) {
		times = append(times, s.Now())
		if len(times) < 3 {
			s.Schedule(0.5, tick)
		}
	}
	s.Schedule(1, tick)

	s.Run(math.Inf(1))

	assert.Equal(t, []float64{1, 1.5, 2}, times)
}

func TestSimulator_InvalidScheduling(t *testing.T) {
	s := NewSimulator()
	s.Run(5)
	noop := EventFunc(func(*Simulator) {})

	assert.Panics(t, func() { s.Schedule(-1, noop) })
	assert.Panics(t, func() { s.Schedule(math.NaN(), noop) })
	assert.Panics(t, func() { s.ScheduleAt(4, PriorityDefault, noop) })
	assert.Panics(t, func() { s.Schedule(1, nil) })
	assert.NotPanics(t, func() { s.ScheduleAt(5, PriorityDefault, noop) })
}

func TestSimulator_Reset(t *testing.T) {
	s := NewSimulator()
	h := s.Schedule(3, EventFunc(func(*Simulator) {}))
	s.Schedule(1, EventFunc(func(*Simulator) {}))
	s.Run(2)

	s.Reset()

	assert.Zero(t, s.Now())
	assert.Zero(t, s.Pending())
	assert.Zero(t, s.Executed())
	assert.False(t, h.Pending())
	assert.False(t, s.Step())
	assert.True(t, math.IsInf(s.PeekTime(), 1))
}
