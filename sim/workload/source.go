package workload

import (
	"math"
	"math/rand"

	"github.com/inference-sim/ccsim/sim"
	"github.com/sirupsen/logrus"
)

// Sink receives every contact a Source generates. *router.Router implements it.
type Sink interface {
	NewContact(c *sim.Contact) error
}

// IDGenerator hands out contact identifiers, shared by all sources of a run.
type IDGenerator struct {
	next int64
}

// Next returns a fresh identifier, starting at 1.
func (g *IDGenerator) Next() int64 {
	g.next++
	return g.next
}

// Last returns the most recently issued identifier.
func (g *IDGenerator) Last() int64 { return g.next }

// SetLast makes Next continue after id.
func (g *IDGenerator) SetLast(id int64) { g.next = id }

// SourceConfig describes the arrival stream of one contact type.
type SourceConfig struct {
	TypeID   int
	Arrivals ArrivalSampler
	Service  DurationSampler
	Patience DurationSampler // nil means infinite patience
	Priority float64
	Trunk    *sim.TrunkGroup
	// Horizon is the last time an arrival may happen; +Inf for none.
	Horizon float64
}

// Source generates the contacts of one type as arrival events on the simulator.
type Source struct {
	cfg  SourceConfig
	sim  *sim.Simulator
	sink Sink
	ids  *IDGenerator

	arrivalRNG  *rand.Rand
	serviceRNG  *rand.Rand
	patienceRNG *rand.Rand

	next      *sim.EventHandle
	generated int64
}

// NewSource creates a stopped source. Inter-arrival times come from the
// stream of the contact type, service and patience times from their own
// subsystems.
func NewSource(s *sim.Simulator, cfg SourceConfig, rng *sim.PartitionedRNG, ids *IDGenerator, sink Sink) *Source {
	if cfg.Arrivals == nil || cfg.Service == nil {
		panic("workload: source needs arrival and service samplers")
	}
	if cfg.Horizon == 0 || math.IsNaN(cfg.Horizon) {
		cfg.Horizon = math.Inf(1)
	}
	return &Source{
		cfg:         cfg,
		sim:         s,
		sink:        sink,
		ids:         ids,
		arrivalRNG:  rng.ForSubsystem(sim.SubsystemContactType(cfg.TypeID)),
		serviceRNG:  rng.ForSubsystem(sim.SubsystemService),
		patienceRNG: rng.ForSubsystem(sim.SubsystemPatience),
	}
}

// TypeID returns the contact type generated by the source.
func (src *Source) TypeID() int { return src.cfg.TypeID }

// Generated returns the number of contacts created so far.
func (src *Source) Generated() int64 { return src.generated }

// Running reports whether an arrival is scheduled.
func (src *Source) Running() bool { return src.next.Pending() }

// Start schedules the first arrival. Starting a running source does nothing.
func (src *Source) Start() {
	if src.Running() {
		return
	}
	src.scheduleNext()
}

// Stop cancels the pending arrival.
func (src *Source) Stop() {
	if src.next != nil {
		src.next.Cancel()
	}
}

func (src *Source) scheduleNext() {
	iat := src.cfg.Arrivals.SampleIAT(src.arrivalRNG)
	if src.sim.Now()+iat > src.cfg.Horizon {
		logrus.Debugf("[t=%.3f] source %d reached its horizon after %d contacts", src.sim.Now(), src.cfg.TypeID, src.generated)
		return
	}
	src.next = src.sim.ScheduleWithPriority(iat, sim.PriorityArrival, src)
}

// Execute creates one contact, hands it to the sink and schedules the next arrival.
func (src *Source) Execute(s *sim.Simulator) {
	c := sim.NewContact(src.ids.Next(), src.cfg.TypeID, s.Now())
	c.Priority = src.cfg.Priority
	c.ServiceTime = src.cfg.Service.Sample(src.serviceRNG)
	if src.cfg.Patience != nil {
		c.PatienceTime = src.cfg.Patience.Sample(src.patienceRNG)
	}
	c.Trunk = src.cfg.Trunk
	src.generated++

	src.scheduleNext()
	if err := src.sink.NewContact(c); err != nil {
		logrus.Errorf("[t=%.3f] source %d: %v", s.Now(), src.cfg.TypeID, err)
	}
}
