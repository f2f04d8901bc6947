// Package center builds a complete contact center from a Scenario and runs it:
// one router, its waiting queues and agent groups, one arrival source per
// contact type, and the staffing plan.
package center

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/ccsim/sim"
	"github.com/inference-sim/ccsim/sim/router"
	"github.com/inference-sim/ccsim/sim/trace"
	"github.com/inference-sim/ccsim/sim/workload"
)

// Center is a contact center ready to run.
type Center struct {
	scenario *Scenario
	sim      *sim.Simulator
	rng      *sim.PartitionedRNG
	router   *router.Router
	queues   []*sim.WaitingQueue
	groups   []*sim.AgentGroup
	trunks   map[string]*sim.TrunkGroup
	sources  []*workload.Source
	ids      *workload.IDGenerator
	metrics  *Metrics

	checkpointErr error
	hasRun        bool
}

// Build validates the scenario and wires every component. Nothing is
// scheduled until Run.
func Build(sc *Scenario) (*Center, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	numTypes, numGroups := len(sc.Types), len(sc.Groups)
	s := sim.NewSimulator()
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(sc.Seed))

	policy, err := router.NewPolicy(sc.Router, numTypes, numGroups, rng.ForSubsystem(sim.SubsystemRouter))
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}
	numQueues := router.QueueCount(sc.Router, numTypes, numGroups)
	r, err := router.New(s, router.Config{NumTypes: numTypes, NumQueues: numQueues, NumGroups: numGroups}, policy)
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}

	c := &Center{
		scenario: sc,
		sim:      s,
		rng:      rng,
		router:   r,
		queues:   make([]*sim.WaitingQueue, numQueues),
		groups:   make([]*sim.AgentGroup, numGroups),
		trunks:   make(map[string]*sim.TrunkGroup, len(sc.Trunks)),
		ids:      &workload.IDGenerator{},
		metrics:  NewMetrics(numTypes, sc.ServiceLevel),
	}
	for q := range c.queues {
		c.queues[q] = sim.NewWaitingQueue(s, fmt.Sprintf("queue_%d", q))
		if err := r.BindQueue(q, c.queues[q]); err != nil {
			return nil, err
		}
	}
	for i, gc := range sc.Groups {
		c.groups[i] = sim.NewAgentGroup(s, sc.GroupName(i), gc.Agents)
		if err := r.BindGroup(i, c.groups[i]); err != nil {
			return nil, err
		}
	}
	if sc.QueueCapacity != nil {
		if err := r.SetQueueCapacity(*sc.QueueCapacity); err != nil {
			return nil, err
		}
	}
	for _, q := range sc.NoAutoClear {
		r.SetAutoClear(q, false)
	}
	for _, tc := range sc.Trunks {
		c.trunks[tc.Name] = sim.NewTrunkGroup(tc.Name, tc.Lines)
	}
	if err := r.AddExitedContactListener(c.metrics); err != nil {
		return nil, err
	}

	for k, tc := range sc.Types {
		cfg := workload.SourceConfig{
			TypeID:   k,
			Arrivals: workload.NewArrivalSampler(tc.Arrival),
			Service:  workload.NewDurationSampler(tc.Service),
			Priority: tc.Priority,
			Trunk:    c.trunks[tc.Trunk],
			Horizon:  sc.Horizon,
		}
		if !tc.Patience.IsNone() {
			cfg.Patience = workload.NewDurationSampler(tc.Patience)
		}
		c.sources = append(c.sources, workload.NewSource(s, cfg, rng, c.ids, r))
	}
	logrus.Infof("Built center %q: %d types, %d groups, %d queues, policy %s",
		sc.Name, numTypes, numGroups, numQueues, policy.Name())
	return c, nil
}

// Scenario returns the scenario the center was built from.
func (c *Center) Scenario() *Scenario { return c.scenario }

// Simulator returns the center's simulator.
func (c *Center) Simulator() *sim.Simulator { return c.sim }

// Router returns the center's router.
func (c *Center) Router() *router.Router { return c.router }

// Group returns agent group i.
func (c *Center) Group(i int) *sim.AgentGroup { return c.groups[i] }

// Queue returns waiting queue q.
func (c *Center) Queue(q int) *sim.WaitingQueue { return c.queues[q] }

// Trunk returns the named trunk group, or nil.
func (c *Center) Trunk(name string) *sim.TrunkGroup { return c.trunks[name] }

// Source returns the arrival source of contact type k.
func (c *Center) Source(k int) *workload.Source { return c.sources[k] }

// Metrics returns the metrics collected so far.
func (c *Center) Metrics() *Metrics { return c.metrics }

// TypeNames returns the display name of every contact type.
func (c *Center) TypeNames() []string {
	names := make([]string, len(c.scenario.Types))
	for k := range names {
		names[k] = c.scenario.TypeName(k)
	}
	return names
}

// SetTrace records every routing decision and exit into st.
func (c *Center) SetTrace(st *trace.SimulationTrace) { c.router.SetTrace(st) }

// AddExitedContactListener registers an extra listener next to the metrics.
func (c *Center) AddExitedContactListener(l router.ExitedContactListener) error {
	return c.router.AddExitedContactListener(l)
}

// ScheduleCheckpoint saves the router at time at and hands the snapshot to
// save. A save error is returned by Run.
func (c *Center) ScheduleCheckpoint(at float64, save func(*router.RouterState) error) {
	c.sim.ScheduleAt(at, sim.PriorityDefault, sim.EventFunc(func(s *sim.Simulator) {
		st := c.router.SaveState()
		logrus.Infof("[t=%.3f] checkpoint: %d contacts routed, %d queued", s.Now(), c.router.NumContacts(), c.router.TotalQueueSize())
		if err := save(st); err != nil && c.checkpointErr == nil {
			c.checkpointErr = fmt.Errorf("checkpoint at %.3f: %w", at, err)
		}
	}))
}

// Restore resumes from a router snapshot: the clock moves to the snapshot
// time and the queues, services and rerouting timers are rebuilt. Must be
// called before Run. Arrival streams restart from the scenario seed.
func (c *Center) Restore(st *router.RouterState) error {
	if c.hasRun {
		return fmt.Errorf("center: Restore called after Run")
	}
	if st.Time < c.sim.Now() || math.IsNaN(st.Time) {
		return fmt.Errorf("center: snapshot time %f is before the clock %f", st.Time, c.sim.Now())
	}
	if st.Time >= c.scenario.Horizon {
		return fmt.Errorf("center: snapshot time %f is not before the horizon %f", st.Time, c.scenario.Horizon)
	}
	c.sim.Run(st.Time)
	if err := c.router.RestoreState(st); err != nil {
		return err
	}
	c.ids.SetLast(maxContactID(st))
	logrus.Infof("[t=%.3f] restored %d contacts", c.sim.Now(), c.router.NumContacts())
	return nil
}

func maxContactID(st *router.RouterState) int64 {
	var id int64
	for _, qs := range st.Queues {
		if qs == nil {
			continue
		}
		for _, e := range qs.Entries {
			id = max(id, e.Contact.ID)
		}
	}
	for _, gs := range st.Groups {
		if gs == nil {
			continue
		}
		for _, a := range gs.Agents {
			if a.Contact != nil {
				id = max(id, a.Contact.ID)
			}
		}
	}
	return id
}

// Run starts the arrival sources and the staffing plan and simulates until
// the horizon, or until no event is left when the scenario drains.
// Panics if called more than once.
func (c *Center) Run() (*Metrics, error) {
	if c.hasRun {
		panic("Center.Run() called more than once")
	}
	c.hasRun = true

	for i, gc := range c.scenario.Groups {
		g := c.groups[i]
		for _, ch := range gc.Staffing {
			if ch.At < c.sim.Now() {
				continue
			}
			n := ch.Agents
			c.sim.ScheduleAt(ch.At, sim.PriorityDefault, sim.EventFunc(func(s *sim.Simulator) {
				logrus.Infof("[t=%.3f] group %s: %d -> %d agents", s.Now(), g.Name(), g.NumAgents(), n)
				g.SetNumAgents(n)
			}))
		}
	}
	for _, src := range c.sources {
		src.Start()
	}

	horizon := c.scenario.Horizon
	if c.scenario.Drain {
		horizon = math.Inf(1)
	}
	c.sim.Run(horizon)

	c.metrics.InSystem = c.router.NumContacts()
	c.metrics.EndTime = c.sim.Now()
	logrus.Infof("Run finished at t=%.3f after %d events; %d contacts still routed",
		c.sim.Now(), c.sim.Executed(), c.metrics.InSystem)
	return c.metrics, c.checkpointErr
}
