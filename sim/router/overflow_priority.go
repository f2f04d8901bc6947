package router

import (
	"fmt"
	"math"

	"github.com/inference-sim/ccsim/sim"
)

// RankFunc computes a rank vector (one entry per agent group) for a contact.
// It may look at any simulation state through the router. Returning nil
// keeps the previous stage's vector.
type RankFunc func(r *Router, c *sim.Contact) []float64

// ConstantRanks returns a RankFunc that always yields ranks.
func ConstantRanks(ranks []float64) RankFunc {
	v := append([]float64(nil), ranks...)
	return func(*Router, *sim.Contact) []float64 { return v }
}

// RoutingStage is one step of a contact type's overflow sequence.
type RoutingStage struct {
	// WaitingTime is the queue waiting time at which the stage starts. The
	// first stage of each type must start at 0 and times must increase.
	WaitingTime float64
	// AgentRanks gives the rank of each group when looking for a free agent.
	AgentRanks RankFunc
	// ContactRanks gives the contact's rank in each group's queue; the
	// contact waits in every queue with a finite rank, ordered by it.
	ContactRanks RankFunc
}

// OverflowAndPriorityConfig configures an OverflowAndPriority policy.
type OverflowAndPriorityConfig struct {
	Stages [][]RoutingStage // per contact type

	// AgentScoring breaks agent-rank ties; the default is the longest idle agent.
	AgentScoring AgentScoring
	// Weights scale scores per type and group (K×I); nil means all ones.
	Weights [][]float64
}

// OverflowAndPriority routes each contact type through an ordered list of
// stages. Groups keep one priority queue each; a waiting contact holds a copy
// in every queue where its current contact rank is finite, and leaves all of
// them at once when served or when it abandons. Agents serve the head of
// their own queue.
type OverflowAndPriority struct {
	r   *Router
	cfg OverflowAndPriorityConfig
}

func NewOverflowAndPriority(cfg OverflowAndPriorityConfig) (*OverflowAndPriority, error) {
	if len(cfg.Stages) == 0 {
		return nil, fmt.Errorf("%w: no routing stages", ErrInvalidConfig)
	}
	for k, stages := range cfg.Stages {
		if len(stages) == 0 {
			return nil, fmt.Errorf("%w: type %d has no routing stage", ErrInvalidConfig, k)
		}
		if stages[0].WaitingTime != 0 {
			return nil, fmt.Errorf("%w: first stage of type %d starts at %g, want 0", ErrInvalidConfig, k, stages[0].WaitingTime)
		}
		if stages[0].AgentRanks == nil || stages[0].ContactRanks == nil {
			return nil, fmt.Errorf("%w: first stage of type %d needs both rank functions", ErrInvalidConfig, k)
		}
		for s := 1; s < len(stages); s++ {
			if !(stages[s].WaitingTime > stages[s-1].WaitingTime) || math.IsInf(stages[s].WaitingTime, 1) {
				return nil, fmt.Errorf("%w: stage %d of type %d starts at %g, not after %g",
					ErrInvalidConfig, s, k, stages[s].WaitingTime, stages[s-1].WaitingTime)
			}
		}
	}
	stages := make([][]RoutingStage, len(cfg.Stages))
	for k := range cfg.Stages {
		stages[k] = append([]RoutingStage(nil), cfg.Stages[k]...)
	}
	cfg.Stages = stages
	cfg.Weights = copyMatrix(cfg.Weights)
	return &OverflowAndPriority{cfg: cfg}, nil
}

func (p *OverflowAndPriority) Name() string { return "overflow-priority" }

func (p *OverflowAndPriority) QueueDiscipline() sim.Discipline { return sim.PriorityOrder }

func (p *OverflowAndPriority) Attach(r *Router) error {
	if len(p.cfg.Stages) != r.NumTypes() {
		return fmt.Errorf("%w: stages for %d types, router has %d", ErrDimension, len(p.cfg.Stages), r.NumTypes())
	}
	if r.NumQueues() != r.NumGroups() {
		return fmt.Errorf("%w: policy needs %d queues, router has %d", ErrDimension, r.NumGroups(), r.NumQueues())
	}
	if p.cfg.Weights == nil {
		p.cfg.Weights = NewWeightMatrix(r.NumTypes(), r.NumGroups(), 1)
	}
	if err := CheckRankMatrix(r.NumTypes(), r.NumGroups(), p.cfg.Weights); err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	p.r = r
	return nil
}

// advance moves the contact to the last stage its waiting time reached,
// applying the rank functions of every stage passed on the way.
func (p *OverflowAndPriority) advance(c *sim.Contact, info *RoutingInfo) {
	stages := p.cfg.Stages[c.TypeID]
	w := c.WaitingTime(p.r.Now())
	first := info.Stage + 1
	if info.AgentRanks == nil {
		first = 0
	}
	for s := first; s < len(stages) && reached(stages[s].WaitingTime, w); s++ {
		if f := stages[s].AgentRanks; f != nil {
			info.AgentRanks = p.checkRanks(f(p.r, c), "agent", c, s)
		}
		if f := stages[s].ContactRanks; f != nil {
			info.ContactRanks = p.checkRanks(f(p.r, c), "contact", c, s)
		}
		info.Stage = s
	}
}

func (p *OverflowAndPriority) checkRanks(ranks []float64, kind string, c *sim.Contact, stage int) []float64 {
	if ranks == nil {
		panic(fmt.Sprintf("overflow-priority: stage %d of type %d returned no %s ranks on first use", stage, c.TypeID, kind))
	}
	if len(ranks) != p.r.NumGroups() {
		panic(fmt.Sprintf("overflow-priority: stage %d of type %d returned %d %s ranks for %d groups",
			stage, c.TypeID, len(ranks), kind, p.r.NumGroups()))
	}
	return append([]float64(nil), ranks...)
}

func (p *OverflowAndPriority) SelectAgent(c *sim.Contact, info *RoutingInfo, _ int) (*sim.AgentGroup, *sim.Agent) {
	p.advance(c, info)
	k := c.TypeID
	groups := p.r.groups
	rank := func(i int) float64 {
		if g := groups[i]; g == nil || g.NumFree() == 0 {
			return math.Inf(1)
		}
		return info.AgentRanks[i]
	}
	score := func(i int) float64 {
		w := p.cfg.Weights[k][i]
		switch p.cfg.AgentScoring {
		case AgentScoreWeight:
			return w
		case AgentScoreFreeAgents:
			return w * float64(groups[i].NumFree())
		default:
			return w * groups[i].LongestIdleDuration()
		}
	}
	i := chooseByRank(len(groups), rank, score, nil)
	if i < 0 {
		return nil, nil
	}
	return groups[i], nil
}

func (p *OverflowAndPriority) SelectWaitingQueue(c *sim.Contact, info *RoutingInfo, _ int) []QueueTarget {
	p.advance(c, info)
	var targets []QueueTarget
	for i, rk := range info.ContactRanks {
		if math.IsInf(rk, 1) || math.IsNaN(rk) || p.r.queues[i] == nil {
			continue
		}
		targets = append(targets, QueueTarget{Queue: i, Priority: rk})
	}
	return targets
}

func (p *OverflowAndPriority) SelectContact(g *sim.AgentGroup, _ *sim.Agent, _ int) *sim.DequeueEvent {
	if wq := p.r.Queue(g.ID()); wq != nil {
		return wq.First()
	}
	return nil
}

func (p *OverflowAndPriority) ServesQueue(group, queue int) bool { return group == queue }

// ContactReroutingDelay returns the time until the contact's next stage.
func (p *OverflowAndPriority) ContactReroutingDelay(c *sim.Contact, info *RoutingInfo, _ int) float64 {
	stages := p.cfg.Stages[c.TypeID]
	next := info.Stage + 1
	if next >= len(stages) {
		return math.Inf(1)
	}
	return math.Max(stages[next].WaitingTime-c.WaitingTime(p.r.Now()), 0)
}

// AgentReroutingDelay never reroutes agents: queues are only reordered by
// contact reroutings.
func (p *OverflowAndPriority) AgentReroutingDelay(*sim.AgentGroup, *sim.Agent, int) float64 {
	return math.Inf(1)
}
