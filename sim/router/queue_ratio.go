package router

import (
	"fmt"
	"math"

	"github.com/inference-sim/ccsim/sim"
)

// OverflowMode selects how QueueRatioOverflow places contacts that cannot
// join their preferred groupset. AgentsPrefWithDelays reads it as whether a
// passed threshold replaces (transfer) or widens (promotion) the reachable
// groups.
type OverflowMode int

const (
	// OverflowTransfer: the contact waits in one queue only.
	OverflowTransfer OverflowMode = iota
	// OverflowPromotion: the contact also keeps a copy in the best queue of
	// every better-ranked groupset, so preferred agents can still take it.
	OverflowPromotion
)

// ValidOverflowModes maps config names to overflow modes. The empty name is
// accepted and resolved per policy by ResolveOverflowMode.
var ValidOverflowModes = map[string]OverflowMode{
	"transfer":  OverflowTransfer,
	"promotion": OverflowPromotion,
}

// ResolveOverflowMode returns the mode named in a config, or def when the
// name is empty.
func ResolveOverflowMode(name string, def OverflowMode) OverflowMode {
	if name == "" {
		return def
	}
	return ValidOverflowModes[name]
}

// QueueRatioConfig configures a QueueRatioOverflow policy.
type QueueRatioConfig struct {
	RanksTG      [][]float64 // K×I; groups sharing a rank form a groupset
	TargetRatios []float64   // I; queue i accepts contacts while (size+1)/agents < target
	Mode         OverflowMode
}

// QueueRatioOverflow keeps one FIFO queue per group. An arrival walks its
// groupsets in rank order. In each groupset it takes the longest idle free
// agent; without one it joins the queue with the smallest ratio
// (size+1)/agents among the queues under their own target; only then does it
// move to the next groupset. Failing every groupset it joins the smallest
// ratio overall. Agents serve their own queue.
type QueueRatioOverflow struct {
	r         *Router
	cfg       QueueRatioConfig
	groupsets [][][]int // per type
}

func NewQueueRatioOverflow(cfg QueueRatioConfig) (*QueueRatioOverflow, error) {
	numTypes := len(cfg.RanksTG)
	numGroups := len(cfg.TargetRatios)
	if err := CheckRankMatrix(numTypes, numGroups, cfg.RanksTG); err != nil {
		return nil, err
	}
	for i, t := range cfg.TargetRatios {
		if !(t > 0) {
			return nil, fmt.Errorf("%w: target ratio %g for group %d", ErrInvalidConfig, t, i)
		}
	}
	cfg.RanksTG = copyMatrix(cfg.RanksTG)
	cfg.TargetRatios = append([]float64(nil), cfg.TargetRatios...)
	return &QueueRatioOverflow{cfg: cfg, groupsets: OverflowListsMatrix(cfg.RanksTG)}, nil
}

func (p *QueueRatioOverflow) Name() string { return "queue-ratio-overflow" }

func (p *QueueRatioOverflow) QueueDiscipline() sim.Discipline { return sim.FIFO }

func (p *QueueRatioOverflow) Attach(r *Router) error {
	if len(p.cfg.RanksTG) != r.NumTypes() || len(p.cfg.TargetRatios) != r.NumGroups() {
		return fmt.Errorf("%w: ranks for %d types and %d groups, router has %d and %d",
			ErrDimension, len(p.cfg.RanksTG), len(p.cfg.TargetRatios), r.NumTypes(), r.NumGroups())
	}
	if r.NumQueues() != r.NumGroups() {
		return fmt.Errorf("%w: policy needs %d queues, router has %d", ErrDimension, r.NumGroups(), r.NumQueues())
	}
	p.r = r
	return nil
}

// Groupsets returns type k's candidate sets in rank order.
func (p *QueueRatioOverflow) Groupsets(k int) [][]int { return copyLists(p.groupsets[k]) }

// Ratio returns (size+1)/agents for group i's queue, +Inf without agents.
func (p *QueueRatioOverflow) Ratio(i int) float64 {
	g, wq := p.r.Group(i), p.r.Queue(i)
	if g == nil || wq == nil || g.NumAgents() == 0 {
		return math.Inf(1)
	}
	return float64(wq.Size()+1) / float64(g.NumAgents())
}

// ratioDecision is the outcome of walking a type's groupsets.
type ratioDecision struct {
	group int // serving group, -1 when the contact must queue
	agent *sim.Agent
	queue int // queue below target, -1 when none was found
	set   int // groupset that decided, len(groupsets) when none did
}

// decide walks type k's groupsets in rank order and stops at the first one
// offering a free agent or a queue below its target.
func (p *QueueRatioOverflow) decide(k int) ratioDecision {
	sets := p.groupsets[k]
	now := p.r.Now()
	for s, set := range sets {
		if i, a := SelectLongestIdle(p.r.groups, set, now); i >= 0 {
			return ratioDecision{group: i, agent: a, queue: -1, set: s}
		}
		if q := p.belowTarget(set); q >= 0 {
			return ratioDecision{group: -1, queue: q, set: s}
		}
	}
	return ratioDecision{group: -1, queue: -1, set: len(sets)}
}

func (p *QueueRatioOverflow) SelectAgent(c *sim.Contact, _ *RoutingInfo, _ int) (*sim.AgentGroup, *sim.Agent) {
	if d := p.decide(c.TypeID); d.group >= 0 {
		return p.r.groups[d.group], d.agent
	}
	return nil, nil
}

// belowTarget returns the group of set with the smallest ratio among those
// under their own target, or -1.
func (p *QueueRatioOverflow) belowTarget(set []int) int {
	best, bestRatio := -1, math.Inf(1)
	for _, i := range set {
		if r := p.Ratio(i); r < p.cfg.TargetRatios[i] && r < bestRatio {
			best, bestRatio = i, r
		}
	}
	return best
}

// smallestRatio returns the group of set with the smallest finite ratio.
func (p *QueueRatioOverflow) smallestRatio(set []int) (int, float64) {
	best, bestRatio := -1, math.Inf(1)
	for _, i := range set {
		if r := p.Ratio(i); r < bestRatio {
			best, bestRatio = i, r
		}
	}
	return best, bestRatio
}

func (p *QueueRatioOverflow) SelectWaitingQueue(c *sim.Contact, _ *RoutingInfo, _ int) []QueueTarget {
	sets := p.groupsets[c.TypeID]
	d := p.decide(c.TypeID)
	chosen := d.queue
	if d.group >= 0 {
		// An agent freed up since SelectAgent: wait for it in its own queue.
		chosen = d.group
	}
	if chosen < 0 {
		var all []int
		for _, set := range sets {
			all = append(all, set...)
		}
		if chosen, _ = p.smallestRatio(all); chosen < 0 {
			return nil
		}
	}
	targets := []QueueTarget{{Queue: chosen, Priority: c.Priority}}
	if p.cfg.Mode == OverflowPromotion {
		for s := 0; s < d.set && s < len(sets); s++ {
			if i, _ := p.smallestRatio(sets[s]); i >= 0 && i != chosen {
				targets = append(targets, QueueTarget{Queue: i, Priority: c.Priority})
			}
		}
	}
	return targets
}

func (p *QueueRatioOverflow) SelectContact(g *sim.AgentGroup, _ *sim.Agent, _ int) *sim.DequeueEvent {
	if wq := p.r.Queue(g.ID()); wq != nil {
		return wq.First()
	}
	return nil
}

func (p *QueueRatioOverflow) ServesQueue(group, queue int) bool { return group == queue }
