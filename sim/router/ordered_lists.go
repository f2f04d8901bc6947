package router

import (
	"fmt"
	"math/rand"

	"github.com/inference-sim/ccsim/sim"
)

// Ordered-list overflow policies. A contact of type k tries the groups of
// tg[k] in order and takes the first one with a free agent. Free agents of
// group i look at the types of gt[i]; the policies differ in which queued
// contact they pull.

// ListSelection changes how an ordered-list policy chooses within a list.
// The zero value keeps list order: first group with a free agent, contact
// rule of the policy.
type ListSelection struct {
	// MostFree sends a contact to the group of its list with the most free
	// agents; ties go to the earlier group.
	MostFree bool
	// RandomAgent draws a group with a free agent from type k's list with
	// probability proportional to WeightsTG[k][i].
	RandomAgent bool
	// RandomContact draws a non-empty queue from group i's list with
	// probability proportional to WeightsGT[i][k]. It replaces the contact rule.
	RandomContact bool

	WeightsTG [][]float64 // types × groups, all ones when nil
	WeightsGT [][]float64 // groups × types, all ones when nil
	Rng       *rand.Rand
}

// orderedLists is the routing table shared by the ordered-list policies.
type orderedLists struct {
	r   *Router
	tg  [][]int
	gt  [][]int
	sel ListSelection

	// List weights aligned with tg and gt, filled at attach.
	agentWeights   [][]float64
	contactWeights [][]float64
}

func newOrderedLists(tg, gt [][]int) orderedLists {
	return orderedLists{tg: copyLists(tg), gt: copyLists(gt)}
}

func (o *orderedLists) attach(r *Router, numQueues int) error {
	if err := CheckOrderedLists(r.NumTypes(), r.NumGroups(), o.tg, o.gt); err != nil {
		return err
	}
	if r.NumQueues() != numQueues {
		return fmt.Errorf("%w: policy needs %d queues, router has %d", ErrDimension, numQueues, r.NumQueues())
	}
	if o.sel.RandomAgent || o.sel.RandomContact {
		wtg, wgt := o.sel.WeightsTG, o.sel.WeightsGT
		if wtg == nil {
			wtg = NewWeightMatrix(r.NumTypes(), r.NumGroups(), 1)
		}
		if wgt == nil {
			wgt = NewWeightMatrix(r.NumGroups(), r.NumTypes(), 1)
		}
		if err := CheckRankMatrix(r.NumTypes(), r.NumGroups(), wtg); err != nil {
			return fmt.Errorf("agent-selection weights: %w", err)
		}
		if err := CheckRankMatrix(r.NumGroups(), r.NumTypes(), wgt); err != nil {
			return fmt.Errorf("contact-selection weights: %w", err)
		}
		o.agentWeights = listWeights(o.tg, wtg)
		o.contactWeights = listWeights(o.gt, wgt)
	}
	o.r = r
	return nil
}

// SetSelection replaces the in-list selection. Call it before the policy is
// attached to a router.
func (o *orderedLists) SetSelection(sel ListSelection) error {
	if sel.RandomAgent && sel.MostFree {
		return fmt.Errorf("%w: most-free and random agent selection are exclusive", ErrInvalidConfig)
	}
	if (sel.RandomAgent || sel.RandomContact) && sel.Rng == nil {
		return fmt.Errorf("%w: randomized selection needs a random source", ErrInvalidConfig)
	}
	sel.WeightsTG = copyMatrix(sel.WeightsTG)
	sel.WeightsGT = copyMatrix(sel.WeightsGT)
	o.sel = sel
	return nil
}

// listWeights returns, for each list, the weight of each entry: m[row][entry],
// zero for Skip.
func listWeights(lists [][]int, m [][]float64) [][]float64 {
	out := make([][]float64, len(lists))
	for row, list := range lists {
		out[row] = make([]float64, len(list))
		for j, v := range list {
			if v != Skip {
				out[row][j] = m[row][v]
			}
		}
	}
	return out
}

// TypeToGroup returns a copy of the type-to-group lists.
func (o *orderedLists) TypeToGroup() [][]int { return copyLists(o.tg) }

// GroupToType returns a copy of the group-to-type lists.
func (o *orderedLists) GroupToType() [][]int { return copyLists(o.gt) }

// CanServe reports whether group i serves type k.
func (o *orderedLists) CanServe(i, k int) bool { return CanServe(o.tg, i, k) }

func (o *orderedLists) selectFree(c *sim.Contact) (*sim.AgentGroup, *sim.Agent) {
	order := o.tg[c.TypeID]
	var i int
	switch {
	case o.sel.RandomAgent:
		i = SelectWeightedFree(o.sel.Rng, o.r.groups, order, o.agentWeights[c.TypeID])
	case o.sel.MostFree:
		i = SelectMostFree(o.r.groups, order)
	default:
		i = SelectFirstFree(o.r.groups, order)
	}
	if i < 0 {
		return nil, nil
	}
	return o.r.groups[i], nil
}

// hasGroup reports whether type k lists at least one group.
func (o *orderedLists) hasGroup(k int) bool {
	for _, i := range o.tg[k] {
		if i != Skip {
			return true
		}
	}
	return false
}

// ContactRule selects which queued contact a free agent pulls.
type ContactRule int

const (
	// RuleQueuePriority: first non-empty queue in the group's type list.
	RuleQueuePriority ContactRule = iota
	// RuleSingleFIFO: the contact that entered its queue first.
	RuleSingleFIFO
	// RuleLongestQueue: head of the largest queue.
	RuleLongestQueue
	// RuleWeightedWait: head of the queue maximizing weight × head waiting time.
	RuleWeightedWait
)

var contactRuleNames = map[ContactRule]string{
	RuleQueuePriority: "queue-priority",
	RuleSingleFIFO:    "single-fifo",
	RuleLongestQueue:  "longest-queue-first",
	RuleWeightedWait:  "longest-weighted-waiting-time",
}

// QueuePriority keeps one FIFO queue per contact type (queue k holds type k).
type QueuePriority struct {
	orderedLists
	rule    ContactRule
	weights []float64
}

// NewQueuePriority pulls from the first non-empty queue in gt[i].
func NewQueuePriority(tg, gt [][]int) *QueuePriority {
	return &QueuePriority{orderedLists: newOrderedLists(tg, gt), rule: RuleQueuePriority}
}

// NewSingleFIFO pulls the longest-waiting contact among the queues in gt[i],
// as if they formed a single FIFO queue.
func NewSingleFIFO(tg, gt [][]int) *QueuePriority {
	return &QueuePriority{orderedLists: newOrderedLists(tg, gt), rule: RuleSingleFIFO}
}

// NewLongestQueueFirst pulls from the largest queue in gt[i].
func NewLongestQueueFirst(tg, gt [][]int) *QueuePriority {
	return &QueuePriority{orderedLists: newOrderedLists(tg, gt), rule: RuleLongestQueue}
}

// NewLongestWeightedWaitingTime pulls from the queue q in gt[i] maximizing
// weights[q] × head waiting time.
func NewLongestWeightedWaitingTime(tg, gt [][]int, weights []float64) *QueuePriority {
	return &QueuePriority{
		orderedLists: newOrderedLists(tg, gt),
		rule:         RuleWeightedWait,
		weights:      append([]float64(nil), weights...),
	}
}

func (p *QueuePriority) Name() string { return contactRuleNames[p.rule] }

// Rule returns the contact selection rule.
func (p *QueuePriority) Rule() ContactRule { return p.rule }

func (p *QueuePriority) QueueDiscipline() sim.Discipline { return sim.FIFO }

func (p *QueuePriority) Attach(r *Router) error {
	if p.rule == RuleWeightedWait {
		if len(p.weights) != r.NumTypes() {
			return fmt.Errorf("%w: %d queue weights for %d queues", ErrDimension, len(p.weights), r.NumTypes())
		}
		for q, w := range p.weights {
			if w < 0 {
				return fmt.Errorf("%w: negative weight %g for queue %d", ErrInvalidConfig, w, q)
			}
		}
	}
	return p.attach(r, r.NumTypes())
}

func (p *QueuePriority) SelectAgent(c *sim.Contact, _ *RoutingInfo, _ int) (*sim.AgentGroup, *sim.Agent) {
	return p.selectFree(c)
}

func (p *QueuePriority) SelectWaitingQueue(c *sim.Contact, _ *RoutingInfo, _ int) []QueueTarget {
	if !p.hasGroup(c.TypeID) {
		return nil
	}
	return []QueueTarget{{Queue: c.TypeID, Priority: c.Priority}}
}

func (p *QueuePriority) SelectContact(g *sim.AgentGroup, _ *sim.Agent, _ int) *sim.DequeueEvent {
	order := p.gt[g.ID()]
	var q int
	switch {
	case p.sel.RandomContact:
		q = SelectWeightedNonEmpty(p.sel.Rng, p.r.queues, order, p.contactWeights[g.ID()])
	case p.rule == RuleSingleFIFO:
		q = SelectLongestWaiting(p.r.queues, order)
	case p.rule == RuleLongestQueue:
		q = SelectLongestQueue(p.r.queues, order)
	case p.rule == RuleWeightedWait:
		q = SelectMaxWeightedWait(p.r.queues, order, p.weights, p.r.Now())
	default:
		q = SelectFirstNonEmpty(p.r.queues, order)
	}
	if q < 0 {
		return nil
	}
	return p.r.queues[q].First()
}

func (p *QueuePriority) ServesQueue(group, queue int) bool {
	return contains(p.gt[group], queue)
}

// QueueAtLastGroup keeps one queue per group. A contact that finds no free
// agent waits only in the queue of the last group of its list: earlier groups
// are loss groups, the last one is a delay group. Agents pull from their own
// group's queue.
type QueueAtLastGroup struct {
	orderedLists
}

func NewQueueAtLastGroup(tg, gt [][]int) *QueueAtLastGroup {
	return &QueueAtLastGroup{orderedLists: newOrderedLists(tg, gt)}
}

func (p *QueueAtLastGroup) Name() string { return "queue-at-last-group" }

func (p *QueueAtLastGroup) QueueDiscipline() sim.Discipline { return sim.FIFO }

func (p *QueueAtLastGroup) Attach(r *Router) error {
	if p.sel.RandomContact {
		return fmt.Errorf("%w: queue-at-last-group agents have a single queue to pull from", ErrInvalidConfig)
	}
	return p.attach(r, r.NumGroups())
}

func (p *QueueAtLastGroup) SelectAgent(c *sim.Contact, _ *RoutingInfo, _ int) (*sim.AgentGroup, *sim.Agent) {
	return p.selectFree(c)
}

// LastGroup returns the last group of type k's list, or -1.
func (p *QueueAtLastGroup) LastGroup(k int) int {
	list := p.tg[k]
	for j := len(list) - 1; j >= 0; j-- {
		if list[j] != Skip {
			return list[j]
		}
	}
	return -1
}

func (p *QueueAtLastGroup) SelectWaitingQueue(c *sim.Contact, _ *RoutingInfo, _ int) []QueueTarget {
	i := p.LastGroup(c.TypeID)
	if i < 0 {
		return nil
	}
	return []QueueTarget{{Queue: i, Priority: c.Priority}}
}

func (p *QueueAtLastGroup) SelectContact(g *sim.AgentGroup, _ *sim.Agent, _ int) *sim.DequeueEvent {
	if wq := p.r.Queue(g.ID()); wq != nil {
		return wq.First()
	}
	return nil
}

func (p *QueueAtLastGroup) ServesQueue(group, queue int) bool { return group == queue }
