package router

import (
	"fmt"
	"math"
	"sort"

	"github.com/inference-sim/ccsim/sim"
)

// waitEpsilon absorbs rounding in waiting times computed as differences of
// absolute times, so a timer scheduled for a threshold sees it reached.
const waitEpsilon = 1e-9

func reached(threshold, wait float64) bool {
	return threshold <= wait+waitEpsilon*(1+math.Abs(wait))
}

// DelayedRanks replaces the rank matrices once a contact waited MinWait.
type DelayedRanks struct {
	MinWait float64
	RanksTG [][]float64 // K×I
	RanksGT [][]float64 // I×K; nil means the transpose of RanksTG
}

// AgentsPrefWithDelaysConfig configures an AgentsPrefWithDelays policy.
type AgentsPrefWithDelaysConfig struct {
	AgentsPrefConfig

	// Delays[i][k] is the time a type-k contact must wait before group i may
	// serve it. Required, I×K, non-negative; +Inf forbids the pair.
	Delays [][]float64

	// DelayedRanks apply, in increasing MinWait order, to contacts that waited
	// at least MinWait.
	DelayedRanks []DelayedRanks

	// OverflowTransfer makes each threshold replace the reachable groups
	// instead of adding to them: a contact that waited w may only use the
	// groups whose delay is the largest threshold not above w.
	OverflowTransfer bool

	// ScanQueues forces a full queue scan when looking for an eligible contact.
	// Without it the head of each queue is checked alone when that is exact.
	ScanQueues bool
}

// AgentsPrefWithDelays extends AgentsPref with minimal waiting times per
// (group, type). A new contact may only use groups with zero delay; once
// queued it is rerouted at every distinct delay threshold of its type, each
// time reaching more groups (or, in overflow-transfer mode, different ones).
// Idle agents get a rerouting timer for the earliest moment a queued contact
// becomes eligible for them.
type AgentsPrefWithDelays struct {
	r          *Router
	cfg        AgentsPrefWithDelaysConfig
	thresholds [][]float64 // per type, sorted distinct finite delays and MinWaits
}

func NewAgentsPrefWithDelays(cfg AgentsPrefWithDelaysConfig) (*AgentsPrefWithDelays, error) {
	pref, err := normalizePrefConfig(cfg.AgentsPrefConfig)
	if err != nil {
		return nil, err
	}
	cfg.AgentsPrefConfig = pref
	numTypes, numGroups := len(pref.RanksTG), len(pref.RanksGT)
	if err := CheckRankMatrix(numGroups, numTypes, cfg.Delays); err != nil {
		return nil, fmt.Errorf("delays: %w", err)
	}
	for i, row := range cfg.Delays {
		for k, d := range row {
			if d < 0 {
				return nil, fmt.Errorf("%w: negative delay %g for group %d, type %d", ErrInvalidConfig, d, i, k)
			}
		}
	}
	cfg.Delays = copyMatrix(cfg.Delays)
	delayed := make([]DelayedRanks, len(cfg.DelayedRanks))
	for j, dr := range cfg.DelayedRanks {
		if dr.MinWait < 0 || math.IsNaN(dr.MinWait) || math.IsInf(dr.MinWait, 0) {
			return nil, fmt.Errorf("%w: delayed ranks %d have minimal wait %g", ErrInvalidConfig, j, dr.MinWait)
		}
		if err := CheckRankMatrix(numTypes, numGroups, dr.RanksTG); err != nil {
			return nil, fmt.Errorf("delayed ranks %d: %w", j, err)
		}
		gt := dr.RanksGT
		if gt == nil {
			gt = Transpose(dr.RanksTG)
		}
		if err := CheckRankMatrix(numGroups, numTypes, gt); err != nil {
			return nil, fmt.Errorf("delayed ranks %d: %w", j, err)
		}
		delayed[j] = DelayedRanks{MinWait: dr.MinWait, RanksTG: copyMatrix(dr.RanksTG), RanksGT: copyMatrix(gt)}
	}
	sort.SliceStable(delayed, func(a, b int) bool { return delayed[a].MinWait < delayed[b].MinWait })
	cfg.DelayedRanks = delayed

	p := &AgentsPrefWithDelays{cfg: cfg, thresholds: make([][]float64, numTypes)}
	for k := 0; k < numTypes; k++ {
		set := map[float64]bool{}
		for i := 0; i < numGroups; i++ {
			if d := cfg.Delays[i][k]; !math.IsInf(d, 1) && d > 0 {
				set[d] = true
			}
		}
		for _, dr := range delayed {
			if dr.MinWait > 0 {
				set[dr.MinWait] = true
			}
		}
		for t := range set {
			p.thresholds[k] = append(p.thresholds[k], t)
		}
		sort.Float64s(p.thresholds[k])
	}
	return p, nil
}

func (p *AgentsPrefWithDelays) Name() string { return "agents-pref-delays" }

func (p *AgentsPrefWithDelays) QueueDiscipline() sim.Discipline { return sim.FIFO }

func (p *AgentsPrefWithDelays) Attach(r *Router) error {
	if err := checkPrefDimensions(r, p.cfg.AgentsPrefConfig); err != nil {
		return err
	}
	p.r = r
	return nil
}

// Thresholds returns the sorted distinct waiting times at which type-k
// contacts are rerouted.
func (p *AgentsPrefWithDelays) Thresholds(k int) []float64 {
	return append([]float64(nil), p.thresholds[k]...)
}

// ranksAt returns the rank matrices in force for a contact that waited w.
func (p *AgentsPrefWithDelays) ranksAt(w float64) (tg, gt [][]float64) {
	tg, gt = p.cfg.RanksTG, p.cfg.RanksGT
	for _, dr := range p.cfg.DelayedRanks {
		if !reached(dr.MinWait, w) {
			break
		}
		tg, gt = dr.RanksTG, dr.RanksGT
	}
	return tg, gt
}

// Eligible reports whether group i may serve a type-k contact that waited w.
func (p *AgentsPrefWithDelays) Eligible(i, k int, w float64) bool {
	d := p.cfg.Delays[i][k]
	if math.IsInf(d, 1) || !reached(d, w) {
		return false
	}
	if !p.cfg.OverflowTransfer {
		return true
	}
	// Only the groups of the latest reached delay level remain reachable.
	latest := 0.0
	for j := range p.cfg.Delays {
		if dj := p.cfg.Delays[j][k]; !math.IsInf(dj, 1) && reached(dj, w) && dj > latest {
			latest = dj
		}
	}
	return d == latest
}

func (p *AgentsPrefWithDelays) SelectAgent(c *sim.Contact, _ *RoutingInfo, _ int) (*sim.AgentGroup, *sim.Agent) {
	k := c.TypeID
	w := c.WaitingTime(p.r.Now())
	tg, _ := p.ranksAt(w)
	return selectPreferredAgent(p.r, &p.cfg.AgentsPrefConfig, k, tg[k], func(i int) bool { return p.Eligible(i, k, w) })
}

func (p *AgentsPrefWithDelays) SelectWaitingQueue(c *sim.Contact, _ *RoutingInfo, _ int) []QueueTarget {
	k := c.TypeID
	for i := range p.cfg.Delays {
		if !math.IsInf(p.cfg.Delays[i][k], 1) && p.canEverRank(i, k) {
			return []QueueTarget{{Queue: k, Priority: c.Priority}}
		}
	}
	return nil
}

// canEverRank reports whether some rank matrix links group i and type k.
func (p *AgentsPrefWithDelays) canEverRank(i, k int) bool {
	if !math.IsInf(p.cfg.RanksGT[i][k], 1) {
		return true
	}
	for _, dr := range p.cfg.DelayedRanks {
		if !math.IsInf(dr.RanksGT[i][k], 1) {
			return true
		}
	}
	return false
}

// fastPath reports whether checking queue heads is exact: in promotion mode
// with fixed ranks, eligibility only grows with waiting time and heads of FIFO
// queues waited the longest.
func (p *AgentsPrefWithDelays) fastPath() bool {
	return !p.cfg.ScanQueues && !p.cfg.OverflowTransfer && len(p.cfg.DelayedRanks) == 0
}

// eligibleCandidate returns the first contact of queue q that group i may
// serve now, and its rank.
func (p *AgentsPrefWithDelays) eligibleCandidate(i, q int) (*sim.DequeueEvent, float64) {
	now := p.r.Now()
	check := func(ev *sim.DequeueEvent) (bool, float64) {
		k := ev.Contact.TypeID
		w := ev.Contact.WaitingTime(now)
		if !p.Eligible(i, k, w) {
			return false, 0
		}
		_, gt := p.ranksAt(w)
		rk := gt[i][k]
		return !math.IsInf(rk, 1), rk
	}
	wq := p.r.queues[q]
	if p.fastPath() {
		head := wq.First()
		if ok, rk := check(head); ok {
			return head, rk
		}
		return nil, 0
	}
	for _, ev := range wq.Items() {
		if ok, rk := check(ev); ok {
			return ev, rk
		}
	}
	return nil, 0
}

func (p *AgentsPrefWithDelays) SelectContact(g *sim.AgentGroup, _ *sim.Agent, _ int) *sim.DequeueEvent {
	i := g.ID()
	return selectPreferredContact(p.r, &p.cfg.AgentsPrefConfig, i, func(q int) (*sim.DequeueEvent, float64) {
		return p.eligibleCandidate(i, q)
	})
}

func (p *AgentsPrefWithDelays) ServesQueue(group, queue int) bool {
	return !math.IsInf(p.cfg.Delays[group][queue], 1) && p.canEverRank(group, queue)
}

// ContactReroutingDelay returns the time until the contact's next threshold.
func (p *AgentsPrefWithDelays) ContactReroutingDelay(c *sim.Contact, _ *RoutingInfo, _ int) float64 {
	w := c.WaitingTime(p.r.Now())
	for _, t := range p.thresholds[c.TypeID] {
		if !reached(t, w) {
			return t - w
		}
	}
	return math.Inf(1)
}

// AgentReroutingDelay returns the time until some queued contact becomes
// eligible for group g, +Inf if none will.
func (p *AgentsPrefWithDelays) AgentReroutingDelay(g *sim.AgentGroup, _ *sim.Agent, _ int) float64 {
	i := g.ID()
	now := p.r.Now()
	best := math.Inf(1)
	for q, wq := range p.r.queues {
		if wq == nil || wq.IsEmpty() || !p.ServesQueue(i, q) {
			continue
		}
		items := wq.Items()
		if p.fastPath() {
			items = items[:1]
		}
		for _, ev := range items {
			k := ev.Contact.TypeID
			w := ev.Contact.WaitingTime(now)
			for _, t := range p.agentThresholds(i, k) {
				if !reached(t, w) {
					best = math.Min(best, t-w)
					break
				}
			}
		}
	}
	return best
}

// agentThresholds lists the waits at which group i's view of type k changes.
func (p *AgentsPrefWithDelays) agentThresholds(i, k int) []float64 {
	d := p.cfg.Delays[i][k]
	if math.IsInf(d, 1) {
		return nil
	}
	out := []float64{d}
	for _, dr := range p.cfg.DelayedRanks {
		if dr.MinWait > d {
			out = append(out, dr.MinWait)
		}
	}
	return out
}
