package router

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/inference-sim/ccsim/sim"
)

// AgentScoring scores groups that tie on rank for agent selection.
type AgentScoring int

const (
	AgentScoreWeight      AgentScoring = iota // weight
	AgentScoreFreeAgents                      // weight × number of free agents
	AgentScoreLongestIdle                     // weight × longest idle duration
)

// ContactScoring scores queues that tie on rank for contact selection.
type ContactScoring int

const (
	ContactScoreWeight      ContactScoring = iota // weight
	ContactScoreQueueSize                         // weight × queue size
	ContactScoreWaitingTime                       // weight × candidate's waiting time
)

// ValidAgentScorings maps config names to agent scoring modes.
var ValidAgentScorings = map[string]AgentScoring{
	"":             AgentScoreLongestIdle,
	"weight":       AgentScoreWeight,
	"free-agents":  AgentScoreFreeAgents,
	"longest-idle": AgentScoreLongestIdle,
}

// ValidContactScorings maps config names to contact scoring modes.
var ValidContactScorings = map[string]ContactScoring{
	"":             ContactScoreWaitingTime,
	"weight":       ContactScoreWeight,
	"queue-size":   ContactScoreQueueSize,
	"waiting-time": ContactScoreWaitingTime,
}

// chooseByRank picks a candidate among n: the smallest finite rank wins; ties
// are broken by the highest score then the lowest index, or, when rng is not
// nil, by a draw proportional to the scores (lowest index if all are zero).
// Returns -1 when every rank is +Inf.
func chooseByRank(n int, rank, score func(j int) float64, rng *rand.Rand) int {
	minRank := math.Inf(1)
	var tied []int
	for j := 0; j < n; j++ {
		rk := rank(j)
		if math.IsInf(rk, 1) || math.IsNaN(rk) {
			continue
		}
		if rk < minRank {
			minRank = rk
			tied = tied[:0]
		}
		if rk == minRank {
			tied = append(tied, j)
		}
	}
	switch len(tied) {
	case 0:
		return -1
	case 1:
		return tied[0]
	}
	if rng != nil {
		scores := make([]float64, len(tied))
		for x, j := range tied {
			scores[x] = score(j)
		}
		if x := DrawWeighted(rng, scores); x >= 0 {
			return tied[x]
		}
		return tied[0]
	}
	best, bestScore := tied[0], score(tied[0])
	for _, j := range tied[1:] {
		if s := score(j); s > bestScore {
			best, bestScore = j, s
		}
	}
	return best
}

// AgentsPrefConfig configures an AgentsPref policy. Weight matrices default
// to all ones.
type AgentsPrefConfig struct {
	RanksTG   [][]float64 // K×I, rank of group i for type k
	RanksGT   [][]float64 // I×K, rank of type k for group i
	WeightsTG [][]float64
	WeightsGT [][]float64

	AgentScoring   AgentScoring
	ContactScoring ContactScoring

	// Randomized tie resolution; Rng is required when either is set.
	RandomAgentSelection   bool
	RandomContactSelection bool
	Rng                    *rand.Rand
}

// AgentsPref routes by rank matrices: one FIFO queue per contact type, the
// best-ranked group with a free agent serves an arrival, and a free agent
// pulls from the best-ranked non-empty queue. Ties are resolved by score.
type AgentsPref struct {
	r   *Router
	cfg AgentsPrefConfig
}

// NewAgentsPref validates cfg shapes that do not depend on the router.
// RanksGT may be nil, in which case the transpose of RanksTG is used.
func NewAgentsPref(cfg AgentsPrefConfig) (*AgentsPref, error) {
	norm, err := normalizePrefConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &AgentsPref{cfg: norm}, nil
}

func normalizePrefConfig(cfg AgentsPrefConfig) (AgentsPrefConfig, error) {
	if cfg.RanksTG == nil {
		return cfg, fmt.Errorf("%w: agent-selection ranks are required", ErrInvalidTable)
	}
	numTypes := len(cfg.RanksTG)
	numGroups := 0
	if numTypes > 0 {
		numGroups = len(cfg.RanksTG[0])
	}
	if err := CheckRankMatrix(numTypes, numGroups, cfg.RanksTG); err != nil {
		return cfg, err
	}
	if cfg.RanksGT == nil {
		cfg.RanksGT = Transpose(cfg.RanksTG)
		if numTypes == 0 {
			cfg.RanksGT = [][]float64{}
		}
	}
	if err := CheckRankMatrix(numGroups, numTypes, cfg.RanksGT); err != nil {
		return cfg, err
	}
	for k := 0; k < numTypes; k++ {
		for i := 0; i < numGroups; i++ {
			if math.IsInf(cfg.RanksTG[k][i], 1) != math.IsInf(cfg.RanksGT[i][k], 1) {
				return cfg, fmt.Errorf("%w: group %d and type %d are linked in one rank matrix only", ErrInvalidTable, i, k)
			}
		}
	}
	if cfg.WeightsTG == nil {
		cfg.WeightsTG = NewWeightMatrix(numTypes, numGroups, 1)
	}
	if cfg.WeightsGT == nil {
		cfg.WeightsGT = NewWeightMatrix(numGroups, numTypes, 1)
	}
	if err := CheckRankMatrix(numTypes, numGroups, cfg.WeightsTG); err != nil {
		return cfg, fmt.Errorf("agent-selection weights: %w", err)
	}
	if err := CheckRankMatrix(numGroups, numTypes, cfg.WeightsGT); err != nil {
		return cfg, fmt.Errorf("contact-selection weights: %w", err)
	}
	if (cfg.RandomAgentSelection || cfg.RandomContactSelection) && cfg.Rng == nil {
		return cfg, fmt.Errorf("%w: randomized selection needs a random source", ErrInvalidConfig)
	}
	cfg.RanksTG = copyMatrix(cfg.RanksTG)
	cfg.RanksGT = copyMatrix(cfg.RanksGT)
	cfg.WeightsTG = copyMatrix(cfg.WeightsTG)
	cfg.WeightsGT = copyMatrix(cfg.WeightsGT)
	return cfg, nil
}

func checkPrefDimensions(r *Router, cfg AgentsPrefConfig) error {
	if len(cfg.RanksTG) != r.NumTypes() || len(cfg.RanksGT) != r.NumGroups() {
		return fmt.Errorf("%w: rank matrices are %dx%d, router has %d types and %d groups",
			ErrDimension, len(cfg.RanksTG), len(cfg.RanksGT), r.NumTypes(), r.NumGroups())
	}
	if r.NumQueues() != r.NumTypes() {
		return fmt.Errorf("%w: policy needs %d queues, router has %d", ErrDimension, r.NumTypes(), r.NumQueues())
	}
	return nil
}

func (p *AgentsPref) Name() string { return "agents-pref" }

func (p *AgentsPref) QueueDiscipline() sim.Discipline { return sim.FIFO }

func (p *AgentsPref) Attach(r *Router) error {
	if err := checkPrefDimensions(r, p.cfg); err != nil {
		return err
	}
	p.r = r
	return nil
}

// RanksTG returns a copy of the agent-selection ranks.
func (p *AgentsPref) RanksTG() [][]float64 { return copyMatrix(p.cfg.RanksTG) }

// RanksGT returns a copy of the contact-selection ranks.
func (p *AgentsPref) RanksGT() [][]float64 { return copyMatrix(p.cfg.RanksGT) }

func (p *AgentsPref) SelectAgent(c *sim.Contact, _ *RoutingInfo, _ int) (*sim.AgentGroup, *sim.Agent) {
	k := c.TypeID
	return selectPreferredAgent(p.r, &p.cfg, k, p.cfg.RanksTG[k], nil)
}

func (p *AgentsPref) SelectWaitingQueue(c *sim.Contact, _ *RoutingInfo, _ int) []QueueTarget {
	for _, rk := range p.cfg.RanksTG[c.TypeID] {
		if !math.IsInf(rk, 1) {
			return []QueueTarget{{Queue: c.TypeID, Priority: c.Priority}}
		}
	}
	return nil
}

func (p *AgentsPref) SelectContact(g *sim.AgentGroup, _ *sim.Agent, _ int) *sim.DequeueEvent {
	i := g.ID()
	return selectPreferredContact(p.r, &p.cfg, i, func(q int) (*sim.DequeueEvent, float64) {
		return p.r.queues[q].First(), p.cfg.RanksGT[i][q]
	})
}

func (p *AgentsPref) ServesQueue(group, queue int) bool {
	return !math.IsInf(p.cfg.RanksGT[group][queue], 1)
}

// selectPreferredAgent chooses among the groups with a free agent using
// ranks (indexed by group) for type k. eligible, when set, filters groups.
func selectPreferredAgent(r *Router, cfg *AgentsPrefConfig, k int, ranks []float64, eligible func(i int) bool) (*sim.AgentGroup, *sim.Agent) {
	groups := r.groups
	rank := func(i int) float64 {
		g := groups[i]
		if g == nil || g.NumFree() == 0 || (eligible != nil && !eligible(i)) {
			return math.Inf(1)
		}
		return ranks[i]
	}
	score := func(i int) float64 {
		w := cfg.WeightsTG[k][i]
		switch cfg.AgentScoring {
		case AgentScoreFreeAgents:
			return w * float64(groups[i].NumFree())
		case AgentScoreLongestIdle:
			return w * groups[i].LongestIdleDuration()
		default:
			return w
		}
	}
	var rng *rand.Rand
	if cfg.RandomAgentSelection {
		rng = cfg.Rng
	}
	i := chooseByRank(len(groups), rank, score, rng)
	if i < 0 {
		return nil, nil
	}
	return groups[i], nil
}

// selectPreferredContact chooses among the queues of the router for group i.
// candidate returns the copy group i would take from queue q and its rank, or
// nil when the queue offers nothing.
func selectPreferredContact(r *Router, cfg *AgentsPrefConfig, i int, candidate func(q int) (*sim.DequeueEvent, float64)) *sim.DequeueEvent {
	now := r.Now()
	cands := make([]*sim.DequeueEvent, len(r.queues))
	ranks := make([]float64, len(r.queues))
	for q, wq := range r.queues {
		ranks[q] = math.Inf(1)
		if wq == nil || wq.IsEmpty() {
			continue
		}
		if ev, rk := candidate(q); ev != nil {
			cands[q], ranks[q] = ev, rk
		}
	}
	score := func(q int) float64 {
		w := cfg.WeightsGT[i][q]
		switch cfg.ContactScoring {
		case ContactScoreQueueSize:
			return w * float64(r.queues[q].Size())
		case ContactScoreWaitingTime:
			return w * cands[q].WaitingTime(now)
		default:
			return w
		}
	}
	var rng *rand.Rand
	if cfg.RandomContactSelection {
		rng = cfg.Rng
	}
	q := chooseByRank(len(r.queues), func(q int) float64 { return ranks[q] }, score, rng)
	if q < 0 {
		return nil
	}
	return cands[q]
}
