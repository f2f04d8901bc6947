package router

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/inference-sim/ccsim/sim"
)

// DelayPredictor estimates the waiting time a contact would get in a queue.
type DelayPredictor int

const (
	// PredictLastEnteredService uses the waiting time of the last contact
	// that left the queue for service.
	PredictLastEnteredService DelayPredictor = iota
	// PredictQueueLength uses (size+1) × mean service time / agents.
	PredictQueueLength
)

// ValidDelayPredictors maps config names to predictors.
var ValidDelayPredictors = map[string]DelayPredictor{
	"":             PredictLastEnteredService,
	"last-entered": PredictLastEnteredService,
	"queue-length": PredictQueueLength,
}

// ExpDelayConfig configures an ExpDelay policy.
type ExpDelayConfig struct {
	TypeToGroup     [][]int     // K lists of eligible groups, in preference order
	Weights         [][]float64 // K×I, nil means all ones
	Predictor       DelayPredictor
	MeanServiceTime []float64 // I, for PredictQueueLength; nil means all ones

	// Stochastic draws a queue with probability inversely proportional to its
	// weighted predicted delay instead of taking the minimum. Rng is required.
	Stochastic bool
	Rng        *rand.Rand
}

// ExpDelay keeps one FIFO queue per group and sends a contact that finds no
// free agent to the queue with the smallest predicted delay divided by the
// type/group weight. Free agents serve their own queue.
type ExpDelay struct {
	r        *Router
	cfg      ExpDelayConfig
	lastWait []float64 // per queue, waiting time of the last contact served from it
}

func NewExpDelay(cfg ExpDelayConfig) (*ExpDelay, error) {
	if cfg.Stochastic && cfg.Rng == nil {
		return nil, fmt.Errorf("%w: stochastic selection needs a random source", ErrInvalidConfig)
	}
	if cfg.Predictor != PredictLastEnteredService && cfg.Predictor != PredictQueueLength {
		return nil, fmt.Errorf("%w: unknown delay predictor %d", ErrInvalidConfig, cfg.Predictor)
	}
	cfg.TypeToGroup = copyLists(cfg.TypeToGroup)
	cfg.Weights = copyMatrix(cfg.Weights)
	cfg.MeanServiceTime = append([]float64(nil), cfg.MeanServiceTime...)
	return &ExpDelay{cfg: cfg}, nil
}

func (p *ExpDelay) Name() string { return "exp-delay" }

func (p *ExpDelay) QueueDiscipline() sim.Discipline { return sim.FIFO }

func (p *ExpDelay) Attach(r *Router) error {
	numTypes, numGroups := r.NumTypes(), r.NumGroups()
	if len(p.cfg.TypeToGroup) != numTypes {
		return fmt.Errorf("%w: type-to-group map has %d rows, want %d", ErrDimension, len(p.cfg.TypeToGroup), numTypes)
	}
	if err := CheckTypeToGroupMap(numGroups, p.cfg.TypeToGroup); err != nil {
		return err
	}
	if r.NumQueues() != numGroups {
		return fmt.Errorf("%w: policy needs %d queues, router has %d", ErrDimension, numGroups, r.NumQueues())
	}
	if p.cfg.Weights == nil {
		p.cfg.Weights = NewWeightMatrix(numTypes, numGroups, 1)
	}
	if err := CheckRankMatrix(numTypes, numGroups, p.cfg.Weights); err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	if len(p.cfg.MeanServiceTime) == 0 {
		p.cfg.MeanServiceTime = NewWeightMatrix(1, numGroups, 1)[0]
	}
	if len(p.cfg.MeanServiceTime) != numGroups {
		return fmt.Errorf("%w: %d mean service times for %d groups", ErrDimension, len(p.cfg.MeanServiceTime), numGroups)
	}
	p.lastWait = make([]float64, numGroups)
	p.r = r
	return nil
}

// PredictedDelay returns the predicted waiting time in group i's queue, +Inf
// when the group has no agent.
func (p *ExpDelay) PredictedDelay(i int) float64 {
	g, wq := p.r.Group(i), p.r.Queue(i)
	if g == nil || wq == nil || g.NumAgents() == 0 {
		return math.Inf(1)
	}
	if p.cfg.Predictor == PredictQueueLength {
		return float64(wq.Size()+1) * p.cfg.MeanServiceTime[i] / float64(g.NumAgents())
	}
	return p.lastWait[i]
}

func (p *ExpDelay) SelectAgent(c *sim.Contact, _ *RoutingInfo, _ int) (*sim.AgentGroup, *sim.Agent) {
	i, a := SelectLongestIdle(p.r.groups, p.cfg.TypeToGroup[c.TypeID], p.r.Now())
	if i < 0 {
		return nil, nil
	}
	return p.r.groups[i], a
}

func (p *ExpDelay) SelectWaitingQueue(c *sim.Contact, _ *RoutingInfo, _ int) []QueueTarget {
	k := c.TypeID
	order := p.cfg.TypeToGroup[k]
	cost := func(i int) float64 {
		w := p.cfg.Weights[k][i]
		if !(w > 0) {
			return math.Inf(1)
		}
		return p.PredictedDelay(i) / w
	}
	q := -1
	if p.cfg.Stochastic {
		inv := make([]float64, len(order))
		for j, i := range order {
			if i == Skip {
				continue
			}
			switch d := cost(i); {
			case d == 0:
				inv[j] = math.Inf(1)
			case !math.IsInf(d, 1):
				inv[j] = 1 / d
			}
		}
		if j := DrawWeighted(p.cfg.Rng, inv); j >= 0 {
			q = order[j]
		}
	} else {
		q = SelectMaxScore(order, func(i int) float64 {
			if d := cost(i); !math.IsInf(d, 1) {
				return -d
			}
			return math.Inf(-1)
		})
	}
	if q < 0 {
		return nil
	}
	return []QueueTarget{{Queue: q, Priority: c.Priority}}
}

func (p *ExpDelay) SelectContact(g *sim.AgentGroup, _ *sim.Agent, _ int) *sim.DequeueEvent {
	i := g.ID()
	wq := p.r.Queue(i)
	if wq == nil || wq.IsEmpty() {
		return nil
	}
	ev := wq.First()
	p.lastWait[i] = ev.WaitingTime(p.r.Now())
	return ev
}

func (p *ExpDelay) ServesQueue(group, queue int) bool { return group == queue }
