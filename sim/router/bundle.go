package router

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
)

// PolicyConfig describes a routing policy in a scenario file. Only the fields
// used by the named policy are read.
type PolicyConfig struct {
	Name  string       `yaml:"name" toml:"name"`
	Table RoutingTable `yaml:"table" toml:"table"`

	// longest-weighted-waiting-time: one weight per queue (contact type).
	QueueWeights []float64 `yaml:"queue_weights,omitempty" toml:"queue_weights,omitempty"`

	// Rank-matrix policies. The ordered-list policies read the weights and the
	// random flags too, and agent_scoring "free-agents" makes them send a
	// contact to the group of its list with the most free agents.
	WeightsTG              [][]float64 `yaml:"weights_tg,omitempty" toml:"weights_tg,omitempty"`
	WeightsGT              [][]float64 `yaml:"weights_gt,omitempty" toml:"weights_gt,omitempty"`
	AgentScoring           string      `yaml:"agent_scoring,omitempty" toml:"agent_scoring,omitempty"`
	ContactScoring         string      `yaml:"contact_scoring,omitempty" toml:"contact_scoring,omitempty"`
	RandomAgentSelection   bool        `yaml:"random_agent_selection,omitempty" toml:"random_agent_selection,omitempty"`
	RandomContactSelection bool        `yaml:"random_contact_selection,omitempty" toml:"random_contact_selection,omitempty"`

	// agents-pref-delays.
	Delays       [][]float64          `yaml:"delays,omitempty" toml:"delays,omitempty"`
	DelayedRanks []DelayedRanksConfig `yaml:"delayed_ranks,omitempty" toml:"delayed_ranks,omitempty"`
	ScanQueues   bool                 `yaml:"scan_queues,omitempty" toml:"scan_queues,omitempty"`

	// agents-pref-delays and queue-ratio-overflow: "transfer" or "promotion".
	// Empty keeps each policy's base behavior: agents-pref-delays widens the
	// reachable groups (promotion), queue-ratio-overflow keeps one queue
	// (transfer).
	OverflowMode string `yaml:"overflow_mode,omitempty" toml:"overflow_mode,omitempty"`

	// local-spec.
	TypeRegion    []int     `yaml:"type_region,omitempty" toml:"type_region,omitempty"`
	GroupRegion   []int     `yaml:"group_region,omitempty" toml:"group_region,omitempty"`
	OverflowDelay []float64 `yaml:"overflow_delay,omitempty" toml:"overflow_delay,omitempty"`

	// overflow-priority: per type, the stages in order.
	Stages [][]StageConfig `yaml:"stages,omitempty" toml:"stages,omitempty"`

	// queue-ratio-overflow.
	TargetRatios []float64 `yaml:"target_ratios,omitempty" toml:"target_ratios,omitempty"`

	// exp-delay.
	Predictor       string      `yaml:"predictor,omitempty" toml:"predictor,omitempty"`
	MeanServiceTime []float64   `yaml:"mean_service_time,omitempty" toml:"mean_service_time,omitempty"`
	Stochastic      bool        `yaml:"stochastic,omitempty" toml:"stochastic,omitempty"`
	TypeWeights     [][]float64 `yaml:"type_weights,omitempty" toml:"type_weights,omitempty"`
}

// DelayedRanksConfig is the file form of DelayedRanks.
type DelayedRanksConfig struct {
	MinWait float64     `yaml:"min_wait" toml:"min_wait"`
	Ranks   [][]float64 `yaml:"ranks" toml:"ranks"`
	RanksGT [][]float64 `yaml:"ranks_gt,omitempty" toml:"ranks_gt,omitempty"`
}

// StageConfig is the file form of a RoutingStage with constant rank vectors.
// An omitted vector keeps the previous stage's.
type StageConfig struct {
	WaitingTime  float64   `yaml:"waiting_time" toml:"waiting_time"`
	AgentRanks   []float64 `yaml:"agent_ranks,omitempty" toml:"agent_ranks,omitempty"`
	ContactRanks []float64 `yaml:"contact_ranks,omitempty" toml:"contact_ranks,omitempty"`
}

// ValidPolicies is the set of recognized routing policy names.
// Shared by Validate() and NewPolicy() to avoid duplication.
var ValidPolicies = map[string]bool{
	"queue-priority":                true,
	"single-fifo":                   true,
	"longest-queue-first":           true,
	"longest-weighted-waiting-time": true,
	"queue-at-last-group":           true,
	"agents-pref":                   true,
	"agents-pref-delays":            true,
	"local-spec":                    true,
	"overflow-priority":             true,
	"queue-ratio-overflow":          true,
	"exp-delay":                     true,
}

// PolicyNames returns the recognized policy names, sorted.
func PolicyNames() []string {
	names := make([]string, 0, len(ValidPolicies))
	for n := range ValidPolicies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks names and enumerations. Table shapes are checked by
// NewPolicy, which knows the dimensions.
func (c *PolicyConfig) Validate() error {
	if !ValidPolicies[c.Name] {
		return fmt.Errorf("unknown routing policy %q; valid policies: %s", c.Name, strings.Join(PolicyNames(), ", "))
	}
	if _, ok := ValidAgentScorings[c.AgentScoring]; !ok {
		return fmt.Errorf("unknown agent scoring %q", c.AgentScoring)
	}
	if _, ok := ValidContactScorings[c.ContactScoring]; !ok {
		return fmt.Errorf("unknown contact scoring %q", c.ContactScoring)
	}
	if _, ok := ValidOverflowModes[c.OverflowMode]; !ok && c.OverflowMode != "" {
		return fmt.Errorf("unknown overflow mode %q", c.OverflowMode)
	}
	if _, ok := ValidDelayPredictors[c.Predictor]; !ok {
		return fmt.Errorf("unknown delay predictor %q", c.Predictor)
	}
	for q, w := range c.QueueWeights {
		if w < 0 {
			return fmt.Errorf("queue_weights[%d] must be non-negative, got %f", q, w)
		}
	}
	return nil
}

// QueueCount returns the number of queues the named policy uses.
func QueueCount(cfg PolicyConfig, numTypes, numGroups int) int {
	switch cfg.Name {
	case "queue-at-last-group", "overflow-priority", "queue-ratio-overflow", "exp-delay":
		return numGroups
	default:
		return numTypes
	}
}

// NewPolicy creates a routing policy from its file description. rng feeds
// randomized selection modes and may be nil when none is enabled.
func NewPolicy(cfg PolicyConfig, numTypes, numGroups int, rng *rand.Rand) (Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	table, err := cfg.Table.Normalize(numTypes, numGroups)
	if err != nil {
		return nil, fmt.Errorf("routing table: %w", err)
	}
	pref := AgentsPrefConfig{
		RanksTG:                table.RanksTG,
		RanksGT:                table.RanksGT,
		WeightsTG:              cfg.WeightsTG,
		WeightsGT:              cfg.WeightsGT,
		AgentScoring:           ValidAgentScorings[cfg.AgentScoring],
		ContactScoring:         ValidContactScorings[cfg.ContactScoring],
		RandomAgentSelection:   cfg.RandomAgentSelection,
		RandomContactSelection: cfg.RandomContactSelection,
		Rng:                    rng,
	}
	sel := ListSelection{
		MostFree:      cfg.AgentScoring == "free-agents",
		RandomAgent:   cfg.RandomAgentSelection,
		RandomContact: cfg.RandomContactSelection,
		WeightsTG:     cfg.WeightsTG,
		WeightsGT:     cfg.WeightsGT,
		Rng:           rng,
	}
	switch cfg.Name {
	case "queue-priority":
		return withSelection(NewQueuePriority(table.TypeToGroup, table.GroupToType), sel)
	case "single-fifo":
		return withSelection(NewSingleFIFO(table.TypeToGroup, table.GroupToType), sel)
	case "longest-queue-first":
		return withSelection(NewLongestQueueFirst(table.TypeToGroup, table.GroupToType), sel)
	case "longest-weighted-waiting-time":
		weights := cfg.QueueWeights
		if weights == nil {
			weights = NewWeightMatrix(1, numTypes, 1)[0]
		}
		return withSelection(NewLongestWeightedWaitingTime(table.TypeToGroup, table.GroupToType, weights), sel)
	case "queue-at-last-group":
		return withSelection(NewQueueAtLastGroup(table.TypeToGroup, table.GroupToType), sel)
	case "agents-pref":
		return NewAgentsPref(pref)
	case "agents-pref-delays":
		delayed := make([]DelayedRanks, len(cfg.DelayedRanks))
		for j, dr := range cfg.DelayedRanks {
			delayed[j] = DelayedRanks{MinWait: dr.MinWait, RanksTG: dr.Ranks, RanksGT: dr.RanksGT}
		}
		delays := cfg.Delays
		if delays == nil {
			delays = NewWeightMatrix(numGroups, numTypes, 0)
		}
		return NewAgentsPrefWithDelays(AgentsPrefWithDelaysConfig{
			AgentsPrefConfig: pref,
			Delays:           delays,
			DelayedRanks:     delayed,
			OverflowTransfer: ResolveOverflowMode(cfg.OverflowMode, OverflowPromotion) == OverflowTransfer,
			ScanQueues:       cfg.ScanQueues,
		})
	case "local-spec":
		return NewLocalSpec(LocalSpecConfig{
			AgentsPrefConfig: pref,
			TypeRegion:       cfg.TypeRegion,
			GroupRegion:      cfg.GroupRegion,
			OverflowDelay:    cfg.OverflowDelay,
		})
	case "overflow-priority":
		return newOverflowPriorityFromConfig(cfg, table, numTypes, numGroups)
	case "queue-ratio-overflow":
		targets := cfg.TargetRatios
		if targets == nil {
			targets = NewWeightMatrix(1, numGroups, 1)[0]
		}
		return NewQueueRatioOverflow(QueueRatioConfig{
			RanksTG:      table.RanksTG,
			TargetRatios: targets,
			Mode:         ResolveOverflowMode(cfg.OverflowMode, OverflowTransfer),
		})
	case "exp-delay":
		return NewExpDelay(ExpDelayConfig{
			TypeToGroup:     table.TypeToGroup,
			Weights:         cfg.TypeWeights,
			Predictor:       ValidDelayPredictors[cfg.Predictor],
			MeanServiceTime: cfg.MeanServiceTime,
			Stochastic:      cfg.Stochastic,
			Rng:             rng,
		})
	default:
		panic(fmt.Sprintf("unhandled routing policy %q", cfg.Name))
	}
}

// listPolicy is an ordered-list policy.
type listPolicy interface {
	Policy
	SetSelection(ListSelection) error
}

func withSelection(p listPolicy, sel ListSelection) (Policy, error) {
	if err := p.SetSelection(sel); err != nil {
		return nil, err
	}
	return p, nil
}

// newOverflowPriorityFromConfig builds constant-rank stages. Without explicit
// stages, every type gets a single stage from the routing table: agent ranks
// from RanksTG, contact ranks from the transposed RanksGT.
func newOverflowPriorityFromConfig(cfg PolicyConfig, table *NormalizedTable, numTypes, numGroups int) (Policy, error) {
	stages := make([][]RoutingStage, numTypes)
	if cfg.Stages == nil {
		contactRanks := Transpose(table.RanksGT)
		for k := 0; k < numTypes; k++ {
			stages[k] = []RoutingStage{{
				AgentRanks:   ConstantRanks(table.RanksTG[k]),
				ContactRanks: ConstantRanks(contactRanks[k]),
			}}
		}
	} else {
		if len(cfg.Stages) != numTypes {
			return nil, fmt.Errorf("%w: stages for %d types, want %d", ErrDimension, len(cfg.Stages), numTypes)
		}
		for k, list := range cfg.Stages {
			for s, sc := range list {
				st := RoutingStage{WaitingTime: sc.WaitingTime}
				if sc.AgentRanks != nil {
					if len(sc.AgentRanks) != numGroups {
						return nil, fmt.Errorf("%w: type %d stage %d has %d agent ranks, want %d", ErrDimension, k, s, len(sc.AgentRanks), numGroups)
					}
					st.AgentRanks = ConstantRanks(sc.AgentRanks)
				}
				if sc.ContactRanks != nil {
					if len(sc.ContactRanks) != numGroups {
						return nil, fmt.Errorf("%w: type %d stage %d has %d contact ranks, want %d", ErrDimension, k, s, len(sc.ContactRanks), numGroups)
					}
					st.ContactRanks = ConstantRanks(sc.ContactRanks)
				}
				stages[k] = append(stages[k], st)
			}
		}
	}
	return NewOverflowAndPriority(OverflowAndPriorityConfig{
		Stages:       stages,
		AgentScoring: ValidAgentScorings[cfg.AgentScoring],
		Weights:      cfg.WeightsTG,
	})
}
