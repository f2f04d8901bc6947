package router

import (
	"fmt"
	"math"
)

// LocalSpecConfig configures a LocalSpec policy: contact types originate in a
// region, agent groups are located in one, and contacts only reach remote
// groups after waiting their type's overflow delay.
type LocalSpecConfig struct {
	AgentsPrefConfig

	TypeRegion    []int     // K, originating region of each type
	GroupRegion   []int     // I, location of each group
	OverflowDelay []float64 // K, wait before a contact reaches remote groups
}

// LocalSpec is AgentsPrefWithDelays over derived matrices: local pairs have
// no delay, remote pairs wait the type's overflow delay, and remote ranks are
// shifted above every local rank so local candidates always win. Agents drain
// local queues before remote ones for the same reason.
type LocalSpec struct {
	*AgentsPrefWithDelays
	typeRegion  []int
	groupRegion []int
}

func NewLocalSpec(cfg LocalSpecConfig) (*LocalSpec, error) {
	pref, err := normalizePrefConfig(cfg.AgentsPrefConfig)
	if err != nil {
		return nil, err
	}
	numTypes, numGroups := len(pref.RanksTG), len(pref.RanksGT)
	if len(cfg.TypeRegion) != numTypes {
		return nil, fmt.Errorf("%w: %d type regions for %d types", ErrDimension, len(cfg.TypeRegion), numTypes)
	}
	if len(cfg.GroupRegion) != numGroups {
		return nil, fmt.Errorf("%w: %d group regions for %d groups", ErrDimension, len(cfg.GroupRegion), numGroups)
	}
	if len(cfg.OverflowDelay) != numTypes {
		return nil, fmt.Errorf("%w: %d overflow delays for %d types", ErrDimension, len(cfg.OverflowDelay), numTypes)
	}
	for k, d := range cfg.OverflowDelay {
		if d < 0 || math.IsNaN(d) {
			return nil, fmt.Errorf("%w: overflow delay %g for type %d", ErrInvalidConfig, d, k)
		}
	}

	local := func(i, k int) bool { return cfg.GroupRegion[i] == cfg.TypeRegion[k] }
	tgOffset := finiteSpan(pref.RanksTG) + 1
	gtOffset := finiteSpan(pref.RanksGT) + 1
	ranksTG := copyMatrix(pref.RanksTG)
	ranksGT := copyMatrix(pref.RanksGT)
	delays := NewWeightMatrix(numGroups, numTypes, 0)
	for k := 0; k < numTypes; k++ {
		for i := 0; i < numGroups; i++ {
			if local(i, k) {
				continue
			}
			ranksTG[k][i] += tgOffset
			ranksGT[i][k] += gtOffset
			delays[i][k] = cfg.OverflowDelay[k]
		}
	}
	pref.RanksTG, pref.RanksGT = ranksTG, ranksGT
	inner, err := NewAgentsPrefWithDelays(AgentsPrefWithDelaysConfig{AgentsPrefConfig: pref, Delays: delays})
	if err != nil {
		return nil, err
	}
	return &LocalSpec{
		AgentsPrefWithDelays: inner,
		typeRegion:           append([]int(nil), cfg.TypeRegion...),
		groupRegion:          append([]int(nil), cfg.GroupRegion...),
	}, nil
}

func (p *LocalSpec) Name() string { return "local-spec" }

// IsLocal reports whether group i is in type k's originating region.
func (p *LocalSpec) IsLocal(i, k int) bool { return p.groupRegion[i] == p.typeRegion[k] }

// finiteSpan returns max - min over the finite entries of m, or 0.
func finiteSpan(m [][]float64) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range m {
		for _, v := range row {
			if math.IsInf(v, 0) {
				continue
			}
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
	}
	if hi < lo {
		return 0
	}
	return hi - lo
}
