package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// SimulationKey identifies a reproducible run. Equal keys and equal scenarios
// give identical contacts, decisions and metrics.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// RNG subsystems. Each one owns an independent stream, so drawing more
// service times never shifts the arrivals or the routing draws.
const (
	// SubsystemWorkload is the arrival stream of contact type 0. It is seeded
	// with the master seed itself.
	SubsystemWorkload = "workload"
	// SubsystemRouter feeds randomized agent and contact selection.
	SubsystemRouter = "router"
	// SubsystemService feeds service times.
	SubsystemService = "service"
	// SubsystemPatience feeds patience times.
	SubsystemPatience = "patience"
)

// SubsystemContactType returns the arrival subsystem of contact type k.
// Type 0 uses SubsystemWorkload; a single-type scenario therefore draws its
// arrivals straight from the master seed.
func SubsystemContactType(k int) string {
	if k == 0 {
		return SubsystemWorkload
	}
	return fmt.Sprintf("type_%d", k)
}

// PartitionedRNG hands out one cached *rand.Rand per subsystem, all derived
// from a single SimulationKey: SubsystemWorkload gets the key as its seed,
// any other name gets key XOR fnv1a64(name).
//
// Not safe for concurrent use; a simulation runs on one goroutine.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the stream of the named subsystem, creating it on first
// use. Repeated calls return the same instance.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	rng, ok := p.subsystems[name]
	if !ok {
		rng = rand.New(rand.NewSource(p.seedFor(name)))
		p.subsystems[name] = rng
	}
	return rng
}

func (p *PartitionedRNG) seedFor(name string) int64 {
	if name == SubsystemWorkload {
		return int64(p.key)
	}
	return int64(p.key) ^ fnv1a64(name)
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
