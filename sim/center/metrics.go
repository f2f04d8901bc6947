package center

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/inference-sim/ccsim/sim"
	"github.com/inference-sim/ccsim/sim/router"
)

// Distribution captures statistical summary of a metric.
type Distribution struct {
	Mean  float64
	P50   float64
	P95   float64
	P99   float64
	Min   float64
	Max   float64
	Count int
}

// NewDistribution computes a Distribution from raw values.
// Returns zero-value Distribution for empty input.
func NewDistribution(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	return Distribution{
		Mean:  sum / float64(len(sorted)),
		P50:   percentile(sorted, 50),
		P95:   percentile(sorted, 95),
		P99:   percentile(sorted, 99),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Count: len(sorted),
	}
}

// percentile computes the p-th percentile using linear interpolation.
// Input must be sorted.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// TypeMetrics counts the exits of one contact type.
type TypeMetrics struct {
	Offered      int
	Served       int
	Abandoned    int
	Disconnected int            // dequeued because no group could serve the queue any longer
	Blocked      map[string]int // by blocking reason
	// ServedInTime counts served contacts that waited at most the service-level threshold.
	ServedInTime int

	waits []float64 // waiting times of served contacts
}

func newTypeMetrics() *TypeMetrics {
	return &TypeMetrics{Blocked: make(map[string]int)}
}

// TotalBlocked sums blocked contacts over all reasons.
func (m *TypeMetrics) TotalBlocked() int {
	n := 0
	for _, v := range m.Blocked {
		n += v
	}
	return n
}

// Waiting summarizes the waiting time of served contacts.
func (m *TypeMetrics) Waiting() Distribution { return NewDistribution(m.waits) }

// ServiceLevel is the fraction of offered contacts, blocked excluded, served
// within the threshold. Returns 1 when nothing was offered.
func (m *TypeMetrics) ServiceLevel() float64 {
	den := m.Offered - m.TotalBlocked()
	if den <= 0 {
		return 1
	}
	return float64(m.ServedInTime) / float64(den)
}

func (m *TypeMetrics) add(o *TypeMetrics) {
	m.Offered += o.Offered
	m.Served += o.Served
	m.Abandoned += o.Abandoned
	m.Disconnected += o.Disconnected
	m.ServedInTime += o.ServedInTime
	for k, v := range o.Blocked {
		m.Blocked[k] += v
	}
	m.waits = append(m.waits, o.waits...)
}

// Metrics collects per-type outcomes of contacts leaving a router. It is an
// ExitedContactListener.
type Metrics struct {
	Threshold float64 // service-level threshold
	Types     []*TypeMetrics
	// InSystem is the number of contacts still routed when the run ended.
	InSystem int
	EndTime  float64
}

// NewMetrics creates empty metrics for numTypes contact types.
func NewMetrics(numTypes int, threshold float64) *Metrics {
	m := &Metrics{Threshold: threshold, Types: make([]*TypeMetrics, numTypes)}
	for k := range m.Types {
		m.Types[k] = newTypeMetrics()
	}
	return m
}

func (m *Metrics) typeOf(c *sim.Contact) *TypeMetrics {
	if c.TypeID < 0 || c.TypeID >= len(m.Types) {
		panic(fmt.Sprintf("Metrics: contact type %d not in [0,%d)", c.TypeID, len(m.Types)))
	}
	return m.Types[c.TypeID]
}

func (m *Metrics) Blocked(_ *router.Router, c *sim.Contact, reason router.BlockReason) {
	tm := m.typeOf(c)
	tm.Offered++
	tm.Blocked[reason.String()]++
}

func (m *Metrics) Dequeued(_ *router.Router, ev *sim.DequeueEvent) {
	tm := m.typeOf(ev.Contact)
	tm.Offered++
	if ev.DequeueType() == sim.DequeueNoAgent {
		tm.Disconnected++
	} else {
		tm.Abandoned++
	}
}

func (m *Metrics) Served(_ *router.Router, ev *sim.EndServiceEvent) {
	tm := m.typeOf(ev.Contact)
	tm.Offered++
	tm.Served++
	w := ev.Contact.WaitingTime(ev.BeginTime)
	tm.waits = append(tm.waits, w)
	if w <= m.Threshold {
		tm.ServedInTime++
	}
}

// Total aggregates all types.
func (m *Metrics) Total() *TypeMetrics {
	t := newTypeMetrics()
	for _, tm := range m.Types {
		t.add(tm)
	}
	return t
}

// Print writes a plain per-type table followed by the totals.
func (m *Metrics) Print(w io.Writer, names []string) {
	fmt.Fprintf(w, "=== Contact center metrics (t=%.3f, service level threshold %.3f) ===\n", m.EndTime, m.Threshold)
	fmt.Fprintf(w, "%-16s %8s %8s %9s %8s %8s %10s %8s\n", "type", "offered", "served", "abandoned", "discon", "blocked", "mean wait", "SL")
	row := func(name string, tm *TypeMetrics) {
		fmt.Fprintf(w, "%-16s %8d %8d %9d %8d %8d %10.4f %8.4f\n",
			name, tm.Offered, tm.Served, tm.Abandoned, tm.Disconnected, tm.TotalBlocked(), tm.Waiting().Mean, tm.ServiceLevel())
	}
	for k, tm := range m.Types {
		name := fmt.Sprintf("type_%d", k)
		if k < len(names) && names[k] != "" {
			name = names[k]
		}
		row(name, tm)
	}
	total := m.Total()
	row("total", total)
	if len(total.Blocked) > 0 {
		reasons := make([]string, 0, len(total.Blocked))
		for r := range total.Blocked {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			fmt.Fprintf(w, "  blocked %-14s %d\n", r+":", total.Blocked[r])
		}
	}
	fmt.Fprintf(w, "in system at end: %d\n", m.InSystem)
}
