package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalDecisions    int
	ArrivalDecisions  int
	Reroutes          int
	ServedByAgent     int // arrivals, reroutes and pulls matched to an agent
	Queued            int
	Blocked           int
	UniqueGroups      int
	GroupDistribution map[int]int    // group index → number of contacts matched
	ExitCounts        map[string]int // exit outcome → count
	MeanWaitingTime   float64        // over exits that waited
	MaxWaitingTime    float64
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		GroupDistribution: make(map[int]int),
		ExitCounts:        make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalDecisions = len(st.Routings)
	for _, r := range st.Routings {
		switch {
		case r.Outcome == OutcomePulled:
		case r.Retry == 0:
			summary.ArrivalDecisions++
		default:
			summary.Reroutes++
		}
		switch r.Outcome {
		case OutcomeAgent, OutcomePulled:
			summary.ServedByAgent++
			summary.GroupDistribution[r.Group]++
		case OutcomeQueue:
			summary.Queued++
		case OutcomeBlocked:
			summary.Blocked++
		}
	}

	totalWait, waited := 0.0, 0
	for _, e := range st.Exits {
		summary.ExitCounts[e.Outcome]++
		if e.WaitingTime > 0 {
			totalWait += e.WaitingTime
			waited++
		}
		if e.WaitingTime > summary.MaxWaitingTime {
			summary.MaxWaitingTime = e.WaitingTime
		}
	}
	if waited > 0 {
		summary.MeanWaitingTime = totalWait / float64(waited)
	}

	summary.UniqueGroups = len(summary.GroupDistribution)

	return summary
}
