package router

import (
	"math"
	"math/rand"

	"github.com/inference-sim/ccsim/sim"
)

// Selectors pick one candidate out of an ordered list of group or queue
// indices. Slices of groups and queues are indexed by slot; nil entries
// (unbound slots) and Skip entries in the order are ignored. Every selector
// returns the chosen slot index or -1, and breaks ties by list order.

// SelectFirstFree returns the first group in order with a free agent.
func SelectFirstFree(groups []*sim.AgentGroup, order []int) int {
	for _, i := range order {
		if g := groupAt(groups, i); g != nil && g.NumFree() > 0 {
			return i
		}
	}
	return -1
}

// SelectMostFree returns the group with the largest number of free agents.
func SelectMostFree(groups []*sim.AgentGroup, order []int) int {
	best, bestFree := -1, 0
	for _, i := range order {
		g := groupAt(groups, i)
		if g == nil {
			continue
		}
		if n := g.NumFree(); n > bestFree {
			best, bestFree = i, n
		}
	}
	return best
}

// SelectLongestIdle returns the group whose longest idle agent has been idle
// the longest at time now, together with that agent.
func SelectLongestIdle(groups []*sim.AgentGroup, order []int, now float64) (int, *sim.Agent) {
	best, bestIdle := -1, math.Inf(-1)
	var bestAgent *sim.Agent
	for _, i := range order {
		g := groupAt(groups, i)
		if g == nil {
			continue
		}
		a := g.LongestIdleAgent()
		if a == nil {
			continue
		}
		if d := a.IdleDuration(now); d > bestIdle {
			best, bestIdle, bestAgent = i, d, a
		}
	}
	return best, bestAgent
}

// SelectWeightedFree draws a group with a free agent with probability
// proportional to weights[j] for order[j].
func SelectWeightedFree(rng *rand.Rand, groups []*sim.AgentGroup, order []int, weights []float64) int {
	scores := make([]float64, len(order))
	for j, i := range order {
		if g := groupAt(groups, i); g != nil && g.NumFree() > 0 {
			scores[j] = weights[j]
		}
	}
	if j := DrawWeighted(rng, scores); j >= 0 {
		return order[j]
	}
	return -1
}

// SelectMaxScore returns the candidate with the highest finite score, or -1
// when every score is -Inf or NaN.
func SelectMaxScore(order []int, score func(i int) float64) int {
	best, bestScore := -1, math.Inf(-1)
	for _, i := range order {
		if i == Skip {
			continue
		}
		if s := score(i); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// SelectFirstNonEmpty returns the first non-empty queue in order.
func SelectFirstNonEmpty(queues []*sim.WaitingQueue, order []int) int {
	for _, q := range order {
		if wq := queueAt(queues, q); wq != nil && !wq.IsEmpty() {
			return q
		}
	}
	return -1
}

// SelectLongestWaiting returns the non-empty queue whose head entered its
// queue first. Merging the queues into one FIFO would serve the same contact.
func SelectLongestWaiting(queues []*sim.WaitingQueue, order []int) int {
	best, bestTime := -1, math.Inf(1)
	for _, q := range order {
		wq := queueAt(queues, q)
		if wq == nil || wq.IsEmpty() {
			continue
		}
		if t := wq.First().EnqueueTime(); t < bestTime {
			best, bestTime = q, t
		}
	}
	return best
}

// SelectLongestQueue returns the largest non-empty queue.
func SelectLongestQueue(queues []*sim.WaitingQueue, order []int) int {
	best, bestSize := -1, 0
	for _, q := range order {
		if wq := queueAt(queues, q); wq != nil && wq.Size() > bestSize {
			best, bestSize = q, wq.Size()
		}
	}
	return best
}

// SelectShortestQueue returns the smallest bound queue, empty ones included.
func SelectShortestQueue(queues []*sim.WaitingQueue, order []int) int {
	best, bestSize := -1, math.MaxInt
	for _, q := range order {
		if wq := queueAt(queues, q); wq != nil && wq.Size() < bestSize {
			best, bestSize = q, wq.Size()
		}
	}
	return best
}

// SelectMaxWeightedWait returns the non-empty queue maximizing
// weights[q] × head waiting time. weights is indexed by queue slot.
func SelectMaxWeightedWait(queues []*sim.WaitingQueue, order []int, weights []float64, now float64) int {
	best, bestScore := -1, math.Inf(-1)
	for _, q := range order {
		wq := queueAt(queues, q)
		if wq == nil || wq.IsEmpty() {
			continue
		}
		if s := weights[q] * wq.First().WaitingTime(now); s > bestScore {
			best, bestScore = q, s
		}
	}
	return best
}

// SelectWeightedNonEmpty draws a non-empty queue with probability
// proportional to weights[j] for order[j].
func SelectWeightedNonEmpty(rng *rand.Rand, queues []*sim.WaitingQueue, order []int, weights []float64) int {
	scores := make([]float64, len(order))
	for j, q := range order {
		if wq := queueAt(queues, q); wq != nil && !wq.IsEmpty() {
			scores[j] = weights[j]
		}
	}
	if j := DrawWeighted(rng, scores); j >= 0 {
		return order[j]
	}
	return -1
}

// DrawWeighted returns an index with probability proportional to its score.
// Negative, NaN and infinite scores count as zero, except that if any score is
// +Inf the first such index is returned. Returns -1 when every score is zero.
func DrawWeighted(rng *rand.Rand, scores []float64) int {
	total := 0.0
	for j, s := range scores {
		if math.IsInf(s, 1) {
			return j
		}
		if s > 0 {
			total += s
		}
	}
	if total <= 0 {
		return -1
	}
	u := rng.Float64() * total
	last := -1
	for j, s := range scores {
		if !(s > 0) {
			continue
		}
		last = j
		if u < s {
			return j
		}
		u -= s
	}
	return last
}

func groupAt(groups []*sim.AgentGroup, i int) *sim.AgentGroup {
	if i < 0 || i >= len(groups) {
		return nil
	}
	return groups[i]
}

func queueAt(queues []*sim.WaitingQueue, q int) *sim.WaitingQueue {
	if q < 0 || q >= len(queues) {
		return nil
	}
	return queues[q]
}
