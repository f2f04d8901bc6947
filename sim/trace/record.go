// Package trace provides decision-trace recording for routing analysis.
// It stores plain data types and imports nothing from sim.
package trace

// Routing outcomes.
const (
	OutcomeAgent   = "agent"   // matched to an agent
	OutcomePulled  = "pulled"  // picked from a queue by a free agent
	OutcomeQueue   = "queue"   // placed in one or more waiting queues
	OutcomeBlocked = "blocked" // refused at arrival
	OutcomeKeep    = "keep"    // rerouting left the contact where it was
)

// Exit outcomes.
const (
	ExitServed       = "served"
	ExitAbandoned    = "abandoned"
	ExitDisconnected = "disconnected"
	ExitBlocked      = "blocked"
)

// RoutingRecord captures one routing decision for a contact: at arrival
// (Retry == 0), when a rerouting timer fired, or when a free agent pulled it
// from a queue (OutcomePulled).
type RoutingRecord struct {
	ContactID   int64
	ContactType int
	Clock       float64
	Retry       int
	Outcome     string
	Group       int   // serving group, -1 unless Outcome == OutcomeAgent
	Queues      []int // queues holding the contact after the decision
	Reason      string
}

// ExitRecord captures a contact leaving the router.
type ExitRecord struct {
	ContactID   int64
	ContactType int
	Clock       float64
	Outcome     string
	Reason      string  // blocking reason or dequeue type
	Group       int     // serving group for served contacts, -1 otherwise
	WaitingTime float64 // total time spent queued
}
