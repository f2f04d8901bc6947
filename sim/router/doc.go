// Package router matches arriving contacts with agents.
//
// A Router owns K contact types, Q waiting-queue slots and I agent-group
// slots. Every decision is delegated to a Policy:
//   - SelectAgent: which group (and optionally which agent) serves an arrival
//   - SelectWaitingQueue: which queues hold a contact that found no agent
//   - SelectContact: which queued contact a free agent pulls
//
// # Reading Guide
//
//   - router.go: dimensions, slot binding, capacity, listeners
//   - lifecycle.go: arrival, service start, exits, listener callbacks
//   - rerouting.go: contact and agent rerouting timers
//   - table.go: routing-table forms and conversions
//   - selectors.go: reusable agent and queue selection helpers
//   - bundle.go: PolicyConfig and the name-keyed NewPolicy factory
//   - state.go: snapshots (SaveState/RestoreState, CBOR encoding)
//
// # Policies
//
//   - queue-priority, single-fifo, longest-queue-first,
//     longest-weighted-waiting-time, queue-at-last-group (ordered_lists.go)
//   - agents-pref (agents_pref.go), agents-pref-delays (agents_pref_delays.go),
//     local-spec (local_spec.go)
//   - overflow-priority (overflow_priority.go)
//   - queue-ratio-overflow (queue_ratio.go)
//   - exp-delay (exp_delay.go)
//
// A contact may wait in several queues at once. The router keeps its copies in
// RoutingInfo; when one copy leaves for service or abandonment, the others are
// removed with sim.DequeueSibling.
package router
