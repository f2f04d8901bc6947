// Package sim provides the discrete-event kernel and the contact-center model
// that the routing engine drives.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - simulator.go: the clock and the event loop
//   - event.go: Event, EventHandle (cancel/reschedule) and the event heap
//   - contact.go: Contact lifecycle fields and trunk lines
//   - agent_group.go: agents, services and staffing changes
//   - waiting_queue.go: FIFO/priority queues, abandonment and dequeue types
//
// # Architecture
//
// The sim package holds the collaborators a router talks to; the routing
// engine itself lives in sub-packages:
//   - sim/router/: Router core, selectors, routing tables, rerouting, policies
//   - sim/workload/: arrival processes and service/patience variates
//   - sim/center/: scenario loading and end-to-end contact-center runs
//   - sim/trace/: decision trace recording
//
// # Key Interfaces
//
// Agent groups and waiting queues report every change synchronously through
// listener interfaces:
//   - AgentGroupListener: staffing changes, service begin, service end
//   - WaitingQueueListener: enqueue and dequeue (with a DequeueType)
//
// Everything here is single-threaded: one event body runs to completion before
// the next starts, and listeners run inside the event that caused the change.
package sim
