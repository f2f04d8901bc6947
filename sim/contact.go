// Defines the Contact struct that models one customer request in the contact center.
// Tracks type, arrival time, service/patience durations, and the router that owns it.

package sim

import (
	"fmt"
	"math"
)

// Contact models a single customer request's lifecycle in the simulation.
// A contact is routed by at most one router at a time; while it waits, the
// router and the waiting queue(s) holding it share it.
type Contact struct {
	ID          int64   // Unique identifier, stable across snapshots
	TypeID      int     // Contact type in [0, K)
	ArrivalTime float64 // Simulation time the contact was created

	// Priority orders the contact inside priority-discipline queues when the
	// router does not supply an explicit queue priority. Lower is served first.
	Priority float64

	ServiceTime  float64 // Service duration once an agent picks the contact up
	PatienceTime float64 // Maximal total time in queue before abandoning; +Inf never abandons

	// Trunk, when set, must grant a channel before the contact can be routed.
	Trunk *TrunkGroup

	owner       int
	exited      bool
	holdsLine   bool
	queued      bool
	firstQueued float64
}

// NewContact creates a contact with infinite patience and zero service time.
func NewContact(id int64, typeID int, arrival float64) *Contact {
	return &Contact{
		ID:           id,
		TypeID:       typeID,
		ArrivalTime:  arrival,
		PatienceTime: math.Inf(1),
	}
}

// Owner returns the identifier of the router currently routing the contact,
// or 0 when the contact is not associated with a router.
func (c *Contact) Owner() int { return c.owner }

// SetOwner associates the contact with a router identifier (0 clears it).
func (c *Contact) SetOwner(id int) { c.owner = id }

// Exited reports whether the contact left the system.
func (c *Contact) Exited() bool { return c.exited }

// MarkExited flags the contact as having left the system.
func (c *Contact) MarkExited() { c.exited = true }

// HoldsLine reports whether the contact currently occupies a trunk channel.
func (c *Contact) HoldsLine() bool { return c.holdsLine }

// FirstQueueTime returns the time the contact first entered any waiting queue.
// ok is false when the contact was never queued.
func (c *Contact) FirstQueueTime() (t float64, ok bool) {
	return c.firstQueued, c.queued
}

// WaitingTime returns how long the contact has been waiting in queue (across
// all queues and reroutes) at time now, or 0 if it was never queued.
func (c *Contact) WaitingTime(now float64) float64 {
	if !c.queued {
		return 0
	}
	return now - c.firstQueued
}

func (c *Contact) markQueued(now float64) {
	if !c.queued {
		c.queued = true
		c.firstQueued = now
	}
}

// This method returns a human-readable string representation of a Contact.
func (c *Contact) String() string {
	return fmt.Sprintf("Contact: (ID: %d, Type: %d, ArrivalTime: %.4f)", c.ID, c.TypeID, c.ArrivalTime)
}

// TrunkGroup models a bounded pool of lines (channels). A contact must take a
// line before it is routed and releases it when it exits.
type TrunkGroup struct {
	Name     string
	capacity int
	inUse    int
}

// NewTrunkGroup creates a trunk group with the given number of lines.
// Panics if capacity is negative.
func NewTrunkGroup(name string, capacity int) *TrunkGroup {
	if capacity < 0 {
		panic(fmt.Sprintf("NewTrunkGroup: negative capacity %d", capacity))
	}
	return &TrunkGroup{Name: name, capacity: capacity}
}

// Capacity returns the number of lines.
func (t *TrunkGroup) Capacity() int { return t.capacity }

// InUse returns the number of lines currently held.
func (t *TrunkGroup) InUse() int { return t.inUse }

// Take reserves a line for c. Returns false when all lines are busy.
// Taking twice for the same contact is a no-op that succeeds.
func (t *TrunkGroup) Take(c *Contact) bool {
	if c.holdsLine {
		return true
	}
	if t.inUse >= t.capacity {
		return false
	}
	t.inUse++
	c.holdsLine = true
	return true
}

// Release frees the line held by c, if any.
func (t *TrunkGroup) Release(c *Contact) {
	if !c.holdsLine {
		return
	}
	c.holdsLine = false
	t.inUse--
}
