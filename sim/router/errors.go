package router

import "errors"

// Configuration errors. Constructors and setters wrap these with details, so
// callers can match them with errors.Is.
var (
	// ErrInvalidTable reports a malformed routing table: out-of-range or
	// duplicate index, inconsistent cross-references, NaN ranks.
	ErrInvalidTable = errors.New("invalid routing table")

	// ErrDimension reports a table or vector whose size does not match the
	// declared number of contact types, queues or agent groups.
	ErrDimension = errors.New("dimension mismatch")

	// ErrInvalidConfig reports a bad scalar parameter (negative delay, unknown
	// scoring mode, empty stage list...).
	ErrInvalidConfig = errors.New("invalid router configuration")
)

// State errors.
var (
	// ErrSlotConflict: the queue or group is already bound to a router slot.
	ErrSlotConflict = errors.New("object already bound to a router slot")

	// ErrSlotRange: the slot index is outside the router's declared dimensions.
	ErrSlotRange = errors.New("slot index out of range")

	// ErrAlreadyRouted: the contact is already associated with a router.
	ErrAlreadyRouted = errors.New("contact already routed")

	// ErrContactExited: the contact already left the system.
	ErrContactExited = errors.New("contact already exited")

	// ErrBroadcasting: exited-contact listeners cannot change during a broadcast.
	ErrBroadcasting = errors.New("listener list modified during broadcast")

	// ErrNegativeCapacity: the total queue capacity must be non-negative.
	ErrNegativeCapacity = errors.New("negative queue capacity")

	// ErrCapacityBelowOccupancy: the capacity cannot drop below the current total queue size.
	ErrCapacityBelowOccupancy = errors.New("queue capacity below current occupancy")
)
