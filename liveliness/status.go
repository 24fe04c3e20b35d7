package liveliness

import "rtps/guid"

// LostStatus is delivered to a writer listener when the writer failed to
// assert its liveliness within its lease duration.
type LostStatus struct {
	// TotalCount is the cumulative number of lost transitions. It never
	// decreases.
	TotalCount int
	// TotalCountChange is the delta since the previous delivery. It resets
	// to zero once the listener callback returns.
	TotalCountChange int
}

// ChangedStatus is delivered to a reader listener when the aliveness of a
// matched writer changes.
type ChangedStatus struct {
	// AliveCount is the number of currently matched writers considered
	// alive. AliveCount + NotAliveCount equals the number of matched
	// writers.
	AliveCount    int
	NotAliveCount int
	// Change fields are deltas since the previous delivery and reset to
	// zero once the listener callback returns.
	AliveCountChange    int
	NotAliveCountChange int
	// LastWriter identifies the writer whose transition triggered this
	// delivery.
	LastWriter guid.GUID
}
