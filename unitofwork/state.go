package unitofwork

// State is the lifecycle state of an entity relative to a unit of work.
type State int

const (
	// StateNew entities are not known to the unit of work.
	StateNew State = iota
	// StateManaged entities are tracked and synchronized on commit.
	StateManaged
	// StateDetached entities were managed once and are no longer tracked.
	StateDetached
	// StateDeleted entities are scheduled for removal.
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateManaged:
		return "managed"
	case StateDetached:
		return "detached"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Phase is the commit protocol state of a unit of work.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseComputing
	PhaseOrdering
	PhaseWriting
	PhaseSnapshotting
	// PhaseFailed is entered on any commit error and left only through Reset.
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseComputing:
		return "computing"
	case PhaseOrdering:
		return "ordering"
	case PhaseWriting:
		return "writing"
	case PhaseSnapshotting:
		return "snapshotting"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}
