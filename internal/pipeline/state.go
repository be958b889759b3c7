package pipeline

// State is a capture task's position in the pipeline. States only move forward.
type State int32

const (
	StateIdle State = iota
	StateCaptured
	StatePersisted
	StateGenerating
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCaptured:
		return "captured"
	case StatePersisted:
		return "persisted"
	case StateGenerating:
		return "generating"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// IDPolicy decides which record ID is handed to the viewer when the
// generator reports its own confirmed record.
type IDPolicy int

const (
	// PreferConfirmed hands off the ID reported by the generator.
	PreferConfirmed IDPolicy = iota
	// PreferPersisted hands off the ID of the row the pipeline inserted.
	PreferPersisted
)

func (p IDPolicy) String() string {
	if p == PreferPersisted {
		return "persisted"
	}
	return "confirmed"
}

// ParseIDPolicy accepts "confirmed" or "persisted"; empty means confirmed.
func ParseIDPolicy(s string) (IDPolicy, bool) {
	switch s {
	case "", "confirmed":
		return PreferConfirmed, true
	case "persisted":
		return PreferPersisted, true
	default:
		return PreferConfirmed, false
	}
}
