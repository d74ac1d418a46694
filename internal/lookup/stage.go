package lookup

// Stage is a step of the lookup state machine:
// Received → Validating → Resolving → Locating → Routing → Completed,
// or Failed from any of them.
type Stage int

const (
	StageReceived Stage = iota
	StageValidating
	StageResolving
	StageLocating
	StageRouting
	StageCompleted
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StageValidating:
		return "validating"
	case StageResolving:
		return "resolving"
	case StageLocating:
		return "locating"
	case StageRouting:
		return "routing"
	case StageCompleted:
		return "completed"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}
