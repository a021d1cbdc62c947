package extract

// State is a step of an extraction run.
type State int

// Extraction states.
const (
	StateIdle State = iota
	StateNavigating
	StateWaitingForContent
	StateExtracting
	StatePaginating
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNavigating:
		return "navigating"
	case StateWaitingForContent:
		return "waiting_for_content"
	case StateExtracting:
		return "extracting"
	case StatePaginating:
		return "paginating"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
