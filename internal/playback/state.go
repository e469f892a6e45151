package playback

import "fmt"

// State is the canonical playback state of a session.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StatePlaying
	StatePaused
	StateEnded
	StateError
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event drives the state machine.
type Event int

const (
	EvAttach Event = iota
	EvMetadata
	EvPlay
	EvPause
	EvEnded
	EvFault
	EvDetach
)

func (e Event) String() string {
	switch e {
	case EvAttach:
		return "attach"
	case EvMetadata:
		return "metadata"
	case EvPlay:
		return "play"
	case EvPause:
		return "pause"
	case EvEnded:
		return "ended"
	case EvFault:
		return "fault"
	case EvDetach:
		return "detach"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Effect is a set of side effects attached to a transition.
type Effect uint8

const (
	// EffectStartPending runs the pending seek/autoplay.
	EffectStartPending Effect = 1 << iota
	// EffectArmCheckpoint starts the checkpoint timer.
	EffectArmCheckpoint
	// EffectDisarmCheckpoint stops the checkpoint timer.
	EffectDisarmCheckpoint
	// EffectFinalCheckpoint writes the final position.
	EffectFinalCheckpoint
	// EffectReportError surfaces the fault to the caller.
	EffectReportError
)

// Has reports whether every effect in f is set.
func (e Effect) Has(f Effect) bool {
	return e&f == f
}

// Transition is a single allowed edge of the playback state machine.
type Transition struct {
	From    State
	To      State
	Event   Event
	Effects Effect
}

var transitionsTable = []Transition{
	// Load path
	{From: StateIdle, To: StateLoading, Event: EvAttach},
	{From: StateLoading, To: StateReady, Event: EvMetadata, Effects: EffectStartPending},

	// Play / pause
	{From: StateReady, To: StatePlaying, Event: EvPlay, Effects: EffectArmCheckpoint},
	{From: StatePaused, To: StatePlaying, Event: EvPlay, Effects: EffectArmCheckpoint},
	{From: StateEnded, To: StatePlaying, Event: EvPlay, Effects: EffectArmCheckpoint},
	{From: StatePlaying, To: StatePaused, Event: EvPause, Effects: EffectDisarmCheckpoint},

	// End of media
	{From: StatePlaying, To: StateEnded, Event: EvEnded, Effects: EffectDisarmCheckpoint | EffectFinalCheckpoint},
	{From: StatePaused, To: StateEnded, Event: EvEnded, Effects: EffectDisarmCheckpoint | EffectFinalCheckpoint},

	// Adapter faults
	{From: StateLoading, To: StateError, Event: EvFault, Effects: EffectDisarmCheckpoint | EffectReportError},
	{From: StateReady, To: StateError, Event: EvFault, Effects: EffectDisarmCheckpoint | EffectReportError},
	{From: StatePlaying, To: StateError, Event: EvFault, Effects: EffectDisarmCheckpoint | EffectReportError},
	{From: StatePaused, To: StateError, Event: EvFault, Effects: EffectDisarmCheckpoint | EffectReportError},
	{From: StateEnded, To: StateError, Event: EvFault, Effects: EffectDisarmCheckpoint | EffectReportError},

	// Detach (episode switch, unmount)
	{From: StateIdle, To: StateIdle, Event: EvDetach},
	{From: StateLoading, To: StateIdle, Event: EvDetach, Effects: EffectDisarmCheckpoint},
	{From: StateReady, To: StateIdle, Event: EvDetach, Effects: EffectDisarmCheckpoint},
	{From: StatePlaying, To: StateIdle, Event: EvDetach, Effects: EffectDisarmCheckpoint},
	{From: StatePaused, To: StateIdle, Event: EvDetach, Effects: EffectDisarmCheckpoint},
	{From: StateEnded, To: StateIdle, Event: EvDetach, Effects: EffectDisarmCheckpoint},
	{From: StateError, To: StateIdle, Event: EvDetach, Effects: EffectDisarmCheckpoint},
}

// TransitionFor returns the allowed transition for a given state+event.
func TransitionFor(from State, ev Event) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}

// Machine holds the current state and the seeking overlay.
type Machine struct {
	state   State
	seeking bool
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// Seeking reports whether the seeking overlay is active.
func (m *Machine) Seeking() bool {
	return m.seeking
}

// Fire applies ev. An illegal event leaves the machine untouched.
func (m *Machine) Fire(ev Event) (Transition, error) {
	tr, ok := TransitionFor(m.state, ev)
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s in state %s", ErrIllegalTransition, ev, m.state)
	}
	m.state = tr.To
	if tr.To == StateIdle || tr.To == StateError {
		m.seeking = false
	}
	return tr, nil
}

// Can reports whether ev is allowed in the current state.
func (m *Machine) Can(ev Event) bool {
	_, ok := TransitionFor(m.state, ev)
	return ok
}

// BeginSeek raises the seeking overlay. The underlying state, and with it the
// play/pause flag, is preserved.
func (m *Machine) BeginSeek() error {
	switch m.state {
	case StateReady, StatePlaying, StatePaused, StateEnded:
		m.seeking = true
		return nil
	default:
		return fmt.Errorf("%w: seek in state %s", ErrIllegalTransition, m.state)
	}
}

// EndSeek drops the seeking overlay.
func (m *Machine) EndSeek() {
	m.seeking = false
}
