package coordinator

import "fmt"

// State is a stage of the per-document state machine.
type State int

const (
	StateIdle State = iota
	StateSegmenting
	StateExtracting
	StateLinking
	StateAggregating
	StateDone
	// StateError is reached only when the input cannot be read.
	StateError
)

func (s State) String() string {
	names := [...]string{
		"idle",
		"segmenting",
		"extracting",
		"linking",
		"aggregating",
		"done",
		"error",
	}
	if s >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// next lists the states each state may move to. Stages that are switched
// off are skipped, so a state may jump ahead but never back.
var next = map[State][]State{
	StateIdle:        {StateSegmenting, StateError},
	StateSegmenting:  {StateExtracting, StateLinking, StateAggregating, StateDone},
	StateExtracting:  {StateLinking, StateAggregating, StateDone},
	StateLinking:     {StateAggregating, StateDone},
	StateAggregating: {StateDone},
}

// machine tracks the state of one ParseDocument call.
type machine struct {
	path    string
	state   State
	observe func(path string, s State)
}

func (m *machine) to(s State) {
	for _, allowed := range next[m.state] {
		if allowed == s {
			m.state = s
			if m.observe != nil {
				m.observe(m.path, s)
			}
			return
		}
	}
	panic(fmt.Sprintf("coordinator: illegal transition %s -> %s", m.state, s))
}
