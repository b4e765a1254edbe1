package domain

import "errors"

type EngineState int

const (
	StateLoading EngineState = iota
	StateActive
	StateEmpty
	StatePaused
	StateDestroyed
)

var engineStateNames = map[EngineState]string{
	StateLoading:   "loading",
	StateActive:    "active",
	StateEmpty:     "empty",
	StatePaused:    "paused",
	StateDestroyed: "destroyed",
}

func (s EngineState) String() string {
	if name, ok := engineStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// AllEngineStates lists every state in declaration order
func AllEngineStates() []EngineState {
	return []EngineState{StateLoading, StateActive, StateEmpty, StatePaused, StateDestroyed}
}

var (
	ErrAdNotFound      = errors.New("ad not found in pool")
	ErrEngineDestroyed = errors.New("engine destroyed")
)
