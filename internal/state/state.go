// Package state classifies captured terminal-pane text into an agent's
// logical state and records structural anomalies it cannot confidently
// classify.
package state

import "time"

// AgentState is the classifier's output enum.
type AgentState int

const (
	Unknown AgentState = iota
	Initializing
	Idle
	Busy
	Writing
	Error
	Quit
)

func (s AgentState) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	case Writing:
		return "writing"
	case Error:
		return "error"
	case Quit:
		return "quit"
	default:
		return "unknown"
	}
}

// BoxType classifies the content of a well-formed prompt box.
type BoxType int

const (
	BoxUnknown BoxType = iota
	BoxWelcome
	BoxInput
	BoxMessage
	BoxInfo
	BoxDialog
	BoxEmpty
)

func (b BoxType) String() string {
	switch b {
	case BoxWelcome:
		return "welcome"
	case BoxInput:
		return "input"
	case BoxMessage:
		return "message"
	case BoxInfo:
		return "info"
	case BoxDialog:
		return "dialog"
	case BoxEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Status is the per-agent monitor record (spec.md §3 AgentStatus).
type Status struct {
	State                AgentState
	LastStateUpdate      time.Time
	InitializationTime   time.Time
	PendingMessages      int
	MessagesSentWhileBusy int

	observed bool
}
