package models

// TimerPhase is one stage of the bidding countdown.
type TimerPhase string

const (
	PhaseInitial    TimerPhase = "initial"
	PhaseSubsequent TimerPhase = "subsequent"
	PhaseFirstCall  TimerPhase = "firstCall"
	PhaseSecondCall TimerPhase = "secondCall"
	PhaseFinalCall  TimerPhase = "finalCall"
	PhaseComplete   TimerPhase = "complete"
)

// TimerState is the transient countdown of an in-progress round. It is never persisted.
type TimerState struct {
	Phase       TimerPhase `json:"phase"`
	CurrentTime int        `json:"current_time"` // seconds remaining in the phase
	IsRunning   bool       `json:"is_running"`
	Stalled     bool       `json:"stalled"`
	StallReason string     `json:"stall_reason,omitempty"`
}

