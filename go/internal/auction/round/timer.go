package round

import (
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/tourney-auction/go/internal/models"
)

// Durations configures how long each bidding phase lasts.
type Durations struct {
	Initial    time.Duration `yaml:"initial"`
	Subsequent time.Duration `yaml:"subsequent"`
	FirstCall  time.Duration `yaml:"first_call"`
	SecondCall time.Duration `yaml:"second_call"`
	FinalCall  time.Duration `yaml:"final_call"`
}

// TickLength is how much time one Tick takes off the clock. The coordinator must tick at
// this interval for the countdown to track wall time.
const TickLength = time.Second

// Validate checks that every phase lasts a positive, whole number of ticks.
func (d Durations) Validate() error {
	var errs []error
	for _, p := range phaseOrder[:len(phaseOrder)-1] {
		dur := d.duration(p)
		switch {
		case dur <= 0:
			errs = append(errs, fmt.Errorf("%s phase must be positive, got %s", p, dur))
		case dur%TickLength != 0:
			errs = append(errs, fmt.Errorf("%s phase must be a whole number of %s, got %s", p, TickLength, dur))
		}
	}
	return errors.Join(errs...)
}

// DefaultDurations returns the standard phase lengths.
func DefaultDurations() Durations {
	return Durations{
		Initial:    30 * time.Second,
		Subsequent: 15 * time.Second,
		FirstCall:  5 * time.Second,
		SecondCall: 5 * time.Second,
		FinalCall:  5 * time.Second,
	}
}

var phaseOrder = []models.TimerPhase{
	models.PhaseInitial,
	models.PhaseSubsequent,
	models.PhaseFirstCall,
	models.PhaseSecondCall,
	models.PhaseFinalCall,
	models.PhaseComplete,
}

func (d Durations) duration(p models.TimerPhase) time.Duration {
	switch p {
	case models.PhaseInitial:
		return d.Initial
	case models.PhaseSubsequent:
		return d.Subsequent
	case models.PhaseFirstCall:
		return d.FirstCall
	case models.PhaseSecondCall:
		return d.SecondCall
	case models.PhaseFinalCall:
		return d.FinalCall
	}
	return 0
}

// seconds is the phase length in ticks, rounded down.
func (d Durations) seconds(p models.TimerPhase) int {
	return int(d.duration(p) / TickLength)
}

// Timer is the per-round countdown. It only moves forward, except that a new highest bid
// sends it back to the start of the subsequent phase.
type Timer struct {
	state     models.TimerState
	durations Durations
}

// NewTimer starts a running timer in the initial phase.
func NewTimer(d Durations) *Timer {
	t := &Timer{durations: d}
	t.enter(models.PhaseInitial)
	t.state.IsRunning = true
	return t
}

// RestoreTimer rebuilds a timer for a round found in progress after a restart: subsequent if
// the round already has bids, initial otherwise.
func RestoreTimer(d Durations, hasBids bool) *Timer {
	t := NewTimer(d)
	if hasBids {
		t.enter(models.PhaseSubsequent)
	}
	return t
}

// Tick advances the timer by one TickLength and reports whether the phase changed.
// A stopped, paused or completed timer does not move.
func (t *Timer) Tick() bool {
	if !t.state.IsRunning || t.state.Stalled || t.Complete() {
		return false
	}
	if t.state.CurrentTime > 0 {
		t.state.CurrentTime--
	}
	if t.state.CurrentTime > 0 {
		return false
	}
	t.enter(next(t.state.Phase))
	return true
}

// enter switches to p, skipping phases configured with no time.
func (t *Timer) enter(p models.TimerPhase) {
	for p != models.PhaseComplete && t.durations.seconds(p) <= 0 {
		p = next(p)
	}
	t.state.Phase = p
	t.state.CurrentTime = t.durations.seconds(p)
	if p == models.PhaseComplete {
		t.state.IsRunning = false
	}
}

func next(p models.TimerPhase) models.TimerPhase {
	for i, q := range phaseOrder {
		if q == p && i+1 < len(phaseOrder) {
			return phaseOrder[i+1]
		}
	}
	return models.PhaseComplete
}

// ResetForBid restarts the subsequent phase with its full duration. A paused timer stays paused.
func (t *Timer) ResetForBid() {
	running := t.state.IsRunning
	t.enter(models.PhaseSubsequent)
	t.state.IsRunning = running && !t.Complete()
}

// Pause stops the countdown without changing the phase.
func (t *Timer) Pause() {
	t.state.IsRunning = false
}

// Resume restarts a paused or stalled timer.
func (t *Timer) Resume() {
	t.state.Stalled = false
	t.state.StallReason = ""
	if !t.Complete() {
		t.state.IsRunning = true
	}
}

// Stall stops the timer after a failed persistence step.
func (t *Timer) Stall(reason string) {
	t.state.IsRunning = false
	t.state.Stalled = true
	t.state.StallReason = reason
}

// Complete reports whether the timer has run out.
func (t *Timer) Complete() bool {
	return t.state.Phase == models.PhaseComplete
}

// Paused reports whether the countdown is halted short of completion.
func (t *Timer) Paused() bool {
	return !t.state.IsRunning && !t.Complete()
}

// State returns a copy of the current timer state.
func (t *Timer) State() models.TimerState {
	return t.state
}
