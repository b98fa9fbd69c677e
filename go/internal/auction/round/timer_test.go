package round

import (
	"testing"
	"time"

	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/stretchr/testify/assert"
)

func shortDurations() Durations {
	return Durations{
		Initial:    3 * time.Second,
		Subsequent: 2 * time.Second,
		FirstCall:  1 * time.Second,
		SecondCall: 1 * time.Second,
		FinalCall:  1 * time.Second,
	}
}

func TestTimerWalksEveryPhase(t *testing.T) {
	timer := NewTimer(shortDurations())

	var phases []models.TimerPhase
	for i := 0; i < 20 && !timer.Complete(); i++ {
		if timer.Tick() {
			phases = append(phases, timer.State().Phase)
		}
	}

	assert.Equal(t, []models.TimerPhase{
		models.PhaseSubsequent,
		models.PhaseFirstCall,
		models.PhaseSecondCall,
		models.PhaseFinalCall,
		models.PhaseComplete,
	}, phases)
	assert.False(t, timer.State().IsRunning)
	assert.False(t, timer.Tick(), "completed timer does not move")
}

func TestTimerTotalLength(t *testing.T) {
	timer := NewTimer(shortDurations())
	ticks := 0
	for !timer.Complete() {
		timer.Tick()
		ticks++
	}
	assert.Equal(t, 3+2+1+1+1, ticks)
}

func TestResetForBidRestartsSubsequent(t *testing.T) {
	timer := NewTimer(shortDurations())
	for timer.State().Phase != models.PhaseFinalCall {
		timer.Tick()
	}

	timer.ResetForBid()
	st := timer.State()
	assert.Equal(t, models.PhaseSubsequent, st.Phase)
	assert.Equal(t, 2, st.CurrentTime)
	assert.True(t, st.IsRunning)
}

func TestPauseResumeAndStall(t *testing.T) {
	timer := NewTimer(shortDurations())
	timer.Pause()
	assert.False(t, timer.Tick())
	assert.Equal(t, 3, timer.State().CurrentTime)
	assert.True(t, timer.Paused())

	timer.ResetForBid()
	assert.False(t, timer.State().IsRunning, "a bid does not unpause")

	timer.Resume()
	timer.Stall("write failed")
	assert.False(t, timer.Tick())
	assert.True(t, timer.State().Stalled)

	timer.Resume()
	assert.False(t, timer.State().Stalled)
	assert.Empty(t, timer.State().StallReason)
	assert.False(t, timer.Tick())
	assert.Equal(t, 1, timer.State().CurrentTime)
}

func TestZeroLengthPhasesAreSkipped(t *testing.T) {
	timer := NewTimer(Durations{Initial: time.Second, FinalCall: time.Second})
	assert.True(t, timer.Tick())
	assert.Equal(t, models.PhaseFinalCall, timer.State().Phase)

	restored := RestoreTimer(shortDurations(), true)
	assert.Equal(t, models.PhaseSubsequent, restored.State().Phase)
	assert.True(t, restored.State().IsRunning)
}

func TestDurationsValidate(t *testing.T) {
	assert.NoError(t, DefaultDurations().Validate())
	assert.NoError(t, shortDurations().Validate())

	d := shortDurations()
	d.SecondCall = 0
	d.FinalCall = 2500 * time.Millisecond
	err := d.Validate()
	assert.ErrorContains(t, err, "secondCall phase must be positive")
	assert.ErrorContains(t, err, "finalCall phase must be a whole number")
}
