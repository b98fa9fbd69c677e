package coordinator

import "github.com/mcdev12/tourney-auction/go/internal/models"

// Metrics records coordinator activity.
type Metrics interface {
	RoundStarted()
	RoundFinished(status models.RoundStatus)
	BidAccepted()
	BidRejected(reason string)
	ConflictRetried()
	RoundStalled()
}

// NoOpMetrics discards everything.
type NoOpMetrics struct{}

func (NoOpMetrics) RoundStarted()                    {}
func (NoOpMetrics) RoundFinished(models.RoundStatus) {}
func (NoOpMetrics) BidAccepted()                     {}
func (NoOpMetrics) BidRejected(string)               {}
func (NoOpMetrics) ConflictRetried()                 {}
func (NoOpMetrics) RoundStalled()                    {}
