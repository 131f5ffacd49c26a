package training

import (
	"math"

	"github.com/segmed/voxelfit/checkpoints"
)

// StopReason records why a fit run left its epoch loop.
type StopReason int

const (
	// StopNone means the run has not terminated yet.
	StopNone StopReason = iota
	// StopPatience means the patience budget ran out.
	StopPatience
	// StopEpochLimit means the configured epoch cap was reached.
	StopEpochLimit
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "running"
	case StopPatience:
		return "patience exhausted"
	case StopEpochLimit:
		return "epoch limit reached"
	default:
		return "unknown"
	}
}

// TrainingState is the bookkeeping a fit run accumulates. It is owned
// and mutated exclusively by the Fitter; the executor and reporter only
// read from it. A fresh state is created for every Fit call, so nothing
// leaks between independent runs except the model's restored weights.
type TrainingState struct {
	// Epoch is the current epoch index while running; after Fit returns
	// it holds the best epoch.
	Epoch int
	// Dropout is the current annealed dropout probability. It stays in
	// [FinalDropout, InitialDropout] for the whole run.
	Dropout float64
	// BestTrainLoss and BestValLoss are running minima, display-only for
	// the former, improvement-defining for the latter.
	BestTrainLoss float64
	BestValLoss   float64
	// BestLosses tracks the running minimum of each validation
	// diagnostic term (every validation term after the primary loss).
	BestLosses []float64
	// BestMetrics tracks the running maximum of each metric term.
	BestMetrics []float64
	// NoImprovement counts consecutive epochs without a validation-loss
	// improvement.
	NoImprovement int
	// BestEpoch is the epoch that produced BestValLoss.
	BestEpoch int
	// Best is the weight and optimizer snapshot from BestEpoch. It is a
	// value copy and never aliases the live model.
	Best *checkpoints.Snapshot
	// Stop records why the run terminated.
	Stop StopReason
}

func newTrainingState(diagCount, metricCount int, dropout float64) *TrainingState {
	st := &TrainingState{
		Dropout:       dropout,
		BestTrainLoss: math.Inf(1),
		BestValLoss:   math.Inf(1),
		BestLosses:    make([]float64, diagCount),
		BestMetrics:   make([]float64, metricCount),
	}
	for i := range st.BestLosses {
		st.BestLosses[i] = math.Inf(1)
	}
	for i := range st.BestMetrics {
		st.BestMetrics[i] = math.Inf(-1)
	}
	return st
}
