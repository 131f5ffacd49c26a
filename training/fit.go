package training

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/segmed/voxelfit/checkpoints"
	"github.com/segmed/voxelfit/tensor"
)

// FitConfig is the configuration surface of a fit run.
type FitConfig struct {
	// Epochs is the hard cap on epoch iterations.
	Epochs int
	// Patience is the base budget of consecutive non-improving epochs.
	// The effective threshold at any epoch is
	// floor(Patience / (1 - dropout)) with the current annealed dropout,
	// recomputed every epoch.
	Patience int
	// Verbose enables batch and epoch progress reporting.
	Verbose bool

	// InitialDropout, FinalDropout, and AnnealRate define the dropout
	// schedule: the rate starts at InitialDropout and decays by
	// AnnealRate per epoch, clamped at FinalDropout.
	InitialDropout float64
	FinalDropout   float64
	AnnealRate     float64

	// StrictPatience stops as soon as the no-improvement count reaches
	// or exceeds the threshold. The default compares by exact equality,
	// reproducing the historical behavior: because annealing moves the
	// threshold between epochs, the count can step over it without ever
	// being equal, in which case only the epoch cap stops the run.
	StrictPatience bool

	// Color enables ANSI color in reports.
	Color bool
	// Output receives all reporting; defaults to os.Stdout.
	Output io.Writer
}

func (c *FitConfig) validate() error {
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if c.Patience <= 0 {
		return fmt.Errorf("patience must be positive, got %d", c.Patience)
	}
	if c.InitialDropout < 0 || c.InitialDropout >= 1 {
		return fmt.Errorf("initial dropout must be in [0, 1), got %v", c.InitialDropout)
	}
	if c.FinalDropout < 0 || c.FinalDropout > c.InitialDropout {
		return fmt.Errorf("final dropout must be in [0, initial dropout], got %v", c.FinalDropout)
	}
	if c.AnnealRate < 0 {
		return fmt.Errorf("anneal rate must be non-negative, got %v", c.AnnealRate)
	}
	return nil
}

// Fitter owns one model/optimizer/objectives triple and trains the
// model in place. Control flows strictly downward: Fitter drives the
// batch executor and the reporter; neither calls back up.
type Fitter struct {
	model      Model
	optimizer  Optimizer
	objectives *Objectives
	config     FitConfig
	reporter   *ProgressPrinter
}

// NewFitter validates the configuration and builds a Fitter.
func NewFitter(model Model, optimizer Optimizer, objectives *Objectives, config FitConfig) (*Fitter, error) {
	if model == nil {
		return nil, errors.New("fitter requires a model")
	}
	if optimizer == nil {
		return nil, errors.New("fitter requires an optimizer")
	}
	if objectives == nil {
		return nil, errors.New("fitter requires objectives")
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}
	return &Fitter{
		model:      model,
		optimizer:  optimizer,
		objectives: objectives,
		config:     config,
		reporter:   NewProgressPrinter(config.Output, config.Color, objectives.DiagnosticNames(), objectives.MetricNames()),
	}, nil
}

// Fit trains the model over trainLoader, validating over valLoader,
// until the patience budget runs out or the epoch cap is hit. On return
// the model's parameters are restored to the snapshot from the best
// epoch, and the returned TrainingState describes the run. The model is
// left exactly as diverged training found it only on error; best-state
// snapshots are never taken from a partially failed epoch.
func (f *Fitter) Fit(trainLoader, valLoader *DataLoader) (*TrainingState, error) {
	if trainLoader == nil || valLoader == nil {
		return nil, errors.New("fit requires train and validation loaders")
	}

	st := newTrainingState(len(f.objectives.DiagnosticNames()), len(f.objectives.MetricNames()), f.config.InitialDropout)
	f.applyDropout(st.Dropout)
	st.Best = f.capture()
	start := time.Now()
	reason := StopEpochLimit

	for epoch := 0; epoch < f.config.Epochs; epoch++ {
		st.Epoch = epoch
		f.reporter.StartEpoch()

		f.model.Train()
		trainStats, err := f.runBatches(epoch, trainLoader, true)
		if err != nil {
			return st, err
		}
		trainImproved := trainStats.meanLoss < st.BestTrainLoss
		if trainImproved {
			st.BestTrainLoss = trainStats.meanLoss
		}

		f.model.Eval()
		f.reporter.StartValidation()
		var valStats *epochStats
		err = tensor.NoGrad(func() error {
			var inner error
			valStats, inner = f.runBatches(epoch, valLoader, false)
			return inner
		})
		if err != nil {
			return st, err
		}

		// Per-term and per-metric bests update independently of the
		// primary loss.
		diagnostics := valStats.termMeans[1:]
		diagBests := make([]bool, len(diagnostics))
		for i, v := range diagnostics {
			if v < st.BestLosses[i] {
				st.BestLosses[i] = v
				diagBests[i] = true
			}
		}
		metricBests := make([]bool, len(valStats.metricMeans))
		for i, v := range valStats.metricMeans {
			if v > st.BestMetrics[i] {
				st.BestMetrics[i] = v
				metricBests[i] = true
			}
		}

		valImproved := valStats.meanLoss < st.BestValLoss
		if valImproved {
			st.BestValLoss = valStats.meanLoss
			st.BestEpoch = epoch
			st.Best = f.capture()
			st.NoImprovement = 0
		} else {
			st.NoImprovement++
		}

		// Annealing runs before the patience check, so the threshold
		// below already sees the updated rate.
		if f.config.FinalDropout <= st.Dropout {
			st.Dropout = math.Max(f.config.FinalDropout, st.Dropout-f.config.AnnealRate)
			f.applyDropout(st.Dropout)
		}

		if f.config.Verbose {
			f.reporter.Epoch(EpochSummary{
				Epoch:           epoch,
				TrainLoss:       trainStats.meanLoss,
				TrainImproved:   trainImproved,
				ValLoss:         valStats.meanLoss,
				ValImproved:     valImproved,
				Diagnostics:     diagnostics,
				DiagnosticBests: diagBests,
				Metrics:         valStats.metricMeans,
				MetricBests:     metricBests,
				Dropout:         st.Dropout,
			})
		}

		threshold := int(float64(f.config.Patience) / (1 - st.Dropout))
		if st.NoImprovement == threshold || (f.config.StrictPatience && st.NoImprovement >= threshold) {
			reason = StopPatience
			break
		}
	}

	st.Stop = reason
	st.Epoch = st.BestEpoch
	if err := f.restoreBest(st); err != nil {
		return st, err
	}
	if f.config.Verbose {
		f.reporter.Finish(st.BestEpoch+1, st.BestValLoss, st.BestEpoch, time.Since(start))
	}
	return st, nil
}

// capture deep-snapshots the model weights and optimizer buffers.
func (f *Fitter) capture() *checkpoints.Snapshot {
	state := make(map[string]*tensor.Tensor)
	f.model.StateDict("", state)
	return checkpoints.Capture(state, f.optimizer.Snapshot())
}

// restoreBest loads the best snapshot's weights back into the live
// model. The optimizer snapshot is retained on the state but not pushed
// into the live optimizer.
func (f *Fitter) restoreBest(st *TrainingState) error {
	weights, err := st.Best.WeightMap()
	if err != nil {
		return fmt.Errorf("rebuilding best snapshot: %v", err)
	}
	if err := f.model.LoadState("", weights); err != nil {
		return fmt.Errorf("restoring best weights: %v", err)
	}
	return nil
}

func (f *Fitter) applyDropout(rate float64) {
	if annealer, ok := f.model.(DropoutAnnealer); ok {
		annealer.SetDropoutRate(rate)
	}
}
