package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/segmed/voxelfit/checkpoints"
	"github.com/segmed/voxelfit/nn"
	"github.com/segmed/voxelfit/tensor"
	"github.com/segmed/voxelfit/training"
)

type trainOptions struct {
	epochs       int
	patience     int
	strict       bool
	batchSize    int
	filters      []int
	pooling      bool
	dropout      float64
	finalDropout float64
	annealRate   float64
	lr           float64
	seed         int64
	samples      int
	valSamples   int
	volumeSize   int
	noiseSigma   float64
	quiet        bool
	noColor      bool
	checkpoint   string
}

var trainOpts trainOptions

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a denoising autoencoder on synthetic volumes",
	Long: `Generates synthetic noisy/clean volume pairs and trains a 3D
autoencoder to reconstruct the clean signal. Training stops when the
validation loss stops improving within the patience budget, and the
model is restored to its best-epoch weights at the end.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrain(trainOpts)
	},
}

func init() {
	f := trainCmd.Flags()
	f.IntVar(&trainOpts.epochs, "epochs", 100, "maximum number of epochs")
	f.IntVar(&trainOpts.patience, "patience", 10, "base early-stopping patience")
	f.BoolVar(&trainOpts.strict, "strict-patience", false, "stop as soon as the stale-epoch count reaches the threshold")
	f.IntVar(&trainOpts.batchSize, "batch-size", 4, "mini-batch size")
	f.IntSliceVar(&trainOpts.filters, "filters", []int{1, 8, 16}, "encoder feature widths plus bottleneck")
	f.BoolVar(&trainOpts.pooling, "pooling", true, "halve volumes between encoder stages")
	f.Float64Var(&trainOpts.dropout, "dropout", 0.3, "initial channel dropout rate")
	f.Float64Var(&trainOpts.finalDropout, "final-dropout", 0.0, "dropout floor after annealing")
	f.Float64Var(&trainOpts.annealRate, "anneal-rate", 0.01, "dropout decrease per epoch")
	f.Float64Var(&trainOpts.lr, "lr", 1e-3, "Adam learning rate")
	f.Int64Var(&trainOpts.seed, "seed", 42, "random seed")
	f.IntVar(&trainOpts.samples, "samples", 64, "training sample count")
	f.IntVar(&trainOpts.valSamples, "val-samples", 16, "validation sample count")
	f.IntVar(&trainOpts.volumeSize, "volume-size", 16, "cubic volume edge length")
	f.Float64Var(&trainOpts.noiseSigma, "noise", 0.1, "additive noise standard deviation")
	f.BoolVar(&trainOpts.quiet, "quiet", false, "suppress per-batch and per-epoch progress")
	f.BoolVar(&trainOpts.noColor, "no-color", false, "disable color in progress output")
	f.StringVar(&trainOpts.checkpoint, "checkpoint", "", "path to write the best-state checkpoint")
}

func runTrain(opts trainOptions) error {
	if len(opts.filters) < 2 {
		return fmt.Errorf("need at least two filter widths, got %v", opts.filters)
	}
	if opts.filters[0] != 1 {
		return fmt.Errorf("first filter width must match the single input channel, got %d", opts.filters[0])
	}
	stages := len(opts.filters) - 1
	if opts.pooling {
		div := 1 << stages
		if opts.volumeSize%div != 0 {
			return fmt.Errorf("volume size %d must be divisible by %d for %d pooling stages", opts.volumeSize, div, stages)
		}
	}

	tensor.SetSeed(opts.seed)
	logrus.WithFields(logrus.Fields{
		"epochs":   opts.epochs,
		"patience": opts.patience,
		"filters":  opts.filters,
		"pooling":  opts.pooling,
		"dropout":  opts.dropout,
		"lr":       opts.lr,
		"seed":     opts.seed,
	}).Info("starting training run")

	trainLoader, err := denoisingLoader(opts, opts.samples, true)
	if err != nil {
		return fmt.Errorf("building training data: %v", err)
	}
	valLoader, err := denoisingLoader(opts, opts.valSamples, false)
	if err != nil {
		return fmt.Errorf("building validation data: %v", err)
	}

	model, err := nn.NewAutoencoder(opts.filters, 1, opts.pooling, opts.dropout)
	if err != nil {
		return fmt.Errorf("building model: %v", err)
	}
	paramCount := 0
	for _, p := range model.Parameters() {
		paramCount += p.Numel()
	}
	logrus.WithField("parameters", paramCount).Debug("model built")

	objectives, err := training.NewObjectives(
		[]training.ObjectiveTerm{{Name: "mse", Weight: 1, Fn: training.MSE}},
		[]training.ObjectiveTerm{
			{Name: "mse", Weight: 1, Fn: training.MSE},
			{Name: "l1", Weight: 0.2, Fn: training.L1},
		},
		[]training.MetricTerm{{Name: "psnr", Fn: training.PSNR(1.0)}},
	)
	if err != nil {
		return fmt.Errorf("building objectives: %v", err)
	}

	optimizer := training.NewAdam(model.Parameters(), opts.lr, 0, 0, 0)
	fitter, err := training.NewFitter(model, optimizer, objectives, training.FitConfig{
		Epochs:         opts.epochs,
		Patience:       opts.patience,
		StrictPatience: opts.strict,
		Verbose:        !opts.quiet,
		InitialDropout: opts.dropout,
		FinalDropout:   opts.finalDropout,
		AnnealRate:     opts.annealRate,
		Color:          !opts.noColor,
	})
	if err != nil {
		return fmt.Errorf("configuring trainer: %v", err)
	}

	state, err := fitter.Fit(trainLoader, valLoader)
	if err != nil {
		return fmt.Errorf("training failed: %v", err)
	}
	logrus.WithFields(logrus.Fields{
		"best_epoch":    state.BestEpoch,
		"best_val_loss": state.BestValLoss,
		"stop_reason":   state.Stop.String(),
	}).Info("training complete")

	if opts.checkpoint != "" {
		ckpt := &checkpoints.Checkpoint{
			Snapshot: state.Best,
			Training: checkpoints.TrainingRecord{
				Epoch:         state.Epoch,
				BestEpoch:     state.BestEpoch,
				BestTrainLoss: state.BestTrainLoss,
				BestValLoss:   state.BestValLoss,
				Dropout:       state.Dropout,
			},
			Metadata: checkpoints.Metadata{
				Description: "synthetic denoising autoencoder",
			},
		}
		if err := checkpoints.Save(ckpt, opts.checkpoint); err != nil {
			return fmt.Errorf("saving checkpoint: %v", err)
		}
		logrus.WithField("path", opts.checkpoint).Info("checkpoint written")
	}
	return nil
}

// denoisingLoader builds a loader over synthetic noisy/clean pairs.
func denoisingLoader(opts trainOptions, count int, shuffle bool) (*training.DataLoader, error) {
	inputs := make([]*tensor.Tensor, count)
	targets := make([]*tensor.Tensor, count)
	for i := range inputs {
		clean := syntheticVolume(opts.volumeSize)
		noisy, err := addNoise(clean, opts.noiseSigma)
		if err != nil {
			return nil, err
		}
		inputs[i] = noisy
		targets[i] = clean
	}
	dataset, err := training.NewSimpleDataset(inputs, targets)
	if err != nil {
		return nil, err
	}
	return training.NewDataLoader(dataset, opts.batchSize, shuffle)
}
