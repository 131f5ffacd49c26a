package training

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/segmed/voxelfit/tensor"
)

// epochStats aggregates one full pass over a loader. termMeans and
// metricMeans are only populated in evaluation mode.
type epochStats struct {
	meanLoss    float64
	termMeans   []float64
	metricMeans []float64
}

// runBatches drives one pass over the loader. In training mode each
// batch runs zero-grad, forward, weighted train-term sum, backward, and
// one optimizer step. In evaluation mode each validation term is
// evaluated separately (weighted values retained for reporting) and the
// metrics are computed; the caller is responsible for disabling
// gradient tracking around the pass. Either way, the scalar readback of
// the batch loss is the host synchronization point and the graph is
// released afterwards to bound peak memory.
func (f *Fitter) runBatches(epoch int, loader *DataLoader, train bool) (*epochStats, error) {
	loader.Reset()
	total := loader.Len()
	if total == 0 {
		return nil, errors.New("data loader produced no batches")
	}

	valTerms := f.objectives.ValTerms()
	metricTerms := f.objectives.Metrics()
	losses := make([]float64, 0, total)
	termSums := make([]float64, len(valTerms))
	metricSums := make([]float64, len(metricTerms))

	for batchIdx := 0; ; batchIdx++ {
		batch, err := loader.Next()
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}

		var lossValue float64
		if train {
			lossValue, err = f.trainBatch(batch)
		} else {
			lossValue, err = f.evalBatch(batch, valTerms, metricTerms, termSums, metricSums)
		}
		if err != nil {
			return nil, err
		}
		if math.IsNaN(lossValue) || math.IsInf(lossValue, 0) {
			return nil, &DivergedTrainingError{Epoch: epoch, Batch: batchIdx, Loss: lossValue}
		}

		losses = append(losses, lossValue)
		if f.config.Verbose {
			f.reporter.Batch(epoch, batchIdx, total, lossValue, stat.Mean(losses, nil), train)
		}
	}

	stats := &epochStats{meanLoss: stat.Mean(losses, nil)}
	if !train {
		n := 1 / float64(len(losses))
		floats.Scale(n, termSums)
		floats.Scale(n, metricSums)
		stats.termMeans = termSums
		stats.metricMeans = metricSums
	}
	return stats, nil
}

// trainBatch runs forward, the weighted sum of train terms, backward,
// and one optimizer step, returning the batch's aggregate loss.
func (f *Fitter) trainBatch(batch *Batch) (float64, error) {
	f.optimizer.ZeroGrad()

	predictions, err := f.model.Forward(batch.Input)
	if err != nil {
		return 0, fmt.Errorf("forward pass failed: %v", err)
	}

	var aggregate *tensor.Tensor
	for _, term := range f.objectives.TrainTerms() {
		value, err := f.evalTerm(term, predictions, batch.Target)
		if err != nil {
			return 0, err
		}
		weighted := tensor.Scaled(value, term.Weight)
		if aggregate == nil {
			aggregate = weighted
			continue
		}
		aggregate, err = tensor.Add(aggregate, weighted)
		if err != nil {
			return 0, err
		}
	}

	if err := aggregate.Backward(); err != nil {
		return 0, fmt.Errorf("backward pass failed: %v", err)
	}
	if err := f.optimizer.Step(); err != nil {
		return 0, fmt.Errorf("optimizer step failed: %v", err)
	}

	lossValue, err := aggregate.Item()
	if err != nil {
		return 0, err
	}
	aggregate.FreeGraph()
	return lossValue, nil
}

// evalBatch computes every validation term and metric for one batch,
// accumulating their weighted values into the provided sums, and
// returns the batch's aggregate validation loss.
func (f *Fitter) evalBatch(batch *Batch, valTerms []ObjectiveTerm, metricTerms []MetricTerm, termSums, metricSums []float64) (float64, error) {
	predictions, err := f.model.Forward(batch.Input)
	if err != nil {
		return 0, fmt.Errorf("validation forward pass failed: %v", err)
	}

	aggregate := 0.0
	for i, term := range valTerms {
		value, err := f.evalTerm(term, predictions, batch.Target)
		if err != nil {
			return 0, err
		}
		// No graph in evaluation mode, so plain float math suffices.
		v, err := value.Item()
		if err != nil {
			return 0, err
		}
		weighted := term.Weight * v
		termSums[i] += weighted
		aggregate += weighted
	}

	for i, metric := range metricTerms {
		v, err := metric.Fn(predictions, batch.Target)
		if err != nil {
			return 0, fmt.Errorf("metric %q failed: %v", metric.Name, err)
		}
		metricSums[i] += v
	}
	return aggregate, nil
}

// evalTerm runs one objective term and enforces its scalar contract.
func (f *Fitter) evalTerm(term ObjectiveTerm, predictions, targets *tensor.Tensor) (*tensor.Tensor, error) {
	value, err := term.Fn(predictions, targets)
	if err != nil {
		return nil, fmt.Errorf("objective %q failed: %v", term.Name, err)
	}
	if value.Numel() != 1 {
		return nil, &ShapeMismatchError{Term: term.Name, Want: []int{1}, Got: value.Shape()}
	}
	return value, nil
}
