package training

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/segmed/voxelfit/tensor"
)

// PSNR returns a metric computing peak signal-to-noise ratio in
// decibels for signals bounded by maxValue. Higher is better; a perfect
// reconstruction yields +Inf.
func PSNR(maxValue float64) MetricFunc {
	return func(predictions, targets *tensor.Tensor) (float64, error) {
		mse, err := meanSquaredError(predictions, targets)
		if err != nil {
			return 0, err
		}
		if mse == 0 {
			return math.Inf(1), nil
		}
		return 20*math.Log10(maxValue) - 10*math.Log10(mse), nil
	}
}

// RSquared computes the coefficient of determination between
// predictions and targets. Higher is better, 1.0 is a perfect fit.
func RSquared(predictions, targets *tensor.Tensor) (float64, error) {
	if predictions.Numel() != targets.Numel() {
		return 0, fmt.Errorf("metric requires matching element counts: %d vs %d", predictions.Numel(), targets.Numel())
	}
	return stat.RSquaredFrom(predictions.Data(), targets.Data(), nil), nil
}

func meanSquaredError(predictions, targets *tensor.Tensor) (float64, error) {
	if predictions.Numel() != targets.Numel() {
		return 0, fmt.Errorf("metric requires matching element counts: %d vs %d", predictions.Numel(), targets.Numel())
	}
	diff := make([]float64, predictions.Numel())
	floats.SubTo(diff, predictions.Data(), targets.Data())
	return floats.Dot(diff, diff) / float64(len(diff)), nil
}
