package training

import (
	"math"
	"testing"

	"github.com/segmed/voxelfit/tensor"
)

func TestPSNR(t *testing.T) {
	pred := tensor.MustNew([]float64{0.5, 0.5, 0.5, 0.5}, 4)
	target := tensor.MustNew([]float64{0.6, 0.4, 0.6, 0.4}, 4)

	got, err := PSNR(1.0)(pred, target)
	if err != nil {
		t.Fatalf("PSNR failed: %v", err)
	}
	// mse = 0.01, psnr = -10*log10(0.01) = 20.
	if math.Abs(got-20) > 1e-9 {
		t.Errorf("PSNR = %v, want 20", got)
	}
}

func TestPSNRPerfectReconstruction(t *testing.T) {
	pred := tensor.MustNew([]float64{1, 2, 3}, 3)
	got, err := PSNR(1.0)(pred, pred.Clone())
	if err != nil {
		t.Fatalf("PSNR failed: %v", err)
	}
	if !math.IsInf(got, 1) {
		t.Errorf("PSNR of identical tensors = %v, want +Inf", got)
	}
}

func TestPSNRShapeMismatch(t *testing.T) {
	if _, err := PSNR(1.0)(tensor.Ones(4), tensor.Ones(3)); err == nil {
		t.Error("expected shape mismatch error")
	}
}

func TestRSquared(t *testing.T) {
	target := tensor.MustNew([]float64{1, 2, 3, 4, 5}, 5)

	perfect, err := RSquared(target.Clone(), target)
	if err != nil {
		t.Fatalf("RSquared failed: %v", err)
	}
	if math.Abs(perfect-1) > 1e-12 {
		t.Errorf("perfect fit R2 = %v, want 1", perfect)
	}

	// Predicting the mean everywhere scores zero.
	mean := tensor.Full(3, 5)
	zero, err := RSquared(mean, target)
	if err != nil {
		t.Fatalf("RSquared failed: %v", err)
	}
	if math.Abs(zero) > 1e-12 {
		t.Errorf("mean predictor R2 = %v, want 0", zero)
	}
}
