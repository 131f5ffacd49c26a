package training

import "github.com/segmed/voxelfit/tensor"

// MSE is the mean squared error loss, differentiable through the tensor
// graph.
func MSE(predictions, targets *tensor.Tensor) (*tensor.Tensor, error) {
	diff, err := tensor.Sub(predictions, targets)
	if err != nil {
		return nil, err
	}
	squared, err := tensor.Mul(diff, diff)
	if err != nil {
		return nil, err
	}
	return tensor.Mean(squared), nil
}

// L1 is the mean absolute error loss, differentiable through the tensor
// graph. Useful as a validation diagnostic next to MSE: it is less
// dominated by outlier voxels.
func L1(predictions, targets *tensor.Tensor) (*tensor.Tensor, error) {
	diff, err := tensor.Sub(predictions, targets)
	if err != nil {
		return nil, err
	}
	return tensor.Mean(tensor.Abs(diff)), nil
}
