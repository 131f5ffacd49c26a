package tensor

import "fmt"

// Dropout zeroes each element independently with probability p during
// training and rescales survivors by 1/(1-p). Outside training it is the
// identity.
func Dropout(input *Tensor, p float64, training bool) (*Tensor, error) {
	if p < 0 || p >= 1 {
		return nil, fmt.Errorf("dropout probability must be in [0, 1), got %v", p)
	}
	if !training || p == 0 {
		return identity(input), nil
	}

	scale := 1.0 / (1 - p)
	mask := make([]float64, len(input.data))
	out := Zeros(input.shape...)
	rngLock.Lock()
	for i := range mask {
		if rng.Float64() >= p {
			mask[i] = scale
			out.data[i] = input.data[i] * scale
		}
	}
	rngLock.Unlock()

	attach(out, maskedBackward(input, mask), input)
	return out, nil
}

// Dropout3D zeroes whole channels of a [batch, channels, d, h, w] tensor
// with probability p during training, rescaling surviving channels by
// 1/(1-p). Channel-wise masking regularizes volumetric feature maps
// where neighboring voxels are strongly correlated.
func Dropout3D(input *Tensor, p float64, training bool) (*Tensor, error) {
	if p < 0 || p >= 1 {
		return nil, fmt.Errorf("dropout probability must be in [0, 1), got %v", p)
	}
	if len(input.shape) != 5 {
		return nil, fmt.Errorf("Dropout3D expects shape [batch, channels, depth, height, width], got %v", input.shape)
	}
	if !training || p == 0 {
		return identity(input), nil
	}

	batch, channels := input.shape[0], input.shape[1]
	volume := input.shape[2] * input.shape[3] * input.shape[4]
	scale := 1.0 / (1 - p)
	mask := make([]float64, len(input.data))
	out := Zeros(input.shape...)
	rngLock.Lock()
	for n := 0; n < batch; n++ {
		for c := 0; c < channels; c++ {
			if rng.Float64() < p {
				continue
			}
			base := (n*channels + c) * volume
			for i := base; i < base+volume; i++ {
				mask[i] = scale
				out.data[i] = input.data[i] * scale
			}
		}
	}
	rngLock.Unlock()

	attach(out, maskedBackward(input, mask), input)
	return out, nil
}

// identity clones input and passes gradients straight through.
func identity(input *Tensor) *Tensor {
	out := input.Clone()
	attach(out, func(grad *Tensor, grads map[*Tensor]*Tensor) {
		accumulate(grads, input, grad)
	}, input)
	return out
}

func maskedBackward(input *Tensor, mask []float64) func(grad *Tensor, grads map[*Tensor]*Tensor) {
	return func(grad *Tensor, grads map[*Tensor]*Tensor) {
		g := Zeros(input.shape...)
		for i := range g.data {
			g.data[i] = grad.data[i] * mask[i]
		}
		accumulate(grads, input, g)
	}
}
