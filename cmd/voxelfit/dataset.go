package main

import (
	"math"

	"github.com/segmed/voxelfit/tensor"
)

// syntheticVolume renders a [1, size, size, size] volume holding a few
// soft Gaussian blobs on an empty background, values in [0, 1].
func syntheticVolume(size int) *tensor.Tensor {
	const blobs = 3
	params := tensor.Uniform(0, 1, blobs, 4).Raw()

	data := make([]float64, size*size*size)
	s := float64(size)
	for b := 0; b < blobs; b++ {
		cd := params[b*4] * s
		ch := params[b*4+1] * s
		cw := params[b*4+2] * s
		sigma := (0.05 + 0.1*params[b*4+3]) * s

		idx := 0
		for d := 0; d < size; d++ {
			for h := 0; h < size; h++ {
				for w := 0; w < size; w++ {
					dd := float64(d) - cd
					dh := float64(h) - ch
					dw := float64(w) - cw
					dist2 := dd*dd + dh*dh + dw*dw
					data[idx] += math.Exp(-dist2 / (2 * sigma * sigma))
					idx++
				}
			}
		}
	}
	for i, v := range data {
		if v > 1 {
			data[i] = 1
		}
	}
	return tensor.MustNew(data, 1, size, size, size)
}

// addNoise returns clean plus zero-mean Gaussian noise, clamped back to
// [0, 1].
func addNoise(clean *tensor.Tensor, sigma float64) (*tensor.Tensor, error) {
	noise := tensor.Scaled(tensor.Randn(clean.Shape()...), sigma)
	noisy, err := tensor.Add(clean, noise)
	if err != nil {
		return nil, err
	}
	values := noisy.Raw()
	for i, v := range values {
		if v < 0 {
			values[i] = 0
		} else if v > 1 {
			values[i] = 1
		}
	}
	return noisy, nil
}
