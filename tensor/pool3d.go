package tensor

import "fmt"

// MaxPool3D applies non-overlapping max pooling with a cubic window of
// the given size over a [batch, channels, d, h, w] tensor. The spatial
// dimensions must be divisible by size.
func MaxPool3D(input *Tensor, size int) (*Tensor, error) {
	if len(input.shape) != 5 {
		return nil, fmt.Errorf("MaxPool3D expects input rank 5, got shape %v", input.shape)
	}
	if size <= 0 {
		return nil, fmt.Errorf("MaxPool3D window must be positive, got %d", size)
	}
	inD, inH, inW := input.shape[2], input.shape[3], input.shape[4]
	if inD%size != 0 || inH%size != 0 || inW%size != 0 {
		return nil, fmt.Errorf("MaxPool3D window %d does not divide volume %dx%dx%d", size, inD, inH, inW)
	}
	batch, channels := input.shape[0], input.shape[1]
	outD, outH, outW := inD/size, inH/size, inW/size

	out := Zeros(batch, channels, outD, outH, outW)
	argmax := make([]int, len(out.data))
	outIdx := 0
	for n := 0; n < batch; n++ {
		for c := 0; c < channels; c++ {
			for od := 0; od < outD; od++ {
				for oh := 0; oh < outH; oh++ {
					for ow := 0; ow < outW; ow++ {
						best := 0
						first := true
						var bestVal float64
						for kd := 0; kd < size; kd++ {
							for kh := 0; kh < size; kh++ {
								for kw := 0; kw < size; kw++ {
									id := od*size + kd
									ih := oh*size + kh
									iw := ow*size + kw
									idx := ((((n*channels+c)*inD+id)*inH+ih)*inW + iw)
									if first || input.data[idx] > bestVal {
										bestVal = input.data[idx]
										best = idx
										first = false
									}
								}
							}
						}
						out.data[outIdx] = bestVal
						argmax[outIdx] = best
						outIdx++
					}
				}
			}
		}
	}

	attach(out, func(grad *Tensor, grads map[*Tensor]*Tensor) {
		g := Zeros(input.shape...)
		for i, src := range argmax {
			g.data[src] += grad.data[i]
		}
		accumulate(grads, input, g)
	}, input)
	return out, nil
}

// UpsampleNearest3D resizes the spatial dimensions of a
// [batch, channels, d, h, w] tensor to the requested size using
// nearest-neighbor lookup. Used to match skip-connection sizes on the
// expanding path when pooling is enabled.
func UpsampleNearest3D(input *Tensor, outD, outH, outW int) (*Tensor, error) {
	if len(input.shape) != 5 {
		return nil, fmt.Errorf("UpsampleNearest3D expects input rank 5, got shape %v", input.shape)
	}
	if outD <= 0 || outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("UpsampleNearest3D target size %dx%dx%d is invalid", outD, outH, outW)
	}
	batch, channels := input.shape[0], input.shape[1]
	inD, inH, inW := input.shape[2], input.shape[3], input.shape[4]

	out := Zeros(batch, channels, outD, outH, outW)
	source := make([]int, len(out.data))
	outIdx := 0
	for n := 0; n < batch; n++ {
		for c := 0; c < channels; c++ {
			for od := 0; od < outD; od++ {
				id := od * inD / outD
				for oh := 0; oh < outH; oh++ {
					ih := oh * inH / outH
					for ow := 0; ow < outW; ow++ {
						iw := ow * inW / outW
						idx := ((((n*channels+c)*inD+id)*inH+ih)*inW + iw)
						out.data[outIdx] = input.data[idx]
						source[outIdx] = idx
						outIdx++
					}
				}
			}
		}
	}

	attach(out, func(grad *Tensor, grads map[*Tensor]*Tensor) {
		g := Zeros(input.shape...)
		for i, src := range source {
			g.data[src] += grad.data[i]
		}
		accumulate(grads, input, g)
	}, input)
	return out, nil
}
