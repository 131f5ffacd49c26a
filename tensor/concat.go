package tensor

import (
	"errors"
	"fmt"
)

// Concat joins tensors along dim. All inputs must share rank and agree
// on every dimension except dim.
func Concat(dim int, tensors ...*Tensor) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, errors.New("Concat requires at least one tensor")
	}
	first := tensors[0]
	if dim < 0 || dim >= len(first.shape) {
		return nil, fmt.Errorf("Concat dim %d out of range for rank %d", dim, len(first.shape))
	}
	outShape := first.Shape()
	for _, t := range tensors[1:] {
		if len(t.shape) != len(first.shape) {
			return nil, fmt.Errorf("Concat rank mismatch: %v vs %v", first.shape, t.shape)
		}
		for i := range t.shape {
			if i == dim {
				continue
			}
			if t.shape[i] != first.shape[i] {
				return nil, fmt.Errorf("Concat shape mismatch along dim %d: %v vs %v", i, first.shape, t.shape)
			}
		}
		outShape[dim] += t.shape[dim]
	}

	outer := 1
	for i := 0; i < dim; i++ {
		outer *= first.shape[i]
	}
	inner := 1
	for i := dim + 1; i < len(first.shape); i++ {
		inner *= first.shape[i]
	}

	out := Zeros(outShape...)
	outChunk := outShape[dim] * inner
	offset := 0
	chunks := make([]int, len(tensors))
	for ti, t := range tensors {
		chunk := t.shape[dim] * inner
		chunks[ti] = chunk
		for o := 0; o < outer; o++ {
			copy(out.data[o*outChunk+offset:o*outChunk+offset+chunk], t.data[o*chunk:(o+1)*chunk])
		}
		offset += chunk
	}

	inputs := append([]*Tensor(nil), tensors...)
	attach(out, func(grad *Tensor, grads map[*Tensor]*Tensor) {
		off := 0
		for ti, t := range inputs {
			chunk := chunks[ti]
			if t.requiresGrad {
				g := Zeros(t.shape...)
				for o := 0; o < outer; o++ {
					copy(g.data[o*chunk:(o+1)*chunk], grad.data[o*outChunk+off:o*outChunk+off+chunk])
				}
				accumulate(grads, t, g)
			}
			off += chunk
		}
	}, inputs...)
	return out, nil
}
