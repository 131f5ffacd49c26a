package tensor

// ReLU returns max(0, t) element-wise.
func ReLU(t *Tensor) *Tensor {
	out := Zeros(t.shape...)
	for i, v := range t.data {
		if v > 0 {
			out.data[i] = v
		}
	}
	attach(out, func(grad *Tensor, grads map[*Tensor]*Tensor) {
		g := Zeros(t.shape...)
		for i := range g.data {
			if t.data[i] > 0 {
				g.data[i] = grad.data[i]
			}
		}
		accumulate(grads, t, g)
	}, t)
	return out
}
