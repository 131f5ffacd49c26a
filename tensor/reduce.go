package tensor

// Sum reduces the tensor to a scalar by adding all elements.
func Sum(t *Tensor) *Tensor {
	total := 0.0
	for _, v := range t.data {
		total += v
	}
	out := FromScalar(total)
	attach(out, func(grad *Tensor, grads map[*Tensor]*Tensor) {
		g := Full(grad.data[0], t.shape...)
		accumulate(grads, t, g)
	}, t)
	return out
}

// Mean reduces the tensor to a scalar by averaging all elements.
func Mean(t *Tensor) *Tensor {
	n := float64(len(t.data))
	total := 0.0
	for _, v := range t.data {
		total += v
	}
	out := FromScalar(total / n)
	attach(out, func(grad *Tensor, grads map[*Tensor]*Tensor) {
		g := Full(grad.data[0]/n, t.shape...)
		accumulate(grads, t, g)
	}, t)
	return out
}
