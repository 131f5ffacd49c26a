package tensor

// Add returns a+b element-wise. Shapes must match exactly.
func Add(a, b *Tensor) (*Tensor, error) {
	if err := ensureSameShape(a, b); err != nil {
		return nil, err
	}
	out := Zeros(a.shape...)
	for i := range out.data {
		out.data[i] = a.data[i] + b.data[i]
	}
	attach(out, func(grad *Tensor, grads map[*Tensor]*Tensor) {
		if a.requiresGrad {
			accumulate(grads, a, grad)
		}
		if b.requiresGrad {
			accumulate(grads, b, grad)
		}
	}, a, b)
	return out, nil
}

// Sub returns a-b element-wise. Shapes must match exactly.
func Sub(a, b *Tensor) (*Tensor, error) {
	if err := ensureSameShape(a, b); err != nil {
		return nil, err
	}
	out := Zeros(a.shape...)
	for i := range out.data {
		out.data[i] = a.data[i] - b.data[i]
	}
	attach(out, func(grad *Tensor, grads map[*Tensor]*Tensor) {
		if a.requiresGrad {
			accumulate(grads, a, grad)
		}
		if b.requiresGrad {
			neg := grad.Clone()
			neg.Scale(-1)
			accumulate(grads, b, neg)
		}
	}, a, b)
	return out, nil
}

// Mul returns a*b element-wise. Shapes must match exactly.
func Mul(a, b *Tensor) (*Tensor, error) {
	if err := ensureSameShape(a, b); err != nil {
		return nil, err
	}
	out := Zeros(a.shape...)
	for i := range out.data {
		out.data[i] = a.data[i] * b.data[i]
	}
	attach(out, func(grad *Tensor, grads map[*Tensor]*Tensor) {
		if a.requiresGrad {
			ga := Zeros(a.shape...)
			for i := range ga.data {
				ga.data[i] = grad.data[i] * b.data[i]
			}
			accumulate(grads, a, ga)
		}
		if b.requiresGrad {
			gb := Zeros(b.shape...)
			for i := range gb.data {
				gb.data[i] = grad.data[i] * a.data[i]
			}
			accumulate(grads, b, gb)
		}
	}, a, b)
	return out, nil
}

// Div returns a/b element-wise. Shapes must match exactly.
func Div(a, b *Tensor) (*Tensor, error) {
	if err := ensureSameShape(a, b); err != nil {
		return nil, err
	}
	out := Zeros(a.shape...)
	for i := range out.data {
		out.data[i] = a.data[i] / b.data[i]
	}
	attach(out, func(grad *Tensor, grads map[*Tensor]*Tensor) {
		if a.requiresGrad {
			ga := Zeros(a.shape...)
			for i := range ga.data {
				ga.data[i] = grad.data[i] / b.data[i]
			}
			accumulate(grads, a, ga)
		}
		if b.requiresGrad {
			gb := Zeros(b.shape...)
			for i := range gb.data {
				gb.data[i] = -grad.data[i] * a.data[i] / (b.data[i] * b.data[i])
			}
			accumulate(grads, b, gb)
		}
	}, a, b)
	return out, nil
}

// Scaled returns s*t as a new tensor on the graph.
func Scaled(t *Tensor, s float64) *Tensor {
	out := Zeros(t.shape...)
	for i := range out.data {
		out.data[i] = s * t.data[i]
	}
	attach(out, func(grad *Tensor, grads map[*Tensor]*Tensor) {
		g := grad.Clone()
		g.Scale(s)
		accumulate(grads, t, g)
	}, t)
	return out
}

// Abs returns |t| element-wise. The gradient at zero is taken as zero.
func Abs(t *Tensor) *Tensor {
	out := Zeros(t.shape...)
	for i := range out.data {
		v := t.data[i]
		if v < 0 {
			v = -v
		}
		out.data[i] = v
	}
	attach(out, func(grad *Tensor, grads map[*Tensor]*Tensor) {
		g := Zeros(t.shape...)
		for i := range g.data {
			switch {
			case t.data[i] > 0:
				g.data[i] = grad.data[i]
			case t.data[i] < 0:
				g.data[i] = -grad.data[i]
			}
		}
		accumulate(grads, t, g)
	}, t)
	return out
}
