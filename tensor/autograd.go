package tensor

import "errors"

// gradEnabled gates graph construction. The training loop runs
// single-threaded, so a plain package variable is sufficient; validation
// passes disable it for their whole duration.
var gradEnabled = true

// GradEnabled reports whether operations currently record backward
// closures.
func GradEnabled() bool {
	return gradEnabled
}

// SetGradEnabled switches graph recording on or off and returns the
// previous setting.
func SetGradEnabled(enabled bool) bool {
	prev := gradEnabled
	gradEnabled = enabled
	return prev
}

// NoGrad runs fn with gradient tracking disabled, restoring the previous
// setting afterwards. Forward passes inside fn build no graph and cannot
// mutate parameters through Backward.
func NoGrad(fn func() error) error {
	prev := SetGradEnabled(false)
	defer SetGradEnabled(prev)
	return fn()
}

// Backward computes gradients of t with respect to every reachable
// tensor that requires them. t must be a scalar produced with gradient
// tracking enabled.
func (t *Tensor) Backward() error {
	if t == nil {
		return errors.New("backward on nil tensor")
	}
	if !t.requiresGrad {
		return errors.New("backward on tensor that does not require grad")
	}
	if len(t.data) != 1 {
		return errors.New("backward requires a scalar tensor")
	}
	order := topo(t)
	grads := map[*Tensor]*Tensor{}
	grads[t] = Ones(t.shape...)
	for i := len(order) - 1; i >= 0; i-- {
		current := order[i]
		grad := grads[current]
		if grad == nil {
			continue
		}
		if current.requiresGrad && current.node == nil {
			// Leaf: accumulate into the persistent gradient.
			if current.grad == nil {
				current.grad = grad.Clone()
			} else {
				addInPlace(current.grad, grad)
			}
		}
		if current.node != nil {
			current.node.backward(grad, grads)
		}
	}
	return nil
}

// topo returns the graph reachable from root in topological order,
// parents before children.
func topo(root *Tensor) []*Tensor {
	visited := map[*Tensor]bool{}
	var order []*Tensor
	var visit func(*Tensor)
	visit = func(t *Tensor) {
		if t == nil || visited[t] {
			return
		}
		visited[t] = true
		for _, parent := range t.parents {
			visit(parent)
		}
		order = append(order, t)
	}
	visit(root)
	return order
}

// accumulate adds value into the pending gradient for target.
func accumulate(grads map[*Tensor]*Tensor, target, value *Tensor) {
	if target == nil || value == nil {
		return
	}
	if existing, ok := grads[target]; ok {
		addInPlace(existing, value)
	} else {
		grads[target] = value.Clone()
	}
}

func addInPlace(dst, src *Tensor) {
	if err := ensureSameShape(dst, src); err != nil {
		panic(err)
	}
	for i := range dst.data {
		dst.data[i] += src.data[i]
	}
}

// attach wires out into the graph below its parents when tracking is on.
// parents lists only the inputs that require grad.
func attach(out *Tensor, backward func(grad *Tensor, grads map[*Tensor]*Tensor), parents ...*Tensor) {
	tracked := parents[:0]
	for _, p := range parents {
		if p != nil && p.requiresGrad {
			tracked = append(tracked, p)
		}
	}
	if !gradEnabled || len(tracked) == 0 {
		return
	}
	out.requiresGrad = true
	out.parents = append([]*Tensor(nil), tracked...)
	out.node = &node{backward: backward}
}
