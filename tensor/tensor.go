// Package tensor implements a small CPU tensor type with reverse-mode
// automatic differentiation, sized for volumetric convolutional models.
// All values are float64 and live in host memory; the scalar readback
// (Item) and graph release (FreeGraph) calls mark the points where a
// device-backed implementation would synchronize and reclaim scratch
// buffers.
package tensor

import (
	"errors"
	"fmt"
)

// Tensor is a dense n-dimensional array. When gradient tracking is
// enabled, operations record a backward closure so Backward can sweep
// the computation graph in reverse topological order.
type Tensor struct {
	data         []float64
	shape        []int
	strides      []int
	grad         *Tensor
	requiresGrad bool
	node         *node
	parents      []*Tensor
}

// node holds the backward closure attached by a differentiable op.
type node struct {
	backward func(grad *Tensor, grads map[*Tensor]*Tensor)
}

// New creates a tensor from data with the given shape. The data slice is
// copied; the element count must match the shape.
func New(data []float64, shape ...int) (*Tensor, error) {
	if len(shape) == 0 {
		return nil, errors.New("tensor shape is required")
	}
	total := 1
	for _, dim := range shape {
		if dim <= 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, shape)
		}
		total *= dim
	}
	if total != len(data) {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)", len(data), shape, total)
	}
	return &Tensor{
		data:    append([]float64(nil), data...),
		shape:   append([]int(nil), shape...),
		strides: makeStrides(shape),
	}, nil
}

// MustNew is New but panics on error. Intended for literals in tests and
// examples.
func MustNew(data []float64, shape ...int) *Tensor {
	t, err := New(data, shape...)
	if err != nil {
		panic(err)
	}
	return t
}

// Zeros creates a zero-filled tensor with the given shape.
func Zeros(shape ...int) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return MustNew(make([]float64, size), shape...)
}

// Ones creates a one-filled tensor with the given shape.
func Ones(shape ...int) *Tensor {
	return Full(1, shape...)
}

// Full creates a tensor with every element set to value.
func Full(value float64, shape ...int) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	data := make([]float64, size)
	for i := range data {
		data[i] = value
	}
	return MustNew(data, shape...)
}

// FromScalar wraps a single value as a rank-1 tensor of one element.
func FromScalar(value float64) *Tensor {
	return MustNew([]float64{value}, 1)
}

// Clone returns a deep copy of the tensor's values and shape. The copy
// carries no gradient, graph node, or parents.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}
	return &Tensor{
		data:    append([]float64(nil), t.data...),
		shape:   append([]int(nil), t.shape...),
		strides: append([]int(nil), t.strides...),
	}
}

// Shape returns a copy of the tensor's dimensions.
func (t *Tensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

// Numel returns the total number of elements.
func (t *Tensor) Numel() int {
	return len(t.data)
}

// Data returns a copy of the underlying values in row-major order.
func (t *Tensor) Data() []float64 {
	return append([]float64(nil), t.data...)
}

// Raw returns the live backing slice. Mutations through it bypass
// autograd; it exists for optimizers, batch assembly, and state
// restoration, which operate outside the graph.
func (t *Tensor) Raw() []float64 {
	return t.data
}

// SetData overwrites the tensor's values. The slice length must match
// Numel.
func (t *Tensor) SetData(values []float64) error {
	if len(values) != len(t.data) {
		return fmt.Errorf("SetData expects %d values, got %d", len(t.data), len(values))
	}
	copy(t.data, values)
	return nil
}

// CopyInto copies src's values into dst. Shapes must match exactly.
func CopyInto(dst, src *Tensor) error {
	if dst == nil || src == nil {
		return errors.New("CopyInto requires non-nil tensors")
	}
	if err := ensureSameShape(dst, src); err != nil {
		return err
	}
	copy(dst.data, src.data)
	return nil
}

// Item reads a scalar tensor back as a float64. For an accelerator
// backend this is the host synchronization point; here it only checks
// that the tensor holds exactly one element.
func (t *Tensor) Item() (float64, error) {
	if len(t.data) != 1 {
		return 0, fmt.Errorf("Item requires a scalar tensor, got shape %v", t.shape)
	}
	return t.data[0], nil
}

// At returns the element at the given multi-dimensional index.
func (t *Tensor) At(idx ...int) (float64, error) {
	off, err := t.offset(idx)
	if err != nil {
		return 0, err
	}
	return t.data[off], nil
}

// Set writes the element at the given multi-dimensional index.
func (t *Tensor) Set(value float64, idx ...int) error {
	off, err := t.offset(idx)
	if err != nil {
		return err
	}
	t.data[off] = value
	return nil
}

// SetRequiresGrad marks the tensor as a leaf that accumulates gradients.
func (t *Tensor) SetRequiresGrad(v bool) {
	t.requiresGrad = v
}

// RequiresGrad reports whether the tensor participates in autograd.
func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

// Grad returns the accumulated gradient, or nil if none has been
// computed since the last ZeroGrad.
func (t *Tensor) Grad() *Tensor {
	return t.grad
}

// ZeroGrad drops the accumulated gradient.
func (t *Tensor) ZeroGrad() {
	t.grad = nil
}

// FreeGraph detaches the tensor from the computation graph that produced
// it, letting intermediate buffers be collected after a batch. Leaf
// tensors and their gradients are unaffected.
func (t *Tensor) FreeGraph() {
	if t == nil {
		return
	}
	for _, v := range topo(t) {
		v.node = nil
		v.parents = nil
	}
}

// Scale multiplies every element in place. Not recorded on the graph.
func (t *Tensor) Scale(s float64) {
	for i := range t.data {
		t.data[i] *= s
	}
}

// AddScaled adds s*other element-wise in place. Not recorded on the
// graph.
func (t *Tensor) AddScaled(other *Tensor, s float64) error {
	if err := ensureSameShape(t, other); err != nil {
		return err
	}
	for i := range t.data {
		t.data[i] += s * other.data[i]
	}
	return nil
}

func (t *Tensor) offset(idx []int) (int, error) {
	if len(idx) != len(t.shape) {
		return 0, fmt.Errorf("index rank %d does not match tensor rank %d", len(idx), len(t.shape))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			return 0, fmt.Errorf("index %v out of range for shape %v", idx, t.shape)
		}
		off += v * t.strides[i]
	}
	return off, nil
}

func makeStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func ensureSameShape(a, b *Tensor) error {
	if len(a.shape) != len(b.shape) {
		return fmt.Errorf("shape mismatch: %v vs %v", a.shape, b.shape)
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return fmt.Errorf("shape mismatch: %v vs %v", a.shape, b.shape)
		}
	}
	return nil
}
