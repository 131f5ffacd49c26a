package training

import (
	"fmt"
	"math"

	"github.com/segmed/voxelfit/checkpoints"
	"github.com/segmed/voxelfit/tensor"
)

// Optimizer is the parameter-update contract the trainer drives. Beyond
// the usual step/zero-grad pair, optimizers expose their internal
// buffers as a value snapshot so the trainer can retain the state that
// produced the best validation loss.
type Optimizer interface {
	Step() error
	ZeroGrad()
	GetLR() float64
	SetLR(lr float64)
	Snapshot() *checkpoints.OptimizerState
	Restore(state *checkpoints.OptimizerState) error
}

// SGD implements stochastic gradient descent with optional momentum,
// weight decay, and Nesterov acceleration.
type SGD struct {
	params      []*tensor.Tensor
	lr          float64
	momentum    float64
	weightDecay float64
	nesterov    bool
	velocities  [][]float64
	step        int
}

// NewSGD creates an SGD optimizer over the given parameters.
func NewSGD(params []*tensor.Tensor, lr, momentum, weightDecay float64, nesterov bool) *SGD {
	return &SGD{
		params:      params,
		lr:          lr,
		momentum:    momentum,
		weightDecay: weightDecay,
		nesterov:    nesterov,
		velocities:  make([][]float64, len(params)),
	}
}

// Step applies one update to every parameter that has a gradient.
func (o *SGD) Step() error {
	o.step++
	for i, p := range o.params {
		if p == nil || p.Grad() == nil {
			continue
		}
		grad := p.Grad().Data()
		values := p.Raw()
		if o.weightDecay > 0 {
			for j := range grad {
				grad[j] += o.weightDecay * values[j]
			}
		}
		if o.momentum > 0 {
			if o.velocities[i] == nil {
				o.velocities[i] = make([]float64, len(grad))
			}
			vel := o.velocities[i]
			for j := range vel {
				vel[j] = o.momentum*vel[j] + grad[j]
			}
			if o.nesterov {
				for j := range grad {
					grad[j] += o.momentum * vel[j]
				}
			} else {
				copy(grad, vel)
			}
		}
		for j := range values {
			values[j] -= o.lr * grad[j]
		}
	}
	return nil
}

// ZeroGrad clears accumulated gradients on every parameter.
func (o *SGD) ZeroGrad() {
	for _, p := range o.params {
		if p != nil {
			p.ZeroGrad()
		}
	}
}

// GetLR returns the current learning rate.
func (o *SGD) GetLR() float64 { return o.lr }

// SetLR replaces the learning rate.
func (o *SGD) SetLR(lr float64) { o.lr = lr }

// Snapshot copies the momentum buffers and step counter.
func (o *SGD) Snapshot() *checkpoints.OptimizerState {
	state := &checkpoints.OptimizerState{Type: "sgd", Step: o.step, LearningRate: o.lr}
	for i, vel := range o.velocities {
		if vel == nil {
			continue
		}
		state.Slots = append(state.Slots, checkpoints.OptimizerTensor{
			Name:  fmt.Sprintf("velocity_%d", i),
			Shape: o.params[i].Shape(),
			Data:  append([]float64(nil), vel...),
		})
	}
	return state
}

// Restore replaces the momentum buffers and step counter from a
// snapshot taken on an optimizer over the same parameter list.
func (o *SGD) Restore(state *checkpoints.OptimizerState) error {
	if state == nil {
		return fmt.Errorf("nil optimizer state")
	}
	if state.Type != "sgd" {
		return fmt.Errorf("cannot restore %q state into SGD", state.Type)
	}
	o.step = state.Step
	o.lr = state.LearningRate
	o.velocities = make([][]float64, len(o.params))
	for _, slot := range state.Slots {
		var idx int
		if _, err := fmt.Sscanf(slot.Name, "velocity_%d", &idx); err != nil {
			return fmt.Errorf("unrecognized SGD slot %q", slot.Name)
		}
		if idx < 0 || idx >= len(o.params) {
			return fmt.Errorf("SGD slot %q out of range", slot.Name)
		}
		o.velocities[idx] = append([]float64(nil), slot.Data...)
	}
	return nil
}

// Adam implements the Adam optimizer with bias-corrected first and
// second moment estimates.
type Adam struct {
	params []*tensor.Tensor
	lr     float64
	beta1  float64
	beta2  float64
	eps    float64
	m      [][]float64
	v      [][]float64
	step   int
}

// NewAdam creates an Adam optimizer over the given parameters. Zero
// values for beta1, beta2, and eps select the usual defaults
// (0.9, 0.999, 1e-8).
func NewAdam(params []*tensor.Tensor, lr, beta1, beta2, eps float64) *Adam {
	if beta1 <= 0 {
		beta1 = 0.9
	}
	if beta2 <= 0 {
		beta2 = 0.999
	}
	if eps <= 0 {
		eps = 1e-8
	}
	return &Adam{
		params: params,
		lr:     lr,
		beta1:  beta1,
		beta2:  beta2,
		eps:    eps,
		m:      make([][]float64, len(params)),
		v:      make([][]float64, len(params)),
	}
}

// Step applies one update to every parameter that has a gradient.
func (o *Adam) Step() error {
	o.step++
	correction1 := 1 - math.Pow(o.beta1, float64(o.step))
	correction2 := 1 - math.Pow(o.beta2, float64(o.step))
	for i, p := range o.params {
		if p == nil || p.Grad() == nil {
			continue
		}
		grad := p.Grad().Data()
		values := p.Raw()
		if o.m[i] == nil {
			o.m[i] = make([]float64, len(grad))
			o.v[i] = make([]float64, len(grad))
		}
		m, v := o.m[i], o.v[i]
		for j, g := range grad {
			m[j] = o.beta1*m[j] + (1-o.beta1)*g
			v[j] = o.beta2*v[j] + (1-o.beta2)*g*g
			mHat := m[j] / correction1
			vHat := v[j] / correction2
			values[j] -= o.lr * mHat / (math.Sqrt(vHat) + o.eps)
		}
	}
	return nil
}

// ZeroGrad clears accumulated gradients on every parameter.
func (o *Adam) ZeroGrad() {
	for _, p := range o.params {
		if p != nil {
			p.ZeroGrad()
		}
	}
}

// GetLR returns the current learning rate.
func (o *Adam) GetLR() float64 { return o.lr }

// SetLR replaces the learning rate.
func (o *Adam) SetLR(lr float64) { o.lr = lr }

// Snapshot copies the moment buffers and step counter.
func (o *Adam) Snapshot() *checkpoints.OptimizerState {
	state := &checkpoints.OptimizerState{Type: "adam", Step: o.step, LearningRate: o.lr}
	for i := range o.params {
		if o.m[i] == nil {
			continue
		}
		shape := o.params[i].Shape()
		state.Slots = append(state.Slots,
			checkpoints.OptimizerTensor{
				Name:  fmt.Sprintf("m_%d", i),
				Shape: shape,
				Data:  append([]float64(nil), o.m[i]...),
			},
			checkpoints.OptimizerTensor{
				Name:  fmt.Sprintf("v_%d", i),
				Shape: shape,
				Data:  append([]float64(nil), o.v[i]...),
			})
	}
	return state
}

// Restore replaces the moment buffers and step counter from a snapshot
// taken on an optimizer over the same parameter list.
func (o *Adam) Restore(state *checkpoints.OptimizerState) error {
	if state == nil {
		return fmt.Errorf("nil optimizer state")
	}
	if state.Type != "adam" {
		return fmt.Errorf("cannot restore %q state into Adam", state.Type)
	}
	o.step = state.Step
	o.lr = state.LearningRate
	o.m = make([][]float64, len(o.params))
	o.v = make([][]float64, len(o.params))
	for _, slot := range state.Slots {
		var idx int
		var target *[][]float64
		switch {
		case matchSlot(slot.Name, "m_%d", &idx):
			target = &o.m
		case matchSlot(slot.Name, "v_%d", &idx):
			target = &o.v
		default:
			return fmt.Errorf("unrecognized Adam slot %q", slot.Name)
		}
		if idx < 0 || idx >= len(o.params) {
			return fmt.Errorf("Adam slot %q out of range", slot.Name)
		}
		(*target)[idx] = append([]float64(nil), slot.Data...)
	}
	return nil
}

func matchSlot(name, format string, idx *int) bool {
	_, err := fmt.Sscanf(name, format, idx)
	return err == nil
}
