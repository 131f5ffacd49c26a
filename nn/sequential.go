package nn

import (
	"fmt"

	"github.com/segmed/voxelfit/tensor"
)

// Sequential chains modules, feeding each one's output to the next.
type Sequential struct {
	modules []Module
}

// NewSequential creates a Sequential from the given modules in order.
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{modules: append([]Module(nil), modules...)}
}

// Forward runs the input through every module in order.
func (s *Sequential) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	out := input
	var err error
	for i, m := range s.modules {
		out, err = m.Forward(out)
		if err != nil {
			return nil, fmt.Errorf("sequential stage %d: %v", i, err)
		}
	}
	return out, nil
}

// Parameters returns the concatenated parameters of all modules.
func (s *Sequential) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, m := range s.modules {
		params = append(params, m.Parameters()...)
	}
	return params
}

// Train switches every module to training mode.
func (s *Sequential) Train() {
	for _, m := range s.modules {
		m.Train()
	}
}

// Eval switches every module to evaluation mode.
func (s *Sequential) Eval() {
	for _, m := range s.modules {
		m.Eval()
	}
}

// IsTraining reports the mode of the first module; all modules move
// together through Train and Eval.
func (s *Sequential) IsTraining() bool {
	if len(s.modules) == 0 {
		return false
	}
	return s.modules[0].IsTraining()
}

// StateDict stores the state of every stateful stage, keyed by index.
func (s *Sequential) StateDict(prefix string, dst map[string]*tensor.Tensor) {
	for i, m := range s.modules {
		if sm, ok := m.(Stateful); ok {
			sm.StateDict(joinPrefix(prefix, fmt.Sprintf("%d", i)), dst)
		}
	}
}

// LoadState restores the state of every stateful stage.
func (s *Sequential) LoadState(prefix string, src map[string]*tensor.Tensor) error {
	for i, m := range s.modules {
		if sm, ok := m.(Stateful); ok {
			if err := sm.LoadState(joinPrefix(prefix, fmt.Sprintf("%d", i)), src); err != nil {
				return err
			}
		}
	}
	return nil
}
