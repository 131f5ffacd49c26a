// Package nn provides neural network layers over the tensor package,
// composed into modules with a shared train/eval mode switch and
// snapshotable parameter state.
package nn

import (
	"errors"
	"fmt"

	"github.com/segmed/voxelfit/tensor"
)

// Module is the contract every layer and composed network satisfies.
type Module interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
	Train()
	Eval()
	IsTraining() bool
}

// Stateful extends Module with named parameter snapshot and restore.
// StateDict stores deep copies under keys below prefix; LoadState copies
// matching entries back into the live parameters.
type Stateful interface {
	Module
	StateDict(prefix string, dst map[string]*tensor.Tensor)
	LoadState(prefix string, src map[string]*tensor.Tensor) error
}

// StateDictOf captures a module's full named state as deep copies.
func StateDictOf(m Module) (map[string]*tensor.Tensor, error) {
	if m == nil {
		return nil, errors.New("StateDictOf requires a non-nil module")
	}
	state := make(map[string]*tensor.Tensor)
	if sm, ok := m.(Stateful); ok {
		sm.StateDict("", state)
		return state, nil
	}
	for i, p := range m.Parameters() {
		if p == nil {
			continue
		}
		state[fmt.Sprintf("param_%d", i)] = p.Clone()
	}
	return state, nil
}

// LoadStateDict restores a module's parameters from a state captured by
// StateDictOf.
func LoadStateDict(m Module, state map[string]*tensor.Tensor) error {
	if m == nil {
		return errors.New("LoadStateDict requires a non-nil module")
	}
	if sm, ok := m.(Stateful); ok {
		return sm.LoadState("", state)
	}
	for i, p := range m.Parameters() {
		if p == nil {
			continue
		}
		key := fmt.Sprintf("param_%d", i)
		src, ok := state[key]
		if !ok {
			return fmt.Errorf("state is missing parameter %s", key)
		}
		if err := tensor.CopyInto(p, src); err != nil {
			return fmt.Errorf("restoring %s: %v", key, err)
		}
	}
	return nil
}

func joinPrefix(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
