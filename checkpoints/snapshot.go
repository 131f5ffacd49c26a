// Package checkpoints captures and restores model and optimizer state.
// Snapshots are value copies: mutating the live network after a capture
// never changes a snapshot, which is what makes best-state tracking
// safe. JSON persistence follows the same record layout.
package checkpoints

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/segmed/voxelfit/tensor"
)

// WeightTensor is one named parameter with its shape and data.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// OptimizerTensor is one optimizer buffer (momentum, first/second
// moment) with its shape and data.
type OptimizerTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// OptimizerState captures an optimizer's internal buffers and step
// counter.
type OptimizerState struct {
	Type         string            `json:"type"`
	Step         int               `json:"step"`
	LearningRate float64           `json:"learning_rate"`
	Slots        []OptimizerTensor `json:"slots,omitempty"`
}

// Clone returns a deep copy of the optimizer state.
func (os *OptimizerState) Clone() *OptimizerState {
	if os == nil {
		return nil
	}
	out := &OptimizerState{Type: os.Type, Step: os.Step, LearningRate: os.LearningRate}
	for _, slot := range os.Slots {
		out.Slots = append(out.Slots, OptimizerTensor{
			Name:  slot.Name,
			Shape: append([]int(nil), slot.Shape...),
			Data:  append([]float64(nil), slot.Data...),
		})
	}
	return out
}

// Snapshot is a self-contained copy of model weights and, optionally,
// optimizer state taken at one point in training.
type Snapshot struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Weights   []WeightTensor  `json:"weights"`
	Optimizer *OptimizerState `json:"optimizer,omitempty"`
}

// Capture builds a snapshot from a named parameter map (as produced by a
// model's state dict) and an optional optimizer state. All tensor data
// is copied; the snapshot never aliases live storage.
func Capture(state map[string]*tensor.Tensor, opt *OptimizerState) *Snapshot {
	names := make([]string, 0, len(state))
	for name := range state {
		names = append(names, name)
	}
	sort.Strings(names)

	snap := &Snapshot{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Optimizer: opt.Clone(),
	}
	for _, name := range names {
		t := state[name]
		if t == nil {
			continue
		}
		snap.Weights = append(snap.Weights, WeightTensor{
			Name:  name,
			Shape: t.Shape(),
			Data:  t.Data(),
		})
	}
	return snap
}

// WeightMap rebuilds the snapshot's weights as fresh tensors keyed by
// name, suitable for a model's state restore.
func (s *Snapshot) WeightMap() (map[string]*tensor.Tensor, error) {
	out := make(map[string]*tensor.Tensor, len(s.Weights))
	for _, w := range s.Weights {
		t, err := tensor.New(w.Data, w.Shape...)
		if err != nil {
			return nil, fmt.Errorf("rebuilding weight %s: %v", w.Name, err)
		}
		out[w.Name] = t
	}
	return out, nil
}
