// Package training drives supervised training of volumetric models:
// epoch and mini-batch iteration, weighted multi-term objectives,
// patience-based early stopping, dropout annealing, best-state
// checkpointing, and console progress reporting.
package training

import "github.com/segmed/voxelfit/tensor"

// Model is the network contract the trainer drives. The trainer treats
// the network as an opaque callable: it forwards batches, walks the
// returned graph backward through the aggregate loss, and snapshots or
// restores parameters through the state dict methods. nn modules
// satisfy this interface.
type Model interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
	Train()
	Eval()
	IsTraining() bool
	StateDict(prefix string, dst map[string]*tensor.Tensor)
	LoadState(prefix string, src map[string]*tensor.Tensor) error
}

// DropoutAnnealer is implemented by models whose dropout rate can be
// adjusted between epochs. The trainer applies its annealing schedule
// through this interface when the model supports it; models without it
// still train, with the schedule only affecting the patience threshold.
type DropoutAnnealer interface {
	DropoutRate() float64
	SetDropoutRate(rate float64)
}
