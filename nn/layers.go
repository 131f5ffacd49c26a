package nn

import "github.com/segmed/voxelfit/tensor"

// ReLU is a stateless rectified linear activation layer.
type ReLU struct {
	training bool
}

// NewReLU creates a ReLU layer.
func NewReLU() *ReLU {
	return &ReLU{training: true}
}

func (r *ReLU) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.ReLU(input), nil
}

func (r *ReLU) Parameters() []*tensor.Tensor { return nil }
func (r *ReLU) Train()                       { r.training = true }
func (r *ReLU) Eval()                        { r.training = false }
func (r *ReLU) IsTraining() bool             { return r.training }

// Dropout3D zeroes whole feature channels during training. Its rate can
// be adjusted between epochs, which is how annealing schedules reach
// into a live network.
type Dropout3D struct {
	rate     float64
	training bool
}

// NewDropout3D creates a channel dropout layer with the given rate.
func NewDropout3D(rate float64) *Dropout3D {
	if rate < 0 {
		rate = 0
	}
	return &Dropout3D{rate: rate, training: true}
}

func (d *Dropout3D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.Dropout3D(input, d.rate, d.training)
}

func (d *Dropout3D) Parameters() []*tensor.Tensor { return nil }
func (d *Dropout3D) Train()                       { d.training = true }
func (d *Dropout3D) Eval()                        { d.training = false }
func (d *Dropout3D) IsTraining() bool             { return d.training }

// Rate returns the current dropout probability.
func (d *Dropout3D) Rate() float64 { return d.rate }

// SetRate replaces the dropout probability.
func (d *Dropout3D) SetRate(rate float64) {
	if rate < 0 {
		rate = 0
	}
	d.rate = rate
}
