package nn

import (
	"fmt"

	"github.com/segmed/voxelfit/tensor"
)

// Autoencoder is a 3D U-Net-style encoder-decoder. The contracting path
// is a stack of 3x3x3 convolutions with channel dropout after each
// stage, followed by a bottleneck convolution; the expanding path runs
// transposed convolutions over the channel concatenation of the current
// features and the matching skip connection. With pooling enabled, each
// contracting stage halves the volume and the expanding path upsamples
// features to the skip's size before concatenation.
//
// The final output has convFilters[0] channels; choose convFilters[0]
// equal to the input channel count for reconstruction tasks.
type Autoencoder struct {
	down     []*Sequential
	u        *Sequential
	up       []*Sequential
	dropDown []*Dropout3D
	dropUp   []*Dropout3D
	pooling  bool
	training bool
	rate     float64
}

// NewAutoencoder builds an autoencoder. convFilters lists the feature
// widths of the contracting path plus the bottleneck (at least two
// entries); inputs is the input channel count; dropout is the shared
// channel dropout rate applied between stages.
func NewAutoencoder(convFilters []int, inputs int, pooling bool, dropout float64) (*Autoencoder, error) {
	if len(convFilters) < 2 {
		return nil, fmt.Errorf("autoencoder needs at least two filter widths, got %v", convFilters)
	}
	if inputs <= 0 {
		return nil, fmt.Errorf("autoencoder input channels must be positive, got %d", inputs)
	}
	if dropout < 0 || dropout >= 1 {
		return nil, fmt.Errorf("autoencoder dropout must be in [0, 1), got %v", dropout)
	}

	ae := &Autoencoder{pooling: pooling, training: true, rate: dropout}

	// Contracting path: (inputs -> f0), (f0 -> f1), ... up to the last
	// width before the bottleneck.
	downIn := append([]int{inputs}, convFilters[:len(convFilters)-2]...)
	downOut := convFilters[:len(convFilters)-1]
	for i := range downOut {
		conv, err := NewConv3D(downIn[i], downOut[i], 3, 1, 1, true)
		if err != nil {
			return nil, fmt.Errorf("contracting stage %d: %v", i, err)
		}
		ae.down = append(ae.down, NewSequential(conv, NewReLU()))
		ae.dropDown = append(ae.dropDown, NewDropout3D(dropout))
	}

	// Bottleneck.
	bottleneck, err := NewConv3D(convFilters[len(convFilters)-2], convFilters[len(convFilters)-1], 3, 1, 1, true)
	if err != nil {
		return nil, fmt.Errorf("bottleneck: %v", err)
	}
	ae.u = NewSequential(bottleneck, NewReLU())

	// Expanding path mirrors the contracting widths; each stage consumes
	// the concatenation of the incoming features and the skip.
	downRev := reversed(convFilters[:len(convFilters)-1])
	upRev := reversed(convFilters[1:])
	for i := range downRev {
		deconv, err := NewConvTranspose3D(downRev[i]+upRev[i], downRev[i], 3, 1, 1, true)
		if err != nil {
			return nil, fmt.Errorf("expanding stage %d: %v", i, err)
		}
		ae.up = append(ae.up, NewSequential(deconv, NewReLU()))
		ae.dropUp = append(ae.dropUp, NewDropout3D(dropout))
	}

	return ae, nil
}

// Forward encodes and decodes a [batch, channels, d, h, w] volume.
func (ae *Autoencoder) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	x := input
	var skips []*tensor.Tensor
	for i, stage := range ae.down {
		out, err := stage.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("contracting stage %d: %v", i, err)
		}
		out, err = ae.dropDown[i].Forward(out)
		if err != nil {
			return nil, fmt.Errorf("contracting dropout %d: %v", i, err)
		}
		skips = append(skips, out)
		x = out
		if ae.pooling {
			x, err = tensor.MaxPool3D(x, 2)
			if err != nil {
				return nil, fmt.Errorf("pooling stage %d: %v", i, err)
			}
		}
	}

	x, err := ae.u.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("bottleneck: %v", err)
	}

	for i, stage := range ae.up {
		skip := skips[len(skips)-1-i]
		features := x
		if ae.pooling {
			shape := skip.Shape()
			features, err = tensor.UpsampleNearest3D(x, shape[2], shape[3], shape[4])
			if err != nil {
				return nil, fmt.Errorf("upsampling stage %d: %v", i, err)
			}
		}
		joined, err := tensor.Concat(1, features, skip)
		if err != nil {
			return nil, fmt.Errorf("skip concat %d: %v", i, err)
		}
		x, err = stage.Forward(joined)
		if err != nil {
			return nil, fmt.Errorf("expanding stage %d: %v", i, err)
		}
		if ae.pooling {
			x, err = ae.dropUp[i].Forward(x)
			if err != nil {
				return nil, fmt.Errorf("expanding dropout %d: %v", i, err)
			}
		}
	}

	return x, nil
}

// Parameters returns all trainable tensors.
func (ae *Autoencoder) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, stage := range ae.down {
		params = append(params, stage.Parameters()...)
	}
	params = append(params, ae.u.Parameters()...)
	for _, stage := range ae.up {
		params = append(params, stage.Parameters()...)
	}
	return params
}

// Train switches the network and its dropout layers to training mode.
func (ae *Autoencoder) Train() {
	ae.training = true
	ae.fanMode(func(m Module) { m.Train() })
}

// Eval switches the network and its dropout layers to evaluation mode.
func (ae *Autoencoder) Eval() {
	ae.training = false
	ae.fanMode(func(m Module) { m.Eval() })
}

// IsTraining reports whether the network is in training mode.
func (ae *Autoencoder) IsTraining() bool { return ae.training }

// DropoutRate returns the shared channel dropout rate.
func (ae *Autoencoder) DropoutRate() float64 { return ae.rate }

// SetDropoutRate replaces the dropout rate on every dropout layer.
// Annealing schedules call this between epochs.
func (ae *Autoencoder) SetDropoutRate(rate float64) {
	if rate < 0 {
		rate = 0
	}
	ae.rate = rate
	for _, d := range ae.dropDown {
		d.SetRate(rate)
	}
	for _, d := range ae.dropUp {
		d.SetRate(rate)
	}
}

// StateDict stores deep copies of every stage's parameters.
func (ae *Autoencoder) StateDict(prefix string, dst map[string]*tensor.Tensor) {
	for i, stage := range ae.down {
		stage.StateDict(joinPrefix(prefix, fmt.Sprintf("down.%d", i)), dst)
	}
	ae.u.StateDict(joinPrefix(prefix, "u"), dst)
	for i, stage := range ae.up {
		stage.StateDict(joinPrefix(prefix, fmt.Sprintf("up.%d", i)), dst)
	}
}

// LoadState restores every stage's parameters from a state dict.
func (ae *Autoencoder) LoadState(prefix string, src map[string]*tensor.Tensor) error {
	for i, stage := range ae.down {
		if err := stage.LoadState(joinPrefix(prefix, fmt.Sprintf("down.%d", i)), src); err != nil {
			return err
		}
	}
	if err := ae.u.LoadState(joinPrefix(prefix, "u"), src); err != nil {
		return err
	}
	for i, stage := range ae.up {
		if err := stage.LoadState(joinPrefix(prefix, fmt.Sprintf("up.%d", i)), src); err != nil {
			return err
		}
	}
	return nil
}

func (ae *Autoencoder) fanMode(apply func(Module)) {
	for _, stage := range ae.down {
		apply(stage)
	}
	apply(ae.u)
	for _, stage := range ae.up {
		apply(stage)
	}
	for _, d := range ae.dropDown {
		apply(d)
	}
	for _, d := range ae.dropUp {
		apply(d)
	}
}

func reversed(values []int) []int {
	out := make([]int, len(values))
	for i, v := range values {
		out[len(values)-1-i] = v
	}
	return out
}
