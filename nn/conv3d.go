package nn

import (
	"fmt"
	"math"

	"github.com/segmed/voxelfit/tensor"
)

// Conv3D is a volumetric convolution layer with Xavier-uniform weight
// initialization and zero-initialized bias.
type Conv3D struct {
	weight   *tensor.Tensor
	bias     *tensor.Tensor
	stride   int
	pad      int
	training bool
}

// NewConv3D creates a Conv3D layer with a cubic kernel.
func NewConv3D(inChannels, outChannels, kernel, stride, pad int, bias bool) (*Conv3D, error) {
	if inChannels <= 0 || outChannels <= 0 || kernel <= 0 {
		return nil, fmt.Errorf("invalid Conv3D dimensions: in=%d out=%d kernel=%d", inChannels, outChannels, kernel)
	}
	fanIn := inChannels * kernel * kernel * kernel
	fanOut := outChannels * kernel * kernel * kernel
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))

	weight := tensor.Uniform(-bound, bound, outChannels, inChannels, kernel, kernel, kernel)
	weight.SetRequiresGrad(true)

	layer := &Conv3D{weight: weight, stride: stride, pad: pad, training: true}
	if bias {
		layer.bias = tensor.Zeros(outChannels)
		layer.bias.SetRequiresGrad(true)
	}
	return layer, nil
}

// Forward applies the convolution.
func (c *Conv3D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.Conv3D(input, c.weight, c.bias, c.stride, c.pad)
}

// Parameters returns the trainable weight and bias tensors.
func (c *Conv3D) Parameters() []*tensor.Tensor {
	if c.bias == nil {
		return []*tensor.Tensor{c.weight}
	}
	return []*tensor.Tensor{c.weight, c.bias}
}

func (c *Conv3D) Train()           { c.training = true }
func (c *Conv3D) Eval()            { c.training = false }
func (c *Conv3D) IsTraining() bool { return c.training }

// StateDict stores deep copies of the weight and bias.
func (c *Conv3D) StateDict(prefix string, dst map[string]*tensor.Tensor) {
	dst[joinPrefix(prefix, "weight")] = c.weight.Clone()
	if c.bias != nil {
		dst[joinPrefix(prefix, "bias")] = c.bias.Clone()
	}
}

// LoadState restores the weight and bias from a state dict.
func (c *Conv3D) LoadState(prefix string, src map[string]*tensor.Tensor) error {
	return loadParams(prefix, src, map[string]*tensor.Tensor{
		"weight": c.weight,
		"bias":   c.bias,
	})
}

// ConvTranspose3D is a volumetric transposed convolution layer.
type ConvTranspose3D struct {
	weight   *tensor.Tensor
	bias     *tensor.Tensor
	stride   int
	pad      int
	training bool
}

// NewConvTranspose3D creates a ConvTranspose3D layer with a cubic
// kernel.
func NewConvTranspose3D(inChannels, outChannels, kernel, stride, pad int, bias bool) (*ConvTranspose3D, error) {
	if inChannels <= 0 || outChannels <= 0 || kernel <= 0 {
		return nil, fmt.Errorf("invalid ConvTranspose3D dimensions: in=%d out=%d kernel=%d", inChannels, outChannels, kernel)
	}
	fanIn := inChannels * kernel * kernel * kernel
	fanOut := outChannels * kernel * kernel * kernel
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))

	weight := tensor.Uniform(-bound, bound, inChannels, outChannels, kernel, kernel, kernel)
	weight.SetRequiresGrad(true)

	layer := &ConvTranspose3D{weight: weight, stride: stride, pad: pad, training: true}
	if bias {
		layer.bias = tensor.Zeros(outChannels)
		layer.bias.SetRequiresGrad(true)
	}
	return layer, nil
}

// Forward applies the transposed convolution.
func (c *ConvTranspose3D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.ConvTranspose3D(input, c.weight, c.bias, c.stride, c.pad)
}

// Parameters returns the trainable weight and bias tensors.
func (c *ConvTranspose3D) Parameters() []*tensor.Tensor {
	if c.bias == nil {
		return []*tensor.Tensor{c.weight}
	}
	return []*tensor.Tensor{c.weight, c.bias}
}

func (c *ConvTranspose3D) Train()           { c.training = true }
func (c *ConvTranspose3D) Eval()            { c.training = false }
func (c *ConvTranspose3D) IsTraining() bool { return c.training }

// StateDict stores deep copies of the weight and bias.
func (c *ConvTranspose3D) StateDict(prefix string, dst map[string]*tensor.Tensor) {
	dst[joinPrefix(prefix, "weight")] = c.weight.Clone()
	if c.bias != nil {
		dst[joinPrefix(prefix, "bias")] = c.bias.Clone()
	}
}

// LoadState restores the weight and bias from a state dict.
func (c *ConvTranspose3D) LoadState(prefix string, src map[string]*tensor.Tensor) error {
	return loadParams(prefix, src, map[string]*tensor.Tensor{
		"weight": c.weight,
		"bias":   c.bias,
	})
}

// loadParams copies named entries from src into the live tensors,
// skipping nil targets (absent bias).
func loadParams(prefix string, src map[string]*tensor.Tensor, targets map[string]*tensor.Tensor) error {
	for name, dst := range targets {
		if dst == nil {
			continue
		}
		key := joinPrefix(prefix, name)
		from, ok := src[key]
		if !ok {
			return fmt.Errorf("state is missing parameter %s", key)
		}
		if err := tensor.CopyInto(dst, from); err != nil {
			return fmt.Errorf("restoring %s: %v", key, err)
		}
	}
	return nil
}
