package tensor

import "fmt"

// convT3dGeom mirrors conv3dGeom for the transposed convolution, where
// every input element scatters into a kernel-sized output neighborhood.
type convT3dGeom struct {
	batch, inC, inD, inH, inW int
	outC, kD, kH, kW          int
	stride, pad               int
	outD, outH, outW          int
}

func (g convT3dGeom) inputIndex(n, c, d, h, w int) int {
	return ((((n*g.inC+c)*g.inD+d)*g.inH+h)*g.inW + w)
}

func (g convT3dGeom) weightIndex(ic, oc, kd, kh, kw int) int {
	return ((((ic*g.outC+oc)*g.kD+kd)*g.kH+kh)*g.kW + kw)
}

func (g convT3dGeom) outputIndex(n, c, d, h, w int) int {
	return ((((n*g.outC+c)*g.outD+d)*g.outH+h)*g.outW + w)
}

// ConvTranspose3D applies a 3D transposed convolution.
// Input shape: [batch, inChannels, depth, height, width].
// Weight shape: [inChannels, outChannels, kD, kH, kW].
// Bias shape: [outChannels], or nil.
// Output spatial size is (in-1)*stride - 2*pad + kernel.
func ConvTranspose3D(input, weight, bias *Tensor, stride, pad int) (*Tensor, error) {
	if len(input.shape) != 5 {
		return nil, fmt.Errorf("ConvTranspose3D expects input rank 5, got shape %v", input.shape)
	}
	if len(weight.shape) != 5 {
		return nil, fmt.Errorf("ConvTranspose3D expects weight rank 5, got shape %v", weight.shape)
	}
	if bias != nil && len(bias.shape) != 1 {
		return nil, fmt.Errorf("ConvTranspose3D bias must be rank 1, got shape %v", bias.shape)
	}
	if weight.shape[0] != input.shape[1] {
		return nil, fmt.Errorf("ConvTranspose3D channel mismatch: input has %d, weight expects %d", input.shape[1], weight.shape[0])
	}
	if stride <= 0 {
		return nil, fmt.Errorf("ConvTranspose3D stride must be positive, got %d", stride)
	}
	if pad < 0 {
		return nil, fmt.Errorf("ConvTranspose3D padding must be non-negative, got %d", pad)
	}

	g := convT3dGeom{
		batch: input.shape[0], inC: input.shape[1],
		inD: input.shape[2], inH: input.shape[3], inW: input.shape[4],
		outC: weight.shape[1], kD: weight.shape[2], kH: weight.shape[3], kW: weight.shape[4],
		stride: stride, pad: pad,
	}
	g.outD = (g.inD-1)*stride - 2*pad + g.kD
	g.outH = (g.inH-1)*stride - 2*pad + g.kH
	g.outW = (g.inW-1)*stride - 2*pad + g.kW
	if g.outD <= 0 || g.outH <= 0 || g.outW <= 0 {
		return nil, fmt.Errorf("ConvTranspose3D produces empty output for input %v and kernel %v", input.shape, weight.shape)
	}

	out := Zeros(g.batch, g.outC, g.outD, g.outH, g.outW)
	g.forEachTap(func(n, ic, inIdx, oc, od, oh, ow, kd, kh, kw int) {
		out.data[g.outputIndex(n, oc, od, oh, ow)] += input.data[inIdx] * weight.data[g.weightIndex(ic, oc, kd, kh, kw)]
	})
	if bias != nil {
		for n := 0; n < g.batch; n++ {
			for oc := 0; oc < g.outC; oc++ {
				base := g.outputIndex(n, oc, 0, 0, 0)
				for i := base; i < base+g.outD*g.outH*g.outW; i++ {
					out.data[i] += bias.data[oc]
				}
			}
		}
	}

	attach(out, func(grad *Tensor, grads map[*Tensor]*Tensor) {
		if input.requiresGrad {
			gIn := Zeros(input.shape...)
			g.forEachTap(func(n, ic, inIdx, oc, od, oh, ow, kd, kh, kw int) {
				gIn.data[inIdx] += weight.data[g.weightIndex(ic, oc, kd, kh, kw)] * grad.data[g.outputIndex(n, oc, od, oh, ow)]
			})
			accumulate(grads, input, gIn)
		}
		if weight.requiresGrad {
			gW := Zeros(weight.shape...)
			g.forEachTap(func(n, ic, inIdx, oc, od, oh, ow, kd, kh, kw int) {
				gW.data[g.weightIndex(ic, oc, kd, kh, kw)] += input.data[inIdx] * grad.data[g.outputIndex(n, oc, od, oh, ow)]
			})
			accumulate(grads, weight, gW)
		}
		if bias != nil && bias.requiresGrad {
			gB := Zeros(bias.shape...)
			for n := 0; n < g.batch; n++ {
				for oc := 0; oc < g.outC; oc++ {
					base := g.outputIndex(n, oc, 0, 0, 0)
					for i := base; i < base+g.outD*g.outH*g.outW; i++ {
						gB.data[oc] += grad.data[i]
					}
				}
			}
			accumulate(grads, bias, gB)
		}
	}, input, weight, bias)
	return out, nil
}

// forEachTap visits every (input element, kernel tap) pair whose output
// coordinate falls inside the cropped output volume.
func (g convT3dGeom) forEachTap(fn func(n, ic, inIdx, oc, od, oh, ow, kd, kh, kw int)) {
	for n := 0; n < g.batch; n++ {
		for ic := 0; ic < g.inC; ic++ {
			for id := 0; id < g.inD; id++ {
				for ih := 0; ih < g.inH; ih++ {
					for iw := 0; iw < g.inW; iw++ {
						inIdx := g.inputIndex(n, ic, id, ih, iw)
						for oc := 0; oc < g.outC; oc++ {
							for kd := 0; kd < g.kD; kd++ {
								od := id*g.stride - g.pad + kd
								if od < 0 || od >= g.outD {
									continue
								}
								for kh := 0; kh < g.kH; kh++ {
									oh := ih*g.stride - g.pad + kh
									if oh < 0 || oh >= g.outH {
										continue
									}
									for kw := 0; kw < g.kW; kw++ {
										ow := iw*g.stride - g.pad + kw
										if ow < 0 || ow >= g.outW {
											continue
										}
										fn(n, ic, inIdx, oc, od, oh, ow, kd, kh, kw)
									}
								}
							}
						}
					}
				}
			}
		}
	}
}
