package tensor

import "fmt"

// conv3dGeom captures the index arithmetic shared by the forward and
// backward passes of the volumetric convolutions.
type conv3dGeom struct {
	batch, inC, inD, inH, inW     int
	outC, kD, kH, kW              int
	strideD, strideH, strideW     int
	padD, padH, padW              int
	outD, outH, outW              int
}

func (g conv3dGeom) inputIndex(n, c, d, h, w int) int {
	return ((((n*g.inC+c)*g.inD+d)*g.inH+h)*g.inW + w)
}

func (g conv3dGeom) weightIndex(oc, ic, kd, kh, kw int) int {
	return ((((oc*g.inC+ic)*g.kD+kd)*g.kH+kh)*g.kW + kw)
}

func (g conv3dGeom) outputIndex(n, c, d, h, w int) int {
	return ((((n*g.outC+c)*g.outD+d)*g.outH+h)*g.outW + w)
}

// Conv3D applies a 3D convolution.
// Input shape: [batch, inChannels, depth, height, width].
// Weight shape: [outChannels, inChannels, kD, kH, kW].
// Bias shape: [outChannels], or nil.
func Conv3D(input, weight, bias *Tensor, stride, pad int) (*Tensor, error) {
	if len(input.shape) != 5 {
		return nil, fmt.Errorf("Conv3D expects input rank 5, got shape %v", input.shape)
	}
	if len(weight.shape) != 5 {
		return nil, fmt.Errorf("Conv3D expects weight rank 5, got shape %v", weight.shape)
	}
	if bias != nil && len(bias.shape) != 1 {
		return nil, fmt.Errorf("Conv3D bias must be rank 1, got shape %v", bias.shape)
	}
	if weight.shape[1] != input.shape[1] {
		return nil, fmt.Errorf("Conv3D channel mismatch: input has %d, weight expects %d", input.shape[1], weight.shape[1])
	}
	if stride <= 0 {
		return nil, fmt.Errorf("Conv3D stride must be positive, got %d", stride)
	}
	if pad < 0 {
		return nil, fmt.Errorf("Conv3D padding must be non-negative, got %d", pad)
	}

	g := conv3dGeom{
		batch: input.shape[0], inC: input.shape[1],
		inD: input.shape[2], inH: input.shape[3], inW: input.shape[4],
		outC: weight.shape[0], kD: weight.shape[2], kH: weight.shape[3], kW: weight.shape[4],
		strideD: stride, strideH: stride, strideW: stride,
		padD: pad, padH: pad, padW: pad,
	}
	g.outD = (g.inD+2*g.padD-g.kD)/g.strideD + 1
	g.outH = (g.inH+2*g.padH-g.kH)/g.strideH + 1
	g.outW = (g.inW+2*g.padW-g.kW)/g.strideW + 1
	if g.outD <= 0 || g.outH <= 0 || g.outW <= 0 {
		return nil, fmt.Errorf("Conv3D produces empty output for input %v and kernel %v", input.shape, weight.shape)
	}

	out := Zeros(g.batch, g.outC, g.outD, g.outH, g.outW)
	g.forEachTap(func(n, oc, outIdx, ic, id, ih, iw, kd, kh, kw int) {
		out.data[outIdx] += input.data[g.inputIndex(n, ic, id, ih, iw)] * weight.data[g.weightIndex(oc, ic, kd, kh, kw)]
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
			g.forEachTap(func(n, oc, outIdx, ic, id, ih, iw, kd, kh, kw int) {
				gIn.data[g.inputIndex(n, ic, id, ih, iw)] += weight.data[g.weightIndex(oc, ic, kd, kh, kw)] * grad.data[outIdx]
			})
			accumulate(grads, input, gIn)
		}
		if weight.requiresGrad {
			gW := Zeros(weight.shape...)
			g.forEachTap(func(n, oc, outIdx, ic, id, ih, iw, kd, kh, kw int) {
				gW.data[g.weightIndex(oc, ic, kd, kh, kw)] += input.data[g.inputIndex(n, ic, id, ih, iw)] * grad.data[outIdx]
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

// forEachTap visits every (output element, kernel tap) pair whose input
// coordinate falls inside the unpadded volume.
func (g conv3dGeom) forEachTap(fn func(n, oc, outIdx, ic, id, ih, iw, kd, kh, kw int)) {
	for n := 0; n < g.batch; n++ {
		for oc := 0; oc < g.outC; oc++ {
			for od := 0; od < g.outD; od++ {
				for oh := 0; oh < g.outH; oh++ {
					for ow := 0; ow < g.outW; ow++ {
						outIdx := g.outputIndex(n, oc, od, oh, ow)
						for ic := 0; ic < g.inC; ic++ {
							for kd := 0; kd < g.kD; kd++ {
								id := od*g.strideD - g.padD + kd
								if id < 0 || id >= g.inD {
									continue
								}
								for kh := 0; kh < g.kH; kh++ {
									ih := oh*g.strideH - g.padH + kh
									if ih < 0 || ih >= g.inH {
										continue
									}
									for kw := 0; kw < g.kW; kw++ {
										iw := ow*g.strideW - g.padW + kw
										if iw < 0 || iw >= g.inW {
											continue
										}
										fn(n, oc, outIdx, ic, id, ih, iw, kd, kh, kw)
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
