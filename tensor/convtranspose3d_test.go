package tensor

import "testing"

func TestConvTranspose3DOutputShape(t *testing.T) {
	// (in-1)*stride - 2*pad + kernel
	out, err := ConvTranspose3D(Ones(1, 2, 2, 2, 2), Ones(2, 3, 2, 2, 2), nil, 2, 0)
	if err != nil {
		t.Fatalf("ConvTranspose3D failed: %v", err)
	}
	want := []int{1, 3, 4, 4, 4}
	for i, d := range out.Shape() {
		if d != want[i] {
			t.Fatalf("output shape %v, want %v", out.Shape(), want)
		}
	}
}

func TestConvTranspose3DKnownValue(t *testing.T) {
	// A single unit input voxel stamps the kernel into the output.
	input := Zeros(1, 1, 1, 1, 1)
	input.Raw()[0] = 2
	weight := Full(3, 1, 1, 2, 2, 2)

	out, err := ConvTranspose3D(input, weight, nil, 1, 0)
	if err != nil {
		t.Fatalf("ConvTranspose3D failed: %v", err)
	}
	if out.Numel() != 8 {
		t.Fatalf("output shape %v, want 2x2x2 volume", out.Shape())
	}
	for i, v := range out.Data() {
		if !almostEqual(v, 6, 1e-12) {
			t.Errorf("output[%d] = %v, want 6", i, v)
		}
	}
}

func TestConvTranspose3DInvertsStridedShape(t *testing.T) {
	// With kernel 3, stride 1, pad 1 the volume is preserved, matching
	// the encoder convolutions it mirrors.
	out, err := ConvTranspose3D(Ones(1, 4, 5, 5, 5), Ones(4, 2, 3, 3, 3), nil, 1, 1)
	if err != nil {
		t.Fatalf("ConvTranspose3D failed: %v", err)
	}
	want := []int{1, 2, 5, 5, 5}
	for i, d := range out.Shape() {
		if d != want[i] {
			t.Fatalf("output shape %v, want %v", out.Shape(), want)
		}
	}
}

func TestConvTranspose3DGradients(t *testing.T) {
	SetSeed(23)
	input := Uniform(-1, 1, 1, 2, 2, 2, 2)
	weight := Uniform(-1, 1, 2, 3, 2, 2, 2)
	bias := Uniform(-1, 1, 3)
	input.SetRequiresGrad(true)
	weight.SetRequiresGrad(true)
	bias.SetRequiresGrad(true)

	out, err := ConvTranspose3D(input, weight, bias, 2, 0)
	if err != nil {
		t.Fatalf("ConvTranspose3D failed: %v", err)
	}
	if err := Sum(out).Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	loss := func() float64 {
		var v float64
		_ = NoGrad(func() error {
			res, err := ConvTranspose3D(input, weight, bias, 2, 0)
			if err != nil {
				return err
			}
			v, _ = Sum(res).Item()
			return nil
		})
		return v
	}

	checkGrad(t, "input", input.Grad(), numericalGrad(t, input, loss), 1e-6)
	checkGrad(t, "weight", weight.Grad(), numericalGrad(t, weight, loss), 1e-6)
	checkGrad(t, "bias", bias.Grad(), numericalGrad(t, bias, loss), 1e-6)
}
