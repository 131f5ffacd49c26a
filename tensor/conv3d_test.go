package tensor

import (
	"testing"

	"gonum.org/v1/gonum/diff/fd"
)

// numericalGrad approximates d(loss)/d(x) by central differences over a
// copy of x's storage, holding every other tensor fixed.
func numericalGrad(t *testing.T, x *Tensor, loss func() float64) []float64 {
	t.Helper()
	raw := x.Raw()
	f := func(v []float64) float64 {
		saved := make([]float64, len(raw))
		copy(saved, raw)
		copy(raw, v)
		out := loss()
		copy(raw, saved)
		return out
	}
	point := make([]float64, len(raw))
	copy(point, raw)
	return fd.Gradient(nil, f, point, &fd.Settings{Formula: fd.Central})
}

func checkGrad(t *testing.T, name string, got *Tensor, want []float64, tol float64) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s: no gradient accumulated", name)
	}
	gotData := got.Data()
	if len(gotData) != len(want) {
		t.Fatalf("%s: gradient has %d elements, want %d", name, len(gotData), len(want))
	}
	for i := range want {
		if !almostEqual(gotData[i], want[i], tol) {
			t.Errorf("%s grad[%d] = %v, numerical %v", name, i, gotData[i], want[i])
		}
	}
}

func TestConv3DForwardKnownValue(t *testing.T) {
	input := Ones(1, 1, 3, 3, 3)
	weight := Ones(1, 1, 3, 3, 3)
	bias := MustNew([]float64{0.5}, 1)

	out, err := Conv3D(input, weight, bias, 1, 0)
	if err != nil {
		t.Fatalf("Conv3D failed: %v", err)
	}
	wantShape := []int{1, 1, 1, 1, 1}
	for i, d := range out.Shape() {
		if d != wantShape[i] {
			t.Fatalf("output shape %v, want %v", out.Shape(), wantShape)
		}
	}
	if v, _ := out.Item(); !almostEqual(v, 27.5, 1e-12) {
		t.Errorf("output = %v, want 27.5", v)
	}
}

func TestConv3DStridePadShape(t *testing.T) {
	out, err := Conv3D(Ones(1, 1, 4, 4, 4), Ones(2, 1, 3, 3, 3), nil, 2, 1)
	if err != nil {
		t.Fatalf("Conv3D failed: %v", err)
	}
	want := []int{1, 2, 2, 2, 2}
	for i, d := range out.Shape() {
		if d != want[i] {
			t.Fatalf("output shape %v, want %v", out.Shape(), want)
		}
	}
}

func TestConv3DRejectsBadInput(t *testing.T) {
	if _, err := Conv3D(Ones(2, 2, 2), Ones(1, 1, 2, 2, 2), nil, 1, 0); err == nil {
		t.Error("expected rank error")
	}
	if _, err := Conv3D(Ones(1, 2, 3, 3, 3), Ones(1, 1, 2, 2, 2), nil, 1, 0); err == nil {
		t.Error("expected channel mismatch error")
	}
	if _, err := Conv3D(Ones(1, 1, 3, 3, 3), Ones(1, 1, 2, 2, 2), nil, 0, 0); err == nil {
		t.Error("expected stride error")
	}
}

func TestConv3DGradients(t *testing.T) {
	SetSeed(11)
	input := Uniform(-1, 1, 1, 2, 3, 3, 3)
	weight := Uniform(-1, 1, 2, 2, 2, 2, 2)
	bias := Uniform(-1, 1, 2)
	input.SetRequiresGrad(true)
	weight.SetRequiresGrad(true)
	bias.SetRequiresGrad(true)

	out, err := Conv3D(input, weight, bias, 1, 1)
	if err != nil {
		t.Fatalf("Conv3D failed: %v", err)
	}
	if err := Sum(out).Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	loss := func() float64 {
		var v float64
		_ = NoGrad(func() error {
			res, err := Conv3D(input, weight, bias, 1, 1)
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
