package tensor

import "testing"

func TestConcatChannels(t *testing.T) {
	a := Full(1, 1, 2, 2, 2, 2)
	b := Full(2, 1, 3, 2, 2, 2)

	out, err := Concat(1, a, b)
	if err != nil {
		t.Fatalf("Concat failed: %v", err)
	}
	wantShape := []int{1, 5, 2, 2, 2}
	for i, d := range out.Shape() {
		if d != wantShape[i] {
			t.Fatalf("output shape %v, want %v", out.Shape(), wantShape)
		}
	}
	data := out.Data()
	for i, v := range data {
		want := 1.0
		if i >= 2*8 {
			want = 2.0
		}
		if v != want {
			t.Errorf("element %d = %v, want %v", i, v, want)
		}
	}
}

func TestConcatRejectsMismatchedShapes(t *testing.T) {
	if _, err := Concat(1, Ones(1, 2, 2, 2, 2), Ones(1, 2, 3, 2, 2)); err == nil {
		t.Error("expected shape mismatch error")
	}
	if _, err := Concat(7, Ones(1, 2, 2, 2, 2), Ones(1, 2, 2, 2, 2)); err == nil {
		t.Error("expected dimension range error")
	}
	if _, err := Concat(1); err == nil {
		t.Error("expected error for empty input list")
	}
}

func TestConcatBackwardSplitsGradient(t *testing.T) {
	a := Ones(1, 2, 1, 1, 2)
	b := Ones(1, 1, 1, 1, 2)
	a.SetRequiresGrad(true)
	b.SetRequiresGrad(true)

	joined, err := Concat(1, a, b)
	if err != nil {
		t.Fatalf("Concat failed: %v", err)
	}
	// Scale so a's slice and b's slice get distinguishable gradients.
	if err := Sum(Scaled(joined, 3)).Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	for i, g := range a.Grad().Data() {
		if g != 3 {
			t.Errorf("a.grad[%d] = %v, want 3", i, g)
		}
	}
	for i, g := range b.Grad().Data() {
		if g != 3 {
			t.Errorf("b.grad[%d] = %v, want 3", i, g)
		}
	}
}
