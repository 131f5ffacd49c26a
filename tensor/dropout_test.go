package tensor

import (
	"math"
	"testing"
)

func TestDropoutIdentityWhenInactive(t *testing.T) {
	input := MustNew([]float64{1, 2, 3, 4}, 4)

	for _, tc := range []struct {
		name     string
		p        float64
		training bool
	}{
		{"eval mode", 0.5, false},
		{"zero rate", 0, true},
	} {
		out, err := Dropout(input, tc.p, tc.training)
		if err != nil {
			t.Fatalf("%s: Dropout failed: %v", tc.name, err)
		}
		for i, v := range out.Data() {
			if v != input.Raw()[i] {
				t.Errorf("%s: output[%d] = %v, want identity", tc.name, i, v)
			}
		}
	}
}

func TestDropoutRejectsBadRate(t *testing.T) {
	if _, err := Dropout(Ones(4), 1.0, true); err == nil {
		t.Error("expected error for p = 1")
	}
	if _, err := Dropout(Ones(4), -0.1, true); err == nil {
		t.Error("expected error for negative p")
	}
}

func TestDropoutScalesSurvivors(t *testing.T) {
	SetSeed(7)
	p := 0.5
	input := Full(2, 1000)

	out, err := Dropout(input, p, true)
	if err != nil {
		t.Fatalf("Dropout failed: %v", err)
	}
	zeros := 0
	for _, v := range out.Data() {
		switch {
		case v == 0:
			zeros++
		case almostEqual(v, 2/(1-p), 1e-12):
		default:
			t.Fatalf("survivor has value %v, want %v", v, 2/(1-p))
		}
	}
	if zeros == 0 || zeros == input.Numel() {
		t.Errorf("degenerate mask: %d of %d zeroed", zeros, input.Numel())
	}
}

func TestDropout3DMasksWholeChannels(t *testing.T) {
	SetSeed(3)
	p := 0.5
	input := Full(1, 2, 8, 2, 2, 2)

	out, err := Dropout3D(input, p, true)
	if err != nil {
		t.Fatalf("Dropout3D failed: %v", err)
	}
	volume := 8
	data := out.Data()
	for c := 0; c < 8; c++ {
		block := data[c*volume : (c+1)*volume]
		for i, v := range block {
			if v != block[0] {
				t.Fatalf("channel %d not uniformly masked: element %d is %v, first is %v", c, i, v, block[0])
			}
		}
		if block[0] != 0 && !almostEqual(block[0], 1/(1-p), 1e-12) {
			t.Errorf("channel %d survivor value %v, want %v", c, block[0], 1/(1-p))
		}
	}
}

func TestDropout3DRequiresVolumetricInput(t *testing.T) {
	if _, err := Dropout3D(Ones(2, 3), 0.5, true); err == nil {
		t.Error("expected rank error")
	}
}

func TestDropoutBackwardFollowsMask(t *testing.T) {
	SetSeed(5)
	input := Ones(1, 4, 2, 2, 2)
	input.SetRequiresGrad(true)

	out, err := Dropout3D(input, 0.5, true)
	if err != nil {
		t.Fatalf("Dropout3D failed: %v", err)
	}
	if err := Sum(out).Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	// d(sum)/d(input) equals the mask: zero where dropped, scale where
	// kept.
	outData := out.Data()
	for i, g := range input.Grad().Data() {
		if math.Abs(g-outData[i]) > 1e-12 {
			t.Errorf("grad[%d] = %v, want %v", i, g, outData[i])
		}
	}
}
