package nn

import (
	"testing"

	"github.com/segmed/voxelfit/tensor"
)

func TestNewAutoencoderValidation(t *testing.T) {
	if _, err := NewAutoencoder([]int{8}, 1, false, 0); err == nil {
		t.Error("expected error for too few filter widths")
	}
	if _, err := NewAutoencoder([]int{1, 8}, 0, false, 0); err == nil {
		t.Error("expected error for zero input channels")
	}
	if _, err := NewAutoencoder([]int{1, 8}, 1, false, 1.0); err == nil {
		t.Error("expected error for dropout = 1")
	}
}

func TestAutoencoderReconstructionShape(t *testing.T) {
	tensor.SetSeed(4)
	for _, pooling := range []bool{false, true} {
		ae, err := NewAutoencoder([]int{1, 4, 8}, 1, pooling, 0)
		if err != nil {
			t.Fatalf("pooling=%v: NewAutoencoder failed: %v", pooling, err)
		}
		ae.Eval()

		input := tensor.Uniform(0, 1, 2, 1, 8, 8, 8)
		out, err := ae.Forward(input)
		if err != nil {
			t.Fatalf("pooling=%v: Forward failed: %v", pooling, err)
		}
		want := []int{2, 1, 8, 8, 8}
		for i, d := range out.Shape() {
			if d != want[i] {
				t.Fatalf("pooling=%v: output shape %v, want %v", pooling, out.Shape(), want)
			}
		}
	}
}

func TestAutoencoderTrainEvalFanOut(t *testing.T) {
	ae, err := NewAutoencoder([]int{1, 4, 8}, 1, true, 0.3)
	if err != nil {
		t.Fatalf("NewAutoencoder failed: %v", err)
	}
	if !ae.IsTraining() {
		t.Error("new network should start in training mode")
	}

	ae.Eval()
	for i, d := range ae.dropDown {
		if d.IsTraining() {
			t.Errorf("contracting dropout %d still in training mode", i)
		}
	}
	ae.Train()
	for i, d := range ae.dropUp {
		if !d.IsTraining() {
			t.Errorf("expanding dropout %d not in training mode", i)
		}
	}
}

func TestAutoencoderSetDropoutRate(t *testing.T) {
	ae, err := NewAutoencoder([]int{1, 4, 8}, 1, true, 0.5)
	if err != nil {
		t.Fatalf("NewAutoencoder failed: %v", err)
	}

	ae.SetDropoutRate(0.2)
	if ae.DropoutRate() != 0.2 {
		t.Errorf("DropoutRate = %v, want 0.2", ae.DropoutRate())
	}
	for i, d := range ae.dropDown {
		if d.Rate() != 0.2 {
			t.Errorf("contracting dropout %d rate = %v, want 0.2", i, d.Rate())
		}
	}
	for i, d := range ae.dropUp {
		if d.Rate() != 0.2 {
			t.Errorf("expanding dropout %d rate = %v, want 0.2", i, d.Rate())
		}
	}

	ae.SetDropoutRate(-0.1)
	if ae.DropoutRate() != 0 {
		t.Errorf("negative rate must clamp to 0, got %v", ae.DropoutRate())
	}
}

func TestAutoencoderStateDictRoundTrip(t *testing.T) {
	tensor.SetSeed(6)
	src, err := NewAutoencoder([]int{1, 4, 8}, 1, true, 0)
	if err != nil {
		t.Fatalf("NewAutoencoder failed: %v", err)
	}
	dst, err := NewAutoencoder([]int{1, 4, 8}, 1, true, 0)
	if err != nil {
		t.Fatalf("NewAutoencoder failed: %v", err)
	}
	src.Eval()
	dst.Eval()

	state := make(map[string]*tensor.Tensor)
	src.StateDict("", state)
	if len(state) == 0 {
		t.Fatal("state dict is empty")
	}
	if err := dst.LoadState("", state); err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}

	input := tensor.Uniform(0, 1, 1, 1, 8, 8, 8)
	a, err := src.Forward(input)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	b, err := dst.Forward(input)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	for i, v := range a.Data() {
		if v != b.Data()[i] {
			t.Fatalf("restored network diverges at %d: %v vs %v", i, v, b.Data()[i])
		}
	}
}

func TestAutoencoderStateDictIsDeepCopy(t *testing.T) {
	ae, err := NewAutoencoder([]int{1, 4}, 1, false, 0)
	if err != nil {
		t.Fatalf("NewAutoencoder failed: %v", err)
	}
	state := make(map[string]*tensor.Tensor)
	ae.StateDict("", state)

	snap, ok := state["down.0.0.weight"]
	if !ok {
		t.Fatal("state dict missing down.0.0.weight")
	}
	before := snap.Data()
	for _, p := range ae.Parameters() {
		p.Scale(2)
	}
	for i, v := range snap.Data() {
		if before[i] != v {
			t.Fatal("state entry aliases live parameters")
		}
	}
}
